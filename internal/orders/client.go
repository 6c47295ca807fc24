// Package orders is the HTTP client for the TechAura order backend. The gate
// uses it to avoid sending marketing copy to customers with an order in flight.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/internal/phone"
	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/pkg/logging"
)

var tracer = otel.Tracer("techaura.internal.orders")

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
)

// activeStatuses are the order states during which the customer should only
// receive order/system messages.
var activeStatuses = map[string]struct{}{
	"pending":   {},
	"confirmed": {},
	"burning":   {},
}

// APIError is a structured error from the order backend.
type APIError struct {
	Message    string
	Code       string
	StatusCode int
	Retryable  bool
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("orders: %s (%s)", e.Message, e.Code)
	}
	return "orders: " + e.Message
}

// IsAuthError reports whether err is an authentication failure against the
// order backend.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.Code == "MISSING_API_KEY"
}

// Order is one USB order as returned by the backend.
type Order struct {
	OrderID       string   `json:"order_id"`
	OrderNumber   string   `json:"order_number"`
	CustomerName  string   `json:"customer_name"`
	CustomerPhone string   `json:"customer_phone"`
	ProductType   string   `json:"product_type"`
	Capacity      string   `json:"capacity"`
	Genres        []string `json:"genres"`
	Artists       []string `json:"artists"`
	Videos        []string `json:"videos,omitempty"`
	Movies        []string `json:"movies,omitempty"`
	Status        string   `json:"status"`
	CreatedAt     string   `json:"created_at,omitempty"`
}

// apiResponse is the backend's standard envelope.
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

// Client talks to the TechAura order API with bearer auth and bounded retries.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     *logging.Logger

	// sleep is swapped out in tests so retry backoff does not slow the suite.
	sleep func(time.Duration)
}

// NewClient creates a client for the order backend.
func NewClient(baseURL, apiKey string, logger *logging.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, &APIError{Message: "API key is required", Code: "MISSING_API_KEY"}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		logger:     logger,
		sleep:      time.Sleep,
	}, nil
}

// Connect verifies connectivity and credentials against the backend.
func (c *Client) Connect(ctx context.Context) error {
	var resp apiResponse
	if err := c.doRequest(ctx, http.MethodGet, "/health", &resp); err != nil {
		return err
	}
	if !resp.Success {
		return &APIError{Message: "health check reported failure"}
	}
	return nil
}

// GetOrdersByPhone returns every order recorded for the phone.
func (c *Client) GetOrdersByPhone(ctx context.Context, p string) ([]Order, error) {
	params := url.Values{"phone": {phone.NormalizeE164(p)}}
	var resp apiResponse
	if err := c.doRequest(ctx, http.MethodGet, "/orders?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	var orders []Order
	if err := json.Unmarshal(resp.Data, &orders); err != nil {
		return nil, fmt.Errorf("orders: decode orders: %w", err)
	}
	return orders, nil
}

// HasActiveOrConfirmedOrder reports whether the phone has an order the bot
// must not talk over with marketing messages.
func (c *Client) HasActiveOrConfirmedOrder(ctx context.Context, p string) (bool, error) {
	ctx, span := tracer.Start(ctx, "orders.has_active_order")
	defer span.End()

	orders, err := c.GetOrdersByPhone(ctx, p)
	if err != nil {
		return false, err
	}
	for _, o := range orders {
		if _, active := activeStatuses[strings.ToLower(o.Status)]; active {
			span.SetAttributes(attribute.String("orders.active_status", o.Status))
			return true, nil
		}
	}
	return false, nil
}

// doRequest performs one API call with retry on timeouts, connection errors,
// and retryable status codes (429/5xx). Backoff doubles per attempt.
func (c *Client) doRequest(ctx context.Context, method, path string, out *apiResponse) error {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			c.sleep(c.retryDelay * (1 << (attempt - 1)))
		}

		err := c.attempt(ctx, method, path, out)
		if err == nil {
			return nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		c.logger.Warn("order API request failed, retrying",
			"method", method,
			"path", path,
			"attempt", attempt+1,
			"error", err,
		)
	}
	return lastErr
}

func (c *Client) attempt(ctx context.Context, method, path string, out *apiResponse) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("orders: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Message: err.Error(), Code: "CONNECTION_ERROR", Retryable: true}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &APIError{Message: "invalid API key", Code: "INVALID_API_KEY", StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &APIError{Message: "rate limit exceeded", Code: "RATE_LIMITED", StatusCode: resp.StatusCode, Retryable: true}
	case resp.StatusCode >= http.StatusInternalServerError:
		return &APIError{Message: "server error", Code: "SERVER_ERROR", StatusCode: resp.StatusCode, Retryable: true}
	case resp.StatusCode >= http.StatusBadRequest:
		var envelope apiResponse
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
		msg := envelope.Error
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return &APIError{Message: msg, Code: envelope.Code, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("orders: decode response: %w", err)
	}
	return nil
}
