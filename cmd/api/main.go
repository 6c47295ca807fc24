package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/internal/api/router"
	appconfig "github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/internal/config"
	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/internal/content"
	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/internal/cooldown"
	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/internal/gate"
	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/internal/observability/metrics"
	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/internal/orders"
	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/internal/session"
	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/pkg/logging"
)

func main() {
	// Local development convenience; env vars win in deployed environments.
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting techaura outbound gate service",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	sessions := session.NewRedisStore(redisClient, cfg.SessionTTL, logger)
	cooldowns := cooldown.NewStore(redisClient, logger)

	orderClient, err := orders.NewClient(cfg.TechAuraAPIBaseURL, cfg.TechAuraAPIKey, logger)
	if err != nil {
		logger.Error("failed to build order client", "error", err)
		os.Exit(1)
	}

	sendWindow, err := gate.ParseSendWindow(cfg.GateSendWindowStart, cfg.GateSendWindowEnd, cfg.GateSendWindowTimezone)
	if err != nil {
		logger.Error("failed to parse send window", "error", err)
		os.Exit(1)
	}

	gateMetrics := metrics.NewGateMetrics(nil)
	outboundGate, err := gate.New(gate.Config{
		MinFollowUpGap:          cfg.GateMinFollowUpGap,
		MinActiveGap:            cfg.GateMinActiveGap,
		SendWindow:              sendWindow,
		PerChatHourlyLimit:      cfg.GatePerChatHourlyLimit,
		MinSendInterval:         cfg.GateMinSendInterval,
		MinDelay:                cfg.GateMinDelay,
		MaxDelay:                cfg.GateMaxDelay,
		FailOpenOnCooldownError: cfg.GateFailOpenOnCooldown,
		FailOpenOnContentError:  cfg.GateFailOpenOnContent,
	}, gate.Deps{
		Sessions:  sessions,
		Orders:    orderClient,
		Cooldowns: cooldowns,
		Content:   content.NewValidator(),
		Logger:    logger,
		Metrics:   gateMetrics,
	})
	if err != nil {
		logger.Error("failed to build outbound gate", "error", err)
		os.Exit(1)
	}

	// Setup router
	r := router.New(&router.Config{
		Logger:         logger,
		Gate:           outboundGate,
		MetricsHandler: promhttp.Handler(),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := redisClient.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	logger.Info("server stopped")
}
