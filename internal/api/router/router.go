package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/internal/gate"
	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Gate           *gate.Gate
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/admin/gate", func(admin chi.Router) {
		admin.Get("/stats", handleGateStats(cfg))
		admin.Post("/reset-stats", handleGateResetStats(cfg))
		admin.Post("/clear-rate-limits", handleGateClearRateLimits(cfg))
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleGateStats(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		stats := cfg.Gate.GetStats()
		writeJSON(w, http.StatusOK, map[string]any{
			"total_sent":          stats.TotalSent,
			"total_blocked":       stats.TotalBlocked,
			"blocked_by_gate":     stats.BlockedByGate,
			"global_hourly_count": stats.GlobalHourlyCount,
		})
	}
}

func handleGateResetStats(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Gate.ResetStats()
		cfg.Logger.Info("gate stats reset", "remote", r.RemoteAddr)
		writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
	}
}

func handleGateClearRateLimits(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Gate.ClearRateLimits()
		cfg.Logger.Info("gate rate limits cleared", "remote", r.RemoteAddr)
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}
