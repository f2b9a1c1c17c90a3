package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/monarena/monarena/internal/domain"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	feed   domain.PriceFeed
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. feed may be nil when no live
// feed is attached (tests).
func NewHealthHandler(feed domain.PriceFeed, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{feed: feed, logger: logHandler(logger, "health")}
}

// HealthCheck reports liveness plus the price feed state.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	feedHealthy := h.feed != nil && h.feed.Healthy()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"feed_healthy": feedHealthy,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
