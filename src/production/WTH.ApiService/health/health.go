package health

import (
	"context"
	"fmt"
	"time"

	interfaces "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Repository/Interfaces"
)

const version = "1.0.0"

// HealthChecker reports on the reading store
type HealthChecker struct {
	repo    interfaces.ReadingRepository
	backend string
	now     func() time.Time
}

// NewHealthChecker creates a new health checker for the store behind repo
func NewHealthChecker(repo interfaces.ReadingRepository, backend string) *HealthChecker {
	return &HealthChecker{repo: repo, backend: backend, now: time.Now}
}

// CheckStore pings the store
func (h *HealthChecker) CheckStore(ctx context.Context) error {
	if h.repo == nil {
		return fmt.Errorf("reading store is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.repo.Ping(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", h.backend, err)
	}
	return nil
}

// GetHealthStatus returns the current health status
func (h *HealthChecker) GetHealthStatus(ctx context.Context) map[string]interface{} {
	store := map[string]interface{}{
		"backend": h.backend,
		"status":  "ok",
	}
	overall := "ok"
	if err := h.CheckStore(ctx); err != nil {
		store["status"] = "error"
		store["error"] = err.Error()
		overall = "degraded"
	}

	return map[string]interface{}{
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"version":   version,
		"status":    overall,
		"checks": map[string]interface{}{
			"store": store,
		},
	}
}
