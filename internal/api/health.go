package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck is one dependency reported on /health. A failing Required check
// turns the endpoint 503; any other failure only marks it degraded.
type HealthCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Required bool
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func healthHandler(logger *zap.Logger, checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK

		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				logger.Warn("health check failed",
					zap.String("check", c.Name),
					zap.Bool("required", c.Required),
					zap.Error(err),
				)
				resp.Checks[c.Name] = err.Error()
				if c.Required {
					resp.Status = "unavailable"
					status = http.StatusServiceUnavailable
				} else if resp.Status == "ok" {
					resp.Status = "degraded"
				}
				continue
			}
			resp.Checks[c.Name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
