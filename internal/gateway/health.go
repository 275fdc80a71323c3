package gateway

import (
	"context"
	"encoding/json"
	"net/http"
)

// BackendHealth reports one registered backend's probe result.
type BackendHealth struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// HealthResponse is the JSON response for GET /healthz.
type HealthResponse struct {
	Status   string          `json:"status"` // "ok" or "degraded"
	Sessions int             `json:"sessions"`
	Backends []BackendHealth `json:"backends"`
}

// handleHealth returns an http.HandlerFunc for GET /healthz.
// Returns 200 if all backends are healthy, 503 if any probe fails.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Backends: []BackendHealth{},
		}

		if g.sessions != nil {
			resp.Sessions = g.sessions.Len()
		}

		if g.backends != nil {
			for _, name := range g.backends.Names() {
				resp.Backends = append(resp.Backends, g.probeBackend(r.Context(), name))
			}
			for _, b := range resp.Backends {
				if !b.Available {
					resp.Status = "degraded"
					break
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == "degraded" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// probeBackend runs a bounded health check against one client. Clients
// without a health check are reported available when registered.
func (g *Gateway) probeBackend(ctx context.Context, name string) BackendHealth {
	client, err := g.backends.Get(name)
	if err != nil {
		return BackendHealth{Name: name, Error: err.Error()}
	}

	hc, ok := client.(interface{ HealthCheck(context.Context) error })
	if !ok {
		return BackendHealth{Name: name, Available: true}
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.HealthProbeTimeout)
	defer cancel()
	if err := hc.HealthCheck(ctx); err != nil {
		return BackendHealth{Name: name, Error: err.Error()}
	}
	return BackendHealth{Name: name, Available: true}
}
