package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// StatusResponse is the JSON response for GET /statusz.
type StatusResponse struct {
	Uptime       time.Duration    `json:"uptime_seconds"`
	Counters     CountersSnapshot `json:"counters"`
	Sessions     int              `json:"sessions"`
	Backends     []string         `json:"backends"`
	AuditDropped int64            `json:"audit_dropped"`
}

// handleStatus returns an http.HandlerFunc for GET /statusz.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:   time.Since(g.startedAt).Truncate(time.Second),
			Counters: g.counters.Snapshot(),
			Backends: []string{},
		}

		if g.sessions != nil {
			resp.Sessions = g.sessions.Len()
		}
		if g.backends != nil {
			resp.Backends = g.backends.Names()
		}
		if g.auditDropped != nil {
			resp.AuditDropped = g.auditDropped()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
