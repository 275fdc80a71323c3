package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Public — no auth required.
	r.Get("/healthz", g.handleHealth())

	// Relay WebSocket — clients authenticate in-band with relay tokens.
	if g.relayHandler != nil {
		r.Handle("/ws/relay", g.relayHandler)
	}

	// Message and admin endpoints require auth when configured. An
	// unauthenticated deployment still serves them, which suits local
	// development behind the loopback default bind.
	guard := func(r chi.Router) chi.Router {
		if g.config.Auth.IsConfigured() {
			return r.With(authMiddleware(g.config.Auth, g.limiter))
		}
		return r
	}

	guard(r).Post("/v1/messages", g.handleMessage())

	guard(r).Group(func(r chi.Router) {
		r.Get("/statusz", g.handleStatus())
		if g.prom != nil {
			r.Handle("/metrics", g.prom.Handler())
		}
		r.Route("/api", func(r chi.Router) {
			r.Get("/sessions", g.handleListSessions())
			r.Delete("/sessions", g.handleDeleteSession())
			r.Post("/conversations/end", g.handleEndConversation())
			r.Get("/backends", g.handleListBackends())
			r.Post("/config/reload", g.handleReloadConfig())
		})
	})

	return r
}
