package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/parleyhq/parley/internal/session"
)

// sessionJSON is a serializable session snapshot.
type sessionJSON struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	ChannelID    string `json:"channel_id"`
	CreatedAt    string `json:"created_at"`
	LastActiveAt string `json:"last_active_at"`
	Turns        int    `json:"turns"`
}

// handleListSessions returns all live sessions as JSON.
func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		sessions := []sessionJSON{}

		if g.sessions != nil {
			g.sessions.Range(func(key session.Key, sess *session.Session) bool {
				sessions = append(sessions, sessionJSON{
					ID:           sess.ID,
					UserID:       key.UserID,
					ChannelID:    key.ChannelID,
					CreatedAt:    sess.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
					LastActiveAt: sess.LastActiveAt.UTC().Format("2006-01-02T15:04:05Z"),
					Turns:        sess.TurnCount(),
				})
				return true
			})
		}

		writeJSON(w, http.StatusOK, sessions)
	}
}

// handleDeleteSession evicts the session for ?user_id=&channel_id=.
// Only the in-memory working set is dropped; the durable conversation
// stays open.
func (g *Gateway) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := session.Key{
			UserID:    r.URL.Query().Get("user_id"),
			ChannelID: r.URL.Query().Get("channel_id"),
		}
		if key.UserID == "" || key.ChannelID == "" {
			http.Error(w, "user_id and channel_id are required", http.StatusBadRequest)
			return
		}
		if g.sessions == nil || g.sessions.Get(key) == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		g.sessions.Delete(key)
		w.WriteHeader(http.StatusNoContent)
	}
}

// endConversationRequest is the body for POST /api/conversations/end.
type endConversationRequest struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
}

// handleEndConversation ends the active durable conversation and drops
// the matching session so the next message starts fresh.
func (g *Gateway) handleEndConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req endConversationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.UserID == "" || req.ChannelID == "" {
			http.Error(w, "user_id and channel_id are required", http.StatusBadRequest)
			return
		}
		if g.conversations == nil {
			http.Error(w, "conversation manager not available", http.StatusServiceUnavailable)
			return
		}

		conv, err := g.conversations.EndActive(r.Context(), req.UserID, req.ChannelID)
		if err != nil {
			g.logger.Error("ending conversation failed", "error", err)
			http.Error(w, "ending conversation failed", http.StatusInternalServerError)
			return
		}
		if conv == nil {
			http.Error(w, "no active conversation", http.StatusNotFound)
			return
		}

		if g.sessions != nil {
			g.sessions.Delete(session.Key{UserID: req.UserID, ChannelID: req.ChannelID})
		}

		writeJSON(w, http.StatusOK, map[string]string{"conversation_id": conv.ID, "status": "ended"})
	}
}

// backendJSON is a serializable backend client snapshot.
type backendJSON struct {
	Name          string `json:"name"`
	Model         string `json:"model"`
	ContextWindow int    `json:"context_window"`
}

// handleListBackends lists registered backend clients.
func (g *Gateway) handleListBackends() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		out := []backendJSON{}
		if g.backends != nil {
			for _, name := range g.backends.Names() {
				client, err := g.backends.Get(name)
				if err != nil {
					continue
				}
				out = append(out, backendJSON{
					Name:          client.Name(),
					Model:         client.ModelName(),
					ContextWindow: client.ContextWindow(),
				})
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleReloadConfig triggers a hot-reload through the reload handler
// registered by the app wiring.
func (g *Gateway) handleReloadConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.reloadFn == nil {
			http.Error(w, "reload not available", http.StatusServiceUnavailable)
			return
		}
		if err := g.reloadFn(r.Context()); err != nil {
			g.logger.Error("config reload failed", "error", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		g.logger.Info("configuration reloaded")
		writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
