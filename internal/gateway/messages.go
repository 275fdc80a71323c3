package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/pkg/chat"
)

// statusCode maps a terminal response status to an HTTP status.
func statusCode(status chat.Status) int {
	switch status {
	case chat.StatusOK:
		return http.StatusOK
	case chat.StatusInvalid:
		return http.StatusBadRequest
	case chat.StatusNeedsVerification:
		return http.StatusForbidden
	case chat.StatusInsufficientCredit:
		return http.StatusPaymentRequired
	case chat.StatusRateLimited:
		return http.StatusTooManyRequests
	case chat.StatusUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleMessage is POST /v1/messages: decode, run the pipeline, map the
// terminal status onto an HTTP code. The engine owns all domain
// validation; the gateway only guards the transport layer.
func (g *Gateway) handleMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := g.config.MaxBodyBytes
		if limit <= 0 {
			limit = security.DefaultMaxBodySize
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, int64(limit)+1))
		if err != nil {
			http.Error(w, "reading body", http.StatusBadRequest)
			return
		}
		if err := security.ValidateBodySize(body, limit); err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		if err := security.ValidateJSONDepth(body, 0); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var req chat.Request
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}
		if req.Timestamp.IsZero() {
			req.Timestamp = time.Now()
		}

		start := time.Now()
		resp := g.dispatch(r.Context(), &req)
		elapsed := time.Since(start)

		g.counters.RecordMessage()
		if resp.Success {
			g.counters.RecordCompletion(resp.Usage.PromptTokens+resp.Usage.CompletionTokens, elapsed)
		} else {
			g.counters.RecordError()
		}
		if g.prom != nil {
			g.prom.ObserveMessage(string(resp.Status), elapsed)
			g.prom.ObserveUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.Deducted, false)
			if resp.Compliance.Filtered {
				g.prom.ObserveFilter()
			}
		}

		writeJSON(w, statusCode(resp.Status), resp)
	}
}

// dispatch runs the engine under a trace span when telemetry is wired.
func (g *Gateway) dispatch(ctx context.Context, req *chat.Request) *chat.Response {
	if g.tracer != nil {
		var span trace.Span
		ctx, span = g.tracer.Start(ctx, "gateway.handle_message",
			trace.WithAttributes(
				attribute.String("request.id", req.ID),
				attribute.String("request.category", req.Category),
			))
		defer span.End()
		resp := g.engine.HandleMessage(ctx, req)
		span.SetAttributes(attribute.String("response.status", string(resp.Status)))
		return resp
	}
	return g.engine.HandleMessage(ctx, req)
}
