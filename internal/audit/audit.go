// Package audit records durable operational events for moderation and
// billing review. Events carry content hashes rather than raw message
// text so sinks can be shipped off-box without leaking conversations.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EventType identifies the kind of audit event.
type EventType string

// Audit event types.
const (
	EventMessageHandled     EventType = "message_handled"
	EventMessageRejected    EventType = "message_rejected"
	EventVerificationDenied EventType = "verification_denied"
	EventBillingDenied      EventType = "billing_denied"
	EventBillingSettled     EventType = "billing_settled"
	EventBackendFallback    EventType = "backend_fallback"
	EventFilterApplied      EventType = "filter_applied"
	EventConversationEnded  EventType = "conversation_ended"
	EventSessionEvicted     EventType = "session_evicted"
)

// Event is a single audit record. Inbound and outbound text never
// appear verbatim; HashContent digests stand in for them.
type Event struct {
	Timestamp      time.Time         `json:"timestamp"`
	Type           EventType         `json:"type"`
	RequestID      string            `json:"request_id,omitempty"`
	UserID         string            `json:"user_id,omitempty"`
	GuildID        string            `json:"guild_id,omitempty"`
	ChannelID      string            `json:"channel_id,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Category       string            `json:"category,omitempty"`
	Status         string            `json:"status,omitempty"`
	BillingMode    string            `json:"billing_mode,omitempty"`
	Model          string            `json:"model,omitempty"`
	Cost           int64             `json:"cost,omitempty"`
	Deducted       int64             `json:"deducted,omitempty"`
	InboundHash    string            `json:"inbound_hash,omitempty"`
	OutboundHash   string            `json:"outbound_hash,omitempty"`
	Detail         string            `json:"detail,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Sink receives audit events. Implementations must be safe for
// concurrent use; delivery errors are logged by the dispatcher and
// never surfaced to message handling.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// HashContent returns the hex SHA-256 digest of text, or "" for empty
// input so omitempty elides the field.
func HashContent(text string) string {
	if text == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
