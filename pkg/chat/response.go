package chat

// Response represents the engine's structured outcome for one Request.
type Response struct {
	ID      string `json:"id,omitempty"`
	Success bool   `json:"success"`
	Status  Status `json:"status"`

	// Text is the first page of the reply. Pages holds any additional pages
	// when the reply exceeds the platform display limit.
	Text  string   `json:"text,omitempty"`
	Pages []string `json:"pages,omitempty"`

	Compliance Compliance  `json:"compliance"`
	Usage      Usage       `json:"usage"`
	Session    SessionInfo `json:"session"`
	Context    ContextInfo `json:"context"`

	// Suggestions are lightweight follow-up prompts derived from the
	// conversation category.
	Suggestions []string `json:"suggestions,omitempty"`

	// Message carries user-facing guidance for non-ok statuses, such as how
	// to verify or how to top up credit.
	Message string `json:"message,omitempty"`
}

// Compliance describes how content policy applied to this exchange.
type Compliance struct {
	Category string `json:"category"`
	// Restricted is true when the exchange was age-gated, either by category
	// or by inbound classification.
	Restricted bool `json:"restricted"`
	// Escalated is true when classification widened the gate for an
	// otherwise general conversation.
	Escalated bool     `json:"escalated,omitempty"`
	Filtered  bool     `json:"filtered"`
	Issues    []string `json:"issues,omitempty"`
}

// Usage describes token consumption and billing for this exchange.
type Usage struct {
	BillingMode      string `json:"billing_mode,omitempty"`
	Model            string `json:"model,omitempty"`
	BackendMode      string `json:"backend_mode,omitempty"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	Cost             int64  `json:"cost,omitempty"`
	Deducted         int64  `json:"deducted,omitempty"`
}

// SessionInfo reports the in-memory session state after this exchange.
type SessionInfo struct {
	TurnCount        int   `json:"turn_count,omitempty"`
	MaxTurns         int   `json:"max_turns,omitempty"`
	SecondsRemaining int64 `json:"seconds_remaining,omitempty"`
}

// ContextInfo reports how the prompt context was assembled.
type ContextInfo struct {
	IncludedTurns int  `json:"included_turns,omitempty"`
	DroppedTurns  int  `json:"dropped_turns,omitempty"`
	Truncated     bool `json:"truncated,omitempty"`
}

// Failure builds a non-ok response with user-facing guidance.
func Failure(id string, status Status, msg string) *Response {
	return &Response{
		ID:      id,
		Success: false,
		Status:  status,
		Message: msg,
	}
}
