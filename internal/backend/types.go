package backend

// MessageRole identifies the author of a prompt message.
type MessageRole string

// MessageRole constants for prompt messages.
const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is a single role-tagged prompt message.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
	// Images lists attachment references for multimodal backends.
	Images []string `json:"images,omitempty"`
}

// Settings carries per-request generation parameters.
type Settings struct {
	Model       string   `json:"model,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	// Instructions is the system text used by thread-mode runs, which do not
	// accept a leading system message the way chat mode does.
	Instructions string `json:"instructions,omitempty"`
}

// CompletionRequest is the input to a chat-mode Complete call.
type CompletionRequest struct {
	Messages []Message `json:"messages"`
	Settings Settings  `json:"settings"`
	// Credential is an optional per-call API key override used for
	// self-pay billing. Empty means the client's configured key.
	Credential string `json:"-"`
}

// Completion is a backend reply.
type Completion struct {
	Text  string     `json:"text"`
	Model string     `json:"model,omitempty"`
	Usage TokenUsage `json:"usage"`
}

// TokenUsage tracks token consumption for one completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// RunStatus describes the state of a thread-mode run.
type RunStatus string

// RunStatus constants, mirroring the provider's run lifecycle.
const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunCancelled      RunStatus = "cancelled"
	RunExpired        RunStatus = "expired"
	RunRequiresAction RunStatus = "requires_action"
)

// Terminal reports whether the run has finished, successfully or not.
// RunRequiresAction counts as terminal: the engine never supplies tool
// outputs, so such a run can make no further progress.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunExpired, RunRequiresAction:
		return true
	}
	return false
}

// Mode identifies which backend mode a conversation uses.
type Mode string

// Mode constants. The zero value means no mode has been chosen yet.
const (
	ModeUnset  Mode = ""
	ModeThread Mode = "thread"
	ModeChat   Mode = "chat"
)

// ModeState is the per-conversation backend state the selector reads and
// advances. The orchestrator copies it from and back to the durable
// conversation record, including on failure, so a thread downgrade is
// remembered for the rest of the conversation.
type ModeState struct {
	Mode     Mode
	ThreadID string
}
