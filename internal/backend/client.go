package backend

import "context"

// Client is the interface every LLM backend implements: stateless chat-mode
// completion plus model metadata. Concrete implementations live in separate
// packages (e.g., backend.openai) and typically also implement core.Module
// for lifecycle management.
type Client interface {
	// Complete sends the full prompt and returns the reply.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)

	// Name returns the client's registry name.
	Name() string

	// ModelName returns the identifier of the default model.
	ModelName() string

	// ContextWindow returns the maximum context window in tokens.
	ContextWindow() int
}

// ThreadClient is an optional interface for backends that keep conversation
// state server-side. Thread operations always run on the client's configured
// credential; self-pay overrides force chat mode instead.
type ThreadClient interface {
	// CreateThread creates a persistent conversation handle.
	CreateThread(ctx context.Context) (string, error)

	// AppendMessage adds one user message to the thread.
	AppendMessage(ctx context.Context, threadID, text string, images []string) error

	// StartRun triggers generation on the thread and returns the run id.
	StartRun(ctx context.Context, threadID string, settings Settings) (string, error)

	// PollRun reports the run's current status.
	PollRun(ctx context.Context, threadID, runID string) (RunStatus, error)

	// LatestMessage returns the newest assistant message on the thread.
	LatestMessage(ctx context.Context, threadID string) (*Completion, error)
}

// HealthChecker is an optional interface for backends that support active
// probing, surfaced on the status endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
