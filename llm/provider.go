package llm

import "context"

// ProviderAdapter is the interface every backend protocol must implement.
// Adapters translate between the normalized shapes in this package and the
// provider's wire protocol; they carry no loop logic of their own.
type ProviderAdapter interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string

	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream sends a request and returns a channel of stream events. The
	// channel is closed after the final event; a StreamFinish event carries
	// the assembled Response.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// Closer is implemented by adapters that hold resources.
type Closer interface {
	Close() error
}
