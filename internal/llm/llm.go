package llm

import (
	"context"
	"errors"

	"afyaplate/internal/shared"
)

// ErrGenerationUnavailable indicates the generation service could not be
// reached (connection refused, DNS failure, service error).
var ErrGenerationUnavailable = errors.New("generation service unavailable")

// ErrGenerationTimeout indicates a generation call exceeded its deadline.
var ErrGenerationTimeout = errors.New("generation timed out")

// ContentResponse contains the generated text and metadata like token usage.
type ContentResponse struct {
	Content string
	Usage   shared.TokenUsage
}

// TextGenerator is an interface for generating text from a prompt.
// Implementations carry no retry policy; retries belong to the plan
// validator, which re-prompts with the prior failure reason.
type TextGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (ContentResponse, error)
}

// Closer is an interface for closing resources.
type Closer interface {
	Close() error
}
