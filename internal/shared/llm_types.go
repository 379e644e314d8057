package shared

import (
	"time"
)

// TokenUsage tracks the tokens consumed by a single model call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

// CallMeta holds operational metadata for one generation attempt.
type CallMeta struct {
	Stage   string // "plan", "retry-1", "retry-2", ...
	Usage   TokenUsage
	Latency time.Duration
}
