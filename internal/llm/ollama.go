package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"afyaplate/internal/config"
	"afyaplate/internal/shared"

	"go.uber.org/zap"
)

const ollamaChatPath = "/api/chat"

// ollamaClient is a client for a local Ollama server.
type ollamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
}

// NewOllamaClient creates a TextGenerator backed by a local Ollama server.
func NewOllamaClient(cfg *config.Config, logger *zap.Logger) TextGenerator {
	return &ollamaClient{
		baseURL: cfg.Ollama.Host,
		model:   cfg.Ollama.Model,
		httpClient: &http.Client{
			Timeout: cfg.Generation.Timeout,
		},
		logger: logger.Named("ollama"),
	}
}

// GenerateContent sends a prompt to the Ollama chat API and returns the
// generated text. format=json asks the model for a single JSON object.
func (c *ollamaClient) GenerateContent(ctx context.Context, prompt string) (ContentResponse, error) {
	reqBody := ollamaChatRequest{
		Model: c.model,
		Messages: []ollamaMessage{
			{Role: "user", Content: prompt},
		},
		Stream: false,
		Format: "json",
		Options: map[string]any{
			"temperature": 0.3,
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+ollamaChatPath, bytes.NewBuffer(jsonBody))
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ContentResponse{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return ContentResponse{}, fmt.Errorf("%w: ollama status=%d body=%s",
			ErrGenerationUnavailable, resp.StatusCode, string(bodyBytes))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return ContentResponse{}, fmt.Errorf("failed to decode ollama response: %w", err)
	}

	if !chatResp.Done {
		return ContentResponse{}, fmt.Errorf("incomplete response from ollama")
	}
	if chatResp.Message.Content == "" {
		return ContentResponse{}, fmt.Errorf("empty content in ollama response")
	}

	c.logger.Debug("ollama chat completion",
		zap.String("model", chatResp.Model),
		zap.Int("prompt_eval_count", chatResp.PromptEvalCount),
		zap.Int("eval_count", chatResp.EvalCount),
		zap.Duration("latency", time.Since(start)),
	)

	return ContentResponse{
		Content: chatResp.Message.Content,
		Usage: shared.TokenUsage{
			PromptTokens:     chatResp.PromptEvalCount,
			CompletionTokens: chatResp.EvalCount,
			TotalTokens:      chatResp.PromptEvalCount + chatResp.EvalCount,
			Model:            chatResp.Model,
		},
	}, nil
}

// classifyTransportError maps transport failures onto the generation
// error taxonomy so callers can distinguish "service down" from "too slow".
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrGenerationTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrGenerationTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
}
