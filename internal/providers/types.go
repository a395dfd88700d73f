package providers

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoChoices is returned when the completion API answers 200 with zero
// candidates. Callers treat it the same as a transport failure.
var ErrNoChoices = errors.New("completion returned no choices")

// Provider is the interface the completion orchestrator depends on.
type Provider interface {
	// Chat sends the full conversation snapshot and returns a response.
	// Synchronous and bounded by the client timeout / ctx deadline.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Name returns the provider identifier (e.g. "openrouter").
	Name() string
}

// ChatRequest contains the input for a Chat call.
type ChatRequest struct {
	Messages  []Message `json:"messages"`
	Model     string    `json:"model,omitempty"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// ChatResponse is the result from a completion call.
type ChatResponse struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        *Usage `json:"usage,omitempty"`
}

// Message represents one conversation entry. Content and Images are the
// entry's parts; at least one of them is present.
type Message struct {
	Role    string         `json:"role"` // "system", "user", "assistant"
	Content string         `json:"content"`
	Images  []ImageContent `json:"images,omitempty"`
}

// ImageContent is a base64-encoded image part for vision models.
type ImageContent struct {
	MimeType string `json:"mime_type"` // e.g. "image/jpeg"
	Data     string `json:"data"`      // base64-encoded bytes
}

// Usage tracks token consumption reported by the API.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// HTTPError is a non-200 reply from the completion API.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}
