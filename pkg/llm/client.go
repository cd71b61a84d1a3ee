// Package llm provides the model client used by every LLM-backed component:
// a channel-based streaming interface, an Anthropic-backed implementation,
// structured-output calls with retry and model fallback, and the user-facing
// error taxonomy.
package llm

import "context"

// Client is the interface for calling a language model. The returned
// channel is closed when the stream completes; errors are delivered as
// ErrorChunk values in the channel.
type Client interface {
	Generate(ctx context.Context, input *GenerateInput) (<-chan Chunk, error)
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the conversation sent to the model.
type Message struct {
	Role    string
	Content string
}

// GenerateInput describes a single model request.
type GenerateInput struct {
	Model       string // empty = client default
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Chunk is the interface for all streaming chunk types.
type Chunk interface {
	chunkType() ChunkType
}

// ChunkType identifies the kind of streaming chunk.
type ChunkType string

const (
	ChunkTypeText  ChunkType = "text"
	ChunkTypeUsage ChunkType = "usage"
	ChunkTypeError ChunkType = "error"
)

// TextChunk is a chunk of the model's text response.
type TextChunk struct{ Content string }

// UsageChunk reports token consumption for this call.
type UsageChunk struct{ InputTokens, OutputTokens, TotalTokens int }

// ErrorChunk signals an error from the model provider.
type ErrorChunk struct {
	Message   string
	Kind      ErrorKind
	Retryable bool
}

func (c *TextChunk) chunkType() ChunkType  { return ChunkTypeText }
func (c *UsageChunk) chunkType() ChunkType { return ChunkTypeUsage }
func (c *ErrorChunk) chunkType() ChunkType { return ChunkTypeError }

// TokenUsage accumulates token consumption across calls.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add folds another usage record into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// Response holds the fully-collected result of a streaming call.
type Response struct {
	Text  string
	Usage TokenUsage
}

// Collect drains a chunk channel into a complete Response. Returns an
// error if an ErrorChunk is received; text accumulated before the error
// is returned alongside it so callers can salvage partial content.
func Collect(stream <-chan Chunk) (*Response, error) {
	resp := &Response{}
	for chunk := range stream {
		switch c := chunk.(type) {
		case *TextChunk:
			resp.Text += c.Content
		case *UsageChunk:
			resp.Usage.Add(TokenUsage{
				InputTokens:  c.InputTokens,
				OutputTokens: c.OutputTokens,
				TotalTokens:  c.TotalTokens,
			})
		case *ErrorChunk:
			return resp, &ProviderError{Message: c.Message, Kind: c.Kind, Retryable: c.Retryable}
		}
	}
	return resp, nil
}
