package llm

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/paperscope/paperscope/pkg/config"
)

// MessagesClient captures the subset of the Anthropic SDK used by the
// adapter. Satisfied by *sdk.MessageService; tests pass a mock.
type MessagesClient interface {
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// AnthropicClient implements Client on top of the Anthropic Messages API.
type AnthropicClient struct {
	msg          MessagesClient
	defaultModel string
	maxTokens    int
	temperature  float64
}

// NewAnthropicClient builds a client from an existing Messages client.
func NewAnthropicClient(msg MessagesClient, cfg config.LLMConfig) (*AnthropicClient, error) {
	if msg == nil {
		return nil, errors.New("anthropic messages client is required")
	}
	if cfg.PrimaryModel == "" {
		return nil, errors.New("primary model identifier is required")
	}
	return &AnthropicClient{
		msg:          msg,
		defaultModel: cfg.PrimaryModel,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
	}, nil
}

// NewAnthropicClientFromAPIKey constructs a client using the default
// Anthropic HTTP transport.
func NewAnthropicClientFromAPIKey(apiKey string, cfg config.LLMConfig) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropicClient(&ac.Messages, cfg)
}

// Generate sends a streaming Messages request and adapts the SSE events
// into Chunk values. The producer goroutine exits when the stream ends or
// ctx is cancelled; the channel is always closed.
func (c *AnthropicClient) Generate(ctx context.Context, input *GenerateInput) (<-chan Chunk, error) {
	params, err := c.prepareRequest(input)
	if err != nil {
		return nil, err
	}

	stream := c.msg.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic messages stream: %w", err)
	}

	out := make(chan Chunk, 32)
	go func() {
		defer close(out)
		defer func() { _ = stream.Close() }()

		emit := func(chunk Chunk) bool {
			select {
			case out <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case sdk.ContentBlockDeltaEvent:
				if delta, ok := ev.Delta.AsAny().(sdk.TextDelta); ok && delta.Text != "" {
					if !emit(&TextChunk{Content: delta.Text}) {
						return
					}
				}
			case sdk.MessageDeltaEvent:
				if !emit(&UsageChunk{
					InputTokens:  int(ev.Usage.InputTokens),
					OutputTokens: int(ev.Usage.OutputTokens),
					TotalTokens:  int(ev.Usage.InputTokens + ev.Usage.OutputTokens),
				}) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			kind := Classify(err)
			emit(&ErrorChunk{Message: err.Error(), Kind: kind, Retryable: kind.Retryable()})
			return
		}
		if err := ctx.Err(); err != nil {
			emit(&ErrorChunk{Message: err.Error(), Kind: KindAborted})
		}
	}()

	return out, nil
}

func (c *AnthropicClient) prepareRequest(input *GenerateInput) (*sdk.MessageNewParams, error) {
	if input == nil || len(input.Messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}
	model := input.Model
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := input.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens <= 0 {
		return nil, errors.New("anthropic: max_tokens must be positive")
	}

	msgs := make([]sdk.MessageParam, 0, len(input.Messages))
	var system []sdk.TextBlockParam
	if input.System != "" {
		system = append(system, sdk.TextBlockParam{Text: input.System})
	}
	for _, m := range input.Messages {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case RoleUser:
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case RoleAssistant:
			msgs = append(msgs, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			return nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(msgs) == 0 {
		return nil, errors.New("anthropic: at least one user/assistant message is required")
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = system
	}
	temp := input.Temperature
	if temp == 0 {
		temp = c.temperature
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}
	return &params, nil
}
