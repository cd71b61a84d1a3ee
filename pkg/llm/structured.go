package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/paperscope/paperscope/pkg/config"
)

// Validator is implemented by structured-output types that can check their
// own field constraints after decoding.
type Validator interface {
	Validate() error
}

// Caller issues structured and plain calls against a Client with retry and
// model fallback. One Caller is shared by the planner, critic, auditor and
// checklist components.
type Caller struct {
	client Client
	cfg    config.LLMConfig
	usage  *UsageTracker
}

// NewCaller creates a Caller. usage may be nil (accounting disabled).
func NewCaller(client Client, cfg config.LLMConfig, usage *UsageTracker) *Caller {
	return &Caller{client: client, cfg: cfg, usage: usage}
}

// Usage returns the accumulated token usage and call count, or zeros
// when accounting is disabled.
func (c *Caller) Usage() (TokenUsage, int) {
	if c.usage == nil {
		return TokenUsage{}, 0
	}
	return c.usage.Total()
}

// Models selects which model a call targets.
const (
	ModelPrimary  = "primary"
	ModelFallback = "fallback"
	ModelLight    = "light"
)

func (c *Caller) resolveModel(role string) string {
	switch role {
	case ModelFallback:
		if c.cfg.FallbackModel != "" {
			return c.cfg.FallbackModel
		}
	case ModelLight:
		if c.cfg.LightModel != "" {
			return c.cfg.LightModel
		}
	}
	return c.cfg.PrimaryModel
}

// Complete performs a plain call against the named model role and returns
// the collected text. Transient provider errors are retried with
// exponential backoff up to the configured retry budget.
func (c *Caller) Complete(ctx context.Context, role string, input *GenerateInput) (*Response, error) {
	// Work on a copy so the caller's input is never mutated; Structured
	// reuses the same input across attempts with different model roles.
	call := *input
	call.Model = c.resolveModel(role)

	var resp *Response
	operation := func() error {
		stream, err := c.client.Generate(ctx, &call)
		if err != nil {
			if Classify(err).Retryable() {
				return err
			}
			return backoff.Permanent(err)
		}
		resp, err = Collect(stream)
		if err != nil {
			if c.usage != nil && resp != nil {
				c.usage.Add(resp.Usage)
			}
			if Classify(err).Retryable() {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(500*time.Millisecond),
		), uint64(c.cfg.MaxRetries)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return resp, err
	}
	if c.usage != nil {
		c.usage.Add(resp.Usage)
	}
	return resp, nil
}

// Structured performs a structured-output call: the prompt must instruct
// the model to answer with a single JSON object matching out's schema.
// On a schema failure the call is retried once against the same model,
// then once against the fallback model. out must be a pointer; when it
// implements Validator, validation failures count as schema failures.
func (c *Caller) Structured(ctx context.Context, role string, input *GenerateInput, out any) error {
	attempts := []string{role, role, ModelFallback}
	var lastErr error
	for i, attemptRole := range attempts {
		if i > 0 {
			slog.Warn("Structured call retry", "attempt", i+1, "model_role", attemptRole, "error", lastErr)
		}
		resp, err := c.Complete(ctx, attemptRole, input)
		if err != nil {
			lastErr = err
			if !Classify(err).Retryable() && Classify(err) != KindUnknown {
				return err
			}
			continue
		}
		if err := DecodeJSON(resp.Text, out); err != nil {
			lastErr = fmt.Errorf("decoding structured response: %w", err)
			continue
		}
		if v, ok := out.(Validator); ok {
			if err := v.Validate(); err != nil {
				lastErr = fmt.Errorf("validating structured response: %w", err)
				continue
			}
		}
		return nil
	}
	return fmt.Errorf("structured call failed after %d attempts: %w", len(attempts), lastErr)
}

// DecodeJSON extracts the first JSON object or array from model output
// and unmarshals it. Markdown code fences and surrounding prose are
// tolerated; models wrap JSON in both routinely.
func DecodeJSON(text string, out any) error {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			text = rest[:end]
		} else {
			text = rest
		}
		text = strings.TrimSpace(text)
	}
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return fmt.Errorf("no JSON found in response")
	}
	open := text[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}
	end := strings.LastIndexByte(text, close)
	if end <= start {
		return fmt.Errorf("unterminated JSON in response")
	}
	return json.Unmarshal([]byte(text[start:end+1]), out)
}
