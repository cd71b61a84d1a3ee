package llm

import (
	"context"
	"sync"
)

// ScriptedResponse is one canned reply for the mock client.
type ScriptedResponse struct {
	// Chunks are emitted in order. Text responses may be split across
	// several TextChunks to exercise streaming consumers.
	Chunks []Chunk
	// Err, when set, is returned from Generate before any chunk flows.
	Err error
}

// MockClient replays scripted responses in call order. Used by component
// tests across the engine; the last script repeats once exhausted.
type MockClient struct {
	mu      sync.Mutex
	scripts []ScriptedResponse
	calls   []*GenerateInput
}

// NewMockClient creates a mock that replays the given responses.
func NewMockClient(scripts ...ScriptedResponse) *MockClient {
	return &MockClient{scripts: scripts}
}

// TextResponse builds a scripted response from plain text plus usage.
func TextResponse(text string) ScriptedResponse {
	return ScriptedResponse{Chunks: []Chunk{
		&TextChunk{Content: text},
		&UsageChunk{InputTokens: 100, OutputTokens: 50, TotalTokens: 150},
	}}
}

// Append adds further scripted responses.
func (m *MockClient) Append(scripts ...ScriptedResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = append(m.scripts, scripts...)
}

// Calls returns the inputs received so far.
func (m *MockClient) Calls() []*GenerateInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*GenerateInput, len(m.calls))
	copy(out, m.calls)
	return out
}

// Generate implements Client.
func (m *MockClient) Generate(ctx context.Context, input *GenerateInput) (<-chan Chunk, error) {
	m.mu.Lock()
	idx := len(m.calls)
	m.calls = append(m.calls, input)
	if idx >= len(m.scripts) {
		idx = len(m.scripts) - 1
	}
	var script ScriptedResponse
	if idx >= 0 {
		script = m.scripts[idx]
	}
	m.mu.Unlock()

	if script.Err != nil {
		return nil, script.Err
	}

	out := make(chan Chunk, len(script.Chunks))
	go func() {
		defer close(out)
		for _, chunk := range script.Chunks {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
