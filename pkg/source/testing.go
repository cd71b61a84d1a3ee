package source

import (
	"context"
	"strings"
	"sync"

	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/models"
)

// MockAdapter is a scriptable in-memory adapter for aggregator and
// coordinator tests.
type MockAdapter struct {
	mu sync.Mutex

	SourceName config.SourceName
	Prefix     string
	Papers     []*models.Paper
	// SearchErrs are returned in call order before Papers start flowing.
	// Once exhausted, searches succeed.
	SearchErrs []error
	// Unavailable makes IsAvailable report false.
	Unavailable bool
	// Delay lets tests simulate a slow source via context cancellation.
	Block <-chan struct{}

	searchCalls int
	queries     []string
}

// NewMockAdapter creates a mock serving the given papers.
func NewMockAdapter(name config.SourceName, prefix string, papers ...*models.Paper) *MockAdapter {
	return &MockAdapter{SourceName: name, Prefix: prefix, Papers: papers}
}

func (m *MockAdapter) Name() config.SourceName { return m.SourceName }
func (m *MockAdapter) IDPrefix() string        { return m.Prefix }

// SearchCalls returns how many searches were issued.
func (m *MockAdapter) SearchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searchCalls
}

// Queries returns the query strings received in order.
func (m *MockAdapter) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.queries))
	copy(out, m.queries)
	return out
}

// Search implements Adapter.
func (m *MockAdapter) Search(ctx context.Context, opts SearchOptions) (*SearchResult, error) {
	m.mu.Lock()
	call := m.searchCalls
	m.searchCalls++
	m.queries = append(m.queries, opts.Query)
	var err error
	if call < len(m.SearchErrs) {
		err = m.SearchErrs[call]
	}
	block := m.Block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	papers := m.Papers
	if opts.Limit > 0 && opts.Limit < len(papers) {
		papers = papers[:opts.Limit]
	}
	out := make([]*models.Paper, len(papers))
	for i, p := range papers {
		clone := *p
		clone.AddOrigin(string(m.SourceName))
		clone.RecomputeAvailability()
		out[i] = &clone
	}
	return &SearchResult{Papers: out, TotalHits: len(m.Papers), Source: m.SourceName}, nil
}

// GetPaper implements Adapter.
func (m *MockAdapter) GetPaper(_ context.Context, id string) (*models.Paper, error) {
	if !strings.HasPrefix(id, m.Prefix) {
		return nil, ErrPaperNotFound
	}
	for _, p := range m.Papers {
		if p.ID == id {
			clone := *p
			return &clone, nil
		}
	}
	return nil, ErrPaperNotFound
}

// IsAvailable implements Adapter.
func (m *MockAdapter) IsAvailable(_ context.Context) bool {
	return !m.Unavailable
}
