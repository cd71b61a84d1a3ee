// Package source defines the uniform contract every literature source
// adapter implements, plus shared throttling and id-prefix routing. The
// engine never talks to a vendor API except through this contract.
package source

import (
	"context"

	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/models"
)

// SearchOptions are the parameters for one adapter search call.
type SearchOptions struct {
	Query      string
	Limit      int
	Offset     int
	YearFrom   int
	YearTo     int
	OpenAccess bool
	SortBy     config.SortOrder
}

// SearchResult is the outcome of one adapter search. Zero results is a
// valid outcome, not an error.
type SearchResult struct {
	Papers     []*models.Paper
	TotalHits  int
	Source     config.SourceName
	NextCursor string
}

// Adapter is the uniform interface each vendor source implements.
// Implementations handle their own rate-limit throttling and return a
// typed *TransportError for transport failures. Paper ids carry the
// adapter's prefix (oa-, arxiv-, s2-, pubmed-, core-) so getPaper calls
// can be routed without ambiguity.
type Adapter interface {
	Name() config.SourceName
	IDPrefix() string
	Search(ctx context.Context, opts SearchOptions) (*SearchResult, error)
	GetPaper(ctx context.Context, id string) (*models.Paper, error)
	IsAvailable(ctx context.Context) bool
}
