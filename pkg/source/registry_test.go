package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/models"
)

func TestRegistryRoutesByPrefix(t *testing.T) {
	oa := NewMockAdapter(config.SourceOpenAlex, "oa-", &models.Paper{ID: "oa-W1", Title: "alpha"})
	ax := NewMockAdapter(config.SourceArxiv, "arxiv-", &models.Paper{ID: "arxiv-2301.00001", Title: "beta"})

	reg := NewRegistry()
	require.NoError(t, reg.Register(oa))
	require.NoError(t, reg.Register(ax))

	p, err := reg.GetPaper(context.Background(), "arxiv-2301.00001")
	require.NoError(t, err)
	assert.Equal(t, "beta", p.Title)

	p, err = reg.GetPaper(context.Background(), "oa-W1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", p.Title)

	_, err = reg.GetPaper(context.Background(), "s2-unknown")
	assert.Error(t, err)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(NewMockAdapter(config.SourceOpenAlex, "oa-")))
	assert.Error(t, reg.Register(NewMockAdapter(config.SourceOpenAlex, "oa2-")))
	assert.Error(t, reg.Register(NewMockAdapter(config.SourceArxiv, "oa-")))
}

func TestRegistryNamesStableOrder(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(NewMockAdapter(config.SourceSemanticScholar, "s2-")))
	require.NoError(t, reg.Register(NewMockAdapter(config.SourceArxiv, "arxiv-")))
	require.NoError(t, reg.Register(NewMockAdapter(config.SourceOpenAlex, "oa-")))

	names := reg.Names()
	assert.Equal(t, []config.SourceName{
		config.SourceArxiv, config.SourceOpenAlex, config.SourceSemanticScholar,
	}, names)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found sentinel", ErrPaperNotFound, false},
		{"http 400", &TransportError{Source: "s2", StatusCode: 400}, false},
		{"http 401", &TransportError{Source: "s2", StatusCode: 401}, false},
		{"http 404", &TransportError{Source: "s2", StatusCode: 404}, false},
		{"http 429", &TransportError{Source: "s2", StatusCode: 429}, true},
		{"http 503", &TransportError{Source: "s2", StatusCode: 503}, true},
		{"connection failure", &TransportError{Source: "s2", Message: "dial tcp: timeout"}, true},
		{"untyped invalid query", errors.New("invalid query syntax"), false},
		{"untyped transient", errors.New("stream reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestMockAdapterStampsOriginAndAvailability(t *testing.T) {
	mock := NewMockAdapter(config.SourceOpenAlex, "oa-",
		&models.Paper{ID: "oa-W1", Title: "t", Abstract: "some abstract"})

	res, err := mock.Search(context.Background(), SearchOptions{Query: "q"})
	require.NoError(t, err)
	require.Len(t, res.Papers, 1)
	assert.True(t, res.Papers[0].HasOrigin("openalex"))
	assert.Equal(t, models.WithAbstract, res.Papers[0].Availability)
}
