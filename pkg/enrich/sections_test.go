package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperscope/paperscope/pkg/models"
)

func TestExtractSections(t *testing.T) {
	text := `Abstract
We present a method.

1. Introduction
Prior work exists.

2. Related Work
Many papers.

Methods
We did things.

Results:
It worked. Results show improvements across the board.

References
[1] Someone.
`
	sections := ExtractSections(text)
	require.Len(t, sections, 6)
	assert.Equal(t, models.SectionAbstract, sections[0].Type)
	assert.Equal(t, "We present a method.", sections[0].Content)
	assert.Equal(t, models.SectionIntroduction, sections[1].Type)
	assert.Equal(t, models.SectionBackground, sections[2].Type)
	assert.Equal(t, models.SectionMethods, sections[3].Type)
	assert.Equal(t, models.SectionResults, sections[4].Type)
	assert.Contains(t, sections[4].Content, "Results show improvements")
	assert.Equal(t, models.SectionReferences, sections[5].Type)
	assert.Greater(t, sections[1].CharStart, sections[0].CharStart)
}

func TestExtractSectionsNoHeaders(t *testing.T) {
	sections := ExtractSections("just a blob of text with no structure at all")
	require.Len(t, sections, 1)
	assert.Equal(t, models.SectionOther, sections[0].Type)
	assert.Equal(t, "just a blob of text with no structure at all", sections[0].Content)
}

func TestExtractSectionsEmpty(t *testing.T) {
	assert.Nil(t, ExtractSections("   \n "))
}

func TestMatchHeaderRejectsProse(t *testing.T) {
	_, ok := matchHeader("Results show that the proposed approach outperforms baselines")
	assert.False(t, ok)
	typ, ok := matchHeader("IV. Discussion")
	assert.True(t, ok)
	assert.Equal(t, models.SectionDiscussion, typ)
}
