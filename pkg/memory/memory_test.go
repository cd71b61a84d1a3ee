package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperscope/paperscope/pkg/models"
)

func TestAddPapersDeduplicatesByID(t *testing.T) {
	m := New("s1")

	added := m.AddPapers([]*models.Paper{
		{ID: "oa-1", Title: "First"},
		{ID: "oa-2", Title: "Second"},
	})
	assert.Equal(t, 2, added)

	// Re-adding oa-1 with a longer title merges, does not duplicate.
	added = m.AddPapers([]*models.Paper{
		{ID: "oa-1", Title: "First paper with longer title", Abstract: "abs"},
	})
	assert.Zero(t, added)
	assert.Equal(t, 2, m.PaperCount())
	assert.Equal(t, "First paper with longer title", m.GetPaper("oa-1").Title)
	assert.Equal(t, "abs", m.GetPaper("oa-1").Abstract)
}

func TestPapersPreserveArrivalOrder(t *testing.T) {
	m := New("s1")
	m.AddPapers([]*models.Paper{{ID: "b"}, {ID: "a"}, {ID: "c"}})
	papers := m.Papers()
	require.Len(t, papers, 3)
	assert.Equal(t, "b", papers[0].ID)
	assert.Equal(t, "a", papers[1].ID)
	assert.Equal(t, "c", papers[2].ID)
}

func TestSearchRoundsAppendOnly(t *testing.T) {
	m := New("s1")
	m.AddSearchRound(models.SearchRound{ID: "r1"})
	m.AddSearchRound(models.SearchRound{ID: "r2"})
	rounds := m.SearchRounds()
	require.Len(t, rounds, 2)
	assert.Equal(t, "r1", rounds[0].ID)

	// Mutating the returned slice must not affect memory.
	rounds[0].ID = "mutated"
	assert.Equal(t, "r1", m.SearchRounds()[0].ID)
}

func TestGapsOrderedUnique(t *testing.T) {
	m := New("s1")
	m.AddGap("industrial evaluation")
	m.AddGap("non-English corpora")
	m.AddGap("industrial evaluation")
	m.AddGap("")
	assert.Equal(t, []string{"industrial evaluation", "non-English corpora"}, m.Gaps())
}

func TestIterationCountMonotonic(t *testing.T) {
	m := New("s1")
	assert.Equal(t, 1, m.IncrementIteration())
	assert.Equal(t, 2, m.IncrementIteration())
	assert.Equal(t, 2, m.IterationCount())
}

func TestReportVersions(t *testing.T) {
	m := New("s1")
	assert.Nil(t, m.LatestReport())
	m.SaveReportVersion(&models.ResearchReport{Title: "v1"})
	m.SaveReportVersion(&models.ResearchReport{Title: "v2"})
	assert.Equal(t, "v2", m.LatestReport().Title)
	assert.Len(t, m.ReportVersions(), 2)
}

func TestConcurrentReadsDuringWrites(t *testing.T) {
	m := New("s1")
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			m.AddPapers([]*models.Paper{{ID: fmt.Sprintf("p-%d", n)}})
		}(i)
		go func() {
			defer wg.Done()
			_ = m.Papers()
			_ = m.PaperCount()
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, m.PaperCount())
}
