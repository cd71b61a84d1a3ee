// Package memory holds the per-session research accumulator. Papers are
// stored once, keyed by canonical id; everything else references them by id.
package memory

import (
	"sync"
	"time"

	"github.com/paperscope/paperscope/pkg/models"
)

// Memory is the single-writer accumulator for one research session.
// Reads are safe from any goroutine.
type Memory struct {
	mu sync.RWMutex

	sessionID      string
	plan           *models.ResearchPlan
	searchRounds   []models.SearchRound
	papers         map[string]*models.Paper
	paperOrder     []string
	gaps           []string
	insights       []string
	reportVersions []*models.ResearchReport
	iterationCount int
	createdAt      time.Time
}

// New creates an empty memory for the given session.
func New(sessionID string) *Memory {
	return &Memory{
		sessionID: sessionID,
		papers:    make(map[string]*models.Paper),
		createdAt: time.Now(),
	}
}

// SessionID returns the owning session id.
func (m *Memory) SessionID() string { return m.sessionID }

// SetPlan stores the research plan. Only the planner calls this.
func (m *Memory) SetPlan(plan *models.ResearchPlan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plan = plan
}

// Plan returns the stored plan, or nil before planning completes.
func (m *Memory) Plan() *models.ResearchPlan {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.plan
}

// AddSearchRound appends a round to the append-only round log.
func (m *Memory) AddSearchRound(round models.SearchRound) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchRounds = append(m.searchRounds, round)
}

// SearchRounds returns a copy of the round log in execution order.
func (m *Memory) SearchRounds() []models.SearchRound {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rounds := make([]models.SearchRound, len(m.searchRounds))
	copy(rounds, m.searchRounds)
	return rounds
}

// AddPapers merges papers into the canonical set. A paper whose id is
// already known is merged into the existing record; new ids are appended
// in arrival order. Returns the number of previously unseen papers.
func (m *Memory) AddPapers(papers []*models.Paper) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	added := 0
	for _, p := range papers {
		if p == nil || p.ID == "" {
			continue
		}
		if existing, ok := m.papers[p.ID]; ok {
			existing.Merge(p)
			continue
		}
		clone := *p
		m.papers[p.ID] = &clone
		m.paperOrder = append(m.paperOrder, p.ID)
		added++
	}
	return added
}

// GetPaper returns the canonical paper for id, or nil. O(1).
func (m *Memory) GetPaper(id string) *models.Paper {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.papers[id]
}

// Papers returns the canonical papers in arrival order.
func (m *Memory) Papers() []*models.Paper {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Paper, 0, len(m.paperOrder))
	for _, id := range m.paperOrder {
		out = append(out, m.papers[id])
	}
	return out
}

// PaperCount returns the number of canonical papers.
func (m *Memory) PaperCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.papers)
}

// AddGap records an identified coverage gap. Duplicates are ignored so the
// gap list stays ordered and unique.
func (m *Memory) AddGap(gap string) {
	if gap == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.gaps {
		if g == gap {
			return
		}
	}
	m.gaps = append(m.gaps, gap)
}

// Gaps returns the ordered unique gap list.
func (m *Memory) Gaps() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	gaps := make([]string, len(m.gaps))
	copy(gaps, m.gaps)
	return gaps
}

// AddInsight appends an analysis insight.
func (m *Memory) AddInsight(insight string) {
	if insight == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insights = append(m.insights, insight)
}

// Insights returns the ordered insight list.
func (m *Memory) Insights() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	insights := make([]string, len(m.insights))
	copy(insights, m.insights)
	return insights
}

// IncrementIteration bumps the iteration counter and returns the new value.
// The counter never decreases.
func (m *Memory) IncrementIteration() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.iterationCount++
	return m.iterationCount
}

// IterationCount returns the current iteration counter.
func (m *Memory) IterationCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.iterationCount
}

// SaveReportVersion appends a report version.
func (m *Memory) SaveReportVersion(report *models.ResearchReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reportVersions = append(m.reportVersions, report)
}

// LatestReport returns the most recent report version, or nil.
func (m *Memory) LatestReport() *models.ResearchReport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.reportVersions) == 0 {
		return nil
	}
	return m.reportVersions[len(m.reportVersions)-1]
}

// ReportVersions returns all saved report versions in order.
func (m *Memory) ReportVersions() []*models.ResearchReport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions := make([]*models.ResearchReport, len(m.reportVersions))
	copy(versions, m.reportVersions)
	return versions
}
