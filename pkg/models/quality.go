package models

// QualityMetrics are the deterministic report measurements. Every field is
// derivable from the report text, citations, papers and plan alone.
type QualityMetrics struct {
	WordCount            int     `json:"word_count"`
	Coverage             float64 `json:"coverage"`         // 0-100
	CitationDensity      float64 `json:"citation_density"` // citations per 500 words
	UniqueSourcesUsed    int     `json:"unique_sources_used"`
	RecencyScore         float64 `json:"recency_score"` // 0-100
	SubQuestionsCovered  int     `json:"sub_questions_covered"`
	SubQuestionsTotal    int     `json:"sub_questions_total"`
	AverageCitationYear  float64 `json:"average_citation_year,omitempty"`
	OpenAccessPercentage float64 `json:"open_access_percentage"`
}

// HallucinationSeverity grades how damaging an unsupported statement is.
type HallucinationSeverity string

const (
	SeverityLow      HallucinationSeverity = "low"
	SeverityMedium   HallucinationSeverity = "medium"
	SeverityHigh     HallucinationSeverity = "high"
	SeverityCritical HallucinationSeverity = "critical"
)

// Hallucination is a statement the critic or auditor flagged as not
// supported by the cited evidence.
type Hallucination struct {
	Statement string                `json:"statement"`
	Category  string                `json:"category,omitempty"` // fabrication, exaggeration, misattribution, contradiction
	Severity  HallucinationSeverity `json:"severity"`
	Detail    string                `json:"detail,omitempty"`
}

// CriticScores are the critic's 0-100 assessments of the report.
type CriticScores struct {
	Overall          float64 `json:"overall"`
	Coverage         float64 `json:"coverage"`
	CitationAccuracy float64 `json:"citation_accuracy"`
	Coherence        float64 `json:"coherence"`
	Depth            float64 `json:"depth"`
}

// CriticAnalysis is the structured output of a single critic LLM call.
type CriticAnalysis struct {
	Scores            CriticScores    `json:"scores"`
	GapsIdentified    []string        `json:"gaps_identified,omitempty"`
	Hallucinations    []Hallucination `json:"hallucinations,omitempty"`
	Strengths         []string        `json:"strengths,omitempty"`
	Weaknesses        []string        `json:"weaknesses,omitempty"`
	ShouldIterate     bool            `json:"should_iterate"`
	Feedback          string          `json:"feedback,omitempty"`
	SuggestedSearches []string        `json:"suggested_searches,omitempty"`
}

// NonLowHallucinations counts hallucinations above low severity; only these
// contribute to the iterate decision.
func (a *CriticAnalysis) NonLowHallucinations() int {
	n := 0
	for _, h := range a.Hallucinations {
		if h.Severity != SeverityLow {
			n++
		}
	}
	return n
}

// GateDecision is the quality gate's verdict for one iteration.
type GateDecision string

const (
	GatePass    GateDecision = "pass"
	GateIterate GateDecision = "iterate"
	GateFail    GateDecision = "fail"
)

// QualityGateResult combines metrics, critic analysis and the iteration
// budget into a single decision. Invariant: decision is never "iterate"
// once iteration >= max iterations.
type QualityGateResult struct {
	Passed        bool            `json:"passed"`
	Metrics       QualityMetrics  `json:"metrics"`
	Analysis      *CriticAnalysis `json:"analysis,omitempty"`
	Iteration     int             `json:"iteration"`
	MaxIterations int             `json:"max_iterations"`
	Decision      GateDecision    `json:"decision"`
	Reason        string          `json:"reason"`
	Issues        []string        `json:"issues,omitempty"`
}
