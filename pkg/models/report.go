package models

import "time"

// Citation links an in-text reference to a paper known to research memory.
// PaperID must resolve in memory at emission time.
type Citation struct {
	ID         string `json:"id"`
	PaperID    string `json:"paper_id"`
	Title      string `json:"title,omitempty"`
	Authors    string `json:"authors"`
	Year       int    `json:"year,omitempty"`
	DOI        string `json:"doi,omitempty"`
	URL        string `json:"url,omitempty"`
	InTextRef  string `json:"in_text_ref"`
	Journal    string `json:"journal,omitempty"`
	Volume     string `json:"volume,omitempty"`
	Issue      string `json:"issue,omitempty"`
	Pages      string `json:"pages,omitempty"`
	Publisher  string `json:"publisher,omitempty"`
	Conference string `json:"conference,omitempty"`
}

// ReportSection is one hierarchical section of a generated report.
// Level ranges 1..3, mirroring markdown heading depth.
type ReportSection struct {
	Level   int    `json:"level"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ResearchReport is a finalized (or salvaged partial) report for one
// iteration of the write/review loop.
type ResearchReport struct {
	Title          string          `json:"title"`
	Abstract       string          `json:"abstract,omitempty"`
	Content        string          `json:"content"`
	Sections       []ReportSection `json:"sections,omitempty"`
	Citations      []Citation      `json:"citations,omitempty"`
	GeneratedAt    time.Time       `json:"generated_at"`
	Metrics        *QualityMetrics `json:"metrics,omitempty"`
	IterationCount int             `json:"iteration_count"`
	Partial        bool            `json:"partial,omitempty"`
}

// Claim support verdicts recorded on a CitationValidation.
const (
	ClaimSupported   = "supported"
	ClaimPartial     = "partial"
	ClaimUnsupported = "unsupported"
)

// CitationValidation is the result of checking one citation against
// Crossref metadata and a sample claim it supports.
type CitationValidation struct {
	CitationID   string  `json:"citation_id"`
	PaperID      string  `json:"paper_id"`
	DOIResolved  bool    `json:"doi_resolved"`
	TitleMatch   bool    `json:"title_match"`
	YearMatch    bool    `json:"year_match"`
	ClaimSupport string  `json:"claim_support,omitempty"`
	Similarity   float64 `json:"similarity,omitempty"`
	Issue        string  `json:"issue,omitempty"`
}
