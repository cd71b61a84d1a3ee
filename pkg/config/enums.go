package config

// CitationStyle selects the in-text reference and bibliography format.
type CitationStyle string

const (
	// CitationStyleIEEE uses numeric references: [1], [2], ...
	CitationStyleIEEE CitationStyle = "ieee"
	// CitationStyleAPA uses author-year references: (Author, 2024)
	CitationStyleAPA CitationStyle = "apa"
	// CitationStyleMLA uses author-year references with MLA punctuation
	CitationStyleMLA CitationStyle = "mla"
	// CitationStyleChicago uses author-year with Chicago bibliography rules
	CitationStyleChicago CitationStyle = "chicago"
)

// IsValid checks if the citation style is valid.
func (s CitationStyle) IsValid() bool {
	switch s {
	case CitationStyleIEEE, CitationStyleAPA, CitationStyleMLA, CitationStyleChicago:
		return true
	default:
		return false
	}
}

// Numeric reports whether the style uses numeric in-text references.
func (s CitationStyle) Numeric() bool {
	return s == CitationStyleIEEE
}

// SortOrder selects result ordering for aggregated searches.
type SortOrder string

const (
	SortByRelevance SortOrder = "relevance"
	SortByCitations SortOrder = "citations"
	SortByDate      SortOrder = "date"
)

// IsValid checks if the sort order is valid.
func (s SortOrder) IsValid() bool {
	return s == SortByRelevance || s == SortByCitations || s == SortByDate
}

// SourceName identifies a literature source adapter.
type SourceName string

const (
	SourceSemanticScholar SourceName = "semantic-scholar"
	SourceOpenAlex        SourceName = "openalex"
	SourceArxiv           SourceName = "arxiv"
	SourcePubMed          SourceName = "pubmed"
	SourceCORE            SourceName = "core"
)

// IsValid checks if the source name is a known adapter.
func (s SourceName) IsValid() bool {
	switch s {
	case SourceSemanticScholar, SourceOpenAlex, SourceArxiv, SourcePubMed, SourceCORE:
		return true
	default:
		return false
	}
}
