package models

import "time"

// SearchFilters narrows a query by publication year and open-access status.
type SearchFilters struct {
	YearFrom   int  `json:"year_from,omitempty"`
	YearTo     int  `json:"year_to,omitempty"`
	OpenAccess bool `json:"open_access,omitempty"`
}

// SearchQuery is a single logical query against the literature sources.
type SearchQuery struct {
	Query   string         `json:"query"`
	Filters *SearchFilters `json:"filters,omitempty"`
}

// SearchRound records one executed query and the papers it produced.
// Rounds are append-only in research memory.
type SearchRound struct {
	ID        string      `json:"id"`
	Query     SearchQuery `json:"query"`
	Reasoning string      `json:"reasoning,omitempty"`
	PaperIDs  []string    `json:"paper_ids"`
	Timestamp time.Time   `json:"timestamp"`
}
