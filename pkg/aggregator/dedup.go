package aggregator

import (
	"github.com/agext/levenshtein"

	"github.com/paperscope/paperscope/pkg/models"
)

// titleSimilarityThreshold is the fuzzy-title dedup cutoff.
const titleSimilarityThreshold = 0.85

// Dedupe collapses a cross-source paper union in two passes: exact DOI,
// then fuzzy normalized-title. Duplicates merge field by field into the
// first-seen record, which keeps its canonical id. Papers whose DOIs
// differ are never merged, however similar their titles. Returns the
// survivors in first-seen order and the number of suppressed records.
func Dedupe(papers []*models.Paper) ([]*models.Paper, int) {
	suppressed := 0

	// Pass 1: exact DOI.
	byDOI := make(map[string]*models.Paper)
	afterDOI := make([]*models.Paper, 0, len(papers))
	for _, p := range papers {
		doi := models.NormalizeDOI(p.DOI)
		if doi == "" {
			afterDOI = append(afterDOI, p)
			continue
		}
		if existing, ok := byDOI[doi]; ok {
			existing.Merge(p)
			suppressed++
			continue
		}
		byDOI[doi] = p
		afterDOI = append(afterDOI, p)
	}

	// Pass 2: fuzzy title against everything already kept.
	type kept struct {
		title string
		paper *models.Paper
	}
	var seen []kept
	out := make([]*models.Paper, 0, len(afterDOI))
	for _, p := range afterDOI {
		title := models.NormalizeTitle(p.Title)
		merged := false
		if title != "" {
			for _, k := range seen {
				if !titlesMatch(title, k.title) {
					continue
				}
				// Distinct DOIs are distinct papers even with
				// near-identical titles.
				if p.DOI != "" && k.paper.DOI != "" &&
					models.NormalizeDOI(p.DOI) != models.NormalizeDOI(k.paper.DOI) {
					continue
				}
				k.paper.Merge(p)
				suppressed++
				merged = true
				break
			}
		}
		if merged {
			continue
		}
		seen = append(seen, kept{title: title, paper: p})
		out = append(out, p)
	}
	return out, suppressed
}

// titlesMatch reports whether two normalized titles are the same paper
// under the Levenshtein similarity threshold.
func titlesMatch(a, b string) bool {
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}
	return TitleSimilarity(a, b) >= titleSimilarityThreshold
}

// TitleSimilarity computes 1 - distance/max(len) over two normalized
// titles.
func TitleSimilarity(a, b string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.Distance(a, b, nil)
	return 1 - float64(dist)/float64(maxLen)
}
