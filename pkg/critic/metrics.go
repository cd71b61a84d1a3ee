// Package critic measures report quality: deterministic metrics over
// the text and citations, an LLM reviewer, and the quality gate that
// decides pass/iterate/fail per iteration.
package critic

import (
	"regexp"
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/paperscope/paperscope/pkg/models"
)

var citationRefRe = regexp.MustCompile(`\[\d+(,\s*\d+)*\]`)

// keywordMinLen filters sub-question words too short to be meaningful
// coverage signals.
const keywordMinLen = 5

// CalculateMetrics computes the deterministic quality metrics. No LLM
// involved; every field derives from the report, citations, papers and
// plan alone.
func CalculateMetrics(report *models.ResearchReport, papers map[string]*models.Paper, plan *models.ResearchPlan) models.QualityMetrics {
	m := models.QualityMetrics{}
	words := strings.Fields(report.Content)
	m.WordCount = len(words)

	if m.WordCount > 0 {
		refs := citationRefRe.FindAllString(report.Content, -1)
		m.CitationDensity = float64(len(refs)) * 500 / float64(m.WordCount)
	}

	unique := make(map[string]bool)
	var years []float64
	openAccess, cited := 0, 0
	for _, c := range report.Citations {
		if !unique[c.PaperID] {
			unique[c.PaperID] = true
			if c.Year != 0 {
				years = append(years, float64(c.Year))
			}
			if p, ok := papers[c.PaperID]; ok {
				cited++
				if p.OpenAccess {
					openAccess++
				}
			}
		}
	}
	m.UniqueSourcesUsed = len(unique)
	if cited > 0 {
		m.OpenAccessPercentage = float64(openAccess) * 100 / float64(cited)
	}

	if len(years) > 0 {
		avg, _ := stats.Mean(years)
		m.AverageCitationYear = avg
		age := float64(time.Now().Year()) - avg
		penalty := age - 3
		if penalty < 0 {
			penalty = 0
		}
		m.RecencyScore = clamp(100-penalty*10, 0, 100)
	}

	if plan != nil {
		m.SubQuestionsTotal = len(plan.SubQuestions)
		lower := strings.ToLower(report.Content)
		for _, q := range plan.SubQuestions {
			if subQuestionCovered(q, lower) {
				m.SubQuestionsCovered++
			}
		}
		if m.SubQuestionsTotal > 0 {
			m.Coverage = float64(m.SubQuestionsCovered) * 100 / float64(m.SubQuestionsTotal)
		}
	}
	return m
}

// subQuestionCovered reports whether at least 30% of the sub-question's
// meaningful keywords appear in the report.
func subQuestionCovered(question, lowerReport string) bool {
	var keywords []string
	for _, w := range strings.Fields(strings.ToLower(question)) {
		w = strings.Trim(w, ".,;:?!()\"'")
		if len(w) >= keywordMinLen {
			keywords = append(keywords, w)
		}
	}
	if len(keywords) == 0 {
		return false
	}
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lowerReport, kw) {
			hits++
		}
	}
	return float64(hits)/float64(len(keywords)) >= 0.3
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
