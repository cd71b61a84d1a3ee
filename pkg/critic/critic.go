package critic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/paperscope/paperscope/pkg/llm"
	"github.com/paperscope/paperscope/pkg/models"
)

// Critic runs the LLM review of a report draft.
type Critic struct {
	caller *llm.Caller
}

// New creates a Critic on the shared caller.
func New(caller *llm.Caller) *Critic {
	return &Critic{caller: caller}
}

type analysisPayload struct {
	Scores struct {
		Overall          float64 `json:"overall"`
		Coverage         float64 `json:"coverage"`
		CitationAccuracy float64 `json:"citation_accuracy"`
		Coherence        float64 `json:"coherence"`
		Depth            float64 `json:"depth"`
	} `json:"scores"`
	GapsIdentified []string `json:"gaps_identified"`
	Hallucinations []struct {
		Statement string `json:"statement"`
		Category  string `json:"category"`
		Severity  string `json:"severity"`
		Detail    string `json:"detail"`
	} `json:"hallucinations"`
	Strengths         []string `json:"strengths"`
	Weaknesses        []string `json:"weaknesses"`
	ShouldIterate     bool     `json:"should_iterate"`
	Feedback          string   `json:"feedback"`
	SuggestedSearches []string `json:"suggested_searches"`
}

func (p *analysisPayload) Validate() error {
	for _, score := range []float64{p.Scores.Overall, p.Scores.Coverage, p.Scores.CitationAccuracy, p.Scores.Coherence, p.Scores.Depth} {
		if score < 0 || score > 100 {
			return errors.New("scores must be in 0-100")
		}
	}
	return nil
}

// Analyze reviews the report with the LLM. On persistent structural
// failure a neutral analysis is synthesized from the deterministic
// metrics so the gate can still decide.
func (c *Critic) Analyze(ctx context.Context, report *models.ResearchReport, plan *models.ResearchPlan, metrics models.QualityMetrics) (*models.CriticAnalysis, error) {
	var payload analysisPayload
	err := c.caller.Structured(ctx, llm.ModelPrimary, &llm.GenerateInput{
		System:   criticSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: analyzePrompt(report, plan, metrics)}},
	}, &payload)
	if err != nil {
		slog.Warn("Critic analysis failed, synthesizing from metrics", "error", err)
		return synthesizeAnalysis(metrics), nil
	}

	analysis := &models.CriticAnalysis{
		Scores: models.CriticScores{
			Overall:          payload.Scores.Overall,
			Coverage:         payload.Scores.Coverage,
			CitationAccuracy: payload.Scores.CitationAccuracy,
			Coherence:        payload.Scores.Coherence,
			Depth:            payload.Scores.Depth,
		},
		GapsIdentified:    payload.GapsIdentified,
		Strengths:         payload.Strengths,
		Weaknesses:        payload.Weaknesses,
		ShouldIterate:     payload.ShouldIterate,
		Feedback:          payload.Feedback,
		SuggestedSearches: payload.SuggestedSearches,
	}
	for _, h := range payload.Hallucinations {
		analysis.Hallucinations = append(analysis.Hallucinations, models.Hallucination{
			Statement: h.Statement,
			Category:  h.Category,
			Severity:  severityOrDefault(h.Severity),
			Detail:    h.Detail,
		})
	}
	return analysis, nil
}

func severityOrDefault(s string) models.HallucinationSeverity {
	switch models.HallucinationSeverity(strings.ToLower(s)) {
	case models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical:
		return models.HallucinationSeverity(strings.ToLower(s))
	default:
		return models.SeverityMedium
	}
}

// synthesizeAnalysis is the fallback when the critic LLM cannot answer:
// scores approximate the deterministic signals and no iteration is
// requested on top of what the gate decides from metrics alone.
func synthesizeAnalysis(metrics models.QualityMetrics) *models.CriticAnalysis {
	density := clamp(metrics.CitationDensity*25, 0, 100)
	overall := (metrics.Coverage + density + metrics.RecencyScore) / 3
	return &models.CriticAnalysis{
		Scores: models.CriticScores{
			Overall:          overall,
			Coverage:         metrics.Coverage,
			CitationAccuracy: density,
			Coherence:        overall,
			Depth:            overall,
		},
		ShouldIterate: false,
		Feedback:      "Automated review unavailable; assessment derived from measured metrics.",
	}
}

const criticSystemPrompt = `You are a rigorous reviewer of academic literature reviews.
You always answer with a single JSON object matching the requested schema.`

func analyzePrompt(report *models.ResearchReport, plan *models.ResearchPlan, metrics models.QualityMetrics) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Review this report draft against the research question %q.\n\n", plan.MainQuestion)
	if len(plan.SubQuestions) > 0 {
		sb.WriteString("It must cover:\n")
		for _, q := range plan.SubQuestions {
			fmt.Fprintf(&sb, "- %s\n", q)
		}
	}
	fmt.Fprintf(&sb, "\nMeasured: %d words, %.1f citations per 500 words, %d unique sources, %d/%d sub-questions covered.\n\n",
		metrics.WordCount, metrics.CitationDensity, metrics.UniqueSourcesUsed,
		metrics.SubQuestionsCovered, metrics.SubQuestionsTotal)
	sb.WriteString("Report:\n")
	sb.WriteString(report.Content)
	sb.WriteString(`

Answer with JSON:
{
  "scores": {"overall": 0-100, "coverage": 0-100, "citation_accuracy": 0-100, "coherence": 0-100, "depth": 0-100},
  "gaps_identified": ["topics the report fails to cover"],
  "hallucinations": [{"statement": "...", "category": "fabrication|exaggeration|misattribution|contradiction", "severity": "low|medium|high|critical", "detail": "..."}],
  "strengths": ["..."],
  "weaknesses": ["..."],
  "should_iterate": true|false,
  "feedback": "actionable paragraph for the writer",
  "suggested_searches": ["queries that would close the gaps"]
}`)
	return sb.String()
}
