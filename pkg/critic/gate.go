package critic

import (
	"fmt"

	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/models"
)

// GateInput is everything one gate evaluation considers.
type GateInput struct {
	Metrics       models.QualityMetrics
	Analysis      *models.CriticAnalysis
	Iteration     int
	MaxIterations int
	Gaps          []string
}

// EvaluateQuality applies the gate decision table in order: iteration
// budget exhausted passes, critically low scores fail, actionable
// issues with budget left iterate, everything else passes.
func EvaluateQuality(in GateInput, cfg config.QualityGateConfig) *models.QualityGateResult {
	result := &models.QualityGateResult{
		Metrics:       in.Metrics,
		Analysis:      in.Analysis,
		Iteration:     in.Iteration,
		MaxIterations: in.MaxIterations,
	}
	overall := 0.0
	shouldIterate := false
	nonLow := 0
	if in.Analysis != nil {
		overall = in.Analysis.Scores.Overall
		shouldIterate = in.Analysis.ShouldIterate
		nonLow = in.Analysis.NonLowHallucinations()
	}

	if in.Iteration >= in.MaxIterations {
		result.Decision = models.GatePass
		result.Passed = true
		result.Reason = "maximum iterations reached"
		return result
	}

	if overall < cfg.MinOverallScore*0.5 {
		result.Decision = models.GateFail
		result.Reason = fmt.Sprintf("overall score %.0f is critically low (threshold %.0f)", overall, cfg.MinOverallScore*0.5)
		return result
	}

	var issues []string
	if overall < cfg.MinOverallScore {
		issues = append(issues, fmt.Sprintf("overall score %.0f below %.0f", overall, cfg.MinOverallScore))
	}
	if in.Metrics.Coverage < cfg.MinCoverageScore {
		issues = append(issues, fmt.Sprintf("coverage %.0f below %.0f", in.Metrics.Coverage, cfg.MinCoverageScore))
	}
	if in.Metrics.CitationDensity < cfg.MinCitationDensity {
		issues = append(issues, fmt.Sprintf("citation density %.1f below %.1f", in.Metrics.CitationDensity, cfg.MinCitationDensity))
	}
	if in.Metrics.UniqueSourcesUsed < cfg.MinUniqueSources {
		issues = append(issues, fmt.Sprintf("only %d unique sources, need %d", in.Metrics.UniqueSourcesUsed, cfg.MinUniqueSources))
	}
	if len(in.Gaps) > 0 {
		issues = append(issues, fmt.Sprintf("%d coverage gaps identified", len(in.Gaps)))
	}
	if nonLow > 0 {
		issues = append(issues, fmt.Sprintf("%d unresolved hallucinations above low severity", nonLow))
	}

	if shouldIterate && len(issues) > 0 {
		result.Decision = models.GateIterate
		result.Reason = "critic requested another iteration"
		result.Issues = issues
		return result
	}

	result.Decision = models.GatePass
	result.Passed = true
	result.Reason = "quality thresholds met"
	return result
}
