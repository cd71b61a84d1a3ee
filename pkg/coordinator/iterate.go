package coordinator

import (
	"context"
	"fmt"
	"sort"

	"github.com/paperscope/paperscope/pkg/critic"
	"github.com/paperscope/paperscope/pkg/enrich"
	"github.com/paperscope/paperscope/pkg/events"
	"github.com/paperscope/paperscope/pkg/models"
	"github.com/paperscope/paperscope/pkg/writer"
)

// maxWriterPapers bounds how many papers the writer sees per iteration
// when context compression is off.
const maxWriterPapers = 20

func (r *run) iteratePhase(ctx context.Context) error {
	w := r.c.cfg.Workflow
	for {
		iteration := r.mem.IncrementIteration()

		papers, err := r.analyzePhase(ctx, iteration)
		if err != nil {
			return err
		}
		if err := r.writePhase(ctx, iteration, papers); err != nil {
			return err
		}
		r.auditResult = nil
		if w.EnableEvidenceAudit && len(r.report.Citations) > 0 {
			r.auditPhase(ctx, iteration)
		}
		gate, err := r.reviewPhase(ctx, iteration)
		if err != nil {
			return err
		}

		switch gate.Decision {
		case models.GateIterate:
			if iteration >= w.MaxIterations {
				return nil
			}
			r.setState(ctx, StateIterating)
			if err := r.refine(ctx, gate); err != nil {
				return err
			}
		default:
			// pass, or fail with no budget to improve: the report
			// stands as written.
			return nil
		}
	}
}

// analyzePhase prioritizes and enriches the papers the writer will see.
func (r *run) analyzePhase(ctx context.Context, iteration int) ([]*models.Paper, error) {
	r.setState(ctx, StateAnalyzing)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w := r.c.cfg.Workflow

	papers := prioritizePapers(r.mem.Papers())
	if len(papers) > maxWriterPapers {
		papers = papers[:maxWriterPapers]
	}

	id, _ := r.em.AgentStart(ctx, events.AgentEvent{
		Stage: "analyzing", StepType: "analyze_papers",
		TitleEn: "Analyzing papers", TitleZh: "分析文献",
		Iteration: iteration, TotalIterations: w.MaxIterations,
		Meta: map[string]any{"papers": len(papers)},
	})

	// With compression on, papers are enriched toward full text and the
	// writer compresses them into its token budget; otherwise the top
	// abstracts are used as-is.
	target := models.WithAbstract
	if w.EnableContextCompression {
		target = enrich.MinLevelFor(enrich.StageAnalyzing)
	}
	results := r.c.deps.Enricher.EnrichBatch(ctx, papers, target)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rawTokens := 0
	for _, p := range papers {
		rawTokens += enrich.EstimateTokens(p.Abstract) + enrich.EstimateTokens(p.FullText)
	}
	budget := r.c.cfg.Enricher.TokenBudget
	ratio := 1.0
	if rawTokens > 0 && budget < rawTokens {
		ratio = float64(budget) / float64(rawTokens)
	}

	enriched := 0
	for _, res := range results {
		if res != nil && res.Enriched {
			enriched++
		}
	}
	_ = r.em.AgentComplete(ctx, id, events.AgentComplete, map[string]any{
		"enriched":         enriched,
		"compressionRatio": ratio,
	})
	_ = r.em.Emit(ctx, events.TypeAnalysis, "", map[string]any{
		"iteration":        iteration,
		"papers":           len(papers),
		"compressionRatio": ratio,
	})
	return papers, nil
}

// prioritizePapers orders by citation count, breaking ties on richer
// data availability.
func prioritizePapers(papers []*models.Paper) []*models.Paper {
	out := make([]*models.Paper, len(papers))
	copy(out, papers)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CitationCount != out[j].CitationCount {
			return out[i].CitationCount > out[j].CitationCount
		}
		return out[i].Availability > out[j].Availability
	})
	return out
}

// writePhase streams the writer and forwards its parts as events.
func (r *run) writePhase(ctx context.Context, iteration int, papers []*models.Paper) error {
	r.setState(ctx, StateWriting)
	w := r.c.cfg.Workflow

	id, _ := r.em.AgentStart(ctx, events.AgentEvent{
		Stage: "writing", StepType: "write_report",
		TitleEn: "Writing report", TitleZh: "撰写报告",
		Iteration: iteration, TotalIterations: w.MaxIterations,
	})
	_ = r.em.Emit(ctx, events.TypeWritingStart, "", map[string]any{"iteration": iteration})

	parts, _ := r.c.deps.Writer.Write(ctx, &writer.Input{
		Plan:           r.plan,
		Rounds:         r.mem.SearchRounds(),
		Papers:         papers,
		CriticFeedback: r.analysis,
		Iteration:      iteration,
		Style:          w.CitationStyle,
		TokenBudget:    r.c.cfg.Enricher.TokenBudget,
	})

	var report *models.ResearchReport
	for part := range parts {
		switch p := part.(type) {
		case *writer.ContentPart:
			_ = r.em.Emit(ctx, events.TypeContent, "", map[string]any{"text": p.Text})
		case *writer.SectionPart:
			_ = r.em.Emit(ctx, events.TypeContent, "", map[string]any{
				"section": p.Title, "level": p.Level,
			})
		case *writer.CitationPart:
			_ = r.em.Emit(ctx, events.TypeCitation, "", map[string]any{
				"id":        p.Citation.ID,
				"paperId":   p.Citation.PaperID,
				"inTextRef": p.Citation.InTextRef,
			})
		case *writer.CompletePart:
			report = p.Report
		case *writer.ErrorPart:
			_ = r.em.AgentComplete(ctx, id, events.AgentFailed, map[string]any{"error": p.Message})
			return &WorkflowError{Kind: string(p.Kind), Message: p.Kind.UserMessage()}
		}
	}
	if report == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		return &WorkflowError{Kind: KindInvariant, Message: "The writer produced no report."}
	}

	r.report = report
	r.mem.SaveReportVersion(report)
	_ = r.em.AgentComplete(ctx, id, events.AgentComplete, map[string]any{
		"words":     len(report.Content),
		"citations": len(report.Citations),
		"partial":   report.Partial,
	})
	_ = r.em.Card(ctx, events.TypeDataDocument, "document-"+r.sessionID, map[string]any{
		"title":     report.Title,
		"content":   report.Content,
		"iteration": iteration,
		"partial":   report.Partial,
	})
	return nil
}

// auditPhase runs the evidence auditor. Audit failures degrade to a
// warning; the workflow continues on the unaudited report.
func (r *run) auditPhase(ctx context.Context, iteration int) {
	id, _ := r.em.AgentStart(ctx, events.AgentEvent{
		Stage: "reviewing", StepType: "evidence_audit",
		TitleEn: "Auditing evidence", TitleZh: "核查论据",
		Iteration: iteration, TotalIterations: r.c.cfg.Workflow.MaxIterations,
	})
	result, err := r.c.deps.Auditor.Audit(ctx, r.report, r.papersByID(), r.sessionID)
	if err != nil {
		_ = r.em.AgentComplete(ctx, id, events.AgentFailed, map[string]any{"error": err.Error()})
		return
	}
	_ = r.em.AgentComplete(ctx, id, events.AgentComplete, map[string]any{
		"claims":         result.TotalClaims,
		"grounded":       result.GroundedClaims,
		"contradicted":   result.ContradictedClaims,
		"groundingScore": result.OverallGroundingScore,
	})
	_ = r.em.Emit(ctx, events.TypeValidation, "", map[string]any{
		"kind":           "evidence_audit",
		"iteration":      iteration,
		"groundingScore": result.OverallGroundingScore,
		"claims":         result.TotalClaims,
	})
	r.auditResult = result
}

// reviewPhase computes metrics, runs the critic and evaluates the gate.
func (r *run) reviewPhase(ctx context.Context, iteration int) (*models.QualityGateResult, error) {
	r.setState(ctx, StateReviewing)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w := r.c.cfg.Workflow

	r.metrics = critic.CalculateMetrics(r.report, r.papersByID(), r.plan)
	analysis, err := r.c.deps.Critic.Analyze(ctx, r.report, r.plan, r.metrics)
	if err != nil {
		return nil, err
	}
	if r.auditResult != nil {
		analysis.Hallucinations = append(analysis.Hallucinations, r.auditResult.Hallucinations...)
	}
	r.analysis = analysis
	for _, gap := range analysis.GapsIdentified {
		r.mem.AddGap(gap)
	}

	gate := critic.EvaluateQuality(critic.GateInput{
		Metrics:       r.metrics,
		Analysis:      analysis,
		Iteration:     iteration,
		MaxIterations: w.MaxIterations,
		Gaps:          analysis.GapsIdentified,
	}, r.c.cfg.QualityGate)

	_ = r.em.Card(ctx, events.TypeDataQuality, "quality-"+r.sessionID, map[string]any{
		"iteration":       iteration,
		"overallScore":    analysis.Scores.Overall,
		"coverage":        r.metrics.Coverage,
		"citationDensity": r.metrics.CitationDensity,
		"uniqueSources":   r.metrics.UniqueSourcesUsed,
		"decision":        string(gate.Decision),
	})
	_ = r.em.Emit(ctx, events.TypeQualityGate, "", map[string]any{
		"iteration": iteration,
		"decision":  string(gate.Decision),
		"passed":    gate.Passed,
		"reason":    gate.Reason,
		"issues":    gate.Issues,
	})
	return gate, nil
}

// refine adjusts the plan from critic feedback and runs targeted gap
// searches before the next iteration.
func (r *run) refine(ctx context.Context, gate *models.QualityGateResult) error {
	titles := make([]string, 0, r.mem.PaperCount())
	for _, p := range r.mem.Papers() {
		titles = append(titles, p.Title)
	}
	refinement, err := r.c.deps.Planner.RefineFromFeedback(ctx, r.plan, r.analysis, titles)
	if err != nil {
		return err
	}
	if refinement.Empty() {
		return nil
	}

	r.plan.SubQuestions = append(r.plan.SubQuestions, refinement.AdditionalSubQuestions...)
	r.plan.SearchStrategies = append(r.plan.SearchStrategies, refinement.AdditionalSearchStrategies...)
	if len(refinement.RefinedSections) > 0 {
		r.plan.ExpectedSections = refinement.RefinedSections
	}
	r.mem.SetPlan(r.plan)
	r.strategies = len(r.plan.SearchStrategies)

	_ = r.em.Status(ctx, string(StateIterating),
		fmt.Sprintf("Plan refined: %d new sub-questions, %d new searches",
			len(refinement.AdditionalSubQuestions), len(refinement.AdditionalSearchStrategies)))
	return r.gapSearches(ctx, refinement)
}
