package coordinator

import (
	"context"
	"strings"

	"github.com/paperscope/paperscope/pkg/events"
	"github.com/paperscope/paperscope/pkg/models"
	"github.com/paperscope/paperscope/pkg/writer"
)

// finalize appends the references block, attaches the final metrics,
// verifies the checklist and emits the terminal events.
func (r *run) finalize(ctx context.Context) (*models.ResearchReport, error) {
	if err := ctx.Err(); err != nil {
		return r.report, err
	}
	report := r.report
	if report == nil {
		return nil, &WorkflowError{Kind: KindInvariant, Message: "The workflow finished without a report."}
	}

	refs := writer.FormatReferences(report.Citations, r.c.cfg.Workflow.CitationStyle)
	if refs != "" && !strings.Contains(report.Content, "## References") {
		report.Content = strings.TrimRight(report.Content, "\n") + "\n\n" + refs
	}
	report.Metrics = &r.metrics
	report.IterationCount = r.mem.IterationCount()

	if r.checklist != nil {
		r.c.deps.Checklist.Verify(ctx, r.checklist, report)
		_ = r.em.Card(ctx, events.TypeDataTodo, "todo-"+r.sessionID, map[string]any{
			"items":    r.checklist.Items,
			"progress": r.checklist.OverallProgress,
		})
	}

	_ = r.em.Card(ctx, events.TypeDataDocument, "document-"+r.sessionID, map[string]any{
		"title":   report.Title,
		"content": report.Content,
		"final":   true,
	})
	summary := map[string]any{
		"title":          report.Title,
		"citations":      len(report.Citations),
		"iterationCount": report.IterationCount,
		"wordCount":      r.metrics.WordCount,
	}
	if len(r.validations) > 0 {
		summary["citationValidations"] = len(r.validations)
	}
	total, calls := r.c.deps.Caller.Usage()
	summary["tokenUsage"] = map[string]any{
		"inputTokens":  total.InputTokens - r.usageStart.InputTokens,
		"outputTokens": total.OutputTokens - r.usageStart.OutputTokens,
		"llmCalls":     calls - r.callsStart,
	}
	_ = r.em.Emit(ctx, events.TypeComplete, "", map[string]any{"report": report, "summary": summary})
	return report, nil
}
