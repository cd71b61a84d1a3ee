// Package checklist builds a verifiable requirement checklist from the
// research plan and verifies each item against the finished report.
package checklist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/paperscope/paperscope/pkg/llm"
	"github.com/paperscope/paperscope/pkg/models"
)

// Item count bounds for the LLM-generated portion.
const (
	minGeneratedItems = 8
	maxGeneratedItems = 15
)

// Builder creates and verifies checklists.
type Builder struct {
	caller *llm.Caller
}

// New creates a Builder on the shared caller.
func New(caller *llm.Caller) *Builder {
	return &Builder{caller: caller}
}

type itemPayload struct {
	Requirement string `json:"requirement"`
	Criteria    string `json:"criteria"`
	Priority    string `json:"priority"`
	Category    string `json:"category"`
}

type buildPayload struct {
	Items []itemPayload `json:"items"`
}

func (p *buildPayload) Validate() error {
	if len(p.Items) < minGeneratedItems || len(p.Items) > maxGeneratedItems {
		return fmt.Errorf("expected %d-%d items, got %d", minGeneratedItems, maxGeneratedItems, len(p.Items))
	}
	for i, item := range p.Items {
		if strings.TrimSpace(item.Requirement) == "" {
			return fmt.Errorf("items[%d].requirement is empty", i)
		}
	}
	return nil
}

// coreItems are always present regardless of what the LLM generates.
func coreItems() []itemPayload {
	return []itemPayload{
		{
			Requirement: "All factual claims carry citations",
			Criteria:    "Every statement of fact in the report is followed by an in-text citation reference",
			Priority:    "high",
			Category:    "citations",
		},
		{
			Requirement: "The conclusion answers the main research question",
			Criteria:    "The conclusion section directly addresses the question the report set out to answer",
			Priority:    "high",
			Category:    "structure",
		},
		{
			Requirement: "At least 60% of citations are from the last 5 years",
			Criteria:    "Count citation years; at least 60% fall within 5 years of today",
			Priority:    "medium",
			Category:    "recency",
		},
	}
}

// Build creates the session checklist: LLM-derived plan-specific items
// plus the fixed core items. On persistent LLM failure a minimal
// checklist is derived from the plan's sub-questions.
func (b *Builder) Build(ctx context.Context, sessionID string, plan *models.ResearchPlan) *models.Checklist {
	var payload buildPayload
	err := b.caller.Structured(ctx, llm.ModelLight, &llm.GenerateInput{
		System:   checklistSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: buildChecklistPrompt(plan)}},
	}, &payload)
	if err != nil {
		slog.Warn("Checklist generation failed, deriving from plan", "session_id", sessionID, "error", err)
		payload.Items = fallbackItems(plan)
	}

	checklist := &models.Checklist{SessionID: sessionID}
	for _, item := range append(payload.Items, coreItems()...) {
		checklist.Items = append(checklist.Items, models.ChecklistItem{
			ID:          fmt.Sprintf("check-%d", len(checklist.Items)+1),
			Requirement: item.Requirement,
			Criteria:    item.Criteria,
			Priority:    priorityOrDefault(item.Priority),
			Category:    item.Category,
			Status:      models.ChecklistPending,
		})
	}
	checklist.RecomputeProgress()
	return checklist
}

// fallbackItems derives a minimal checklist skeleton from the first few
// sub-questions.
func fallbackItems(plan *models.ResearchPlan) []itemPayload {
	var items []itemPayload
	for i, q := range plan.SubQuestions {
		if i >= 5 {
			break
		}
		items = append(items, itemPayload{
			Requirement: "The report addresses: " + q,
			Criteria:    "The report discusses this sub-question with supporting citations",
			Priority:    "medium",
			Category:    "coverage",
		})
	}
	return items
}

func priorityOrDefault(p string) string {
	switch strings.ToLower(p) {
	case "high", "medium", "low":
		return strings.ToLower(p)
	default:
		return "medium"
	}
}

type verifyItemPayload struct {
	Status    string   `json:"status"`
	Evidence  []string `json:"evidence"`
	SourceIDs []string `json:"source_ids"`
	Reasoning string   `json:"reasoning"`
}

func (p *verifyItemPayload) Validate() error {
	switch models.ChecklistStatus(p.Status) {
	case models.ChecklistVerified, models.ChecklistPartiallyVerified,
		models.ChecklistFailed, models.ChecklistNotApplicable:
		return nil
	}
	return fmt.Errorf("unexpected status %q", p.Status)
}

// VerifyItem checks one checklist item against the report, mutating its
// status, evidence and source attributions.
func (b *Builder) VerifyItem(ctx context.Context, item *models.ChecklistItem, report *models.ResearchReport) error {
	var payload verifyItemPayload
	err := b.caller.Structured(ctx, llm.ModelLight, &llm.GenerateInput{
		System:   checklistSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: verifyItemPrompt(item, report)}},
	}, &payload)
	if err != nil {
		return fmt.Errorf("verifying %s: %w", item.ID, err)
	}
	item.Status = models.ChecklistStatus(payload.Status)
	item.Evidence = payload.Evidence
	item.SourceIDs = unionStrings(item.SourceIDs, payload.SourceIDs)
	return nil
}

// Verify runs verification over all pending items. Per-item failures
// mark the item failed and verification continues.
func (b *Builder) Verify(ctx context.Context, checklist *models.Checklist, report *models.ResearchReport) {
	for _, item := range checklist.PendingItems() {
		if err := b.VerifyItem(ctx, item, report); err != nil {
			slog.Warn("Checklist item verification failed",
				"session_id", checklist.SessionID, "item_id", item.ID, "error", err)
			item.Status = models.ChecklistFailed
		}
	}
	checklist.RecomputeProgress()
	slog.Info("Checklist verified",
		"session_id", checklist.SessionID,
		"items", len(checklist.Items),
		"progress", checklist.OverallProgress)
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := a
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

const checklistSystemPrompt = `You are a research quality assistant managing a verification checklist for a literature review.
You always answer with a single JSON object matching the requested schema.`

func buildChecklistPrompt(plan *models.ResearchPlan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create %d-%d verifiable checklist items for a literature review answering %q.\n",
		minGeneratedItems, maxGeneratedItems, plan.MainQuestion)
	if len(plan.SubQuestions) > 0 {
		sb.WriteString("Sub-questions to cover:\n")
		for _, q := range plan.SubQuestions {
			fmt.Fprintf(&sb, "- %s\n", q)
		}
	}
	sb.WriteString(`
Each item needs an objective, checkable criterion. Answer with JSON:
{"items": [{"requirement": "...", "criteria": "...", "priority": "high|medium|low", "category": "..."}]}`)
	return sb.String()
}

func verifyItemPrompt(item *models.ChecklistItem, report *models.ResearchReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Requirement: %s\nCriteria: %s\n\nReport:\n%s\n",
		item.Requirement, item.Criteria, report.Content)
	sb.WriteString(`
Is the requirement met? Answer with JSON:
{"status": "verified|partially_verified|failed|not_applicable", "evidence": ["supporting excerpts"], "source_ids": ["paper ids"], "reasoning": "..."}`)
	return sb.String()
}
