// Package planner decomposes a research question into sub-questions and
// search strategies, refines individual queries between rounds, and
// turns critic feedback into a plan refinement during iteration.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/paperscope/paperscope/pkg/llm"
	"github.com/paperscope/paperscope/pkg/models"
)

// Planner drives the plan-level LLM calls.
type Planner struct {
	caller *llm.Caller
}

// New creates a Planner on the shared caller.
func New(caller *llm.Caller) *Planner {
	return &Planner{caller: caller}
}

// planPayload is the structured-output schema for plan creation.
type planPayload struct {
	MainQuestion     string   `json:"main_question"`
	SubQuestions     []string `json:"sub_questions"`
	SearchStrategies []struct {
		Query     string `json:"query"`
		Reasoning string `json:"reasoning"`
	} `json:"search_strategies"`
	ExpectedSections []string `json:"expected_sections"`
}

func (p *planPayload) Validate() error {
	if strings.TrimSpace(p.MainQuestion) == "" {
		return errors.New("main_question is empty")
	}
	if n := len(p.SubQuestions); n < 3 || n > 5 {
		return fmt.Errorf("expected 3-5 sub_questions, got %d", n)
	}
	if n := len(p.SearchStrategies); n < 3 || n > 6 {
		return fmt.Errorf("expected 3-6 search_strategies, got %d", n)
	}
	for i, s := range p.SearchStrategies {
		if strings.TrimSpace(s.Query) == "" {
			return fmt.Errorf("search_strategies[%d].query is empty", i)
		}
	}
	return nil
}

// CreatePlan builds a ResearchPlan for the query. On persistent LLM
// failure a minimal plan is synthesized from the query itself so the
// workflow can still proceed.
func (p *Planner) CreatePlan(ctx context.Context, query string) (*models.ResearchPlan, error) {
	var payload planPayload
	err := p.caller.Structured(ctx, llm.ModelPrimary, &llm.GenerateInput{
		System:   plannerSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: createPlanPrompt(query)}},
	}, &payload)
	if err != nil {
		slog.Warn("Plan generation failed, synthesizing minimal plan", "error", err)
		return minimalPlan(query), nil
	}

	plan := &models.ResearchPlan{
		MainQuestion:     payload.MainQuestion,
		SubQuestions:     payload.SubQuestions,
		ExpectedSections: payload.ExpectedSections,
	}
	for _, s := range payload.SearchStrategies {
		plan.SearchStrategies = append(plan.SearchStrategies, models.SearchStrategy{
			Query: s.Query, Reasoning: s.Reasoning,
		})
	}
	if len(plan.ExpectedSections) == 0 {
		plan.ExpectedSections = defaultSections()
	}
	slog.Info("Research plan created",
		"sub_questions", len(plan.SubQuestions),
		"strategies", len(plan.SearchStrategies))
	return plan, nil
}

// minimalPlan is the synthesized default when the LLM cannot produce a
// schema-valid plan.
func minimalPlan(query string) *models.ResearchPlan {
	return &models.ResearchPlan{
		MainQuestion: query,
		SubQuestions: []string{
			query,
			"What is the current state of research on this topic?",
			"What are the open problems and limitations?",
		},
		SearchStrategies: []models.SearchStrategy{
			{Query: query, Reasoning: "direct query"},
			{Query: query + " survey", Reasoning: "survey literature"},
			{Query: query + " recent advances", Reasoning: "recent work"},
		},
		ExpectedSections: defaultSections(),
	}
}

func defaultSections() []string {
	return []string{"Abstract", "Introduction", "Background", "Findings", "Discussion", "Conclusion"}
}

// RefineQuery rewrites a query that produced poor results. Uses the
// light model; on failure the original query is returned unchanged.
func (p *Planner) RefineQuery(ctx context.Context, original models.SearchQuery, prevPapers int, context_ string) models.SearchQuery {
	var payload struct {
		Query string `json:"query"`
	}
	err := p.caller.Structured(ctx, llm.ModelLight, &llm.GenerateInput{
		System:   plannerSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: refineQueryPrompt(original.Query, prevPapers, context_)}},
	}, &payload)
	if err != nil || strings.TrimSpace(payload.Query) == "" {
		slog.Warn("Query refinement failed, keeping original", "query", original.Query, "error", err)
		return original
	}
	return models.SearchQuery{Query: payload.Query, Filters: original.Filters}
}

// refinementPayload is the structured-output schema for plan
// refinement.
type refinementPayload struct {
	AdditionalSubQuestions     []string `json:"additional_sub_questions"`
	AdditionalSearchStrategies []struct {
		Query     string `json:"query"`
		Reasoning string `json:"reasoning"`
	} `json:"additional_search_strategies"`
	RefinedSections []string            `json:"refined_sections"`
	Reasoning       string              `json:"reasoning"`
	GapMappings     map[string][]string `json:"gap_mappings"`
}

// RefineFromFeedback turns critic feedback into targeted plan
// additions. Short-circuits to an empty refinement when the critic
// found no gaps and the score is already high.
func (p *Planner) RefineFromFeedback(ctx context.Context, plan *models.ResearchPlan, critic *models.CriticAnalysis, existingTitles []string) (*models.PlanRefinement, error) {
	if critic != nil && len(critic.GapsIdentified) == 0 && critic.Scores.Overall >= 80 {
		return &models.PlanRefinement{}, nil
	}

	var payload refinementPayload
	err := p.caller.Structured(ctx, llm.ModelPrimary, &llm.GenerateInput{
		System:   plannerSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: refinePlanPrompt(plan, critic, existingTitles)}},
	}, &payload)
	if err != nil {
		return nil, fmt.Errorf("refining plan from feedback: %w", err)
	}

	refinement := &models.PlanRefinement{
		AdditionalSubQuestions: payload.AdditionalSubQuestions,
		RefinedSections:        payload.RefinedSections,
		Reasoning:              payload.Reasoning,
		GapMappings:            payload.GapMappings,
	}
	for _, s := range payload.AdditionalSearchStrategies {
		refinement.AdditionalSearchStrategies = append(refinement.AdditionalSearchStrategies,
			models.SearchStrategy{Query: s.Query, Reasoning: s.Reasoning})
	}
	return refinement, nil
}
