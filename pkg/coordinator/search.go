package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/paperscope/paperscope/pkg/aggregator"
	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/events"
	"github.com/paperscope/paperscope/pkg/llm"
	"github.com/paperscope/paperscope/pkg/models"
	"github.com/paperscope/paperscope/pkg/source"
)

// Search stop heuristics.
const (
	maxHeuristicRounds = 5
	sufficientPapers   = 20
	maxGapSearches     = 3
)

func searchOptions(query string, limit int) source.SearchOptions {
	return source.SearchOptions{
		Query:  query,
		Limit:  limit,
		SortBy: config.SortByRelevance,
	}
}

func (r *run) planPhase(ctx context.Context) error {
	r.setState(ctx, StatePlanning)
	id, _ := r.em.AgentStart(ctx, events.AgentEvent{
		Stage: "planning", StepType: "create_plan",
		TitleEn: "Creating research plan", TitleZh: "制定研究计划",
	})

	plan, err := r.c.deps.Planner.CreatePlan(ctx, r.query)
	if err != nil {
		_ = r.em.AgentComplete(ctx, id, events.AgentFailed, nil)
		return err
	}
	r.plan = plan
	r.mem.SetPlan(plan)

	_ = r.em.AgentComplete(ctx, id, events.AgentComplete, map[string]any{
		"strategies":   len(plan.SearchStrategies),
		"subQuestions": len(plan.SubQuestions),
	})
	_ = r.em.Card(ctx, events.TypeDataPlan, "plan-"+r.sessionID, map[string]any{
		"mainQuestion":     plan.MainQuestion,
		"subQuestions":     plan.SubQuestions,
		"searchStrategies": plan.SearchStrategies,
		"expectedSections": plan.ExpectedSections,
	})
	_ = r.em.Emit(ctx, events.TypePlan, "", map[string]any{"plan": plan})

	if r.c.cfg.Workflow.EnableVerifiableChecklist {
		r.checklist = r.c.deps.Checklist.Build(ctx, r.sessionID, plan)
		_ = r.em.Card(ctx, events.TypeDataTodo, "todo-"+r.sessionID, map[string]any{
			"items":    r.checklist.Items,
			"progress": r.checklist.OverallProgress,
		})
	}

	if r.c.cfg.Workflow.RequirePlanApproval {
		return r.awaitPlanApproval(ctx)
	}
	return nil
}

// awaitPlanApproval blocks the workflow on a plan-review checkpoint
// until the client approves or edits the plan.
func (r *run) awaitPlanApproval(ctx context.Context) error {
	if r.checkpoints == nil {
		return nil
	}
	cpID := "plan-approval-" + r.sessionID
	ch, err := r.checkpoints.RegisterCheckpoint(r.sessionID, cpID)
	if err != nil {
		return err
	}
	_ = r.em.CheckpointEvent(ctx, events.Checkpoint{
		ID:             cpID,
		Type:           "plan_approval",
		Title:          "Review the research plan",
		Description:    "Approve the plan or edit its sub-questions before searching begins.",
		CardID:         "plan-" + r.sessionID,
		Options:        []string{events.ActionApprove, events.ActionEdit},
		RequiredAction: events.ActionApprove,
		CreatedAt:      time.Now(),
	})
	_ = r.em.Emit(ctx, events.TypeAgentPaused, "", map[string]any{"checkpointId": cpID})

	select {
	case resp := <-ch:
		if resp.Action == events.ActionEdit {
			r.applyPlanEdits(resp.Data)
		}
		_ = r.em.Status(ctx, string(StatePlanning), "Plan approved")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// applyPlanEdits replaces the plan's sub-questions with the client's
// edits. Unknown or empty payloads leave the plan unchanged.
func (r *run) applyPlanEdits(data map[string]any) {
	raw, ok := data["subQuestions"].([]any)
	if !ok {
		return
	}
	subQs := make([]string, 0, len(raw))
	for _, q := range raw {
		if s, ok := q.(string); ok && s != "" {
			subQs = append(subQs, s)
		}
	}
	if len(subQs) > 0 {
		r.plan.SubQuestions = subQs
		r.mem.SetPlan(r.plan)
	}
}

func (r *run) searchPhase(ctx context.Context) error {
	r.setState(ctx, StateSearching)
	w := r.c.cfg.Workflow

	if w.EnableParallelSearch && len(r.plan.SearchStrategies) > 1 {
		if err := r.parallelInitialSearch(ctx); err != nil {
			return err
		}
	} else if len(r.plan.SearchStrategies) > 0 {
		strategy := r.plan.SearchStrategies[0]
		r.strategies = 1
		if err := r.searchRound(ctx, models.SearchQuery{Query: strategy.Query}, strategy.Reasoning); err != nil {
			return err
		}
	}

	for r.rounds < w.MaxSearchRounds {
		cont, err := r.shouldContinueSearching(ctx)
		if err != nil {
			return err
		}
		if !cont {
			break
		}
		query := r.nextQuery(ctx)
		if err := r.searchRound(ctx, query, "follow-up round"); err != nil {
			return err
		}
	}

	if r.mem.PaperCount() == 0 {
		return &WorkflowError{
			Kind:    KindAggregationInsufficient,
			Message: "No papers could be retrieved from any academic source.",
		}
	}
	if r.mem.PaperCount() < w.MinPapersRequired {
		_ = r.em.Status(ctx, string(StateSearching),
			fmt.Sprintf("Only %d papers found (wanted at least %d); report coverage may be thin", r.mem.PaperCount(), w.MinPapersRequired))
	}
	return nil
}

// parallelInitialSearch fans all plan strategies out through the
// aggregator concurrently and records the batch as one round.
func (r *run) parallelInitialSearch(ctx context.Context) error {
	w := r.c.cfg.Workflow
	strategies := r.plan.SearchStrategies
	r.strategies = len(strategies)
	perStrategy := w.MaxPapersPerRound / len(strategies)
	if perStrategy < 1 {
		perStrategy = 1
	}

	id, _ := r.em.AgentStart(ctx, events.AgentEvent{
		Stage: "searching", StepType: "parallel_search",
		TitleEn: "Running initial searches in parallel", TitleZh: "并行执行初始检索",
		Meta: map[string]any{"strategies": len(strategies), "perStrategyLimit": perStrategy},
	})

	var mu sync.Mutex
	var queries []string
	var batch []*models.Paper
	var lastErr error
	succeeded := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.ParallelSearchConcurrency)
	for _, strategy := range strategies {
		g.Go(func() error {
			result, err := r.search(gctx, strategy.Query, perStrategy)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				return nil // other strategies may still succeed
			}
			succeeded++
			queries = append(queries, strategy.Query)
			batch = append(batch, result.Papers...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if succeeded == 0 && lastErr != nil {
		_ = r.em.AgentComplete(ctx, id, events.AgentFailed, nil)
		return lastErr
	}

	added := r.mem.AddPapers(batch)
	r.rounds++
	r.recordRound(queries, batch)

	_ = r.em.AgentComplete(ctx, id, events.AgentComplete, map[string]any{
		"papersFound": len(batch),
		"newPapers":   added,
	})
	r.emitPaperList(ctx)
	return nil
}

// searchRound runs one sequential round.
func (r *run) searchRound(ctx context.Context, query models.SearchQuery, reasoning string) error {
	r.rounds++
	id, _ := r.em.AgentStart(ctx, events.AgentEvent{
		Stage: "searching", StepType: "search_round",
		TitleEn: "Searching: " + query.Query, TitleZh: "检索文献",
		Iteration: r.rounds,
		Meta:      map[string]any{"query": query.Query, "reasoning": reasoning},
	})
	_ = r.em.Emit(ctx, events.TypeSearchStart, "", map[string]any{"query": query.Query, "round": r.rounds})

	result, err := r.search(ctx, query.Query, r.c.cfg.Workflow.MaxPapersPerRound)
	if err != nil {
		var aggErr *aggregator.AggregationError
		if errors.As(err, &aggErr) {
			// A failed round is not fatal; later rounds or the final
			// paper-count check decide.
			_ = r.em.AgentComplete(ctx, id, events.AgentFailed, map[string]any{"error": aggErr.Error()})
			return nil
		}
		_ = r.em.AgentComplete(ctx, id, events.AgentFailed, nil)
		return err
	}

	added := r.mem.AddPapers(result.Papers)
	r.recordRound([]string{query.Query}, result.Papers)

	_ = r.em.AgentComplete(ctx, id, events.AgentComplete, map[string]any{
		"papersFound": len(result.Papers),
		"newPapers":   added,
		"sources":     result.Metadata.SuccessfulSources,
	})
	_ = r.em.Emit(ctx, events.TypePapersFound, "", map[string]any{
		"round": r.rounds,
		"count": len(result.Papers),
	})
	r.emitPaperList(ctx)
	return nil
}

func (r *run) search(ctx context.Context, query string, limit int) (*aggregator.AggregatedSearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.c.deps.Aggregator.Search(ctx, searchOptions(query, limit), r.sessionID)
}

func (r *run) recordRound(queries []string, papers []*models.Paper) {
	ids := make([]string, 0, len(papers))
	for _, p := range papers {
		ids = append(ids, p.ID)
	}
	r.mem.AddSearchRound(models.SearchRound{
		ID:        uuid.NewString(),
		Query:     models.SearchQuery{Query: joinQueries(queries)},
		PaperIDs:  ids,
		Timestamp: time.Now(),
	})
}

func joinQueries(queries []string) string {
	if len(queries) == 1 {
		return queries[0]
	}
	out := ""
	for i, q := range queries {
		if i > 0 {
			out += "; "
		}
		out += q
	}
	return out
}

// nextQuery consumes the next unconsumed plan strategy, or asks the
// planner to refine when the plan is exhausted.
func (r *run) nextQuery(ctx context.Context) models.SearchQuery {
	if r.strategies < len(r.plan.SearchStrategies) {
		strategy := r.plan.SearchStrategies[r.strategies]
		r.strategies++
		return models.SearchQuery{Query: strategy.Query}
	}
	seed := models.SearchQuery{Query: r.query}
	reason := "plan strategies exhausted"
	if gaps := r.mem.Gaps(); len(gaps) > 0 {
		seed.Query = gaps[0]
		reason = "targeting coverage gap"
	} else if len(r.plan.SearchStrategies) > 0 {
		seed.Query = r.plan.SearchStrategies[0].Query
	}
	return r.c.deps.Planner.RefineQuery(ctx, seed, r.mem.PaperCount(), reason)
}

type continuePayload struct {
	Continue bool   `json:"continue"`
	Reason   string `json:"reason"`
}

// shouldContinueSearching applies the stop heuristic: hard stops on
// round and paper counts, otherwise an LLM judgement on thin coverage.
func (r *run) shouldContinueSearching(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if r.rounds >= maxHeuristicRounds {
		return false, nil
	}
	if r.mem.PaperCount() >= sufficientPapers {
		return false, nil
	}
	var payload continuePayload
	prompt := fmt.Sprintf(
		"A literature search for %q has run %d rounds and found %d papers so far. Should more search rounds run?\n"+
			`Answer with JSON: {"continue": true|false, "reason": "..."}`,
		r.query, r.rounds, r.mem.PaperCount())
	err := r.c.deps.Caller.Structured(ctx, llm.ModelLight, &llm.GenerateInput{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	}, &payload)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		// When the heuristic itself fails, searching more is the safe
		// default only while coverage is very thin.
		return r.mem.PaperCount() < r.c.cfg.Workflow.MinPapersRequired, nil
	}
	return payload.Continue, nil
}

// gapSearches runs up to three targeted searches for the refinement's
// new strategies during an iterate decision.
func (r *run) gapSearches(ctx context.Context, refinement *models.PlanRefinement) error {
	executed := 0
	for _, strategy := range refinement.AdditionalSearchStrategies {
		if executed >= maxGapSearches || r.rounds >= r.c.cfg.Workflow.MaxSearchRounds {
			break
		}
		executed++
		if err := r.searchRound(ctx, models.SearchQuery{Query: strategy.Query}, "gap search: "+strategy.Reasoning); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) emitPaperList(ctx context.Context) {
	papers := r.mem.Papers()
	summaries := make([]map[string]any, 0, len(papers))
	for _, p := range papers {
		summaries = append(summaries, map[string]any{
			"id":        p.ID,
			"title":     p.Title,
			"year":      p.Year,
			"citations": p.CitationCount,
			"doi":       p.DOI,
		})
	}
	_ = r.em.Card(ctx, events.TypeDataPaperList, "papers-"+r.sessionID, map[string]any{
		"papers": summaries,
		"total":  len(summaries),
	})
}
