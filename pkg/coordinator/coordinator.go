// Package coordinator drives the research workflow state machine for
// one session: planning, multi-round search, iterative write/review
// cycles, citation validation and finalization, all reported through
// the session's event stream.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/paperscope/paperscope/pkg/aggregator"
	"github.com/paperscope/paperscope/pkg/audit"
	"github.com/paperscope/paperscope/pkg/checklist"
	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/critic"
	"github.com/paperscope/paperscope/pkg/enrich"
	"github.com/paperscope/paperscope/pkg/events"
	"github.com/paperscope/paperscope/pkg/llm"
	"github.com/paperscope/paperscope/pkg/memory"
	"github.com/paperscope/paperscope/pkg/models"
	"github.com/paperscope/paperscope/pkg/planner"
	"github.com/paperscope/paperscope/pkg/source/crossref"
	"github.com/paperscope/paperscope/pkg/writer"
)

// State is one workflow state.
type State string

const (
	StateInitializing State = "initializing"
	StatePlanning     State = "planning"
	StateSearching    State = "searching"
	StateAnalyzing    State = "analyzing"
	StateWriting      State = "writing"
	StateReviewing    State = "reviewing"
	StateIterating    State = "iterating"
	StateValidating   State = "validating"
	StateComplete     State = "complete"
	StateError        State = "error"
)

// WorkflowError is a terminal workflow failure with a user-facing
// message derived from its kind.
type WorkflowError struct {
	Kind    string
	Message string
	Err     error
}

func (e *WorkflowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *WorkflowError) Unwrap() error { return e.Err }

// Workflow error kinds beyond the LLM taxonomy.
const (
	KindAggregationInsufficient = "aggregation_insufficient"
	KindCancelled               = "cancelled"
	KindInvariant               = "invariant"
)

// Deps wires the coordinator's collaborators. Crossref may be nil when
// citation validation is disabled.
type Deps struct {
	Config     *config.Config
	Aggregator *aggregator.Aggregator
	Enricher   *enrich.Enricher
	Planner    *planner.Planner
	Writer     *writer.Writer
	Critic     *critic.Critic
	Auditor    *audit.Auditor
	Checklist  *checklist.Builder
	Crossref   *crossref.Client
	Caller     *llm.Caller
}

// CheckpointRegistrar registers a pending checkpoint the workflow can
// block on until the client responds. The Manager implements it; a nil
// registrar disables checkpoint gating.
type CheckpointRegistrar interface {
	RegisterCheckpoint(sessionID, checkpointID string) (<-chan CheckpointResponse, error)
}

// Coordinator runs research sessions.
type Coordinator struct {
	deps Deps
	cfg  *config.Config
}

// New creates a Coordinator.
func New(deps Deps) *Coordinator {
	return &Coordinator{deps: deps, cfg: deps.Config}
}

// run carries the per-session mutable state through the workflow.
type run struct {
	c           *Coordinator
	sessionID   string
	query       string
	mem         *memory.Memory
	em          *events.Emitter
	checkpoints CheckpointRegistrar
	state       State

	usageStart  llm.TokenUsage
	callsStart  int
	plan        *models.ResearchPlan
	checklist   *models.Checklist
	rounds      int
	strategies  int // consumed initial strategies
	report      *models.ResearchReport
	metrics     models.QualityMetrics
	analysis    *models.CriticAnalysis
	auditResult *models.EvidenceAuditResult
	validations []models.CitationValidation
}

// Run executes one full session. The returned report is the final one
// even when the workflow ends in a recoverable degraded state; a nil
// report with a non-nil error means the session failed before writing.
func (c *Coordinator) Run(ctx context.Context, sessionID, query string, mem *memory.Memory, em *events.Emitter, checkpoints CheckpointRegistrar) (*models.ResearchReport, error) {
	r := &run{c: c, sessionID: sessionID, query: query, mem: mem, em: em, checkpoints: checkpoints, state: StateInitializing}
	r.usageStart, r.callsStart = c.deps.Caller.Usage()

	report, err := r.execute(ctx)
	if err != nil {
		r.fail(ctx, err)
		return report, err
	}
	r.setState(ctx, StateComplete)
	_ = em.Emit(ctx, events.TypeSessionComplete, "", map[string]any{"sessionId": sessionID})
	return report, nil
}

func (r *run) execute(ctx context.Context) (*models.ResearchReport, error) {
	if err := r.planPhase(ctx); err != nil {
		return nil, err
	}
	if err := r.searchPhase(ctx); err != nil {
		return nil, err
	}
	if err := r.iteratePhase(ctx); err != nil {
		return r.report, err
	}
	if r.c.cfg.Workflow.EnableCitationValidation && r.c.deps.Crossref != nil {
		r.validatePhase(ctx)
	}
	return r.finalize(ctx)
}

func (r *run) setState(ctx context.Context, s State) {
	r.state = s
	slog.Debug("Workflow state transition", "session_id", r.sessionID, "state", s)
	_ = r.em.Status(ctx, string(s), statusMessage(s))
}

func statusMessage(s State) string {
	switch s {
	case StatePlanning:
		return "Creating the research plan"
	case StateSearching:
		return "Searching academic sources"
	case StateAnalyzing:
		return "Analyzing retrieved papers"
	case StateWriting:
		return "Writing the report"
	case StateReviewing:
		return "Reviewing report quality"
	case StateIterating:
		return "Refining the report"
	case StateValidating:
		return "Validating citations"
	case StateComplete:
		return "Research complete"
	case StateError:
		return "Research failed"
	default:
		return string(s)
	}
}

// fail transitions to error and emits the terminal error event with a
// user-friendly message. Nothing is emitted after it.
func (r *run) fail(ctx context.Context, err error) {
	r.state = StateError
	kind, message := classifyFailure(err)
	slog.Error("Workflow failed", "session_id", r.sessionID, "kind", kind, "error", err)
	// Terminal events must go out even when ctx is already cancelled.
	noCancel := context.WithoutCancel(ctx)
	_ = r.em.Error(noCancel, kind, message)
	_ = r.em.Emit(noCancel, events.TypeSessionError, "", map[string]any{
		"sessionId": r.sessionID,
		"kind":      kind,
		"message":   message,
	})
}

func classifyFailure(err error) (kind, message string) {
	var wf *WorkflowError
	if errors.As(err, &wf) {
		return wf.Kind, wf.Message
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled, "The research session was cancelled."
	}
	k := llm.Classify(err)
	return string(k), k.UserMessage()
}

// papersByID snapshots the canonical paper set keyed by id.
func (r *run) papersByID() map[string]*models.Paper {
	papers := r.mem.Papers()
	out := make(map[string]*models.Paper, len(papers))
	for _, p := range papers {
		out[p.ID] = p
	}
	return out
}
