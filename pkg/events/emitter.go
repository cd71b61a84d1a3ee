package events

import (
	"context"
	"sync"
	"time"
)

// Emitter publishes the engine's event vocabulary onto a session
// stream. It tracks open unified events by id so that updates and
// completions carry the full payload (later events for the same id are
// supersets of earlier ones).
type Emitter struct {
	stream *Stream

	// legacySteps mirrors every unified agent event as an
	// agent_step_* event while clients migrate.
	legacySteps bool

	mu   sync.Mutex
	open map[string]*AgentEvent
}

// NewEmitter wraps a stream.
func NewEmitter(stream *Stream, legacySteps bool) *Emitter {
	return &Emitter{
		stream:      stream,
		legacySteps: legacySteps,
		open:        make(map[string]*AgentEvent),
	}
}

// Emit publishes a raw event.
func (e *Emitter) Emit(ctx context.Context, t Type, id string, data map[string]any) error {
	return e.stream.Publish(ctx, Event{Type: t, ID: id, Data: data})
}

// AgentStart opens a unified agent event and returns its id.
func (e *Emitter) AgentStart(ctx context.Context, ev AgentEvent) (string, error) {
	if ev.ID == "" {
		ev.ID = AgentEventID(ev.Stage, ev.StepType, ev.Iteration)
	}
	ev.Status = AgentRunning
	ev.StartTime = time.Now()

	e.mu.Lock()
	stored := ev
	e.open[ev.ID] = &stored
	e.mu.Unlock()

	if err := e.publishAgent(ctx, TypeAgentEventStart, TypeAgentStepStart, ev); err != nil {
		return ev.ID, err
	}
	return ev.ID, nil
}

// AgentUpdate merges meta into an open event and republishes it.
func (e *Emitter) AgentUpdate(ctx context.Context, id string, meta map[string]any) error {
	ev := e.merge(id, AgentRunning, meta)
	if ev == nil {
		return nil
	}
	return e.publishAgent(ctx, TypeAgentEventUpdate, TypeAgentStepUpdate, *ev)
}

// AgentComplete closes an open event with the given status.
func (e *Emitter) AgentComplete(ctx context.Context, id string, status AgentStatus, meta map[string]any) error {
	ev := e.merge(id, status, meta)
	if ev == nil {
		return nil
	}
	e.mu.Lock()
	delete(e.open, id)
	e.mu.Unlock()
	return e.publishAgent(ctx, TypeAgentEventComplete, TypeAgentStepComplete, *ev)
}

func (e *Emitter) merge(id string, status AgentStatus, meta map[string]any) *AgentEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	ev, ok := e.open[id]
	if !ok {
		return nil
	}
	ev.Status = status
	if len(meta) > 0 {
		if ev.Meta == nil {
			ev.Meta = make(map[string]any, len(meta))
		}
		for k, v := range meta {
			ev.Meta[k] = v
		}
	}
	snapshot := *ev
	return &snapshot
}

func (e *Emitter) publishAgent(ctx context.Context, unified, legacy Type, ev AgentEvent) error {
	data := agentEventData(ev)
	if err := e.stream.Publish(ctx, Event{Type: unified, ID: ev.ID, Data: data}); err != nil {
		return err
	}
	if e.legacySteps {
		return e.stream.Publish(ctx, Event{Type: legacy, ID: ev.ID, Data: data})
	}
	return nil
}

func agentEventData(ev AgentEvent) map[string]any {
	data := map[string]any{
		"id":        ev.ID,
		"stage":     ev.Stage,
		"stepType":  ev.StepType,
		"titleEn":   ev.TitleEn,
		"status":    string(ev.Status),
		"startTime": ev.StartTime,
	}
	if ev.TitleZh != "" {
		data["titleZh"] = ev.TitleZh
	}
	if ev.Iteration > 0 {
		data["iteration"] = ev.Iteration
	}
	if ev.TotalIterations > 0 {
		data["totalIterations"] = ev.TotalIterations
	}
	if len(ev.Meta) > 0 {
		data["meta"] = ev.Meta
	}
	return data
}

// Card publishes a data-* card. Re-emitting with the same id updates
// the card in place on the client.
func (e *Emitter) Card(ctx context.Context, t Type, id string, data map[string]any) error {
	return e.stream.Publish(ctx, Event{Type: t, ID: id, Data: data})
}

// CheckpointEvent publishes a data-checkpoint.
func (e *Emitter) CheckpointEvent(ctx context.Context, cp Checkpoint) error {
	return e.stream.Publish(ctx, Event{Type: TypeDataCheckpoint, ID: cp.ID, Data: map[string]any{
		"id":             cp.ID,
		"type":           cp.Type,
		"title":          cp.Title,
		"description":    cp.Description,
		"cardId":         cp.CardID,
		"options":        cp.Options,
		"requiredAction": cp.RequiredAction,
		"createdAt":      cp.CreatedAt,
	}})
}

// Status publishes a status primitive with a human-readable message.
func (e *Emitter) Status(ctx context.Context, stage, message string) error {
	return e.Emit(ctx, TypeStatus, "", map[string]any{"stage": stage, "message": message})
}

// Error publishes the terminal error event.
func (e *Emitter) Error(ctx context.Context, kind, message string) error {
	return e.Emit(ctx, TypeError, "", map[string]any{"kind": kind, "message": message})
}
