package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(ch <-chan Event, n int) []Event {
	var out []Event
	for e := range ch {
		out = append(out, e)
		if len(out) == n {
			break
		}
	}
	return out
}

func TestStreamOrdersAndStampsEvents(t *testing.T) {
	s := NewStream("sess-1", 16)
	defer s.Release()
	ctx := context.Background()

	sub := s.Subscribe(ctx)
	require.NoError(t, s.Publish(ctx, Event{Type: TypeStatus}))
	require.NoError(t, s.Publish(ctx, Event{Type: TypePlan}))
	require.NoError(t, s.Publish(ctx, Event{Type: TypeSessionComplete}))

	got := collect(sub, 3)
	require.Len(t, got, 3)
	assert.Equal(t, TypeStatus, got[0].Type)
	assert.Equal(t, TypePlan, got[1].Type)
	assert.Equal(t, TypeSessionComplete, got[2].Type)
	assert.True(t, got[1].Timestamp.After(got[0].Timestamp))
	assert.True(t, got[2].Timestamp.After(got[1].Timestamp))

	// Channel closes after the terminal event.
	_, open := <-sub
	assert.False(t, open)
}

func TestStreamRejectsPublishAfterTerminal(t *testing.T) {
	s := NewStream("sess-2", 16)
	defer s.Release()
	ctx := context.Background()

	require.NoError(t, s.Publish(ctx, Event{Type: TypeSessionError}))
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("stream did not close")
	}
	assert.ErrorIs(t, s.Publish(ctx, Event{Type: TypeStatus}), ErrStreamClosed)
	assert.True(t, s.Closed())
}

func TestLateSubscriberReplaysHistory(t *testing.T) {
	s := NewStream("sess-3", 16)
	defer s.Release()
	ctx := context.Background()

	require.NoError(t, s.Publish(ctx, Event{Type: TypeComplete}))
	require.NoError(t, s.Publish(ctx, Event{Type: TypeSessionComplete}))
	<-s.Done()

	sub := s.Subscribe(ctx)
	got := collect(sub, 2)
	require.Len(t, got, 2)
	assert.Equal(t, TypeComplete, got[0].Type)
	assert.Equal(t, TypeSessionComplete, got[1].Type)
}

func TestSubscriberJoiningMidStreamSeesEverything(t *testing.T) {
	s := NewStream("sess-4", 16)
	defer s.Release()
	ctx := context.Background()

	require.NoError(t, s.Publish(ctx, Event{Type: TypeStatus}))
	sub := s.Subscribe(ctx)
	require.NoError(t, s.Publish(ctx, Event{Type: TypeSessionComplete}))

	got := collect(sub, 2)
	require.Len(t, got, 2)
	assert.Equal(t, TypeStatus, got[0].Type)
	assert.Equal(t, TypeSessionComplete, got[1].Type)
}

func TestEmitterAgentLifecycle(t *testing.T) {
	s := NewStream("sess-5", 16)
	defer s.Release()
	ctx := context.Background()
	em := NewEmitter(s, true)

	sub := s.Subscribe(ctx)
	id, err := em.AgentStart(ctx, AgentEvent{
		Stage: "planning", StepType: "create_plan", TitleEn: "Creating research plan",
	})
	require.NoError(t, err)
	assert.Equal(t, "planning-create_plan", id)

	require.NoError(t, em.AgentUpdate(ctx, id, map[string]any{"strategies": 3}))
	require.NoError(t, em.AgentComplete(ctx, id, AgentComplete, map[string]any{"subQuestions": 4}))

	// Each unified event is mirrored by a legacy step event.
	got := collect(sub, 6)
	require.Len(t, got, 6)
	assert.Equal(t, TypeAgentEventStart, got[0].Type)
	assert.Equal(t, TypeAgentStepStart, got[1].Type)
	assert.Equal(t, TypeAgentEventUpdate, got[2].Type)
	assert.Equal(t, TypeAgentEventComplete, got[4].Type)

	for _, e := range got {
		assert.Equal(t, id, e.ID)
	}
	// Completion payload is a superset of the update payload.
	meta := got[4].Data["meta"].(map[string]any)
	assert.Equal(t, 3, meta["strategies"])
	assert.Equal(t, 4, meta["subQuestions"])
	assert.Equal(t, "complete", got[4].Data["status"])
}

func TestAgentEventIDIncludesIteration(t *testing.T) {
	assert.Equal(t, "searching-search_round-2", AgentEventID("searching", "search_round", 2))
	assert.Equal(t, "planning-create_plan", AgentEventID("planning", "create_plan", 0))
}

func TestReconcileShallowOverlayWithNestedMeta(t *testing.T) {
	base := Event{
		Type: TypeAgentEventStart,
		ID:   "searching-search_round-1",
		Data: map[string]any{
			"status": "running",
			"meta":   map[string]any{"query": "transformers", "round": 1},
		},
	}
	update := Event{
		Type: TypeAgentEventComplete,
		ID:   "searching-search_round-1",
		Data: map[string]any{
			"status": "complete",
			"meta":   map[string]any{"papersFound": 12},
		},
	}
	merged := Reconcile(base, update)
	assert.Equal(t, TypeAgentEventComplete, merged.Type)
	assert.Equal(t, "complete", merged.Data["status"])
	meta := merged.Data["meta"].(map[string]any)
	assert.Equal(t, "transformers", meta["query"])
	assert.Equal(t, 1, meta["round"])
	assert.Equal(t, 12, meta["papersFound"])
}

func TestReconcileCompleteIntoCompleteIsNoOp(t *testing.T) {
	complete := Event{
		Type:      TypeAgentEventComplete,
		ID:        "writing-write_report",
		Data:      map[string]any{"status": "complete", "meta": map[string]any{"words": 900}},
		Timestamp: time.Now(),
	}
	merged := Reconcile(complete, complete)
	assert.Equal(t, complete.Type, merged.Type)
	assert.Equal(t, complete.Data["status"], merged.Data["status"])
	assert.Equal(t, complete.Data["meta"], merged.Data["meta"])
}
