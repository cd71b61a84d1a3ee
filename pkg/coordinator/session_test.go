package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/events"
	"github.com/paperscope/paperscope/pkg/llm"
	"github.com/paperscope/paperscope/pkg/memory"
	"github.com/paperscope/paperscope/pkg/models"
	"github.com/paperscope/paperscope/pkg/source"
)

func testManager(t *testing.T, mock *llm.MockClient, adapters ...source.Adapter) *Manager {
	cfg := testConfig()
	cfg.Sessions.MaxConcurrent = 1
	cfg.Sessions.TerminalGracePeriod = time.Hour // evict manually in tests
	coord := buildCoordinator(t, cfg, mock, adapters...)
	return NewManager(coord, cfg.Sessions)
}

func TestManagerRunsSessionToCompletion(t *testing.T) {
	mock := llm.NewMockClient(
		llm.TextResponse(testPlanJSON),
		llm.TextResponse(stopSearchingJSON),
		llm.TextResponse(draftReport),
		llm.TextResponse(criticPassJSON),
	)
	m := testManager(t, mock,
		source.NewMockAdapter(config.SourceSemanticScholar, "s2-", testPapers()...))

	session, err := m.Start(context.Background(), "transformer code summarization")
	require.NoError(t, err)

	select {
	case <-session.Stream.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
	require.Eventually(t, func() bool {
		return session.State() == StateComplete
	}, time.Second, 10*time.Millisecond)
	assert.NotNil(t, session.Report())
	assert.NoError(t, session.Err())

	got, err := m.Get(session.ID)
	require.NoError(t, err)
	assert.Same(t, session, got)
}

func TestManagerEnforcesConcurrencyCap(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	adapter := source.NewMockAdapter(config.SourceSemanticScholar, "s2-", testPapers()...)
	adapter.Block = block
	mock := llm.NewMockClient(llm.TextResponse(testPlanJSON))
	m := testManager(t, mock, adapter)

	first, err := m.Start(context.Background(), "query one")
	require.NoError(t, err)

	_, err = m.Start(context.Background(), "query two")
	assert.ErrorIs(t, err, ErrTooManySessions)

	// Stopping the first frees the slot.
	require.NoError(t, m.Stop(first.ID))
	select {
	case <-first.Stream.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled session did not terminate")
	}
	require.Eventually(t, func() bool {
		_, err := m.Start(context.Background(), "query three")
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestManagerStopUnknownSession(t *testing.T) {
	m := testManager(t, llm.NewMockClient())
	assert.ErrorIs(t, m.Stop("nope"), ErrSessionNotFound)
}

func TestCheckpointRoundTrip(t *testing.T) {
	mock := llm.NewMockClient(llm.TextResponse(testPlanJSON))
	block := make(chan struct{})
	adapter := source.NewMockAdapter(config.SourceSemanticScholar, "s2-", testPapers()...)
	adapter.Block = block
	m := testManager(t, mock, adapter)

	session, err := m.Start(context.Background(), "query")
	require.NoError(t, err)
	defer close(block)

	ch, err := m.RegisterCheckpoint(session.ID, "cp-1")
	require.NoError(t, err)

	require.NoError(t, m.RespondCheckpoint(session.ID, "cp-1", "approve", map[string]any{"note": "ok"}))
	select {
	case resp := <-ch:
		assert.Equal(t, "approve", resp.Action)
		assert.Equal(t, "ok", resp.Data["note"])
	case <-time.After(time.Second):
		t.Fatal("checkpoint response not delivered")
	}

	// A second response to the same checkpoint is rejected.
	assert.ErrorIs(t, m.RespondCheckpoint(session.ID, "cp-1", "approve", nil), ErrUnknownCheckpoint)
}

func TestPlanApprovalCheckpointGatesWorkflow(t *testing.T) {
	mock := llm.NewMockClient(
		llm.TextResponse(testPlanJSON),
		llm.TextResponse(stopSearchingJSON),
		llm.TextResponse(draftReport),
		llm.TextResponse(criticPassJSON),
	)
	cfg := testConfig()
	cfg.Workflow.RequirePlanApproval = true
	cfg.Sessions.TerminalGracePeriod = time.Hour
	coord := buildCoordinator(t, cfg, mock,
		source.NewMockAdapter(config.SourceSemanticScholar, "s2-", testPapers()...))
	m := NewManager(coord, cfg.Sessions)

	session, err := m.Start(context.Background(), "transformer code summarization")
	require.NoError(t, err)

	sawCheckpoint := false
	sawPaused := false
	for e := range session.Stream.Subscribe(context.Background()) {
		switch e.Type {
		case events.TypeDataCheckpoint:
			sawCheckpoint = true
			assert.Equal(t, "plan_approval", e.Data["type"])
			require.NoError(t, m.RespondCheckpoint(session.ID, e.ID, events.ActionApprove, nil))
		case events.TypeAgentPaused:
			sawPaused = true
		}
	}
	assert.True(t, sawCheckpoint)
	assert.True(t, sawPaused)
	require.Eventually(t, func() bool {
		return session.State() == StateComplete
	}, time.Second, 10*time.Millisecond)
	assert.NotNil(t, session.Report())
}

func TestApplyPlanEdits(t *testing.T) {
	mem := memory.New("sess-edit")
	r := &run{
		mem: mem,
		plan: &models.ResearchPlan{
			MainQuestion: "q",
			SubQuestions: []string{"old one", "old two"},
		},
	}
	r.applyPlanEdits(map[string]any{"subQuestions": []any{"new one", "", "new two"}})
	assert.Equal(t, []string{"new one", "new two"}, r.plan.SubQuestions)

	// Unknown payload shapes leave the plan alone.
	r.applyPlanEdits(map[string]any{"subQuestions": "not a list"})
	assert.Equal(t, []string{"new one", "new two"}, r.plan.SubQuestions)
}

func TestManagerEviction(t *testing.T) {
	mock := llm.NewMockClient(
		llm.TextResponse(testPlanJSON),
		llm.TextResponse(stopSearchingJSON),
		llm.TextResponse(draftReport),
		llm.TextResponse(criticPassJSON),
	)
	m := testManager(t, mock,
		source.NewMockAdapter(config.SourceSemanticScholar, "s2-", testPapers()...))

	session, err := m.Start(context.Background(), "query")
	require.NoError(t, err)
	<-session.Stream.Done()

	m.evict(session.ID)
	_, err = m.Get(session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
