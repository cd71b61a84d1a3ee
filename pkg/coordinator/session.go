package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paperscope/paperscope/pkg/aggregator"
	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/events"
	"github.com/paperscope/paperscope/pkg/memory"
	"github.com/paperscope/paperscope/pkg/models"
)

// Manager errors.
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrTooManySessions   = errors.New("maximum concurrent sessions reached")
	ErrUnknownCheckpoint = errors.New("checkpoint not found")
)

// Session is one running or recently finished research session.
type Session struct {
	ID        string
	Query     string
	CreatedAt time.Time

	Stream *events.Stream
	Memory *memory.Memory

	mu          sync.Mutex
	state       State
	report      *models.ResearchReport
	err         error
	cancel      context.CancelCauseFunc
	checkpoints map[string]chan CheckpointResponse
}

// CheckpointResponse is the client's answer to a data-checkpoint.
type CheckpointResponse struct {
	Action string
	Data   map[string]any
}

// State returns the session's current workflow state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Report returns the final report, or nil while running or failed.
func (s *Session) Report() *models.ResearchReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Err returns the terminal error, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// errCancelled is the cancellation cause for client stops.
var errCancelled = errors.New("cancelled by client")

// Manager owns the session registry: bounded concurrency, cancellation
// and post-terminal cleanup.
type Manager struct {
	coord *Coordinator
	cfg   config.SessionConfig

	mu       sync.Mutex
	sessions map[string]*Session
	running  int
}

// NewManager creates a Manager around a Coordinator.
func NewManager(coord *Coordinator, cfg config.SessionConfig) *Manager {
	return &Manager{
		coord:    coord,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Start launches a new session for the query. Fails when the concurrent
// session budget is exhausted.
func (m *Manager) Start(ctx context.Context, query string) (*Session, error) {
	m.mu.Lock()
	if m.running >= m.cfg.MaxConcurrent {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}
	m.running++

	id := uuid.NewString()
	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	session := &Session{
		ID:          id,
		Query:       query,
		CreatedAt:   time.Now(),
		Stream:      events.NewStream(id, m.cfg.EventBufferSize),
		Memory:      memory.New(id),
		state:       StateInitializing,
		cancel:      cancel,
		checkpoints: make(map[string]chan CheckpointResponse),
	}
	m.sessions[id] = session
	m.mu.Unlock()

	slog.Info("Session started", "session_id", id, "query", query)
	go m.runSession(runCtx, session)
	return session, nil
}

func (m *Manager) runSession(ctx context.Context, session *Session) {
	timeoutCtx, cancelTimeout := context.WithTimeout(ctx, m.cfg.SessionTimeout)
	defer cancelTimeout()

	em := events.NewEmitter(session.Stream, true)
	report, err := m.coord.Run(timeoutCtx, session.ID, session.Query, session.Memory, em, m)

	session.mu.Lock()
	session.report = report
	session.err = err
	if err != nil {
		session.state = StateError
	} else {
		session.state = StateComplete
	}
	session.mu.Unlock()

	m.mu.Lock()
	m.running--
	m.mu.Unlock()

	if err != nil {
		slog.Warn("Session finished with error", "session_id", session.ID, "error", err)
	} else {
		slog.Info("Session complete", "session_id", session.ID)
	}

	grace := m.cfg.TerminalGracePeriod
	if grace <= 0 {
		grace = time.Minute
	}
	time.AfterFunc(grace, func() { m.evict(session.ID) })
}

func (m *Manager) evict(id string) {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if ok {
		session.Stream.Release()
		slog.Debug("Session evicted", "session_id", id)
	}
}

// Get returns the session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Stop cancels a running session. Stopping a finished session is a
// no-op.
func (m *Manager) Stop(id string) error {
	session, err := m.Get(id)
	if err != nil {
		return err
	}
	session.cancel(errCancelled)
	slog.Info("Session stop requested", "session_id", id)
	return nil
}

// Sessions returns a snapshot of the registry.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Active returns the number of sessions still running.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Health proxies the aggregator's source health.
func (m *Manager) Health(ctx context.Context) *aggregator.HealthStatus {
	return m.coord.deps.Aggregator.HealthStatus(ctx)
}

// RegisterCheckpoint creates a pending checkpoint the workflow can wait
// on. The coordinator publishes the matching data-checkpoint event.
func (m *Manager) RegisterCheckpoint(sessionID, checkpointID string) (<-chan CheckpointResponse, error) {
	session, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	ch := make(chan CheckpointResponse, 1)
	session.mu.Lock()
	session.checkpoints[checkpointID] = ch
	session.mu.Unlock()
	return ch, nil
}

// RespondCheckpoint resolves a pending checkpoint with the client's
// action.
func (m *Manager) RespondCheckpoint(sessionID, checkpointID, action string, data map[string]any) error {
	session, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	session.mu.Lock()
	ch, ok := session.checkpoints[checkpointID]
	if ok {
		delete(session.checkpoints, checkpointID)
	}
	session.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCheckpoint, checkpointID)
	}
	ch <- CheckpointResponse{Action: action, Data: data}
	return nil
}

// Shutdown cancels every running session and waits for them to reach a
// terminal state, bounded by the configured graceful shutdown timeout.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.cancel(errors.New("server shutting down"))
	}

	deadline := time.After(m.cfg.GracefulShutdownTimeout)
	for _, s := range sessions {
		select {
		case <-s.Stream.Done():
		case <-deadline:
			return
		case <-ctx.Done():
			return
		}
	}
}
