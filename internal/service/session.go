package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexus-edge/bench-engine/internal/domain"
	"github.com/nexus-edge/bench-engine/internal/store"
)

// SessionManager owns the test-run lifecycle. At most one run may be
// RUNNING or PAUSED at a time; that run gates reading archival. Elapsed
// time accumulates only while RUNNING and is folded in on every
// pause/abort/complete transition.
type SessionManager struct {
	store  store.Store
	writer WriteRequester
	logger zerolog.Logger
	now    func() time.Time
}

// NewSessionManager creates a new session manager.
func NewSessionManager(st store.Store, writer WriteRequester, logger zerolog.Logger) *SessionManager {
	return &SessionManager{
		store:  st,
		writer: writer,
		logger: logger.With().Str("component", "session-manager").Logger(),
		now:    time.Now,
	}
}

// CreateParams describes a new test run.
type CreateParams struct {
	Name                  string
	CustomerName          string
	ProductDetails        string
	TargetDurationSeconds uint
	ControlRegisterID     *uint
}

// Create registers a new NOT_STARTED run. Creation is refused while
// another run is RUNNING or PAUSED.
func (m *SessionManager) Create(ctx context.Context, p CreateParams) (*domain.TestRun, error) {
	active, err := m.store.ActiveTestRun(ctx)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, fmt.Errorf("%w: run %d is %s", domain.ErrSessionActiveExists, active.ID, active.Status)
	}

	run := &domain.TestRun{
		Name:                  p.Name,
		CustomerName:          p.CustomerName,
		ProductDetails:        p.ProductDetails,
		Status:                domain.SessionNotStarted,
		TargetDurationSeconds: p.TargetDurationSeconds,
		ControlRegisterID:     p.ControlRegisterID,
	}
	if run.TargetDurationSeconds == 0 {
		run.TargetDurationSeconds = domain.DefaultTargetDuration
	}
	if err := m.store.CreateTestRun(ctx, run); err != nil {
		return nil, err
	}

	m.logger.Info().
		Uint("run_id", run.ID).
		Str("name", run.Name).
		Uint("target_seconds", run.TargetDurationSeconds).
		Msg("Test run created")
	return run, nil
}

// Start transitions a NOT_STARTED run to RUNNING and drives the control
// coil high. Empty notes fall back to a per-transition default.
func (m *SessionManager) Start(ctx context.Context, runID uint, actor, notes string) (*domain.TestRun, error) {
	run, err := m.store.TestRunByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.SessionNotStarted {
		return nil, m.invalidTransition(run, "start")
	}

	active, err := m.store.ActiveTestRun(ctx)
	if err != nil {
		return nil, err
	}
	if active != nil && active.ID != run.ID {
		return nil, fmt.Errorf("%w: run %d is %s", domain.ErrSessionActiveExists, active.ID, active.Status)
	}

	now := m.now()
	run.Status = domain.SessionRunning
	run.StartTime = &now
	run.LastResumedTime = &now

	return m.commit(ctx, run, domain.EventStart, actor, notes, true)
}

// Pause transitions a RUNNING run to PAUSED, folding the current running
// stretch into ElapsedSeconds.
func (m *SessionManager) Pause(ctx context.Context, runID uint, actor, notes string) (*domain.TestRun, error) {
	run, err := m.store.TestRunByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.SessionRunning {
		return nil, m.invalidTransition(run, "pause")
	}

	m.foldElapsed(run)
	run.Status = domain.SessionPaused

	return m.commit(ctx, run, domain.EventPause, actor, notes, false)
}

// Resume transitions a PAUSED run back to RUNNING.
func (m *SessionManager) Resume(ctx context.Context, runID uint, actor, notes string) (*domain.TestRun, error) {
	run, err := m.store.TestRunByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.SessionPaused {
		return nil, m.invalidTransition(run, "resume")
	}

	now := m.now()
	run.Status = domain.SessionRunning
	run.LastResumedTime = &now

	return m.commit(ctx, run, domain.EventResume, actor, notes, true)
}

// Abort terminates a RUNNING or PAUSED run.
func (m *SessionManager) Abort(ctx context.Context, runID uint, actor, notes string) (*domain.TestRun, error) {
	run, err := m.store.TestRunByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !run.Status.ActiveSet() {
		return nil, m.invalidTransition(run, "abort")
	}

	m.foldElapsed(run)
	now := m.now()
	run.Status = domain.SessionAborted
	run.EndTime = &now

	return m.commit(ctx, run, domain.EventAbort, actor, notes, false)
}

// CompleteDue naturally completes the active run once its accumulated
// elapsed time reaches the target duration. Called periodically; a nil
// return with no error means nothing was due.
func (m *SessionManager) CompleteDue(ctx context.Context) (*domain.TestRun, error) {
	run, err := m.store.ActiveTestRun(ctx)
	if err != nil {
		return nil, err
	}
	if run == nil || run.Status != domain.SessionRunning {
		return nil, nil
	}

	now := m.now()
	if run.LiveElapsed(now) < run.TargetDurationSeconds {
		return nil, nil
	}

	m.foldElapsed(run)
	run.Status = domain.SessionCompleted
	run.EndTime = &now

	m.logger.Info().
		Uint("run_id", run.ID).
		Uint("elapsed_seconds", run.ElapsedSeconds).
		Msg("Test run reached target duration")
	return m.commit(ctx, run, domain.EventComplete, "system", "", false)
}

// Active returns the run currently gating archival, or nil.
func (m *SessionManager) Active(ctx context.Context) (*domain.TestRun, error) {
	return m.store.ActiveTestRun(ctx)
}

// EventLog returns the append-only transition history of a run.
func (m *SessionManager) EventLog(ctx context.Context, runID uint) ([]domain.TestEventLog, error) {
	if _, err := m.store.TestRunByID(ctx, runID); err != nil {
		return nil, err
	}
	return m.store.EventLogsForRun(ctx, runID)
}

// foldElapsed accumulates the running stretch since LastResumedTime and
// clears the marker. No-op unless the run is RUNNING.
func (m *SessionManager) foldElapsed(run *domain.TestRun) {
	if run.Status != domain.SessionRunning || run.LastResumedTime == nil {
		return
	}
	run.ElapsedSeconds += uint(m.now().Sub(*run.LastResumedTime).Seconds())
	run.LastResumedTime = nil
}

// defaultNotes is the free-text note written when the caller supplies none.
var defaultNotes = map[domain.SessionEvent]string{
	domain.EventStart:    "Test started",
	domain.EventPause:    "Test paused",
	domain.EventResume:   "Test resumed",
	domain.EventAbort:    "Test aborted",
	domain.EventComplete: "Target duration reached",
}

func (m *SessionManager) commit(ctx context.Context, run *domain.TestRun, event domain.SessionEvent, actor, notes string, coilState bool) (*domain.TestRun, error) {
	if err := m.store.SaveTestRun(ctx, run); err != nil {
		return nil, err
	}
	if notes == "" {
		notes = defaultNotes[event]
	}
	if err := m.store.AppendTestEvent(ctx, &domain.TestEventLog{
		TestRunID: run.ID,
		Timestamp: m.now(),
		EventType: event,
		Actor:     actor,
		Notes:     notes,
	}); err != nil {
		return nil, err
	}

	// Control-coil failures never roll back the transition: the run state
	// is authoritative, the coil is best-effort actuation.
	if run.ControlRegisterID != nil {
		if err := m.writer.Enqueue(*run.ControlRegisterID, coilState); err != nil {
			m.logger.Error().
				Err(err).
				Uint("run_id", run.ID).
				Uint("register_id", *run.ControlRegisterID).
				Msg("Failed to enqueue control coil write")
		}
	}

	m.logger.Info().
		Uint("run_id", run.ID).
		Str("event", string(event)).
		Str("status", string(run.Status)).
		Str("actor", actor).
		Msg("Test run transition")
	return run, nil
}

func (m *SessionManager) invalidTransition(run *domain.TestRun, op string) error {
	return fmt.Errorf("%w: cannot %s run %d in status %s", domain.ErrInvalidTransition, op, run.ID, run.Status)
}
