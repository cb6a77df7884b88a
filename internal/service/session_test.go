package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-edge/bench-engine/internal/domain"
)

// sessionStore backs the mock store with a single mutable run and its
// event log.
type sessionStore struct {
	run    *domain.TestRun
	events []domain.TestEventLog
}

func (s *sessionStore) wire(ms *mockStore) {
	ms.activeTestRunFunc = func(_ context.Context) (*domain.TestRun, error) {
		if s.run != nil && s.run.Status.ActiveSet() {
			return s.run, nil
		}
		return nil, nil
	}
	ms.testRunByIDFunc = func(_ context.Context, id uint) (*domain.TestRun, error) {
		if s.run != nil && s.run.ID == id {
			return s.run, nil
		}
		return nil, domain.ErrSessionNotFound
	}
	ms.createTestRunFunc = func(_ context.Context, run *domain.TestRun) error {
		run.ID = 1
		s.run = run
		return nil
	}
	ms.saveTestRunFunc = func(_ context.Context, run *domain.TestRun) error {
		s.run = run
		return nil
	}
	ms.appendTestEventFunc = func(_ context.Context, ev *domain.TestEventLog) error {
		s.events = append(s.events, *ev)
		return nil
	}
	ms.eventLogsForRunFunc = func(_ context.Context, _ uint) ([]domain.TestEventLog, error) {
		return s.events, nil
	}
}

func newSessionFixture(t *testing.T) (*SessionManager, *sessionStore, *mockWriter, *time.Time) {
	t.Helper()
	ss := &sessionStore{}
	ms := &mockStore{}
	ss.wire(ms)
	w := &mockWriter{}
	m := NewSessionManager(ms, w, zerolog.Nop())

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, ss, w, &now
}

func TestSessionElapsedAccumulatesRunningTimeOnly(t *testing.T) {
	m, ss, _, now := newSessionFixture(t)
	ctx := context.Background()

	run, err := m.Create(ctx, CreateParams{Name: "bench"})
	require.NoError(t, err)

	_, err = m.Start(ctx, run.ID, "operator", "")
	require.NoError(t, err)

	// run 100s, pause
	*now = now.Add(100 * time.Second)
	_, err = m.Pause(ctx, run.ID, "operator", "")
	require.NoError(t, err)
	assert.Equal(t, uint(100), ss.run.ElapsedSeconds)

	// paused time never counts
	*now = now.Add(1 * time.Hour)
	_, err = m.Resume(ctx, run.ID, "operator", "")
	require.NoError(t, err)

	// run 150s more, abort
	*now = now.Add(150 * time.Second)
	_, err = m.Abort(ctx, run.ID, "operator", "")
	require.NoError(t, err)

	assert.Equal(t, uint(250), ss.run.ElapsedSeconds)
	assert.Equal(t, domain.SessionAborted, ss.run.Status)
	require.NotNil(t, ss.run.EndTime)
	assert.Nil(t, ss.run.LastResumedTime)
}

func TestSessionCreateRejectedWhileActive(t *testing.T) {
	m, _, _, _ := newSessionFixture(t)
	ctx := context.Background()

	run, err := m.Create(ctx, CreateParams{Name: "first"})
	require.NoError(t, err)
	_, err = m.Start(ctx, run.ID, "operator", "")
	require.NoError(t, err)

	_, err = m.Create(ctx, CreateParams{Name: "second"})
	assert.ErrorIs(t, err, domain.ErrSessionActiveExists)

	// a paused run still blocks creation
	_, err = m.Pause(ctx, run.ID, "operator", "")
	require.NoError(t, err)
	_, err = m.Create(ctx, CreateParams{Name: "third"})
	assert.ErrorIs(t, err, domain.ErrSessionActiveExists)
}

func TestSessionTransitionRules(t *testing.T) {
	m, ss, _, _ := newSessionFixture(t)
	ctx := context.Background()

	run, err := m.Create(ctx, CreateParams{Name: "bench"})
	require.NoError(t, err)

	// pause/resume before start are invalid
	_, err = m.Pause(ctx, run.ID, "op", "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = m.Resume(ctx, run.ID, "op", "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = m.Start(ctx, run.ID, "op", "")
	require.NoError(t, err)

	// double start is invalid
	_, err = m.Start(ctx, run.ID, "op", "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = m.Abort(ctx, run.ID, "op", "")
	require.NoError(t, err)

	// terminal runs accept nothing
	_, err = m.Abort(ctx, run.ID, "op", "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.SessionAborted, ss.run.Status)
}

func TestSessionDefaultTargetDuration(t *testing.T) {
	m, _, _, _ := newSessionFixture(t)

	run, err := m.Create(context.Background(), CreateParams{Name: "bench"})
	require.NoError(t, err)
	assert.Equal(t, uint(5000*3600), run.TargetDurationSeconds)
}

func TestSessionControlCoilFollowsTransitions(t *testing.T) {
	m, _, w, _ := newSessionFixture(t)
	ctx := context.Background()

	coil := uint(12)
	run, err := m.Create(ctx, CreateParams{Name: "bench", ControlRegisterID: &coil})
	require.NoError(t, err)

	_, err = m.Start(ctx, run.ID, "op", "")
	require.NoError(t, err)
	_, err = m.Pause(ctx, run.ID, "op", "")
	require.NoError(t, err)
	_, err = m.Resume(ctx, run.ID, "op", "")
	require.NoError(t, err)
	_, err = m.Abort(ctx, run.ID, "op", "")
	require.NoError(t, err)

	require.Len(t, w.writes, 4)
	want := []bool{true, false, true, false}
	for i, write := range w.writes {
		assert.Equal(t, coil, write.registerID)
		assert.Equal(t, want[i], write.value)
	}
}

func TestSessionEventLogRecordsTransitions(t *testing.T) {
	m, ss, _, _ := newSessionFixture(t)
	ctx := context.Background()

	run, err := m.Create(ctx, CreateParams{Name: "bench"})
	require.NoError(t, err)
	_, err = m.Start(ctx, run.ID, "alice", "")
	require.NoError(t, err)
	_, err = m.Pause(ctx, run.ID, "bob", "cooling fault under investigation")
	require.NoError(t, err)

	require.Len(t, ss.events, 2)
	assert.Equal(t, domain.EventStart, ss.events[0].EventType)
	assert.Equal(t, "alice", ss.events[0].Actor)
	assert.Equal(t, "Test started", ss.events[0].Notes)
	assert.Equal(t, domain.EventPause, ss.events[1].EventType)
	assert.Equal(t, "cooling fault under investigation", ss.events[1].Notes)
}

func TestCompleteDueFoldsAndCompletes(t *testing.T) {
	m, ss, w, now := newSessionFixture(t)
	ctx := context.Background()

	coil := uint(12)
	run, err := m.Create(ctx, CreateParams{Name: "bench", TargetDurationSeconds: 300, ControlRegisterID: &coil})
	require.NoError(t, err)
	_, err = m.Start(ctx, run.ID, "op", "")
	require.NoError(t, err)
	w.writes = nil

	// not yet due
	*now = now.Add(200 * time.Second)
	done, err := m.CompleteDue(ctx)
	require.NoError(t, err)
	assert.Nil(t, done)

	*now = now.Add(120 * time.Second)
	done, err = m.CompleteDue(ctx)
	require.NoError(t, err)
	require.NotNil(t, done)

	assert.Equal(t, domain.SessionCompleted, ss.run.Status)
	assert.Equal(t, uint(320), ss.run.ElapsedSeconds)
	require.NotNil(t, ss.run.EndTime)

	require.Len(t, ss.events, 2)
	assert.Equal(t, domain.EventComplete, ss.events[1].EventType)
	assert.Equal(t, "system", ss.events[1].Actor)
	assert.Equal(t, "Target duration reached", ss.events[1].Notes)

	require.Len(t, w.writes, 1)
	assert.False(t, w.writes[0].value)
}

func TestCompleteDueIgnoresPausedRuns(t *testing.T) {
	m, _, _, now := newSessionFixture(t)
	ctx := context.Background()

	run, err := m.Create(ctx, CreateParams{Name: "bench", TargetDurationSeconds: 10})
	require.NoError(t, err)
	_, err = m.Start(ctx, run.ID, "op", "")
	require.NoError(t, err)
	*now = now.Add(5 * time.Second)
	_, err = m.Pause(ctx, run.ID, "op", "")
	require.NoError(t, err)

	*now = now.Add(time.Hour)
	done, err := m.CompleteDue(ctx)
	require.NoError(t, err)
	assert.Nil(t, done)
}
