package domain

import "time"

// SessionStatus is the lifecycle state of a test session.
type SessionStatus string

const (
	SessionNotStarted SessionStatus = "NOT_STARTED"
	SessionRunning    SessionStatus = "RUNNING"
	SessionPaused     SessionStatus = "PAUSED"
	SessionCompleted  SessionStatus = "COMPLETED"
	SessionAborted    SessionStatus = "ABORTED"
)

// Terminal reports whether the status permits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionAborted
}

// ActiveSet reports whether the status counts toward the system-wide
// single-active-session invariant and gates reading archival.
func (s SessionStatus) ActiveSet() bool {
	return s == SessionRunning || s == SessionPaused
}

// DefaultTargetDuration is the endurance-bench default of 5000 hours.
const DefaultTargetDuration = 5000 * 3600

// TestRun is one bounded monitoring session. Readings are archived only
// while a run is RUNNING or PAUSED, and at most one run may be in either
// state at a time.
type TestRun struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Name           string `gorm:"size:200" json:"name"`
	CustomerName   string `gorm:"size:200" json:"customer_name,omitempty"`
	ProductDetails string `json:"product_details,omitempty"`

	Status SessionStatus `gorm:"size:20;default:NOT_STARTED" json:"status"`

	// TargetDurationSeconds is the accumulated runtime after which the run
	// naturally completes
	TargetDurationSeconds uint `gorm:"default:18000000" json:"target_duration_seconds"`

	// ElapsedSeconds accumulates only RUNNING time, folded in on every
	// pause/abort/complete transition
	ElapsedSeconds uint `gorm:"default:0" json:"elapsed_seconds"`

	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	LastResumedTime *time.Time `json:"last_resumed_time,omitempty"`

	// ControlRegisterID optionally names a writable coil driven true/false
	// on every transition
	ControlRegisterID *uint     `json:"control_register_id,omitempty"`
	ControlRegister   *Register `gorm:"foreignKey:ControlRegisterID" json:"-"`

	Readings  []Reading      `gorm:"foreignKey:TestRunID;constraint:OnDelete:CASCADE" json:"-"`
	EventLogs []TestEventLog `gorm:"foreignKey:TestRunID;constraint:OnDelete:CASCADE" json:"-"`
}

// LiveElapsed returns accumulated elapsed time including the currently
// running stretch, without mutating the run.
func (t *TestRun) LiveElapsed(now time.Time) uint {
	elapsed := t.ElapsedSeconds
	if t.Status == SessionRunning && t.LastResumedTime != nil {
		elapsed += uint(now.Sub(*t.LastResumedTime).Seconds())
	}
	return elapsed
}

// SessionEvent is the kind of a test event log entry.
type SessionEvent string

const (
	EventStart    SessionEvent = "START"
	EventPause    SessionEvent = "PAUSE"
	EventResume   SessionEvent = "RESUME"
	EventComplete SessionEvent = "COMPLETE"
	EventAbort    SessionEvent = "ABORT"
)

// TestEventLog is an append-only record of a session transition.
// Rows are immutable once written.
type TestEventLog struct {
	ID uint `gorm:"primaryKey" json:"id"`

	TestRunID uint `gorm:"index" json:"test_run_id"`

	Timestamp time.Time    `gorm:"autoCreateTime;index" json:"timestamp"`
	EventType SessionEvent `gorm:"size:20" json:"event_type"`
	Notes     string       `json:"notes,omitempty"`
	Actor     string       `gorm:"size:100" json:"actor,omitempty"`
}

// Reading is a single archived measurement, created only while a test run
// is active and only for numeric values.
type Reading struct {
	ID uint `gorm:"primaryKey" json:"id"`

	RegisterID uint      `gorm:"index" json:"register_id"`
	Register   *Register `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	Value     float64   `json:"value"`
	Timestamp time.Time `gorm:"autoCreateTime;index" json:"timestamp"`

	TestRunID uint `gorm:"index" json:"test_run_id"`
}
