// Package store persists engine state: devices and register maps, archived
// readings, alarm episodes, automation rules and test-session records.
package store

import (
	"context"
	"time"

	"github.com/nexus-edge/bench-engine/internal/domain"
)

// ReadingsFilter narrows an archived-readings query. Zero-valued fields are
// ignored.
type ReadingsFilter struct {
	RegisterID uint
	TestRunID  uint
	From       time.Time
	To         time.Time
	MinValue   *float64
	MaxValue   *float64
	Limit      int
}

// Store is the persistence port for the engine. Implementations must be safe
// for concurrent use.
type Store interface {
	// Devices and registers
	ActiveDevices(ctx context.Context) ([]domain.Device, error)
	RegisterByID(ctx context.Context, id uint) (*domain.Register, error)
	UpdateDeviceStatus(ctx context.Context, deviceID uint, status domain.DeviceStatus) error
	TouchDeviceLastSeen(ctx context.Context, deviceID uint, seen time.Time) error

	// Enum metadata
	EnumLabel(registerID uint, raw int64) (string, bool)

	// Archived readings
	CreateReading(ctx context.Context, r *domain.Reading) error
	Readings(ctx context.Context, f ReadingsFilter) ([]domain.Reading, error)

	// Alarm rules and episodes
	ActiveAlarmRules(ctx context.Context, registerID uint) ([]domain.AlarmRule, error)
	OpenEpisode(ctx context.Context, ruleID uint) (*domain.AlarmEpisode, error)
	EpisodeByID(ctx context.Context, id uint) (*domain.AlarmEpisode, error)
	CreateEpisode(ctx context.Context, ep *domain.AlarmEpisode) error
	UpdateEpisode(ctx context.Context, ep *domain.AlarmEpisode) error

	// Register cascade
	ActiveMappingsFrom(ctx context.Context, sourceRegisterID uint) ([]domain.RegisterMapping, error)

	// Time-of-day schedule
	DueScheduledTasks(ctx context.Context, hour, minute int) ([]domain.ScheduledTask, error)

	// Test sessions
	ActiveTestRun(ctx context.Context) (*domain.TestRun, error)
	TestRunByID(ctx context.Context, id uint) (*domain.TestRun, error)
	CreateTestRun(ctx context.Context, run *domain.TestRun) error
	SaveTestRun(ctx context.Context, run *domain.TestRun) error
	AppendTestEvent(ctx context.Context, ev *domain.TestEventLog) error
	EventLogsForRun(ctx context.Context, runID uint) ([]domain.TestEventLog, error)

	Ping(ctx context.Context) error
	Close() error
}
