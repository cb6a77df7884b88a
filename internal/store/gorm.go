package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nexus-edge/bench-engine/internal/domain"
)

// GormStore implements Store on a GORM-managed SQLite database.
type GormStore struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// Open opens (or creates) the database at dsn and migrates the schema.
func Open(dsn string, logger zerolog.Logger) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(
		&domain.Device{},
		&domain.Register{},
		&domain.EnumValue{},
		&domain.Reading{},
		&domain.AlarmRule{},
		&domain.AlarmEpisode{},
		&domain.RegisterMapping{},
		&domain.ScheduledTask{},
		&domain.TestRun{},
		&domain.TestEventLog{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &GormStore{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}, nil
}

func (s *GormStore) ActiveDevices(ctx context.Context) ([]domain.Device, error) {
	var devices []domain.Device
	err := s.db.WithContext(ctx).
		Preload("Registers").
		Where("active = ?", true).
		Order("id").
		Find(&devices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active devices: %w", err)
	}
	return devices, nil
}

func (s *GormStore) RegisterByID(ctx context.Context, id uint) (*domain.Register, error) {
	var reg domain.Register
	err := s.db.WithContext(ctx).Preload("Device").First(&reg, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRegisterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load register %d: %w", id, err)
	}
	return &reg, nil
}

func (s *GormStore) UpdateDeviceStatus(ctx context.Context, deviceID uint, status domain.DeviceStatus) error {
	res := s.db.WithContext(ctx).Model(&domain.Device{}).
		Where("id = ?", deviceID).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to update device status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrDeviceNotFound
	}
	return nil
}

func (s *GormStore) TouchDeviceLastSeen(ctx context.Context, deviceID uint, seen time.Time) error {
	err := s.db.WithContext(ctx).Model(&domain.Device{}).
		Where("id = ?", deviceID).
		Update("last_seen", seen).Error
	if err != nil {
		return fmt.Errorf("failed to update device last seen: %w", err)
	}
	return nil
}

// EnumLabel resolves the display label mapped to a raw value. Misses are
// expected for out-of-range raw values and are not errors.
func (s *GormStore) EnumLabel(registerID uint, raw int64) (string, bool) {
	var ev domain.EnumValue
	err := s.db.
		Where("register_id = ? AND raw_value = ?", registerID, raw).
		First(&ev).Error
	if err != nil {
		return "", false
	}
	return ev.Label, true
}

func (s *GormStore) CreateReading(ctx context.Context, r *domain.Reading) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("failed to archive reading: %w", err)
	}
	return nil
}

func (s *GormStore) Readings(ctx context.Context, f ReadingsFilter) ([]domain.Reading, error) {
	q := s.db.WithContext(ctx).Model(&domain.Reading{})
	if f.RegisterID != 0 {
		q = q.Where("register_id = ?", f.RegisterID)
	}
	if f.TestRunID != 0 {
		q = q.Where("test_run_id = ?", f.TestRunID)
	}
	if !f.From.IsZero() {
		q = q.Where("timestamp >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("timestamp <= ?", f.To)
	}
	if f.MinValue != nil {
		q = q.Where("value >= ?", *f.MinValue)
	}
	if f.MaxValue != nil {
		q = q.Where("value <= ?", *f.MaxValue)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var readings []domain.Reading
	if err := q.Order("timestamp DESC").Find(&readings).Error; err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	return readings, nil
}

func (s *GormStore) ActiveAlarmRules(ctx context.Context, registerID uint) ([]domain.AlarmRule, error) {
	var rules []domain.AlarmRule
	err := s.db.WithContext(ctx).
		Where("register_id = ? AND active = ?", registerID, true).
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load alarm rules: %w", err)
	}
	return rules, nil
}

// OpenEpisode returns the rule's current open episode, or nil when the rule
// has no ongoing violation.
func (s *GormStore) OpenEpisode(ctx context.Context, ruleID uint) (*domain.AlarmEpisode, error) {
	var ep domain.AlarmEpisode
	err := s.db.WithContext(ctx).
		Where("rule_id = ? AND end_time IS NULL", ruleID).
		Order("start_time DESC").
		First(&ep).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load open episode: %w", err)
	}
	return &ep, nil
}

func (s *GormStore) EpisodeByID(ctx context.Context, id uint) (*domain.AlarmEpisode, error) {
	var ep domain.AlarmEpisode
	err := s.db.WithContext(ctx).Preload("Rule").First(&ep, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrEpisodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load episode %d: %w", id, err)
	}
	return &ep, nil
}

func (s *GormStore) CreateEpisode(ctx context.Context, ep *domain.AlarmEpisode) error {
	if err := s.db.WithContext(ctx).Create(ep).Error; err != nil {
		return fmt.Errorf("failed to create alarm episode: %w", err)
	}
	return nil
}

func (s *GormStore) UpdateEpisode(ctx context.Context, ep *domain.AlarmEpisode) error {
	if err := s.db.WithContext(ctx).Save(ep).Error; err != nil {
		return fmt.Errorf("failed to update alarm episode: %w", err)
	}
	return nil
}

func (s *GormStore) ActiveMappingsFrom(ctx context.Context, sourceRegisterID uint) ([]domain.RegisterMapping, error) {
	var mappings []domain.RegisterMapping
	err := s.db.WithContext(ctx).
		Preload("DestinationRegister").
		Where("source_register_id = ? AND active = ?", sourceRegisterID, true).
		Find(&mappings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load register mappings: %w", err)
	}
	return mappings, nil
}

func (s *GormStore) DueScheduledTasks(ctx context.Context, hour, minute int) ([]domain.ScheduledTask, error) {
	var tasks []domain.ScheduledTask
	err := s.db.WithContext(ctx).
		Preload("Register").
		Where("hour = ? AND minute = ? AND active = ?", hour, minute, true).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load scheduled tasks: %w", err)
	}
	return tasks, nil
}

// ActiveTestRun returns the single RUNNING or PAUSED run, or nil when no
// session is active.
func (s *GormStore) ActiveTestRun(ctx context.Context) (*domain.TestRun, error) {
	var run domain.TestRun
	err := s.db.WithContext(ctx).
		Where("status IN ?", []domain.SessionStatus{domain.SessionRunning, domain.SessionPaused}).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active test run: %w", err)
	}
	return &run, nil
}

func (s *GormStore) TestRunByID(ctx context.Context, id uint) (*domain.TestRun, error) {
	var run domain.TestRun
	err := s.db.WithContext(ctx).First(&run, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load test run %d: %w", id, err)
	}
	return &run, nil
}

func (s *GormStore) CreateTestRun(ctx context.Context, run *domain.TestRun) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to create test run: %w", err)
	}
	return nil
}

func (s *GormStore) SaveTestRun(ctx context.Context, run *domain.TestRun) error {
	if err := s.db.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("failed to save test run: %w", err)
	}
	return nil
}

func (s *GormStore) AppendTestEvent(ctx context.Context, ev *domain.TestEventLog) error {
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("failed to append test event: %w", err)
	}
	return nil
}

func (s *GormStore) EventLogsForRun(ctx context.Context, runID uint) ([]domain.TestEventLog, error) {
	var logs []domain.TestEventLog
	err := s.db.WithContext(ctx).
		Where("test_run_id = ?", runID).
		Order("timestamp, id").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load event logs: %w", err)
	}
	return logs, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HealthCheck implements the health.Checker interface.
func (s *GormStore) HealthCheck(ctx context.Context) error {
	return s.Ping(ctx)
}
