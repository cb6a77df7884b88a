package service

import (
	"context"
	"sync"
	"time"

	"github.com/nexus-edge/bench-engine/internal/domain"
	"github.com/nexus-edge/bench-engine/internal/store"
)

// mockStore implements store.Store with overridable behavior per method.
// Unset methods return zero values.
type mockStore struct {
	activeDevicesFunc      func(ctx context.Context) ([]domain.Device, error)
	registerByIDFunc       func(ctx context.Context, id uint) (*domain.Register, error)
	updateDeviceStatusFunc func(ctx context.Context, deviceID uint, status domain.DeviceStatus) error
	touchLastSeenFunc      func(ctx context.Context, deviceID uint, seen time.Time) error
	enumLabelFunc          func(registerID uint, raw int64) (string, bool)
	createReadingFunc      func(ctx context.Context, r *domain.Reading) error
	readingsFunc           func(ctx context.Context, f store.ReadingsFilter) ([]domain.Reading, error)
	activeAlarmRulesFunc   func(ctx context.Context, registerID uint) ([]domain.AlarmRule, error)
	openEpisodeFunc        func(ctx context.Context, ruleID uint) (*domain.AlarmEpisode, error)
	episodeByIDFunc        func(ctx context.Context, id uint) (*domain.AlarmEpisode, error)
	createEpisodeFunc      func(ctx context.Context, ep *domain.AlarmEpisode) error
	updateEpisodeFunc      func(ctx context.Context, ep *domain.AlarmEpisode) error
	activeMappingsFunc     func(ctx context.Context, sourceRegisterID uint) ([]domain.RegisterMapping, error)
	dueTasksFunc           func(ctx context.Context, hour, minute int) ([]domain.ScheduledTask, error)
	activeTestRunFunc      func(ctx context.Context) (*domain.TestRun, error)
	testRunByIDFunc        func(ctx context.Context, id uint) (*domain.TestRun, error)
	createTestRunFunc      func(ctx context.Context, run *domain.TestRun) error
	saveTestRunFunc        func(ctx context.Context, run *domain.TestRun) error
	appendTestEventFunc    func(ctx context.Context, ev *domain.TestEventLog) error
	eventLogsForRunFunc    func(ctx context.Context, runID uint) ([]domain.TestEventLog, error)
}

func (m *mockStore) ActiveDevices(ctx context.Context) ([]domain.Device, error) {
	if m.activeDevicesFunc != nil {
		return m.activeDevicesFunc(ctx)
	}
	return nil, nil
}

func (m *mockStore) RegisterByID(ctx context.Context, id uint) (*domain.Register, error) {
	if m.registerByIDFunc != nil {
		return m.registerByIDFunc(ctx, id)
	}
	return nil, domain.ErrRegisterNotFound
}

func (m *mockStore) UpdateDeviceStatus(ctx context.Context, deviceID uint, status domain.DeviceStatus) error {
	if m.updateDeviceStatusFunc != nil {
		return m.updateDeviceStatusFunc(ctx, deviceID, status)
	}
	return nil
}

func (m *mockStore) TouchDeviceLastSeen(ctx context.Context, deviceID uint, seen time.Time) error {
	if m.touchLastSeenFunc != nil {
		return m.touchLastSeenFunc(ctx, deviceID, seen)
	}
	return nil
}

func (m *mockStore) EnumLabel(registerID uint, raw int64) (string, bool) {
	if m.enumLabelFunc != nil {
		return m.enumLabelFunc(registerID, raw)
	}
	return "", false
}

func (m *mockStore) CreateReading(ctx context.Context, r *domain.Reading) error {
	if m.createReadingFunc != nil {
		return m.createReadingFunc(ctx, r)
	}
	return nil
}

func (m *mockStore) Readings(ctx context.Context, f store.ReadingsFilter) ([]domain.Reading, error) {
	if m.readingsFunc != nil {
		return m.readingsFunc(ctx, f)
	}
	return nil, nil
}

func (m *mockStore) ActiveAlarmRules(ctx context.Context, registerID uint) ([]domain.AlarmRule, error) {
	if m.activeAlarmRulesFunc != nil {
		return m.activeAlarmRulesFunc(ctx, registerID)
	}
	return nil, nil
}

func (m *mockStore) OpenEpisode(ctx context.Context, ruleID uint) (*domain.AlarmEpisode, error) {
	if m.openEpisodeFunc != nil {
		return m.openEpisodeFunc(ctx, ruleID)
	}
	return nil, nil
}

func (m *mockStore) EpisodeByID(ctx context.Context, id uint) (*domain.AlarmEpisode, error) {
	if m.episodeByIDFunc != nil {
		return m.episodeByIDFunc(ctx, id)
	}
	return nil, domain.ErrEpisodeNotFound
}

func (m *mockStore) CreateEpisode(ctx context.Context, ep *domain.AlarmEpisode) error {
	if m.createEpisodeFunc != nil {
		return m.createEpisodeFunc(ctx, ep)
	}
	return nil
}

func (m *mockStore) UpdateEpisode(ctx context.Context, ep *domain.AlarmEpisode) error {
	if m.updateEpisodeFunc != nil {
		return m.updateEpisodeFunc(ctx, ep)
	}
	return nil
}

func (m *mockStore) ActiveMappingsFrom(ctx context.Context, sourceRegisterID uint) ([]domain.RegisterMapping, error) {
	if m.activeMappingsFunc != nil {
		return m.activeMappingsFunc(ctx, sourceRegisterID)
	}
	return nil, nil
}

func (m *mockStore) DueScheduledTasks(ctx context.Context, hour, minute int) ([]domain.ScheduledTask, error) {
	if m.dueTasksFunc != nil {
		return m.dueTasksFunc(ctx, hour, minute)
	}
	return nil, nil
}

func (m *mockStore) ActiveTestRun(ctx context.Context) (*domain.TestRun, error) {
	if m.activeTestRunFunc != nil {
		return m.activeTestRunFunc(ctx)
	}
	return nil, nil
}

func (m *mockStore) TestRunByID(ctx context.Context, id uint) (*domain.TestRun, error) {
	if m.testRunByIDFunc != nil {
		return m.testRunByIDFunc(ctx, id)
	}
	return nil, domain.ErrSessionNotFound
}

func (m *mockStore) CreateTestRun(ctx context.Context, run *domain.TestRun) error {
	if m.createTestRunFunc != nil {
		return m.createTestRunFunc(ctx, run)
	}
	return nil
}

func (m *mockStore) SaveTestRun(ctx context.Context, run *domain.TestRun) error {
	if m.saveTestRunFunc != nil {
		return m.saveTestRunFunc(ctx, run)
	}
	return nil
}

func (m *mockStore) AppendTestEvent(ctx context.Context, ev *domain.TestEventLog) error {
	if m.appendTestEventFunc != nil {
		return m.appendTestEventFunc(ctx, ev)
	}
	return nil
}

func (m *mockStore) EventLogsForRun(ctx context.Context, runID uint) ([]domain.TestEventLog, error) {
	if m.eventLogsForRunFunc != nil {
		return m.eventLogsForRunFunc(ctx, runID)
	}
	return nil, nil
}

func (m *mockStore) Ping(ctx context.Context) error { return nil }
func (m *mockStore) Close() error                   { return nil }

// mockPublisher records published events.
type mockPublisher struct {
	mu       sync.Mutex
	liveData []domain.LiveDataEvent
	statuses []domain.DeviceStatusEvent
	alarms   []domain.AlarmUpdateEvent

	publishLiveDataErr error
}

func (m *mockPublisher) PublishLiveData(ev domain.LiveDataEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishLiveDataErr != nil {
		return m.publishLiveDataErr
	}
	m.liveData = append(m.liveData, ev)
	return nil
}

func (m *mockPublisher) PublishDeviceStatus(ev domain.DeviceStatusEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, ev)
	return nil
}

func (m *mockPublisher) PublishAlarm(ev domain.AlarmUpdateEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alarms = append(m.alarms, ev)
	return nil
}

type enqueuedWrite struct {
	registerID uint
	value      bool
}

// mockWriter records enqueued write requests.
type mockWriter struct {
	mu     sync.Mutex
	writes []enqueuedWrite
	err    error
}

func (m *mockWriter) Enqueue(registerID uint, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.writes = append(m.writes, enqueuedWrite{registerID: registerID, value: value})
	return nil
}

// mockConn implements domain.Conn with overridable reads.
type mockConn struct {
	readHoldingFunc  func(address, quantity uint16) ([]uint16, error)
	readInputFunc    func(address, quantity uint16) ([]uint16, error)
	readCoilsFunc    func(address, quantity uint16) ([]bool, error)
	readDiscreteFunc func(address, quantity uint16) ([]bool, error)
	writeCoilFunc    func(address uint16, value bool) error
	closed           bool
}

func (c *mockConn) ReadHoldingRegisters(address, quantity uint16) ([]uint16, error) {
	if c.readHoldingFunc != nil {
		return c.readHoldingFunc(address, quantity)
	}
	return make([]uint16, quantity), nil
}

func (c *mockConn) ReadInputRegisters(address, quantity uint16) ([]uint16, error) {
	if c.readInputFunc != nil {
		return c.readInputFunc(address, quantity)
	}
	return make([]uint16, quantity), nil
}

func (c *mockConn) ReadCoils(address, quantity uint16) ([]bool, error) {
	if c.readCoilsFunc != nil {
		return c.readCoilsFunc(address, quantity)
	}
	return make([]bool, quantity), nil
}

func (c *mockConn) ReadDiscreteInputs(address, quantity uint16) ([]bool, error) {
	if c.readDiscreteFunc != nil {
		return c.readDiscreteFunc(address, quantity)
	}
	return make([]bool, quantity), nil
}

func (c *mockConn) WriteCoil(address uint16, value bool) error {
	if c.writeCoilFunc != nil {
		return c.writeCoilFunc(address, value)
	}
	return nil
}

func (c *mockConn) Close() error {
	c.closed = true
	return nil
}

// mockDialer implements domain.Dialer.
type mockDialer struct {
	dialFunc func(ctx context.Context, addr string, unitID byte, timeout time.Duration) (domain.Conn, error)
}

func (d *mockDialer) Dial(ctx context.Context, addr string, unitID byte, timeout time.Duration) (domain.Conn, error) {
	if d.dialFunc != nil {
		return d.dialFunc(ctx, addr, unitID, timeout)
	}
	return &mockConn{}, nil
}
