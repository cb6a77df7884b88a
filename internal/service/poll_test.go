package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-edge/bench-engine/internal/domain"
)

type recordedValue struct {
	registerID uint
	value      float64
}

type mockAlarmSink struct {
	mu    sync.Mutex
	calls []recordedValue
}

func (m *mockAlarmSink) Evaluate(_ context.Context, registerID uint, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, recordedValue{registerID, value})
}

type mockCascadeSink struct {
	mu    sync.Mutex
	calls []recordedValue
}

func (m *mockCascadeSink) OnValue(_ context.Context, registerID uint, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, recordedValue{registerID, value})
}

func pollFixtureDevice() domain.Device {
	return domain.Device{
		ID:     1,
		Name:   "pump-1",
		Host:   "10.0.0.5",
		Port:   502,
		UnitID: 1,
		Active: true,
		Status: domain.DeviceStatusOffline,
		Registers: []domain.Register{
			{
				ID:            7,
				DeviceID:      1,
				Name:          "temperature",
				Address:       40001,
				Kind:          domain.RegisterKindHolding,
				DataType:      domain.DataTypeUInt16,
				ByteOrder:     domain.ByteOrderBig,
				ScalingFactor: 0.1,
			},
		},
	}
}

func newPollFixture(ms *mockStore, dialer *mockDialer) (*PollService, *mockPublisher, *mockAlarmSink, *mockCascadeSink) {
	pub := &mockPublisher{}
	alarms := &mockAlarmSink{}
	cascade := &mockCascadeSink{}
	svc := NewPollService(PollConfig{}, ms, dialer, pub, alarms, cascade, zerolog.Nop(), nil)
	return svc, pub, alarms, cascade
}

func TestPollCycleArchivesPublishesAndDispatches(t *testing.T) {
	dev := pollFixtureDevice()
	var stored []domain.Reading
	ms := &mockStore{
		activeDevicesFunc: func(_ context.Context) ([]domain.Device, error) {
			return []domain.Device{dev}, nil
		},
		activeTestRunFunc: func(_ context.Context) (*domain.TestRun, error) {
			return &domain.TestRun{ID: 3, Status: domain.SessionRunning}, nil
		},
		createReadingFunc: func(_ context.Context, r *domain.Reading) error {
			stored = append(stored, *r)
			return nil
		},
	}
	dialer := &mockDialer{
		dialFunc: func(context.Context, string, byte, time.Duration) (domain.Conn, error) {
			return &mockConn{readHoldingFunc: func(address, quantity uint16) ([]uint16, error) {
				assert.Equal(t, uint16(0), address)
				assert.Equal(t, uint16(1), quantity)
				return []uint16{123}, nil
			}}, nil
		},
	}
	svc, pub, alarms, cascade := newPollFixture(ms, dialer)

	require.NoError(t, svc.PollOnce(context.Background()))

	require.Len(t, stored, 1)
	assert.Equal(t, uint(7), stored[0].RegisterID)
	assert.Equal(t, uint(3), stored[0].TestRunID)
	assert.InDelta(t, 12.3, stored[0].Value, 1e-9)

	require.Len(t, pub.liveData, 1)
	assert.InDelta(t, 12.3, pub.liveData[0].Value, 1e-9)

	require.Len(t, alarms.calls, 1)
	assert.InDelta(t, 12.3, alarms.calls[0].value, 1e-9)
	require.Len(t, cascade.calls, 1)

	// offline -> online transition published
	require.Len(t, pub.statuses, 1)
	assert.Equal(t, domain.DeviceStatusOnline, pub.statuses[0].Status)
}

func TestPollWithoutActiveSessionSkipsArchival(t *testing.T) {
	dev := pollFixtureDevice()
	created := 0
	ms := &mockStore{
		activeDevicesFunc: func(_ context.Context) ([]domain.Device, error) {
			return []domain.Device{dev}, nil
		},
		createReadingFunc: func(_ context.Context, _ *domain.Reading) error {
			created++
			return nil
		},
	}
	dialer := &mockDialer{
		dialFunc: func(context.Context, string, byte, time.Duration) (domain.Conn, error) {
			return &mockConn{readHoldingFunc: func(_, _ uint16) ([]uint16, error) {
				return []uint16{123}, nil
			}}, nil
		},
	}
	svc, pub, alarms, _ := newPollFixture(ms, dialer)

	require.NoError(t, svc.PollOnce(context.Background()))

	assert.Zero(t, created)
	// live updates and alarms still flow without a session
	assert.Len(t, pub.liveData, 1)
	assert.Len(t, alarms.calls, 1)
}

func TestPollDialFailureMarksDeviceOffline(t *testing.T) {
	dev := pollFixtureDevice()
	dev.Status = domain.DeviceStatusOnline
	var updates []domain.DeviceStatus
	ms := &mockStore{
		activeDevicesFunc: func(_ context.Context) ([]domain.Device, error) {
			return []domain.Device{dev}, nil
		},
		updateDeviceStatusFunc: func(_ context.Context, _ uint, status domain.DeviceStatus) error {
			updates = append(updates, status)
			return nil
		},
	}
	dialer := &mockDialer{
		dialFunc: func(context.Context, string, byte, time.Duration) (domain.Conn, error) {
			return nil, domain.ErrConnectionFailed
		},
	}
	svc, pub, _, _ := newPollFixture(ms, dialer)

	require.NoError(t, svc.PollOnce(context.Background()))

	require.Len(t, updates, 1)
	assert.Equal(t, domain.DeviceStatusOffline, updates[0])
	require.Len(t, pub.statuses, 1)
	assert.Equal(t, domain.DeviceStatusOffline, pub.statuses[0].Status)
}

func TestPollStatusUnchangedStaysSilent(t *testing.T) {
	dev := pollFixtureDevice()
	dev.Status = domain.DeviceStatusOnline
	dev.Registers = nil
	ms := &mockStore{
		activeDevicesFunc: func(_ context.Context) ([]domain.Device, error) {
			return []domain.Device{dev}, nil
		},
	}
	svc, pub, _, _ := newPollFixture(ms, &mockDialer{})

	require.NoError(t, svc.PollOnce(context.Background()))
	require.NoError(t, svc.PollOnce(context.Background()))

	// already online both cycles: no transition events
	assert.Empty(t, pub.statuses)
}

func TestPollReadFailureSkipsRegisterOnly(t *testing.T) {
	dev := pollFixtureDevice()
	dev.Registers = append(dev.Registers, domain.Register{
		ID:            8,
		DeviceID:      1,
		Name:          "pressure",
		Address:       40002,
		Kind:          domain.RegisterKindHolding,
		DataType:      domain.DataTypeUInt16,
		ScalingFactor: 1,
	})
	ms := &mockStore{
		activeDevicesFunc: func(_ context.Context) ([]domain.Device, error) {
			return []domain.Device{dev}, nil
		},
	}
	dialer := &mockDialer{
		dialFunc: func(context.Context, string, byte, time.Duration) (domain.Conn, error) {
			return &mockConn{readHoldingFunc: func(address, _ uint16) ([]uint16, error) {
				if address == 0 {
					return nil, domain.ErrModbusIllegalAddress
				}
				return []uint16{55}, nil
			}}, nil
		},
	}
	svc, pub, _, _ := newPollFixture(ms, dialer)

	require.NoError(t, svc.PollOnce(context.Background()))

	// first register skipped, second still delivered
	require.Len(t, pub.liveData, 1)
	assert.Equal(t, uint(8), pub.liveData[0].RegisterID)
	assert.Equal(t, 55.0, pub.liveData[0].Value)
}

func TestPollPersistFailureAbortsDeviceBlock(t *testing.T) {
	dev := pollFixtureDevice()
	dev.Status = domain.DeviceStatusOnline
	dev.Registers = append(dev.Registers, domain.Register{
		ID: 8, DeviceID: 1, Address: 40002, Kind: domain.RegisterKindHolding,
		DataType: domain.DataTypeUInt16, ScalingFactor: 1,
	})
	reads := 0
	var updates []domain.DeviceStatus
	ms := &mockStore{
		activeDevicesFunc: func(_ context.Context) ([]domain.Device, error) {
			return []domain.Device{dev}, nil
		},
		activeTestRunFunc: func(_ context.Context) (*domain.TestRun, error) {
			return &domain.TestRun{ID: 3, Status: domain.SessionRunning}, nil
		},
		createReadingFunc: func(_ context.Context, _ *domain.Reading) error {
			return assert.AnError
		},
		updateDeviceStatusFunc: func(_ context.Context, _ uint, status domain.DeviceStatus) error {
			updates = append(updates, status)
			return nil
		},
	}
	dialer := &mockDialer{
		dialFunc: func(context.Context, string, byte, time.Duration) (domain.Conn, error) {
			return &mockConn{readHoldingFunc: func(_, _ uint16) ([]uint16, error) {
				reads++
				return []uint16{1}, nil
			}}, nil
		},
	}
	svc, _, _, _ := newPollFixture(ms, dialer)

	require.NoError(t, svc.PollOnce(context.Background()))

	// second register never read, device flagged offline
	assert.Equal(t, 1, reads)
	require.NotEmpty(t, updates)
	assert.Equal(t, domain.DeviceStatusOffline, updates[len(updates)-1])
}

func TestPollStringRegisterIsDisplayOnly(t *testing.T) {
	dev := pollFixtureDevice()
	dev.Registers = []domain.Register{{
		ID:           7,
		DeviceID:     1,
		Name:         "product_code",
		Address:      40010,
		Kind:         domain.RegisterKindHolding,
		DataType:     domain.DataTypeString,
		ByteOrder:    domain.ByteOrderBig,
		StringLength: 2,
	}}
	created := 0
	ms := &mockStore{
		activeDevicesFunc: func(_ context.Context) ([]domain.Device, error) {
			return []domain.Device{dev}, nil
		},
		activeTestRunFunc: func(_ context.Context) (*domain.TestRun, error) {
			return &domain.TestRun{ID: 3, Status: domain.SessionRunning}, nil
		},
		createReadingFunc: func(_ context.Context, _ *domain.Reading) error {
			created++
			return nil
		},
	}
	dialer := &mockDialer{
		dialFunc: func(context.Context, string, byte, time.Duration) (domain.Conn, error) {
			return &mockConn{readHoldingFunc: func(_, _ uint16) ([]uint16, error) {
				return []uint16{0x5055, 0x4D50}, nil // "PUMP"
			}}, nil
		},
	}
	svc, pub, alarms, cascade := newPollFixture(ms, dialer)

	require.NoError(t, svc.PollOnce(context.Background()))

	assert.Zero(t, created)
	assert.Empty(t, alarms.calls)
	assert.Empty(t, cascade.calls)
	require.Len(t, pub.liveData, 1)
	require.NotNil(t, pub.liveData[0].Text)
	assert.Equal(t, "PUMP", *pub.liveData[0].Text)
}

func TestPollOnceRejectsOverlap(t *testing.T) {
	dev := pollFixtureDevice()
	block := make(chan struct{})
	entered := make(chan struct{})
	ms := &mockStore{
		activeDevicesFunc: func(_ context.Context) ([]domain.Device, error) {
			return []domain.Device{dev}, nil
		},
	}
	dialer := &mockDialer{
		dialFunc: func(context.Context, string, byte, time.Duration) (domain.Conn, error) {
			close(entered)
			<-block
			return &mockConn{}, nil
		},
	}
	svc, _, _, _ := newPollFixture(ms, dialer)

	done := make(chan error, 1)
	go func() { done <- svc.PollOnce(context.Background()) }()

	<-entered
	err := svc.PollOnce(context.Background())
	assert.ErrorIs(t, err, domain.ErrPollInProgress)

	close(block)
	require.NoError(t, <-done)

	stats := svc.Stats()
	assert.Equal(t, uint64(1), stats.Cycles)
	assert.Equal(t, uint64(1), stats.CyclesSkipped)
}
