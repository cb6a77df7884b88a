package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/nexus-edge/bench-engine/internal/codec"
	"github.com/nexus-edge/bench-engine/internal/domain"
	"github.com/nexus-edge/bench-engine/internal/metrics"
	"github.com/nexus-edge/bench-engine/internal/store"
)

// AlarmSink receives processed numeric readings for rule evaluation.
type AlarmSink interface {
	Evaluate(ctx context.Context, registerID uint, value float64)
}

// CascadeSink receives processed numeric readings for change propagation.
type CascadeSink interface {
	OnValue(ctx context.Context, registerID uint, value float64)
}

// PollConfig holds configuration for the poll cycle.
type PollConfig struct {
	Interval    time.Duration
	DialTimeout time.Duration

	// PacingDelay is inserted between consecutive devices so serial-bridge
	// gateways behind the TCP endpoints get time to settle.
	PacingDelay time.Duration

	// BreakerTimeout is how long an open per-device circuit stays open
	// before a probe is allowed.
	BreakerTimeout time.Duration

	// BreakerFailures is the consecutive connect-failure count that opens
	// a device's circuit.
	BreakerFailures uint32
}

// PollStats tracks poll cycle counters.
type PollStats struct {
	Cycles          atomic.Uint64
	CyclesSkipped   atomic.Uint64
	DevicesOK       atomic.Uint64
	DevicesFailed   atomic.Uint64
	RegistersRead   atomic.Uint64
	RegistersFailed atomic.Uint64
	ReadingsStored  atomic.Uint64
}

// PollService runs the acquisition cycle: it visits every active device in
// sequence, reads and decodes each configured register, archives numeric
// values while a test session is active, publishes live updates and feeds
// the alarm and cascade engines.
type PollService struct {
	config    PollConfig
	store     store.Store
	dialer    domain.Dialer
	publisher domain.EventPublisher
	alarms    AlarmSink
	cascade   CascadeSink
	logger    zerolog.Logger
	metrics   *metrics.Registry

	polling  atomic.Bool
	breakers map[uint]*gobreaker.CircuitBreaker
	mu       sync.Mutex
	stats    *PollStats
	now      func() time.Time
}

// NewPollService creates a new poll service.
func NewPollService(
	config PollConfig,
	st store.Store,
	dialer domain.Dialer,
	publisher domain.EventPublisher,
	alarms AlarmSink,
	cascade CascadeSink,
	logger zerolog.Logger,
	metricsReg *metrics.Registry,
) *PollService {
	if config.Interval <= 0 {
		config.Interval = 3 * time.Second
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.PacingDelay < 0 {
		config.PacingDelay = 0
	}
	if config.BreakerTimeout <= 0 {
		config.BreakerTimeout = 30 * time.Second
	}
	if config.BreakerFailures == 0 {
		config.BreakerFailures = 3
	}

	return &PollService{
		config:    config,
		store:     st,
		dialer:    dialer,
		publisher: publisher,
		alarms:    alarms,
		cascade:   cascade,
		logger:    logger.With().Str("component", "poll-service").Logger(),
		metrics:   metricsReg,
		breakers:  make(map[uint]*gobreaker.CircuitBreaker),
		stats:     &PollStats{},
		now:       time.Now,
	}
}

// Run drives PollOnce on the configured interval until the context is
// cancelled. Overlapping cycles are skipped, never queued.
func (s *PollService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.config.Interval).Msg("Poll service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Poll service stopped")
			return
		case <-ticker.C:
			if err := s.PollOnce(ctx); err != nil && !errors.Is(err, domain.ErrPollInProgress) {
				s.logger.Error().Err(err).Msg("Poll cycle failed")
			}
		}
	}
}

// PollOnce executes one full acquisition cycle. A cycle still running when
// the next is requested causes ErrPollInProgress; the caller drops the tick.
func (s *PollService) PollOnce(ctx context.Context) error {
	if !s.polling.CompareAndSwap(false, true) {
		s.stats.CyclesSkipped.Add(1)
		s.logger.Debug().Msg("Poll cycle skipped: previous cycle still running")
		return domain.ErrPollInProgress
	}
	defer s.polling.Store(false)

	start := s.now()
	s.stats.Cycles.Add(1)

	devices, err := s.store.ActiveDevices(ctx)
	if err != nil {
		return err
	}

	// Archival is gated once per cycle: every reading of the cycle belongs
	// to the same run, even if the run is paused mid-cycle.
	run, err := s.store.ActiveTestRun(ctx)
	if err != nil {
		return err
	}

	for i := range devices {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.pollDevice(ctx, &devices[i], run)

		if s.config.PacingDelay > 0 && i < len(devices)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.config.PacingDelay):
			}
		}
	}

	duration := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordPollCycle(duration.Seconds())
	}
	s.logger.Debug().
		Int("devices", len(devices)).
		Dur("duration", duration).
		Msg("Poll cycle completed")
	return nil
}

func (s *PollService) pollDevice(ctx context.Context, dev *domain.Device, run *domain.TestRun) {
	connAny, err := s.breaker(dev).Execute(func() (interface{}, error) {
		return s.dialer.Dial(ctx, dev.Addr(), dev.UnitID, s.config.DialTimeout)
	})
	if err != nil {
		s.stats.DevicesFailed.Add(1)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			s.logger.Debug().Uint("device_id", dev.ID).Msg("Device skipped: circuit breaker open")
		} else {
			s.logger.Warn().Err(err).Uint("device_id", dev.ID).Str("addr", dev.Addr()).Msg("Device connection failed")
		}
		if s.metrics != nil {
			s.metrics.RecordDevicePoll(dev.Name, false)
		}
		s.setDeviceStatus(ctx, dev, domain.DeviceStatusOffline)
		return
	}
	conn := connAny.(domain.Conn)
	defer conn.Close()

	s.setDeviceStatus(ctx, dev, domain.DeviceStatusOnline)
	if err := s.store.TouchDeviceLastSeen(ctx, dev.ID, s.now()); err != nil {
		s.logger.Warn().Err(err).Uint("device_id", dev.ID).Msg("Failed to update last seen")
	}

	for i := range dev.Registers {
		reg := &dev.Registers[i]
		if !s.pollRegister(ctx, conn, reg, run) {
			// Infrastructure failure past the read stage: stop the device
			// block, the remaining registers would hit the same backend.
			s.setDeviceStatus(ctx, dev, domain.DeviceStatusOffline)
			s.stats.DevicesFailed.Add(1)
			if s.metrics != nil {
				s.metrics.RecordDevicePoll(dev.Name, false)
			}
			return
		}
	}

	s.stats.DevicesOK.Add(1)
	if s.metrics != nil {
		s.metrics.RecordDevicePoll(dev.Name, true)
	}
}

// pollRegister reads, decodes and dispatches one register. A read or
// decode failure skips just this register and returns true; a false return
// means an infrastructure failure that aborts the whole device block.
func (s *PollService) pollRegister(ctx context.Context, conn domain.Conn, reg *domain.Register, run *domain.TestRun) bool {
	value, err := s.readRegister(conn, reg)
	if err != nil {
		s.stats.RegistersFailed.Add(1)
		if s.metrics != nil {
			s.metrics.RecordRegisterRead(false)
		}
		s.logger.Warn().
			Err(err).
			Uint("register_id", reg.ID).
			Str("register", reg.Name).
			Msg("Register read failed, skipping")
		return true
	}

	s.stats.RegistersRead.Add(1)
	if s.metrics != nil {
		s.metrics.RecordRegisterRead(true)
	}

	processed := codec.Process(reg, value, s.store)
	ts := s.now()

	if processed.Value.IsNumeric() {
		if run != nil {
			reading := &domain.Reading{
				RegisterID: reg.ID,
				Value:      processed.Value.Num,
				Timestamp:  ts,
				TestRunID:  run.ID,
			}
			if err := s.store.CreateReading(ctx, reading); err != nil {
				s.logger.Error().Err(err).Uint("register_id", reg.ID).Msg("Failed to archive reading")
				return false
			}
			s.stats.ReadingsStored.Add(1)
			if s.metrics != nil {
				s.metrics.RecordReadingStored()
			}
		}

		if err := s.publisher.PublishLiveData(domain.NewLiveDataEvent(reg.ID, processed, ts)); err != nil {
			s.logger.Error().Err(err).Uint("register_id", reg.ID).Msg("Failed to publish live data")
			return false
		}

		s.alarms.Evaluate(ctx, reg.ID, processed.Value.Num)
		s.cascade.OnValue(ctx, reg.ID, processed.Value.Num)
		return true
	}

	// Text values are display-only: forwarded live, never archived,
	// alarmed or cascaded.
	if err := s.publisher.PublishLiveData(domain.NewLiveDataEvent(reg.ID, processed, ts)); err != nil {
		s.logger.Error().Err(err).Uint("register_id", reg.ID).Msg("Failed to publish live data")
		return false
	}
	return true
}

func (s *PollService) readRegister(conn domain.Conn, reg *domain.Register) (domain.Value, error) {
	if reg.IsBinary() {
		bits, err := domain.ReadBits(conn, reg)
		if err != nil {
			return domain.Value{}, err
		}
		return codec.DecodeBits(reg, bits)
	}

	words, err := domain.ReadWords(conn, reg)
	if err != nil {
		return domain.Value{}, err
	}
	return codec.Decode(reg, words)
}

// setDeviceStatus persists and publishes status transitions. Repeats of the
// current status are silent.
func (s *PollService) setDeviceStatus(ctx context.Context, dev *domain.Device, status domain.DeviceStatus) {
	if dev.Status == status {
		return
	}
	if err := s.store.UpdateDeviceStatus(ctx, dev.ID, status); err != nil {
		s.logger.Error().Err(err).Uint("device_id", dev.ID).Msg("Failed to update device status")
		return
	}
	dev.Status = status

	if s.metrics != nil {
		s.metrics.SetDeviceOnline(dev.Name, status == domain.DeviceStatusOnline)
	}
	if err := s.publisher.PublishDeviceStatus(domain.DeviceStatusEvent{
		DeviceID: dev.ID,
		Status:   status,
	}); err != nil {
		s.logger.Warn().Err(err).Uint("device_id", dev.ID).Msg("Failed to publish device status")
	}

	s.logger.Info().
		Uint("device_id", dev.ID).
		Str("device", dev.Name).
		Str("status", string(status)).
		Msg("Device status changed")
}

func (s *PollService) breaker(dev *domain.Device) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	cb, ok := s.breakers[dev.ID]
	if !ok {
		failures := s.config.BreakerFailures
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    dev.Name,
			Timeout: s.config.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
		})
		s.breakers[dev.ID] = cb
	}
	return cb
}

// PollStatsSnapshot holds a point-in-time copy of the poll counters.
type PollStatsSnapshot struct {
	Cycles          uint64
	CyclesSkipped   uint64
	DevicesOK       uint64
	DevicesFailed   uint64
	RegistersRead   uint64
	RegistersFailed uint64
	ReadingsStored  uint64
}

// Stats returns a snapshot of the poll counters.
func (s *PollService) Stats() PollStatsSnapshot {
	return PollStatsSnapshot{
		Cycles:          s.stats.Cycles.Load(),
		CyclesSkipped:   s.stats.CyclesSkipped.Load(),
		DevicesOK:       s.stats.DevicesOK.Load(),
		DevicesFailed:   s.stats.DevicesFailed.Load(),
		RegistersRead:   s.stats.RegistersRead.Load(),
		RegistersFailed: s.stats.RegistersFailed.Load(),
		ReadingsStored:  s.stats.ReadingsStored.Load(),
	}
}
