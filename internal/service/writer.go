// Package service implements the engine's core behaviors: the poll cycle,
// alarm evaluation, the register cascade, the time-of-day scheduler, the
// coil write executor and the test-session lifecycle.
package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/bench-engine/internal/domain"
	"github.com/nexus-edge/bench-engine/internal/metrics"
	"github.com/nexus-edge/bench-engine/internal/store"
)

// WriteRequester accepts asynchronous coil write requests. The cascade
// engine, the scheduler and the session manager all feed into it.
type WriteRequester interface {
	Enqueue(registerID uint, value bool) error
}

// WriterConfig holds configuration for the coil write executor.
type WriterConfig struct {
	QueueSize    int
	Workers      int
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// WriterStats tracks write executor counters.
type WriterStats struct {
	Enqueued  atomic.Uint64
	Rejected  atomic.Uint64
	Succeeded atomic.Uint64
	Failed    atomic.Uint64
}

type writeRequest struct {
	id         string
	registerID uint
	value      bool
	enqueuedAt time.Time
}

// CoilWriter executes coil writes against field devices. Asynchronous
// requests go through a bounded queue drained by a fixed worker pool, so a
// burst of automation-driven writes can never block its producers.
type CoilWriter struct {
	config    WriterConfig
	store     store.Store
	dialer    domain.Dialer
	publisher domain.EventPublisher
	logger    zerolog.Logger
	metrics   *metrics.Registry
	queue     chan writeRequest
	started   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stats     *WriterStats
}

// NewCoilWriter creates a new write executor.
func NewCoilWriter(
	config WriterConfig,
	st store.Store,
	dialer domain.Dialer,
	publisher domain.EventPublisher,
	logger zerolog.Logger,
	metricsReg *metrics.Registry,
) *CoilWriter {
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	return &CoilWriter{
		config:    config,
		store:     st,
		dialer:    dialer,
		publisher: publisher,
		logger:    logger.With().Str("component", "coil-writer").Logger(),
		metrics:   metricsReg,
		queue:     make(chan writeRequest, config.QueueSize),
		stats:     &WriterStats{},
	}
}

// Start launches the worker pool.
func (w *CoilWriter) Start(ctx context.Context) error {
	if w.started.Load() {
		return nil
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.started.Store(true)

	for i := 0; i < w.config.Workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}

	w.logger.Info().
		Int("workers", w.config.Workers).
		Int("queue_size", w.config.QueueSize).
		Msg("Starting write executor")
	return nil
}

// Stop cancels the workers and waits for them to exit. Requests still
// sitting in the queue are dropped.
func (w *CoilWriter) Stop() {
	if !w.started.Load() {
		return
	}
	w.cancel()
	w.wg.Wait()
	w.started.Store(false)
	w.logger.Info().Msg("Write executor stopped")
}

// Enqueue queues an asynchronous write. A full queue rejects the request
// with ErrWriteQueueFull instead of blocking the caller.
func (w *CoilWriter) Enqueue(registerID uint, value bool) error {
	req := writeRequest{
		id:         uuid.NewString(),
		registerID: registerID,
		value:      value,
		enqueuedAt: time.Now(),
	}

	select {
	case w.queue <- req:
		w.stats.Enqueued.Add(1)
		w.logger.Debug().
			Str("request_id", req.id).
			Uint("register_id", registerID).
			Bool("value", value).
			Msg("Write request enqueued")
		return nil
	default:
		w.stats.Rejected.Add(1)
		if w.metrics != nil {
			w.metrics.RecordWriteRejected()
		}
		w.logger.Warn().
			Uint("register_id", registerID).
			Msg("Write queue full, request rejected")
		return domain.ErrWriteQueueFull
	}
}

// Write executes a coil write synchronously. Operator-initiated writes use
// this path so the caller sees the device's answer.
func (w *CoilWriter) Write(ctx context.Context, registerID uint, value bool) error {
	return w.execute(ctx, writeRequest{
		id:         uuid.NewString(),
		registerID: registerID,
		value:      value,
		enqueuedAt: time.Now(),
	})
}

func (w *CoilWriter) worker() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case req := <-w.queue:
			if err := w.execute(w.ctx, req); err != nil {
				w.logger.Error().
					Err(err).
					Str("request_id", req.id).
					Uint("register_id", req.registerID).
					Msg("Queued write failed")
			}
		}
	}
}

func (w *CoilWriter) execute(ctx context.Context, req writeRequest) error {
	reg, err := w.store.RegisterByID(ctx, req.registerID)
	if err != nil {
		w.stats.Failed.Add(1)
		return err
	}
	if !reg.IsWritableCoil() {
		w.stats.Failed.Add(1)
		return fmt.Errorf("%w: register %d is not a writable coil", domain.ErrNotWritable, reg.ID)
	}
	if reg.Device == nil {
		w.stats.Failed.Add(1)
		return fmt.Errorf("%w: register %d has no device", domain.ErrDeviceNotFound, reg.ID)
	}

	start := time.Now()

	conn, err := w.dialer.Dial(ctx, reg.Device.Addr(), reg.Device.UnitID, w.config.DialTimeout)
	if err != nil {
		w.recordResult(false)
		return fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
	}
	defer conn.Close()

	if err := conn.WriteCoil(reg.PDUAddress(), req.value); err != nil {
		w.recordResult(false)
		return fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
	}

	w.recordResult(true)

	// Optimistic live update: subscribers see the new state immediately
	// instead of waiting for the next poll cycle to confirm it. The payload
	// is the written boolean cast to 0/1, bypassing invert and scaling; the
	// next poll publishes the decoded view.
	raw := 0.0
	if req.value {
		raw = 1.0
	}
	processed := domain.Processed{Value: domain.Numeric(raw)}
	if err := w.publisher.PublishLiveData(domain.NewLiveDataEvent(reg.ID, processed, time.Now())); err != nil {
		w.logger.Warn().Err(err).Uint("register_id", reg.ID).Msg("Failed to publish optimistic update")
	}

	w.logger.Info().
		Str("request_id", req.id).
		Uint("register_id", reg.ID).
		Bool("value", req.value).
		Dur("queue_wait", start.Sub(req.enqueuedAt)).
		Dur("duration", time.Since(start)).
		Msg("Coil write completed")
	return nil
}

func (w *CoilWriter) recordResult(success bool) {
	if success {
		w.stats.Succeeded.Add(1)
	} else {
		w.stats.Failed.Add(1)
	}
	if w.metrics != nil {
		w.metrics.RecordWrite(success)
	}
}

// Stats returns a snapshot of the executor counters.
func (w *CoilWriter) Stats() (enqueued, rejected, succeeded, failed uint64) {
	return w.stats.Enqueued.Load(),
		w.stats.Rejected.Load(),
		w.stats.Succeeded.Load(),
		w.stats.Failed.Load()
}
