package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nexus-edge/bench-engine/internal/store"
)

// ValueCache remembers the last propagated value per source register so the
// cascade fires on changes only. The cache starts empty on boot; the first
// reading of every source register always propagates.
type ValueCache interface {
	// Get returns the last propagated value and whether one exists.
	Get(registerID uint) (float64, bool)
	// Set records the last propagated value.
	Set(registerID uint, value float64)
}

// MemoryValueCache is the default in-process ValueCache.
type MemoryValueCache struct {
	mu     sync.RWMutex
	values map[uint]float64
}

// NewMemoryValueCache creates an empty cache.
func NewMemoryValueCache() *MemoryValueCache {
	return &MemoryValueCache{values: make(map[uint]float64)}
}

func (c *MemoryValueCache) Get(registerID uint) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[registerID]
	return v, ok
}

func (c *MemoryValueCache) Set(registerID uint, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[registerID] = value
}

// CascadeEngine propagates source register changes to destination coils
// (master/slave wiring between devices). The destination receives the
// source value's truthiness: zero writes false, anything else writes true.
type CascadeEngine struct {
	store  store.Store
	writer WriteRequester
	cache  ValueCache
	logger zerolog.Logger
}

// NewCascadeEngine creates a new cascade engine.
func NewCascadeEngine(st store.Store, writer WriteRequester, cache ValueCache, logger zerolog.Logger) *CascadeEngine {
	if cache == nil {
		cache = NewMemoryValueCache()
	}
	return &CascadeEngine{
		store:  st,
		writer: writer,
		cache:  cache,
		logger: logger.With().Str("component", "cascade-engine").Logger(),
	}
}

// OnValue feeds one processed numeric reading into the cascade. Repeats of
// the last propagated value are dropped; on change, a write of the value's
// truthiness is enqueued for every active mapping sourced from the register.
func (c *CascadeEngine) OnValue(ctx context.Context, registerID uint, value float64) {
	if last, ok := c.cache.Get(registerID); ok && last == value {
		return
	}

	mappings, err := c.store.ActiveMappingsFrom(ctx, registerID)
	if err != nil {
		c.logger.Error().Err(err).Uint("register_id", registerID).Msg("Failed to load register mappings")
		return
	}

	// Record even when no mapping exists, so adding one later starts from
	// the change-detection baseline rather than replaying an old value.
	c.cache.Set(registerID, value)

	if len(mappings) == 0 {
		return
	}

	target := value != 0

	for _, m := range mappings {
		if m.DestinationRegister != nil && !m.DestinationRegister.IsWritableCoil() {
			c.logger.Warn().
				Str("mapping", m.Name).
				Uint("destination_id", m.DestinationRegisterID).
				Msg("Cascade destination is not a writable coil, skipping")
			continue
		}
		if err := c.writer.Enqueue(m.DestinationRegisterID, target); err != nil {
			c.logger.Error().
				Err(err).
				Str("mapping", m.Name).
				Uint("destination_id", m.DestinationRegisterID).
				Msg("Failed to enqueue cascade write")
			continue
		}
		c.logger.Debug().
			Str("mapping", m.Name).
			Uint("source_id", registerID).
			Uint("destination_id", m.DestinationRegisterID).
			Bool("value", target).
			Msg("Cascade write propagated")
	}
}
