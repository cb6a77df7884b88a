package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-edge/bench-engine/internal/domain"
)

func coilDest(id uint) *domain.Register {
	return &domain.Register{ID: id, Kind: domain.RegisterKindCoil, Writable: true}
}

func TestCascadePropagatesOnChangeOnly(t *testing.T) {
	ms := &mockStore{
		activeMappingsFunc: func(_ context.Context, src uint) ([]domain.RegisterMapping, error) {
			return []domain.RegisterMapping{
				{Name: "pump-follow", SourceRegisterID: src, DestinationRegisterID: 9, DestinationRegister: coilDest(9)},
			}, nil
		},
	}
	w := &mockWriter{}
	eng := NewCascadeEngine(ms, w, nil, zerolog.Nop())
	ctx := context.Background()

	// first observation always propagates
	eng.OnValue(ctx, 3, 1)
	// unchanged values are dropped
	eng.OnValue(ctx, 3, 1)
	eng.OnValue(ctx, 3, 1)
	// change propagates again
	eng.OnValue(ctx, 3, 0)

	require.Len(t, w.writes, 2)
	assert.Equal(t, enqueuedWrite{registerID: 9, value: true}, w.writes[0])
	assert.Equal(t, enqueuedWrite{registerID: 9, value: false}, w.writes[1])
}

func TestCascadeTruthiness(t *testing.T) {
	ms := &mockStore{
		activeMappingsFunc: func(_ context.Context, src uint) ([]domain.RegisterMapping, error) {
			return []domain.RegisterMapping{
				{SourceRegisterID: src, DestinationRegisterID: 9, DestinationRegister: coilDest(9)},
			}, nil
		},
	}
	w := &mockWriter{}
	eng := NewCascadeEngine(ms, w, nil, zerolog.Nop())
	ctx := context.Background()

	// any nonzero source value drives the destination true
	eng.OnValue(ctx, 3, 42.5)
	eng.OnValue(ctx, 3, 0)
	eng.OnValue(ctx, 3, -1)

	require.Len(t, w.writes, 3)
	assert.True(t, w.writes[0].value)
	assert.False(t, w.writes[1].value)
	assert.True(t, w.writes[2].value)
}

func TestCascadeFansOutToAllMappings(t *testing.T) {
	ms := &mockStore{
		activeMappingsFunc: func(_ context.Context, src uint) ([]domain.RegisterMapping, error) {
			return []domain.RegisterMapping{
				{SourceRegisterID: src, DestinationRegisterID: 9, DestinationRegister: coilDest(9)},
				{SourceRegisterID: src, DestinationRegisterID: 11, DestinationRegister: coilDest(11)},
			}, nil
		},
	}
	w := &mockWriter{}
	eng := NewCascadeEngine(ms, w, NewMemoryValueCache(), zerolog.Nop())

	eng.OnValue(context.Background(), 3, 1)

	require.Len(t, w.writes, 2)
	assert.Equal(t, uint(9), w.writes[0].registerID)
	assert.Equal(t, uint(11), w.writes[1].registerID)
}

func TestCascadeSkipsNonWritableDestination(t *testing.T) {
	ms := &mockStore{
		activeMappingsFunc: func(_ context.Context, src uint) ([]domain.RegisterMapping, error) {
			return []domain.RegisterMapping{
				{SourceRegisterID: src, DestinationRegisterID: 9, DestinationRegister: &domain.Register{
					ID: 9, Kind: domain.RegisterKindHolding,
				}},
			}, nil
		},
	}
	w := &mockWriter{}
	eng := NewCascadeEngine(ms, w, nil, zerolog.Nop())

	eng.OnValue(context.Background(), 3, 1)

	assert.Empty(t, w.writes)
}

func TestCascadeBaselineRecordedWithoutMappings(t *testing.T) {
	calls := 0
	ms := &mockStore{
		activeMappingsFunc: func(_ context.Context, _ uint) ([]domain.RegisterMapping, error) {
			calls++
			return nil, nil
		},
	}
	eng := NewCascadeEngine(ms, &mockWriter{}, nil, zerolog.Nop())
	ctx := context.Background()

	eng.OnValue(ctx, 3, 5)
	eng.OnValue(ctx, 3, 5)

	// second unchanged value never hits the store
	assert.Equal(t, 1, calls)
}
