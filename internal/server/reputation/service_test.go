package reputation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/credport/internal/server/statestore"
)

func TestRecordAndGet(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewService(nil, nil, func() time.Time { return at })
	ctx := context.Background()

	sc, err := s.Record(ctx, 7, PointsRegistered)
	require.NoError(t, err)
	assert.Equal(t, int64(10), sc.Points)

	_, err = s.Record(ctx, 7, PointsLogin)
	require.NoError(t, err)

	got, err := s.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, Score{Points: 11, Events: 2, UpdatedAt: at}, got)

	unknown, err := s.Get(ctx, 99)
	require.NoError(t, err)
	assert.Zero(t, unknown)
}

func TestRecord_NeverNegative(t *testing.T) {
	s := NewService(nil, nil, nil)
	sc, err := s.Record(context.Background(), 1, -5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sc.Points)
}

func TestScoresSurviveRestart(t *testing.T) {
	mem := statestore.NewMemoryBackend()
	ctx := context.Background()

	s := NewService(statestore.New(mem, ServiceKey), nil, nil)
	_, err := s.Record(ctx, 42, 3)
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))

	restarted := NewService(statestore.New(mem, ServiceKey), nil, nil)
	sc, err := restarted.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sc.Points)
}

func TestScoresSurviveIdleRestartFlush(t *testing.T) {
	mem := statestore.NewMemoryBackend()
	ctx := context.Background()

	s := NewService(statestore.New(mem, ServiceKey), nil, nil)
	_, err := s.Record(ctx, 7, 50)
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))
	writes := mem.Writes()

	idle := NewService(statestore.New(mem, ServiceKey), nil, nil)
	require.NoError(t, idle.Flush(ctx))
	assert.Equal(t, writes, mem.Writes())

	third := NewService(statestore.New(mem, ServiceKey), nil, nil)
	sc, err := third.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(50), sc.Points)
}
