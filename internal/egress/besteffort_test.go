package egress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBestEffort_AlwaysDrops(t *testing.T) {
	tr := NewBestEffort(BestEffortConfig{
		DropRate:  1.0,
		BaseDelay: time.Millisecond,
		Jitter:    true,
		Seed:      1,
	}, zap.NewNop())

	start := time.Now()
	ok := tr.Send(testBatch(4), 50)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.Less(t, elapsed, 100*time.Millisecond, "drops return without the delivery delay")

	s := tr.Stats()
	assert.Equal(t, int64(1), s.PacketsSent)
	assert.Equal(t, int64(1), s.PacketsDropped)
	assert.Equal(t, int64(0), s.TotalDelayUS, "dropped packets accrue no delay")
	assert.Equal(t, 1.0, s.ActualDropRate)
}

func TestBestEffort_Delivers(t *testing.T) {
	tr := NewBestEffort(BestEffortConfig{
		DropRate:  0.0,
		BaseDelay: 100 * time.Microsecond,
		Jitter:    false,
		Seed:      1,
	}, zap.NewNop())

	require.True(t, tr.Send(testBatch(1), 0))

	s := tr.Stats()
	assert.Equal(t, int64(1), s.PacketsSent)
	assert.Zero(t, s.PacketsDropped)
	assert.GreaterOrEqual(t, s.TotalDelayUS, int64(1), "delay clamps to at least 1us")
	assert.Equal(t, s.AvgDelayUS, float64(s.TotalDelayUS), "single delivery average")
}

func TestBestEffort_DelayClampedPositive(t *testing.T) {
	// A zero base delay with negative noise draws must still sleep >= 1us.
	tr := NewBestEffort(BestEffortConfig{
		DropRate:  0.0,
		BaseDelay: 0,
		Jitter:    true,
		Seed:      99,
	}, zap.NewNop())

	for i := 0; i < 20; i++ {
		require.True(t, tr.Send(testBatch(1), 0))
	}

	s := tr.Stats()
	assert.GreaterOrEqual(t, s.TotalDelayUS, int64(20))
}

func TestBestEffort_CountersMonotonic(t *testing.T) {
	tr := NewBestEffort(BestEffortConfig{
		DropRate:  0.5,
		BaseDelay: 0,
		Jitter:    false,
		Seed:      5,
	}, zap.NewNop())

	var prevSent, prevDropped int64
	for i := 0; i < 100; i++ {
		tr.Send(testBatch(1), 0)
		s := tr.Stats()
		assert.GreaterOrEqual(t, s.PacketsSent, prevSent)
		assert.GreaterOrEqual(t, s.PacketsDropped, prevDropped)
		prevSent, prevDropped = s.PacketsSent, s.PacketsDropped
	}

	s := tr.Stats()
	assert.Equal(t, int64(100), s.PacketsSent)
	assert.InDelta(t, float64(s.PacketsDropped)/100.0, s.ActualDropRate, 1e-9)
}

func TestBestEffort_StatsEchoConfig(t *testing.T) {
	s := NewBestEffort(BestEffortConfig{
		DropRate:  0.25,
		BaseDelay: 800 * time.Microsecond,
		Jitter:    true,
		Seed:      1,
	}, zap.NewNop()).Stats()

	assert.Equal(t, 0.25, s.DropRate)
	assert.Equal(t, int64(800), s.BaseDelayUS)
	assert.True(t, s.Jitter)
	assert.Zero(t, s.AvgDelayUS, "no deliveries yet")
}
