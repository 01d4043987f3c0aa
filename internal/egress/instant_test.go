package egress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestInstant_NeverFails(t *testing.T) {
	tr := NewInstant(InstantConfig{
		NoiseEnabled: true,
		NoiseRange:   100 * time.Nanosecond,
		Seed:         1,
	}, zap.NewNop())

	for i := 0; i < 100; i++ {
		assert.True(t, tr.Send(testBatch(1), 0))
	}
	assert.Equal(t, int64(100), tr.Stats().MessagesSent)
}

func TestInstant_NoiseDisabled(t *testing.T) {
	tr := NewInstant(InstantConfig{NoiseEnabled: false, Seed: 1}, zap.NewNop())

	assert.True(t, tr.Send(testBatch(5), 123))

	s := tr.Stats()
	assert.Equal(t, int64(1), s.MessagesSent)
	assert.False(t, s.NoiseEnabled)
}

func TestInstant_DelayBounds(t *testing.T) {
	tr := NewInstant(InstantConfig{
		NoiseEnabled: true,
		NoiseRange:   200 * time.Nanosecond,
		Seed:         7,
	}, zap.NewNop())

	for i := 0; i < 50; i++ {
		tr.Send(testBatch(1), 0)
	}

	s := tr.Stats()
	assert.GreaterOrEqual(t, s.MinDelayNS, int64(0))
	assert.LessOrEqual(t, s.MinDelayNS, s.MaxDelayNS)
	assert.GreaterOrEqual(t, s.TotalDelayNS, s.MaxDelayNS)
	assert.Greater(t, s.AvgDelayNS, 0.0)
}

func TestInstant_EmptyStats(t *testing.T) {
	s := NewInstant(DefaultInstantConfig(), zap.NewNop()).Stats()

	assert.Zero(t, s.MessagesSent)
	assert.Zero(t, s.MinDelayNS, "min reads as zero before any send")
	assert.Zero(t, s.MaxDelayNS)
}

func TestInstant_ConcurrentSends(t *testing.T) {
	tr := NewInstant(InstantConfig{
		NoiseEnabled: true,
		NoiseRange:   100 * time.Nanosecond,
		Seed:         3,
	}, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				tr.Send(testBatch(1), 0)
			}
		}()
	}
	wg.Wait()

	s := tr.Stats()
	assert.Equal(t, int64(1600), s.MessagesSent)
	assert.LessOrEqual(t, s.MinDelayNS, s.MaxDelayNS)
}
