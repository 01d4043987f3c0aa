package egress

import (
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ismaiel54/low-latency-order-pipeline/internal/order"
)

// InstantConfig configures the shared-memory-like transport.
type InstantConfig struct {
	NoiseEnabled bool
	NoiseRange   time.Duration
	Seed         int64
}

// DefaultInstantConfig mirrors the simulator's stock SHM profile.
func DefaultInstantConfig() InstantConfig {
	return InstantConfig{
		NoiseEnabled: true,
		NoiseRange:   100 * time.Nanosecond,
	}
}

// InstantStats is a point-in-time view of the transport's counters.
type InstantStats struct {
	MessagesSent int64
	MinDelayNS   int64
	MaxDelayNS   int64
	TotalDelayNS int64
	AvgDelayNS   float64
	NoiseEnabled bool
	NoiseRangeNS int64
}

// Instant simulates a shared-memory hop: delivery never fails, with an
// optional nanosecond-scale noise draw. Negative draws are not slept; they
// model ticks that landed faster than expected.
type Instant struct {
	cfg    InstantConfig
	logger *zap.Logger
	rng    *lockedRand

	messagesSent int64
	minDelayNS   int64
	maxDelayNS   int64
	totalDelayNS int64
}

// NewInstant creates the transport.
func NewInstant(cfg InstantConfig, logger *zap.Logger) *Instant {
	return &Instant{
		cfg:        cfg,
		logger:     logger,
		rng:        newLockedRand(cfg.Seed),
		minDelayNS: math.MaxInt64,
	}
}

// Name returns the CLI name of this transport.
func (t *Instant) Name() string { return "shm" }

// Send delivers one batch. It always succeeds.
func (t *Instant) Send(batch []order.Order, batchAgeUS uint64) bool {
	start := time.Now()
	atomic.AddInt64(&t.messagesSent, 1)

	if t.cfg.NoiseEnabled && t.cfg.NoiseRange > 0 {
		r := int64(t.cfg.NoiseRange)
		if noise := t.rng.IntRange(-r, r); noise > 0 {
			time.Sleep(time.Duration(noise))
		}
	}

	elapsed := time.Since(start).Nanoseconds()
	t.observeDelay(elapsed)
	return true
}

func (t *Instant) observeDelay(ns int64) {
	atomic.AddInt64(&t.totalDelayNS, ns)
	for {
		cur := atomic.LoadInt64(&t.minDelayNS)
		if ns >= cur || atomic.CompareAndSwapInt64(&t.minDelayNS, cur, ns) {
			break
		}
	}
	for {
		cur := atomic.LoadInt64(&t.maxDelayNS)
		if ns <= cur || atomic.CompareAndSwapInt64(&t.maxDelayNS, cur, ns) {
			break
		}
	}
}

// Stats returns the current counters with the configuration echoed.
func (t *Instant) Stats() InstantStats {
	sent := atomic.LoadInt64(&t.messagesSent)
	min := atomic.LoadInt64(&t.minDelayNS)
	if sent == 0 {
		min = 0
	}

	s := InstantStats{
		MessagesSent: sent,
		MinDelayNS:   min,
		MaxDelayNS:   atomic.LoadInt64(&t.maxDelayNS),
		TotalDelayNS: atomic.LoadInt64(&t.totalDelayNS),
		NoiseEnabled: t.cfg.NoiseEnabled,
		NoiseRangeNS: int64(t.cfg.NoiseRange),
	}
	if sent > 0 {
		s.AvgDelayNS = float64(s.TotalDelayNS) / float64(sent)
	}
	return s
}
