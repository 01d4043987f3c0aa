package egress

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ismaiel54/low-latency-order-pipeline/internal/order"
)

// noiseRangeUS bounds the integer noise added to every delivered packet's delay.
const noiseRangeUS = 50

// BestEffortConfig configures the lossy transport.
type BestEffortConfig struct {
	DropRate  float64
	BaseDelay time.Duration
	Jitter    bool
	Seed      int64
}

// DefaultBestEffortConfig mirrors the simulator's stock UDP profile.
func DefaultBestEffortConfig() BestEffortConfig {
	return BestEffortConfig{
		DropRate:  0.02,
		BaseDelay: 1000 * time.Microsecond,
		Jitter:    true,
	}
}

// BestEffortStats is a point-in-time view of the transport's counters plus
// derived averages.
type BestEffortStats struct {
	PacketsSent    int64
	PacketsDropped int64
	TotalDelayUS   int64
	AvgDelayUS     float64
	ActualDropRate float64
	DropRate       float64
	BaseDelayUS    int64
	Jitter         bool
}

// BestEffort simulates a UDP-like transport: packets are either dropped
// outright or delivered after a jittered, noisy delay. Nothing is retried.
type BestEffort struct {
	cfg    BestEffortConfig
	logger *zap.Logger
	rng    *lockedRand

	packetsSent    int64
	packetsDropped int64
	totalDelayUS   int64
}

// NewBestEffort creates the transport.
func NewBestEffort(cfg BestEffortConfig, logger *zap.Logger) *BestEffort {
	return &BestEffort{
		cfg:    cfg,
		logger: logger,
		rng:    newLockedRand(cfg.Seed),
	}
}

// Name returns the CLI name of this transport.
func (t *BestEffort) Name() string { return "udp" }

// Send transmits one batch, returning false immediately on a simulated drop.
func (t *BestEffort) Send(batch []order.Order, batchAgeUS uint64) bool {
	atomic.AddInt64(&t.packetsSent, 1)

	if t.rng.Float64() < t.cfg.DropRate {
		atomic.AddInt64(&t.packetsDropped, 1)
		t.logger.Debug("batch dropped",
			zap.Int("batch_size", len(batch)),
			zap.Uint64("batch_age_us", batchAgeUS),
		)
		return false
	}

	factor := 1.0
	if t.cfg.Jitter {
		factor = t.rng.Uniform(0.5, 1.5)
	}
	delayUS := int64(float64(t.cfg.BaseDelay/time.Microsecond)*factor) +
		t.rng.IntRange(-noiseRangeUS, noiseRangeUS)
	if delayUS < 1 {
		delayUS = 1
	}

	time.Sleep(time.Duration(delayUS) * time.Microsecond)
	atomic.AddInt64(&t.totalDelayUS, delayUS)
	return true
}

// Stats returns the current counters with derived averages and the
// configuration echoed.
func (t *BestEffort) Stats() BestEffortStats {
	sent := atomic.LoadInt64(&t.packetsSent)
	dropped := atomic.LoadInt64(&t.packetsDropped)
	total := atomic.LoadInt64(&t.totalDelayUS)

	s := BestEffortStats{
		PacketsSent:    sent,
		PacketsDropped: dropped,
		TotalDelayUS:   total,
		DropRate:       t.cfg.DropRate,
		BaseDelayUS:    int64(t.cfg.BaseDelay / time.Microsecond),
		Jitter:         t.cfg.Jitter,
	}
	if delivered := sent - dropped; delivered > 0 {
		s.AvgDelayUS = float64(total) / float64(delivered)
	}
	if sent > 0 {
		s.ActualDropRate = float64(dropped) / float64(sent)
	}
	return s
}
