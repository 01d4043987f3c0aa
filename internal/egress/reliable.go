package egress

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ismaiel54/low-latency-order-pipeline/internal/order"
)

// congestionThreshold is the active-send count above which congestion
// control starts adding delay, 2ms per connection over the threshold.
const (
	congestionThreshold = 10
	congestionStepMS    = 2
)

// ReliableConfig configures the retransmitting transport.
type ReliableConfig struct {
	DropRate          float64
	BaseDelay         time.Duration
	MaxRetries        int
	CongestionControl bool
	Seed              int64
}

// DefaultReliableConfig mirrors the simulator's stock TCP profile.
func DefaultReliableConfig() ReliableConfig {
	return ReliableConfig{
		DropRate:          0.02,
		BaseDelay:         5 * time.Millisecond,
		MaxRetries:        3,
		CongestionControl: true,
	}
}

// ReliableStats is a point-in-time view of the transport's counters.
// ActiveConnections is a gauge; the rest never decrease.
type ReliableStats struct {
	ActiveConnections int64
	DroppedPackets    int64
	Retransmissions   int64
	DropRate          float64
	BaseDelayMS       int64
	MaxRetries        int
	CongestionControl bool
}

// Reliable simulates a TCP-like transport: every batch is delayed by a
// jittered base latency plus congestion delay, drops are retransmitted with
// growing backoff until the retry budget is spent.
type Reliable struct {
	cfg    ReliableConfig
	logger *zap.Logger
	rng    *lockedRand

	activeConnections int64
	droppedPackets    int64
	retransmissions   int64
}

// NewReliable creates the transport.
func NewReliable(cfg ReliableConfig, logger *zap.Logger) *Reliable {
	return &Reliable{
		cfg:    cfg,
		logger: logger,
		rng:    newLockedRand(cfg.Seed),
	}
}

// Name returns the CLI name of this transport.
func (t *Reliable) Name() string { return "tcp" }

// Send transmits one batch. It retries up to MaxRetries times after the
// first dropped attempt and returns false only when every attempt dropped.
func (t *Reliable) Send(batch []order.Order, batchAgeUS uint64) bool {
	active := atomic.AddInt64(&t.activeConnections, 1)
	defer atomic.AddInt64(&t.activeConnections, -1)

	var congestion time.Duration
	if t.cfg.CongestionControl && active > congestionThreshold {
		congestion = time.Duration(active-congestionThreshold) * congestionStepMS * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		jitter := t.rng.Uniform(0.8, 1.2)
		time.Sleep(time.Duration(float64(t.cfg.BaseDelay)*jitter) + congestion)

		if t.rng.Float64() >= t.cfg.DropRate {
			return true
		}
		atomic.AddInt64(&t.droppedPackets, 1)

		if attempt >= t.cfg.MaxRetries {
			t.logger.Debug("batch dropped after retries exhausted",
				zap.Int("attempts", attempt+1),
				zap.Int("batch_size", len(batch)),
				zap.Uint64("batch_age_us", batchAgeUS),
			)
			return false
		}
		atomic.AddInt64(&t.retransmissions, 1)

		retryDelay := time.Duration(t.rng.Uniform(
			2*float64(t.cfg.BaseDelay), 4*float64(t.cfg.BaseDelay)))
		time.Sleep(retryDelay * time.Duration(attempt+1))
	}
}

// Stats returns the current counters with the configuration echoed.
func (t *Reliable) Stats() ReliableStats {
	return ReliableStats{
		ActiveConnections: atomic.LoadInt64(&t.activeConnections),
		DroppedPackets:    atomic.LoadInt64(&t.droppedPackets),
		Retransmissions:   atomic.LoadInt64(&t.retransmissions),
		DropRate:          t.cfg.DropRate,
		BaseDelayMS:       t.cfg.BaseDelay.Milliseconds(),
		MaxRetries:        t.cfg.MaxRetries,
		CongestionControl: t.cfg.CongestionControl,
	}
}
