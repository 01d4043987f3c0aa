// Package egress delivers flushed batches through one of three simulated
// transports. The transports share a uniform Send contract and differ in
// reliability and latency: Reliable retransmits after simulated drops,
// BestEffort drops without retry, Instant always delivers. All packets are
// in-process; nothing leaves the process.
package egress

import (
	"math/rand"
	"sync"
	"time"

	"github.com/ismaiel54/low-latency-order-pipeline/internal/order"
)

// Transport delivers one batch. Send blocks for the simulated transmission
// time and reports whether delivery ultimately succeeded. Implementations
// are safe for concurrent use from any flushing goroutine.
type Transport interface {
	Send(batch []order.Order, batchAgeUS uint64) bool
	Name() string
}

// lockedRand is a mutex-guarded source shared by a transport's callers.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newLockedRand(seed int64) *lockedRand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedRand{rng: rand.New(rand.NewSource(seed))}
}

// Float64 draws from [0,1).
func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	v := l.rng.Float64()
	l.mu.Unlock()
	return v
}

// Uniform draws from [lo,hi).
func (l *lockedRand) Uniform(lo, hi float64) float64 {
	l.mu.Lock()
	v := lo + (hi-lo)*l.rng.Float64()
	l.mu.Unlock()
	return v
}

// IntRange draws an integer from [lo,hi] inclusive.
func (l *lockedRand) IntRange(lo, hi int64) int64 {
	if lo >= hi {
		return lo
	}
	l.mu.Lock()
	v := lo + l.rng.Int63n(hi-lo+1)
	l.mu.Unlock()
	return v
}
