// Package batch groups orders into batches under two triggers: the buffer
// reaching the configured size, or the oldest buffered order reaching the
// configured age. A Batcher is single-threaded; each consumer owns its own
// instance and drives CheckTimeout from its poll loop.
package batch

import (
	"time"

	"github.com/ismaiel54/low-latency-order-pipeline/internal/order"
)

// SendFunc receives a flushed batch together with its age in microseconds,
// measured from the first order entering the empty buffer. The batch slice is
// a snapshot owned by the callee.
type SendFunc func(batch []order.Order, batchAgeUS uint64)

// Batcher accumulates orders and flushes on size or age.
type Batcher struct {
	size    int
	timeout time.Duration
	send    SendFunc

	buf     []order.Order
	first   time.Time
	started bool
}

// New creates a batcher that flushes at size orders or timeout age,
// whichever comes first. size values below 1 are clamped to 1.
func New(size int, timeout time.Duration, send SendFunc) *Batcher {
	if size < 1 {
		size = 1
	}
	return &Batcher{
		size:    size,
		timeout: timeout,
		send:    send,
		buf:     make([]order.Order, 0, size),
	}
}

// Add appends o to the buffer and flushes synchronously when the buffer
// reaches the batch size.
func (b *Batcher) Add(o order.Order) {
	if !b.started {
		b.first = time.Now()
		b.started = true
	}
	b.buf = append(b.buf, o)
	if len(b.buf) >= b.size {
		b.flush()
	}
}

// CheckTimeout flushes the buffer when its first order is at least timeout
// old. It reports whether a flush occurred. The batcher owns no timer; the
// caller must invoke this at a cadence finer than the timeout.
func (b *Batcher) CheckTimeout() bool {
	if !b.started || len(b.buf) == 0 {
		return false
	}
	if time.Since(b.first) >= b.timeout {
		b.flush()
		return true
	}
	return false
}

// ForceFlush flushes whatever is buffered; it is a no-op on an empty buffer.
func (b *Batcher) ForceFlush() {
	if len(b.buf) > 0 {
		b.flush()
	}
}

// Pending returns the number of buffered orders.
func (b *Batcher) Pending() int { return len(b.buf) }

func (b *Batcher) flush() {
	if len(b.buf) == 0 {
		return
	}
	age := uint64(time.Since(b.first) / time.Microsecond)
	if b.send != nil {
		snapshot := make([]order.Order, len(b.buf))
		copy(snapshot, b.buf)
		b.send(snapshot, age)
	}
	b.buf = b.buf[:0]
	b.started = false
}
