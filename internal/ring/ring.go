// Package ring provides a bounded lock-free multi-producer/multi-consumer
// queue of orders. Each slot carries a sequence number: producers CAS the
// tail cursor to claim a slot, write it, then publish slot.seq = pos+1;
// consumers CAS the head cursor when slot.seq == pos+1, read, then recycle
// the slot with seq = pos+capacity. Capacity is a power of two so position
// wraparound is a bit mask, and one slot is sacrificed so a full ring is
// distinguishable from an empty one.
package ring

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/ismaiel54/low-latency-order-pipeline/internal/order"
)

// ErrInvalidCapacity is returned when the requested capacity is not a power of two >= 2.
var ErrInvalidCapacity = errors.New("ring: capacity must be a power of two >= 2")

// waitPollInterval is the polling cadence of PushWait/PopWait.
const waitPollInterval = time.Microsecond

type slot struct {
	seq uint64
	ord order.Order
}

// Ring is a bounded MPMC queue of orders. The zero value is not usable; use New.
type Ring struct {
	// head and tail live on separate cache lines so producers and
	// consumers do not invalidate each other's line on every operation.
	_    [64]byte
	head uint64
	_    [56]byte
	tail uint64
	_    [56]byte

	mask   uint64
	step   uint64
	usable uint64 // capacity - 1, one slot sacrificed
	slots  []slot
}

// New creates a ring with the given capacity, which must be a power of two >= 2.
func New(capacity int) (*Ring, error) {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		return nil, ErrInvalidCapacity
	}

	r := &Ring{
		mask:   uint64(capacity - 1),
		step:   uint64(capacity),
		usable: uint64(capacity - 1),
		slots:  make([]slot, capacity),
	}
	for i := range r.slots {
		r.slots[i].seq = uint64(i)
	}
	return r, nil
}

// TryPush enqueues o. It returns false when the ring is full and never blocks.
func (r *Ring) TryPush(o order.Order) bool {
	for {
		tail := atomic.LoadUint64(&r.tail)
		if tail-atomic.LoadUint64(&r.head) >= r.usable {
			return false
		}

		s := &r.slots[tail&r.mask]
		seq := atomic.LoadUint64(&s.seq)
		switch {
		case seq == tail:
			if atomic.CompareAndSwapUint64(&r.tail, tail, tail+1) {
				s.ord = o
				atomic.StoreUint64(&s.seq, tail+1)
				return true
			}
		case seq < tail:
			// Slot still owned by a reader that has not recycled it.
			return false
		}
		// Another producer claimed this position, retry with a fresh tail.
	}
}

// TryPop dequeues the oldest order. It returns false when the ring is empty
// and never blocks.
func (r *Ring) TryPop() (order.Order, bool) {
	for {
		head := atomic.LoadUint64(&r.head)
		s := &r.slots[head&r.mask]
		seq := atomic.LoadUint64(&s.seq)
		switch {
		case seq == head+1:
			if atomic.CompareAndSwapUint64(&r.head, head, head+1) {
				o := s.ord
				atomic.StoreUint64(&s.seq, head+r.step)
				return o, true
			}
		case seq < head+1:
			return order.Order{}, false
		}
		// Another consumer claimed this position, retry with a fresh head.
	}
}

// PushWait retries TryPush on a 1µs cadence until it succeeds or the timeout
// elapses.
func (r *Ring) PushWait(o order.Order, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if r.TryPush(o) {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(waitPollInterval)
	}
}

// PopWait retries TryPop on a 1µs cadence until it succeeds or the timeout
// elapses.
func (r *Ring) PopWait(timeout time.Duration) (order.Order, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if o, ok := r.TryPop(); ok {
			return o, true
		}
		if !time.Now().Before(deadline) {
			return order.Order{}, false
		}
		time.Sleep(waitPollInterval)
	}
}

// Len returns the number of queued orders. Under concurrent use the result
// may be stale by the time it is read; it is meant for telemetry only.
func (r *Ring) Len() int {
	tail := atomic.LoadUint64(&r.tail)
	head := atomic.LoadUint64(&r.head)
	if tail < head {
		return 0
	}
	n := tail - head
	if n > r.usable {
		n = r.usable
	}
	return int(n)
}

// Cap returns the allocated capacity. Usable capacity is Cap()-1.
func (r *Ring) Cap() int { return int(r.step) }

// Empty reports whether the ring is empty. Telemetry only under concurrency.
func (r *Ring) Empty() bool { return r.Len() == 0 }

// Full reports whether the ring is full. Telemetry only under concurrency.
func (r *Ring) Full() bool { return uint64(r.Len()) >= r.usable }

// Clear resets the ring to empty. It is not safe concurrently with TryPush
// or TryPop; callers use it only during single-threaded setup or teardown.
func (r *Ring) Clear() {
	atomic.StoreUint64(&r.head, 0)
	atomic.StoreUint64(&r.tail, 0)
	for i := range r.slots {
		atomic.StoreUint64(&r.slots[i].seq, uint64(i))
	}
}
