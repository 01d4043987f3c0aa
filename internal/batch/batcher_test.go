package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ismaiel54/low-latency-order-pipeline/internal/order"
)

type captured struct {
	batches [][]order.Order
	ages    []uint64
}

func (c *captured) send(batch []order.Order, ageUS uint64) {
	c.batches = append(c.batches, batch)
	c.ages = append(c.ages, ageUS)
}

func testOrder(id uint64) order.Order {
	return order.New(id, "GOOGL", order.Sell, 120.5, 5)
}

func TestSizeTrigger(t *testing.T) {
	var c captured
	b := New(3, time.Second, c.send)

	b.Add(testOrder(1))
	b.Add(testOrder(2))
	assert.Empty(t, c.batches, "no flush before batch size reached")
	assert.Equal(t, 2, b.Pending())

	b.Add(testOrder(3))
	require.Len(t, c.batches, 1, "exactly one flush at batch size")
	require.Len(t, c.batches[0], 3)
	assert.Equal(t, uint64(1), c.batches[0][0].ID)
	assert.Equal(t, uint64(2), c.batches[0][1].ID)
	assert.Equal(t, uint64(3), c.batches[0][2].ID)
	assert.Equal(t, 0, b.Pending(), "buffer empty after flush")
}

func TestAgeTrigger(t *testing.T) {
	var c captured
	b := New(100, 10*time.Millisecond, c.send)

	b.Add(testOrder(1))
	assert.False(t, b.CheckTimeout(), "batch not old enough yet")

	time.Sleep(15 * time.Millisecond)
	assert.True(t, b.CheckTimeout(), "timeout elapsed")
	require.Len(t, c.batches, 1)
	assert.Len(t, c.batches[0], 1)
	assert.GreaterOrEqual(t, c.ages[0], uint64(10_000), "age reported in microseconds")

	assert.False(t, b.CheckTimeout(), "second immediate check is a no-op")
	assert.Len(t, c.batches, 1)
}

func TestCheckTimeout_EmptyBuffer(t *testing.T) {
	var c captured
	b := New(10, time.Millisecond, c.send)

	time.Sleep(2 * time.Millisecond)
	assert.False(t, b.CheckTimeout(), "no flush on empty buffer regardless of elapsed time")
}

func TestForceFlush(t *testing.T) {
	var c captured
	b := New(1000, time.Hour, c.send)

	for id := uint64(1); id <= 5; id++ {
		b.Add(testOrder(id))
	}
	b.ForceFlush()
	require.Len(t, c.batches, 1)
	assert.Len(t, c.batches[0], 5)

	b.ForceFlush()
	assert.Len(t, c.batches, 1, "force flush on empty buffer is a no-op")
}

func TestTimerResetsAfterFlush(t *testing.T) {
	var c captured
	b := New(2, 20*time.Millisecond, c.send)

	b.Add(testOrder(1))
	b.Add(testOrder(2)) // size flush
	require.Len(t, c.batches, 1)

	// A new batch started after the flush must age from its own first order.
	b.Add(testOrder(3))
	assert.False(t, b.CheckTimeout())
	time.Sleep(25 * time.Millisecond)
	assert.True(t, b.CheckTimeout())
	require.Len(t, c.batches, 2)
	assert.Equal(t, uint64(3), c.batches[1][0].ID)
}

func TestSnapshotIndependence(t *testing.T) {
	var got []order.Order
	b := New(2, time.Second, func(batch []order.Order, _ uint64) {
		got = batch
	})

	b.Add(testOrder(1))
	b.Add(testOrder(2))
	require.Len(t, got, 2)
	first := got

	// Later batcher activity must not mutate an already delivered batch.
	b.Add(testOrder(3))
	b.Add(testOrder(4))
	assert.Equal(t, uint64(1), first[0].ID)
	assert.Equal(t, uint64(2), first[1].ID)
}

func TestSizeClamp(t *testing.T) {
	var c captured
	b := New(0, time.Second, c.send)

	b.Add(testOrder(1))
	assert.Len(t, c.batches, 1, "size below 1 behaves as single-order batches")
}
