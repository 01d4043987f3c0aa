package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ismaiel54/low-latency-order-pipeline/internal/config"
	"github.com/ismaiel54/low-latency-order-pipeline/internal/egress"
	"github.com/ismaiel54/low-latency-order-pipeline/internal/ring"
)

func testConfig() config.RuntimeConfig {
	cfg := config.DefaultConfig()
	cfg.Producers = 2
	cfg.Consumers = 2
	cfg.BufferSize = 256
	cfg.BatchSize = 5
	cfg.BatchTimeout = time.Millisecond
	cfg.Rate = 50000
	cfg.Transport = config.TransportInstant
	return cfg
}

func runPipeline(t *testing.T, cfg config.RuntimeConfig, d *egress.Dispatcher, runFor time.Duration) *Pipeline {
	t.Helper()

	r, err := ring.New(cfg.BufferSize)
	require.NoError(t, err)

	p := New(cfg, zap.NewNop(), r, d, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), runFor)
	defer cancel()
	p.Run(ctx)
	return p
}

func TestRun_DeliversOrders(t *testing.T) {
	cfg := testConfig()
	tr := egress.NewInstant(egress.InstantConfig{Seed: 1}, zap.NewNop())
	d := egress.NewDispatcher(tr, true, zap.NewNop(), nil)

	p := runPipeline(t, cfg, d, 300*time.Millisecond)

	assert.False(t, p.IsRunning(), "workers stopped after Run returns")
	assert.Greater(t, p.OrdersProduced(), uint64(0), "producers pushed orders")
	assert.Greater(t, d.OrdersConsumed(), uint64(0), "consumers delivered orders")
	assert.Greater(t, d.BatchesSent(), uint64(0))
	assert.LessOrEqual(t, d.OrdersConsumed(), p.OrdersProduced(),
		"nothing is delivered that was never produced")
}

// TestRun_ShutdownFlushesPartialBatches uses a batch size far above the
// order volume so every delivered order must have come from a force flush.
func TestRun_ShutdownFlushesPartialBatches(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 100000
	cfg.BatchTimeout = time.Hour

	tr := egress.NewInstant(egress.InstantConfig{Seed: 1}, zap.NewNop())
	d := egress.NewDispatcher(tr, true, zap.NewNop(), nil)

	p := runPipeline(t, cfg, d, 200*time.Millisecond)

	require.Greater(t, p.OrdersProduced(), uint64(0))
	assert.Greater(t, d.BatchesSent(), uint64(0),
		"partial batches are flushed on shutdown")
	assert.Greater(t, d.OrdersConsumed(), uint64(0))
}

func TestRun_BatchingDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.EnableBatching = false

	tr := egress.NewInstant(egress.InstantConfig{Seed: 1}, zap.NewNop())
	d := egress.NewDispatcher(tr, true, zap.NewNop(), nil)

	runPipeline(t, cfg, d, 200*time.Millisecond)

	assert.Greater(t, d.OrdersConsumed(), uint64(0))
	assert.Equal(t, d.OrdersConsumed(), d.BatchesSent(),
		"without batching every delivery carries one order")
}

func TestRun_NoNetwork(t *testing.T) {
	cfg := testConfig()
	cfg.EnableNetwork = false

	d := egress.NewDispatcher(nil, false, zap.NewNop(), nil)
	runPipeline(t, cfg, d, 200*time.Millisecond)

	assert.Greater(t, d.BatchesSent(), uint64(0),
		"batches still count without a transport")
	assert.Zero(t, d.SendFailures())
}

func TestRun_LossyTransportNotRequeued(t *testing.T) {
	cfg := testConfig()

	tr := egress.NewBestEffort(egress.BestEffortConfig{
		DropRate: 1.0,
		Seed:     1,
	}, zap.NewNop())
	d := egress.NewDispatcher(tr, true, zap.NewNop(), nil)

	p := runPipeline(t, cfg, d, 200*time.Millisecond)

	assert.Greater(t, p.OrdersProduced(), uint64(0))
	assert.Zero(t, d.OrdersConsumed(), "an always-dropping transport delivers nothing")
	assert.Greater(t, d.SendFailures(), uint64(0))
}
