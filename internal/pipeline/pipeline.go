// Package pipeline wires producers, the shared ring, consumers with their
// batchers, and the egress dispatcher into one run. Producers synthesize
// orders and push them onto the ring, dropping on a full ring; consumers
// pop, batch and flush; a telemetry worker snapshots the whole thing once a
// second. Shutdown is cooperative: the running flag drops, workers leave
// their loops, every consumer force-flushes its partial batch. Orders still
// queued in the ring at that point are not popped.
package pipeline

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ismaiel54/low-latency-order-pipeline/internal/batch"
	"github.com/ismaiel54/low-latency-order-pipeline/internal/config"
	"github.com/ismaiel54/low-latency-order-pipeline/internal/egress"
	"github.com/ismaiel54/low-latency-order-pipeline/internal/order"
	"github.com/ismaiel54/low-latency-order-pipeline/internal/ring"
	"github.com/ismaiel54/low-latency-order-pipeline/internal/telemetry"
)

// producerIDStride spaces order id ranges per producer; ids stay distinct
// across producers while each producer synthesizes fewer than this many orders.
const producerIDStride = 1_000_000

// consumerPollInterval throttles the consumer busy loop.
const consumerPollInterval = 10 * time.Microsecond

// telemetryInterval is the snapshot cadence.
const telemetryInterval = time.Second

var symbols = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "TSLA"}

// Pipeline owns one run of the order-flow system.
type Pipeline struct {
	cfg        config.RuntimeConfig
	logger     *zap.Logger
	ring       *ring.Ring
	dispatcher *egress.Dispatcher
	metrics    *telemetry.Metrics
	journal    *telemetry.Journal

	running        int32
	ordersProduced uint64
	ringFullDrops  uint64
	started        time.Time
}

// New assembles a pipeline over an already constructed ring and dispatcher.
// metrics and journal may be nil.
func New(cfg config.RuntimeConfig, logger *zap.Logger, rng *ring.Ring, dispatcher *egress.Dispatcher, metrics *telemetry.Metrics, journal *telemetry.Journal) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		logger:     logger,
		ring:       rng,
		dispatcher: dispatcher,
		metrics:    metrics,
		journal:    journal,
	}
}

// Run starts all workers and blocks until ctx is done, then stops the
// workers and flushes their partial batches. The caller bounds the run with
// a deadline or signal context.
func (p *Pipeline) Run(ctx context.Context) {
	p.started = time.Now()
	atomic.StoreInt32(&p.running, 1)

	var wg sync.WaitGroup

	for i := 0; i < p.cfg.Producers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.producerLoop(id)
		}(i)
	}

	for i := 0; i < p.cfg.Consumers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.consumerLoop(id)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.telemetryLoop(ctx)
	}()

	<-ctx.Done()

	p.logger.Info("stopping pipeline workers")
	atomic.StoreInt32(&p.running, 0)
	wg.Wait()

	p.recordSummary()
}

// IsRunning reports whether workers are still in their loops.
func (p *Pipeline) IsRunning() bool {
	return atomic.LoadInt32(&p.running) == 1
}

// OrdersProduced returns the number of orders successfully pushed.
func (p *Pipeline) OrdersProduced() uint64 {
	return atomic.LoadUint64(&p.ordersProduced)
}

// RingFullDrops returns the number of orders dropped on a full ring.
func (p *Pipeline) RingFullDrops() uint64 {
	return atomic.LoadUint64(&p.ringFullDrops)
}

// producerLoop synthesizes orders at the configured aggregate rate and
// pushes them onto the ring, dropping when the ring is full.
func (p *Pipeline) producerLoop(id int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
	interval := time.Duration(p.cfg.Producers) * time.Second / time.Duration(p.cfg.Rate)

	base := uint64(id) * producerIDStride
	var count uint64

	p.logger.Debug("producer started", zap.Int("producer_id", id),
		zap.Duration("interval", interval))

	for p.IsRunning() {
		side := order.Buy
		if rng.Intn(2) == 1 {
			side = order.Sell
		}
		o := order.New(
			base+count,
			symbols[rng.Intn(len(symbols))],
			side,
			100.0+rng.Float64()*100.0,
			uint32(1+rng.Intn(1000)),
		)
		count++

		if p.ring.TryPush(o) {
			atomic.AddUint64(&p.ordersProduced, 1)
			if p.metrics != nil {
				p.metrics.OrdersProduced.Inc()
			}
		} else {
			atomic.AddUint64(&p.ringFullDrops, 1)
			if p.metrics != nil {
				p.metrics.RingFullDrops.Inc()
			}
		}

		time.Sleep(interval)
	}

	p.logger.Debug("producer stopped", zap.Int("producer_id", id),
		zap.Uint64("synthesized", count))
}

// consumerLoop pops orders and feeds them into this consumer's batcher, or
// dispatches single-order batches when batching is disabled. The partial
// batch is force-flushed on exit so shutdown loses nothing buffered here.
func (p *Pipeline) consumerLoop(id int) {
	var b *batch.Batcher
	if p.cfg.EnableBatching {
		b = batch.New(p.cfg.BatchSize, p.cfg.BatchTimeout, func(orders []order.Order, ageUS uint64) {
			p.dispatcher.Dispatch(orders, ageUS)
		})
	}

	p.logger.Debug("consumer started", zap.Int("consumer_id", id))

	for p.IsRunning() {
		if o, ok := p.ring.TryPop(); ok {
			if b != nil {
				b.Add(o)
				b.CheckTimeout()
			} else {
				p.dispatcher.Dispatch([]order.Order{o}, 0)
			}
		}
		time.Sleep(consumerPollInterval)
	}

	if b != nil {
		b.ForceFlush()
	}

	p.logger.Debug("consumer stopped", zap.Int("consumer_id", id))
}

// telemetryLoop snapshots the pipeline once a second. It observes only; it
// takes no corrective action.
func (p *Pipeline) telemetryLoop(ctx context.Context) {
	ticker := time.NewTicker(telemetryInterval)
	defer ticker.Stop()

	var lastConsumed uint64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.IsRunning() {
				return
			}

			produced := p.OrdersProduced()
			consumed := p.dispatcher.OrdersConsumed()
			batches := p.dispatcher.BatchesSent()
			throughput := float64(consumed-lastConsumed) / telemetryInterval.Seconds()
			lastConsumed = consumed
			avgLatency := p.dispatcher.AvgBatchLatencyUS()
			occupancy := p.ring.Len()

			if p.metrics != nil {
				p.metrics.RingOccupancy.Set(float64(occupancy))
			}

			p.logger.Info("pipeline stats",
				zap.Uint64("produced", produced),
				zap.Uint64("consumed", consumed),
				zap.Uint64("batches", batches),
				zap.Float64("throughput_ops", throughput),
				zap.Float64("avg_batch_latency_us", avgLatency),
				zap.Int("ring_occupancy", occupancy),
				zap.Int("ring_capacity", p.ring.Cap()),
			)

			if p.journal != nil {
				snap := telemetry.Snapshot{
					TsUnixMillis:  time.Now().UnixMilli(),
					Produced:      produced,
					Consumed:      consumed,
					Batches:       batches,
					ThroughputOPS: throughput,
					AvgLatencyUS:  avgLatency,
					RingOccupancy: occupancy,
					RingCapacity:  p.ring.Cap(),
				}
				if err := p.journal.InsertSnapshot(context.Background(), snap); err != nil {
					p.logger.Warn("failed to journal snapshot", zap.Error(err))
				}
			}
		}
	}
}

func (p *Pipeline) recordSummary() {
	produced := p.OrdersProduced()
	consumed := p.dispatcher.OrdersConsumed()
	batches := p.dispatcher.BatchesSent()
	failures := p.dispatcher.SendFailures()

	p.logger.Info("pipeline finished",
		zap.Uint64("produced", produced),
		zap.Uint64("consumed", consumed),
		zap.Uint64("batches", batches),
		zap.Uint64("send_failures", failures),
		zap.Uint64("ring_full_drops", p.RingFullDrops()),
		zap.Float64("avg_batch_latency_us", p.dispatcher.AvgBatchLatencyUS()),
		zap.Duration("elapsed", time.Since(p.started)),
	)

	if p.journal != nil {
		sum := telemetry.Summary{
			StartedUnixMillis:  p.started.UnixMilli(),
			FinishedUnixMillis: time.Now().UnixMilli(),
			Produced:           produced,
			Consumed:           consumed,
			Batches:            batches,
			SendFailures:       failures,
			RingFullDrops:      p.RingFullDrops(),
			AvgLatencyUS:       p.dispatcher.AvgBatchLatencyUS(),
			Transport:          p.dispatcher.TransportName(),
		}
		if err := p.journal.RecordSummary(context.Background(), sum); err != nil {
			p.logger.Warn("failed to journal run summary", zap.Error(err))
		}
	}
}
