package egress

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ismaiel54/low-latency-order-pipeline/internal/order"
	"github.com/ismaiel54/low-latency-order-pipeline/internal/telemetry"
)

// Dispatcher routes flushed batches into the configured transport and keeps
// the pipeline-level delivery counters. Delivery counters only advance on
// success; a dropped batch is counted as a failure and not re-queued.
type Dispatcher struct {
	transport      Transport
	networkEnabled bool
	logger         *zap.Logger
	metrics        *telemetry.Metrics

	batchesSent    uint64
	ordersConsumed uint64
	totalLatencyUS uint64
	sendFailures   uint64

	uninitOnce sync.Once
}

// NewDispatcher creates a dispatcher. transport may be nil only when
// networkEnabled is false (--no-network); a nil transport with the network
// enabled is a programming error surfaced per send.
func NewDispatcher(transport Transport, networkEnabled bool, logger *zap.Logger, metrics *telemetry.Metrics) *Dispatcher {
	return &Dispatcher{
		transport:      transport,
		networkEnabled: networkEnabled,
		logger:         logger,
		metrics:        metrics,
	}
}

// Dispatch sends one batch and returns whether it was delivered. Safe for
// concurrent use by multiple flushing consumers.
func (d *Dispatcher) Dispatch(batch []order.Order, batchAgeUS uint64) bool {
	if len(batch) == 0 {
		return true
	}

	ok := true
	if d.networkEnabled {
		if d.transport == nil {
			d.uninitOnce.Do(func() {
				d.logger.Error("send invoked before transport initialization")
			})
			atomic.AddUint64(&d.sendFailures, 1)
			if d.metrics != nil {
				d.metrics.SendFailures.Inc()
			}
			return false
		}
		ok = d.transport.Send(batch, batchAgeUS)
	}

	if !ok {
		atomic.AddUint64(&d.sendFailures, 1)
		if d.metrics != nil {
			d.metrics.SendFailures.Inc()
		}
		d.logger.Warn("batch delivery failed",
			zap.Int("batch_size", len(batch)),
			zap.Uint64("batch_age_us", batchAgeUS),
		)
		return false
	}

	atomic.AddUint64(&d.batchesSent, 1)
	atomic.AddUint64(&d.ordersConsumed, uint64(len(batch)))
	atomic.AddUint64(&d.totalLatencyUS, batchAgeUS)
	if d.metrics != nil {
		d.metrics.BatchesSent.Inc()
		d.metrics.OrdersConsumed.Add(float64(len(batch)))
		d.metrics.BatchAgeUS.Observe(float64(batchAgeUS))
	}

	d.logger.Debug("batch delivered",
		zap.String("batch_id", uuid.New().String()),
		zap.Int("batch_size", len(batch)),
		zap.Uint64("batch_age_us", batchAgeUS),
	)
	return true
}

// BatchesSent returns the number of delivered batches.
func (d *Dispatcher) BatchesSent() uint64 { return atomic.LoadUint64(&d.batchesSent) }

// OrdersConsumed returns the number of orders in delivered batches.
func (d *Dispatcher) OrdersConsumed() uint64 { return atomic.LoadUint64(&d.ordersConsumed) }

// TotalLatencyUS returns the accumulated age of delivered batches.
func (d *Dispatcher) TotalLatencyUS() uint64 { return atomic.LoadUint64(&d.totalLatencyUS) }

// SendFailures returns the number of undelivered batches.
func (d *Dispatcher) SendFailures() uint64 { return atomic.LoadUint64(&d.sendFailures) }

// AvgBatchLatencyUS returns the mean age of delivered batches, 0 when none.
func (d *Dispatcher) AvgBatchLatencyUS() float64 {
	batches := d.BatchesSent()
	if batches == 0 {
		return 0
	}
	return float64(d.TotalLatencyUS()) / float64(batches)
}

// TransportName returns the active transport's name, "none" without one.
func (d *Dispatcher) TransportName() string {
	if !d.networkEnabled || d.transport == nil {
		return "none"
	}
	return d.transport.Name()
}
