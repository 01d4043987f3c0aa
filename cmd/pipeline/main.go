package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/ismaiel54/low-latency-order-pipeline/internal/config"
	"github.com/ismaiel54/low-latency-order-pipeline/internal/egress"
	"github.com/ismaiel54/low-latency-order-pipeline/internal/logging"
	"github.com/ismaiel54/low-latency-order-pipeline/internal/observability"
	"github.com/ismaiel54/low-latency-order-pipeline/internal/pipeline"
	"github.com/ismaiel54/low-latency-order-pipeline/internal/ring"
	"github.com/ismaiel54/low-latency-order-pipeline/internal/telemetry"
)

func main() {
	cfg, err := config.ParseFlags("pipeline", os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger("pipeline", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	runID := uuid.New().String()
	logger.Info("starting order pipeline",
		zap.String("run_id", runID),
		zap.Int("producers", cfg.Producers),
		zap.Int("consumers", cfg.Consumers),
		zap.Int("buffer_size", cfg.BufferSize),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Int("rate", cfg.Rate),
		zap.Duration("runtime", cfg.Runtime),
		zap.Bool("batching", cfg.EnableBatching),
		zap.Bool("network", cfg.EnableNetwork),
		zap.String("transport", string(cfg.Transport)),
	)

	r, err := ring.New(cfg.BufferSize)
	if err != nil {
		logger.Fatal("failed to create ring", zap.Error(err))
	}

	metrics := telemetry.NewMetrics()

	var journal *telemetry.Journal
	if cfg.JournalPath != "" {
		journal, err = telemetry.OpenJournal(cfg.JournalPath, runID)
		if err != nil {
			logger.Fatal("failed to open run journal", zap.Error(err))
		}
		defer journal.Close()
		logger.Info("run journal opened", zap.String("path", cfg.JournalPath))
	}

	transport := buildTransport(cfg, logger)
	dispatcher := egress.NewDispatcher(transport, cfg.EnableNetwork, logger, metrics)

	// Observability listeners: /healthz + /metrics over HTTP, the standard
	// health service over gRPC.
	healthChecker := observability.NewHealthChecker(logger)
	var grpcServer *grpc.Server
	if cfg.EnableObservability {
		grpcServer = grpc.NewServer()
		healthChecker.RegisterGRPC(grpcServer)

		grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("failed to listen on gRPC port", zap.Error(err))
		}
		go func() {
			logger.Info("gRPC health server listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcServer.Serve(grpcListener); err != nil {
				logger.Error("gRPC server error", zap.Error(err))
			}
		}()

		go func() {
			if err := healthChecker.StartHTTPServer(cfg.HTTPAddr, metrics.Handler()); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", zap.Error(err))
			}
		}()
	}

	p := pipeline.New(cfg, logger, r, dispatcher, metrics, journal)

	// SIGINT/SIGTERM and the runtime deadline both end the run.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Runtime)
	defer cancel()

	healthChecker.SetReady(true)
	p.Run(ctx)
	healthChecker.SetReady(false)

	if cfg.EnableObservability {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := healthChecker.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down health checker", zap.Error(err))
		}
		grpcServer.GracefulStop()
	}

	printSummary(p, dispatcher, transport, cfg)
	logger.Info("order pipeline stopped", zap.String("run_id", runID))
}

func buildTransport(cfg config.RuntimeConfig, logger *zap.Logger) egress.Transport {
	if !cfg.EnableNetwork {
		return nil
	}
	switch cfg.Transport {
	case config.TransportBestEffort:
		return egress.NewBestEffort(egress.DefaultBestEffortConfig(), logger)
	case config.TransportInstant:
		return egress.NewInstant(egress.DefaultInstantConfig(), logger)
	default:
		return egress.NewReliable(egress.DefaultReliableConfig(), logger)
	}
}

func printSummary(p *pipeline.Pipeline, d *egress.Dispatcher, transport egress.Transport, cfg config.RuntimeConfig) {
	fmt.Printf("\n=== Final Statistics ===\n")
	fmt.Printf("Total orders produced: %d\n", p.OrdersProduced())
	fmt.Printf("Total orders consumed: %d\n", d.OrdersConsumed())
	fmt.Printf("Total batches sent: %d\n", d.BatchesSent())
	fmt.Printf("Batches undelivered: %d\n", d.SendFailures())
	fmt.Printf("Ring-full drops: %d\n", p.RingFullDrops())
	if d.BatchesSent() > 0 {
		fmt.Printf("Average batch latency: %.2fus\n", d.AvgBatchLatencyUS())
	}

	if !cfg.EnableNetwork || transport == nil {
		fmt.Printf("========================\n")
		return
	}

	switch tr := transport.(type) {
	case *egress.Reliable:
		s := tr.Stats()
		fmt.Printf("\n=== TCP Network Statistics ===\n")
		fmt.Printf("Active connections: %d\n", s.ActiveConnections)
		fmt.Printf("Dropped packets: %d\n", s.DroppedPackets)
		fmt.Printf("Retransmissions: %d\n", s.Retransmissions)
		fmt.Printf("Base delay: %dms\n", s.BaseDelayMS)
		fmt.Printf("Drop rate: %.3f\n", s.DropRate)
	case *egress.BestEffort:
		s := tr.Stats()
		fmt.Printf("\n=== UDP Network Statistics ===\n")
		fmt.Printf("Packets sent: %d\n", s.PacketsSent)
		fmt.Printf("Packets dropped: %d\n", s.PacketsDropped)
		fmt.Printf("Average delay: %.2fus\n", s.AvgDelayUS)
		fmt.Printf("Actual drop rate: %.3f\n", s.ActualDropRate)
		fmt.Printf("Base delay: %dus\n", s.BaseDelayUS)
		fmt.Printf("Configured drop rate: %.3f\n", s.DropRate)
	case *egress.Instant:
		s := tr.Stats()
		fmt.Printf("\n=== SHM Network Statistics ===\n")
		fmt.Printf("Messages sent: %d\n", s.MessagesSent)
		fmt.Printf("Average delay: %.2fns\n", s.AvgDelayNS)
		fmt.Printf("Min delay: %dns\n", s.MinDelayNS)
		fmt.Printf("Max delay: %dns\n", s.MaxDelayNS)
		fmt.Printf("Noise enabled: %v\n", s.NoiseEnabled)
		fmt.Printf("Noise range: %dns\n", s.NoiseRangeNS)
	}
	fmt.Printf("==============================\n")
}
