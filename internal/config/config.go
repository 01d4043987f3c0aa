package config

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// TransportKind selects the egress model for the whole process.
type TransportKind string

const (
	TransportReliable   TransportKind = "tcp"
	TransportBestEffort TransportKind = "udp"
	TransportInstant    TransportKind = "shm"
)

// RuntimeConfig holds the pipeline's runtime configuration.
type RuntimeConfig struct {
	// Worker topology
	Producers int
	Consumers int

	// Ring capacity; must be a power of two
	BufferSize int

	// Batching
	BatchSize      int
	BatchTimeout   time.Duration
	EnableBatching bool

	// Aggregate produce rate, orders per second across all producers
	Rate int

	// Wall-clock runtime before shutdown
	Runtime time.Duration

	// Egress
	EnableNetwork bool
	Transport     TransportKind

	// Log level: debug, info, warn, error
	LogLevel string

	// Observability listeners and the run journal
	HTTPAddr            string
	GRPCAddr            string
	JournalPath         string
	EnableObservability bool
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() RuntimeConfig {
	return RuntimeConfig{
		Producers:           2,
		Consumers:           3,
		BufferSize:          1024,
		BatchSize:           10,
		BatchTimeout:        time.Millisecond,
		EnableBatching:      true,
		Rate:                10000,
		Runtime:             60 * time.Second,
		EnableNetwork:       true,
		Transport:           TransportReliable,
		LogLevel:            getEnvAsString("LOG_LEVEL", "info"),
		HTTPAddr:            getEnvAsString("PIPELINE_HTTP_ADDR", ":8080"),
		GRPCAddr:            getEnvAsString("PIPELINE_GRPC_ADDR", ":50051"),
		JournalPath:         getEnvAsString("PIPELINE_JOURNAL_PATH", "data/pipeline.db"),
		EnableObservability: getEnvAsBool("PIPELINE_OBSERVABILITY", true),
	}
}

// ParseFlags populates a RuntimeConfig from command-line arguments.
func ParseFlags(name string, args []string) (RuntimeConfig, error) {
	cfg := DefaultConfig()

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	runtimeSeconds := fs.Int("runtime", int(cfg.Runtime/time.Second), "Runtime in seconds")
	network := fs.String("network", string(cfg.Transport), "Network type: tcp, udp, shm")
	noBatching := fs.Bool("no-batching", false, "Disable batching")
	noNetwork := fs.Bool("no-network", false, "Disable network simulation")

	fs.IntVar(&cfg.Producers, "producers", cfg.Producers, "Number of producer workers")
	fs.IntVar(&cfg.Consumers, "consumers", cfg.Consumers, "Number of consumer workers")
	fs.IntVar(&cfg.BufferSize, "buffer-size", cfg.BufferSize, "Ring buffer size (power of two)")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Batch size")
	fs.IntVar(&cfg.Rate, "rate", cfg.Rate, "Aggregate orders per second")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.Runtime = time.Duration(*runtimeSeconds) * time.Second
	cfg.Transport = TransportKind(*network)
	cfg.EnableBatching = !*noBatching
	cfg.EnableNetwork = !*noNetwork

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate ensures the configuration can start a pipeline.
func Validate(cfg RuntimeConfig) error {
	if cfg.Producers <= 0 {
		return fmt.Errorf("producers must be > 0, got %d", cfg.Producers)
	}
	if cfg.Consumers <= 0 {
		return fmt.Errorf("consumers must be > 0, got %d", cfg.Consumers)
	}
	if !isPowerOfTwo(cfg.BufferSize) {
		return fmt.Errorf("buffer-size must be a power of two >= 2, got %d", cfg.BufferSize)
	}
	if cfg.BatchSize < 1 {
		return fmt.Errorf("batch-size must be >= 1, got %d", cfg.BatchSize)
	}
	if cfg.Rate <= 0 {
		return fmt.Errorf("rate must be > 0, got %d", cfg.Rate)
	}
	if cfg.Runtime <= 0 {
		return fmt.Errorf("runtime must be > 0, got %s", cfg.Runtime)
	}
	switch cfg.Transport {
	case TransportReliable, TransportBestEffort, TransportInstant:
	default:
		return fmt.Errorf("unknown network type %q (want tcp, udp or shm)", cfg.Transport)
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n >= 2 && n&(n-1) == 0
}

func getEnvAsString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "True":
		return true
	case "0", "false", "FALSE", "False":
		return false
	default:
		return defaultValue
	}
}
