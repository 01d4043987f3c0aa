package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Snapshot is one per-second view of the pipeline.
type Snapshot struct {
	TsUnixMillis  int64
	Produced      uint64
	Consumed      uint64
	Batches       uint64
	ThroughputOPS float64
	AvgLatencyUS  float64
	RingOccupancy int
	RingCapacity  int
}

// Summary describes a completed run.
type Summary struct {
	StartedUnixMillis  int64
	FinishedUnixMillis int64
	Produced           uint64
	Consumed           uint64
	Batches            uint64
	SendFailures       uint64
	RingFullDrops      uint64
	AvgLatencyUS       float64
	Transport          string
}

// Journal records run snapshots and summaries in a local sqlite database.
type Journal struct {
	db    *sql.DB
	runID string
}

// OpenJournal creates or opens the run journal at path.
func OpenJournal(path, runID string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	j := &Journal{db: db, runID: runID}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run journal migrations: %w", err)
	}
	return j, nil
}

func (j *Journal) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS run_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			ts_unix_millis INTEGER NOT NULL,
			produced INTEGER NOT NULL,
			consumed INTEGER NOT NULL,
			batches INTEGER NOT NULL,
			throughput_ops REAL NOT NULL,
			avg_latency_us REAL NOT NULL,
			ring_occupancy INTEGER NOT NULL,
			ring_capacity INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_run
			ON run_snapshots(run_id, ts_unix_millis)`,
		`CREATE TABLE IF NOT EXISTS run_summaries (
			run_id TEXT PRIMARY KEY,
			started_unix_millis INTEGER NOT NULL,
			finished_unix_millis INTEGER NOT NULL,
			produced INTEGER NOT NULL,
			consumed INTEGER NOT NULL,
			batches INTEGER NOT NULL,
			send_failures INTEGER NOT NULL,
			ring_full_drops INTEGER NOT NULL,
			avg_latency_us REAL NOT NULL,
			transport TEXT NOT NULL
		)`,
	}

	for _, q := range queries {
		if _, err := j.db.Exec(q); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// RunID returns the run this journal writes under.
func (j *Journal) RunID() string { return j.runID }

// InsertSnapshot appends one per-second snapshot for this run.
func (j *Journal) InsertSnapshot(ctx context.Context, s Snapshot) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO run_snapshots
			(run_id, ts_unix_millis, produced, consumed, batches,
			 throughput_ops, avg_latency_us, ring_occupancy, ring_capacity)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.runID, s.TsUnixMillis, s.Produced, s.Consumed, s.Batches,
		s.ThroughputOPS, s.AvgLatencyUS, s.RingOccupancy, s.RingCapacity,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// RecordSummary upserts the final summary row for this run.
func (j *Journal) RecordSummary(ctx context.Context, s Summary) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO run_summaries
			(run_id, started_unix_millis, finished_unix_millis, produced,
			 consumed, batches, send_failures, ring_full_drops,
			 avg_latency_us, transport)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
			finished_unix_millis = excluded.finished_unix_millis,
			produced = excluded.produced,
			consumed = excluded.consumed,
			batches = excluded.batches,
			send_failures = excluded.send_failures,
			ring_full_drops = excluded.ring_full_drops,
			avg_latency_us = excluded.avg_latency_us,
			transport = excluded.transport`,
		j.runID, s.StartedUnixMillis, s.FinishedUnixMillis, s.Produced,
		s.Consumed, s.Batches, s.SendFailures, s.RingFullDrops,
		s.AvgLatencyUS, s.Transport,
	)
	if err != nil {
		return fmt.Errorf("failed to record summary: %w", err)
	}
	return nil
}

// SnapshotCount returns the number of snapshots recorded for this run.
func (j *Journal) SnapshotCount(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM run_snapshots WHERE run_id = ?", j.runID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}
