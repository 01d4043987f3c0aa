package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_SnapshotsAndSummary(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "journal_test_*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "stats.db")
	j, err := OpenJournal(dbPath, "run-1")
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()

	for i := int64(0); i < 3; i++ {
		err := j.InsertSnapshot(ctx, Snapshot{
			TsUnixMillis:  1000 + i*1000,
			Produced:      uint64(100 * (i + 1)),
			Consumed:      uint64(90 * (i + 1)),
			Batches:       uint64(9 * (i + 1)),
			ThroughputOPS: 90.0,
			AvgLatencyUS:  120.5,
			RingOccupancy: 10,
			RingCapacity:  1024,
		})
		require.NoError(t, err)
	}

	n, err := j.SnapshotCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	sum := Summary{
		StartedUnixMillis:  1000,
		FinishedUnixMillis: 4000,
		Produced:           300,
		Consumed:           270,
		Batches:            27,
		SendFailures:       2,
		RingFullDrops:      5,
		AvgLatencyUS:       118.0,
		Transport:          "tcp",
	}
	require.NoError(t, j.RecordSummary(ctx, sum))

	// Recording again must update in place, not fail on the primary key.
	sum.Consumed = 280
	require.NoError(t, j.RecordSummary(ctx, sum))
}

func TestJournal_SeparateRuns(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "journal_test_*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "stats.db")
	ctx := context.Background()

	j1, err := OpenJournal(dbPath, "run-a")
	require.NoError(t, err)
	require.NoError(t, j1.InsertSnapshot(ctx, Snapshot{TsUnixMillis: 1}))
	require.NoError(t, j1.Close())

	j2, err := OpenJournal(dbPath, "run-b")
	require.NoError(t, err)
	defer j2.Close()

	n, err := j2.SnapshotCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "snapshot counts are per run")
}

func TestMetrics_HandlerAvailable(t *testing.T) {
	m := NewMetrics()
	m.OrdersProduced.Inc()
	m.RingOccupancy.Set(12)
	assert.NotNil(t, m.Handler())
}
