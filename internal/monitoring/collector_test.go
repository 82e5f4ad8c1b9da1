package monitoring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvariant/tranchefilter/internal/apply"
	"github.com/openvariant/tranchefilter/internal/model"
	"github.com/openvariant/tranchefilter/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedRun(t *testing.T, s store.Store, status model.RunStatus, result *model.RunResult) *model.Run {
	t.Helper()
	ctx := context.Background()
	run, err := s.CreateRun(ctx, model.RunParams{Input: "calls.vcf", Mode: "SNP"})
	require.NoError(t, err)
	switch status {
	case model.RunStatusRunning:
		require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning))
	case model.RunStatusComplete, model.RunStatusFailed:
		if result == nil {
			result = &model.RunResult{}
		}
		if status == model.RunStatusFailed && result.Error == "" {
			result.Error = "boom"
		}
		require.NoError(t, s.FinishRun(ctx, run.ID, result, nil))
	}
	return run
}

func TestCollectorCountsByStatus(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	seedRun(t, s, model.RunStatusQueued, nil)
	seedRun(t, s, model.RunStatusRunning, nil)
	seedRun(t, s, model.RunStatusComplete, &model.RunResult{
		Counts:       apply.Counts{Sites: 100, Filtered: 10},
		DurationSecs: 3,
	})
	seedRun(t, s, model.RunStatusFailed, nil)

	c := NewCollector(s, time.Hour)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.Total)
	assert.Equal(t, 1, snap.Queued)
	assert.Equal(t, 1, snap.Running)
	assert.Equal(t, 1, snap.Complete)
	assert.Equal(t, 1, snap.Failed)
	assert.InDelta(t, 0.5, snap.FailRate, 0.001)
	assert.Equal(t, int64(100), snap.SitesProcessed)
	assert.Equal(t, int64(10), snap.SitesFiltered)
	assert.InDelta(t, 3.0, snap.AvgDurSecs, 0.001)
	assert.Equal(t, 24, snap.LookbackHours)

	// A fresh running run is not stalled with an hour-long threshold.
	assert.Equal(t, 0, snap.Stalled)
}

func TestCollectorFlagsStalledRuns(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	seedRun(t, s, model.RunStatusRunning, nil)

	// A one-nanosecond stall threshold makes any running run count.
	c := NewCollector(s, time.Nanosecond)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Stalled)
}

func TestCollectorEmptyStore(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	c := NewCollector(s, time.Hour)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Total)
	assert.Zero(t, snap.FailRate)
}
