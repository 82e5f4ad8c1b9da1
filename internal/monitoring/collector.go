// Package monitoring watches the run registry for unhealthy patterns and
// pushes webhook alerts when thresholds are breached.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/openvariant/tranchefilter/internal/model"
	"github.com/openvariant/tranchefilter/internal/store"
)

// MetricsSnapshot holds a point-in-time view of run registry health.
type MetricsSnapshot struct {
	// Run counts within the lookback window.
	Total    int     `json:"total"`
	Complete int     `json:"complete"`
	Failed   int     `json:"failed"`
	Queued   int     `json:"queued"`
	Running  int     `json:"running"`
	FailRate float64 `json:"fail_rate"`

	// Running runs whose last update is older than the stall threshold.
	Stalled int `json:"stalled"`

	// Aggregates over finished runs in the window.
	SitesProcessed int64   `json:"sites_processed"`
	SitesFiltered  int64   `json:"sites_filtered"`
	AvgDurSecs     float64 `json:"avg_dur_secs"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the run store.
type Collector struct {
	store        store.Store
	stalledAfter time.Duration
}

// NewCollector creates a metrics collector. stalledAfter is how long a
// running run may go without an update before it counts as stalled.
func NewCollector(st store.Store, stalledAfter time.Duration) *Collector {
	return &Collector{store: st, stalledAfter: stalledAfter}
}

// Collect gathers a snapshot over the given lookback window. The time filter
// is applied here rather than in SQL so both store backends behave the same.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	stallCutoff := now.Add(-c.stalledAfter)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var totalDur float64
	var durCount int
	for _, r := range runs {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		snap.Total++
		switch r.Status {
		case model.RunStatusComplete:
			snap.Complete++
		case model.RunStatusFailed:
			snap.Failed++
		case model.RunStatusQueued:
			snap.Queued++
		case model.RunStatusRunning:
			snap.Running++
			if c.stalledAfter > 0 && r.UpdatedAt.Before(stallCutoff) {
				snap.Stalled++
			}
		}
		if r.Result != nil {
			snap.SitesProcessed += r.Result.Counts.Sites
			snap.SitesFiltered += r.Result.Counts.Filtered
			if r.Status == model.RunStatusComplete {
				totalDur += r.Result.DurationSecs
				durCount++
			}
		}
	}

	if finished := snap.Complete + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	if durCount > 0 {
		snap.AvgDurSecs = totalDur / float64(durCount)
	}

	return snap, nil
}
