// Package model defines the run-registry records shared by the store
// backends, the CLI and the status server.
package model

import (
	"time"

	"github.com/openvariant/tranchefilter/internal/apply"
)

// RunStatus represents the current state of a filtering run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunParams records what a run was asked to do.
type RunParams struct {
	Input         string   `json:"input"`
	Recal         string   `json:"recal"`
	Tranches      string   `json:"tranches"`
	Output        string   `json:"output"`
	Mode          string   `json:"mode"`
	TSFilterLevel float64  `json:"ts_filter_level"`
	IgnoreFilters []string `json:"ignore_filters,omitempty"`
	MaxRecords    int64    `json:"max_records,omitempty"`
	Downsample    int      `json:"downsample,omitempty"`
	Shards        int      `json:"shards,omitempty"`
}

// Run represents a single filtering run.
type Run struct {
	ID        string     `json:"id"`
	Params    RunParams  `json:"params"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	Counts       apply.Counts `json:"counts"`
	DurationSecs float64      `json:"duration_secs"`
	Error        string       `json:"error,omitempty"`
}

// ShardCounts is the per-shard accumulator kept alongside a finished run, so
// skewed shards are visible after the fact.
type ShardCounts struct {
	RunID  string       `json:"run_id"`
	Index  int          `json:"index"`
	Region string       `json:"region"`
	Counts apply.Counts `json:"counts"`
}
