// Package store persists filtering runs so they can be inspected after the
// fact. Two backends exist: an embedded SQLite file for single-machine use
// and postgres for shared deployments.
package store

import (
	"context"

	"github.com/openvariant/tranchefilter/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Mode   string          `json:"mode,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the run registry.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, params model.RunParams) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	FinishRun(ctx context.Context, runID string, result *model.RunResult, shards []model.ShardCounts) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	ListShardCounts(ctx context.Context, runID string) ([]model.ShardCounts, error)
	StatusCounts(ctx context.Context) (map[model.RunStatus]int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
