package traverse

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openvariant/tranchefilter/internal/genome"
)

// BuildEngine constructs the engine for one shard. Each shard gets its own
// engine, queues and accumulator; nothing is shared between shards while
// they run.
type BuildEngine[M, A any] func(shard genome.Locus) (*Engine[M, A], error)

// RunShards traverses disjoint coordinate ranges concurrently and merges
// their accumulators with treeReduce, folding left to right over the shard
// order. treeReduce must be associative so the grouping of merges cannot
// change the result. parallelism <= 1 runs the shards sequentially.
func RunShards[M, A any](
	ctx context.Context,
	shards []genome.Locus,
	parallelism int,
	build BuildEngine[M, A],
	treeReduce func(A, A) A,
) (A, error) {
	var zero A
	if len(shards) == 0 {
		return zero, eris.New("no shards to traverse")
	}
	if parallelism < 1 {
		parallelism = 1
	}

	results := make([]A, len(shards))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, shard := range shards {
		g.Go(func() error {
			engine, err := build(shard)
			if err != nil {
				return eris.Wrapf(err, "shard %s", shard)
			}
			sum, err := engine.Run(gCtx)
			if err != nil {
				return eris.Wrapf(err, "shard %s", shard)
			}
			zap.L().Debug("shard complete",
				zap.String("shard", shard.String()),
				zap.Int64("sites", engine.Records()),
			)
			results[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return zero, err
	}

	sum := results[0]
	for _, r := range results[1:] {
		sum = treeReduce(sum, r)
	}
	return sum, nil
}
