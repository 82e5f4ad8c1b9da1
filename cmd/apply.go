package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openvariant/tranchefilter/internal/apply"
	"github.com/openvariant/tranchefilter/internal/config"
	"github.com/openvariant/tranchefilter/internal/genome"
	"github.com/openvariant/tranchefilter/internal/model"
	"github.com/openvariant/tranchefilter/internal/store"
	"github.com/openvariant/tranchefilter/internal/tranche"
	"github.com/openvariant/tranchefilter/internal/traverse"
	"github.com/openvariant/tranchefilter/internal/variant"
	"github.com/openvariant/tranchefilter/internal/vcfio"
)

var (
	applyInput         string
	applyRecal         string
	applyTranchesPath  string
	applyOutput        string
	applyLevel         float64
	applyMode          string
	applyIgnoreFilters []string
	applyMaxRecords    int64
	applyDownsample    int
	applySeed          int64
	applyShards        []string
	applyParallelism   int
	applyTrack         bool
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Filter a callset against a trained tranche table",
	Long:  "Reads the raw callset and its recalibration stream in one coordinate-ordered pass, annotates every matching call with its score, and rewrites FILTER to PASS or the tranche the score falls in.",
	RunE:  runApply,
}

func init() {
	applyCmd.Flags().StringVar(&applyInput, "input", "", "raw callset (path or ftp://, gs://, https:// URL; .gz ok)")
	applyCmd.Flags().StringVar(&applyRecal, "recal", "", "recalibration stream with VQSLOD/culprit annotations")
	applyCmd.Flags().StringVar(&applyTranchesPath, "tranches", "", "tranches file from the training step")
	applyCmd.Flags().StringVarP(&applyOutput, "output", "o", "-", "output path ('-' for stdout)")
	applyCmd.Flags().Float64Var(&applyLevel, "ts-filter-level", 0, "truth sensitivity retention level (default from config)")
	applyCmd.Flags().StringVar(&applyMode, "mode", "", "variation class to recalibrate: SNP, INDEL or BOTH")
	applyCmd.Flags().StringSliceVar(&applyIgnoreFilters, "ignore-filter", nil, "treat calls failing this filter as unfiltered (repeatable)")
	applyCmd.Flags().Int64Var(&applyMaxRecords, "max-records", 0, "stop after this many sites (0 = unbounded)")
	applyCmd.Flags().IntVar(&applyDownsample, "downsample", 0, "cap overlapping records per site (0 = off)")
	applyCmd.Flags().Int64Var(&applySeed, "seed", 0, "downsampling RNG seed (0 = from clock)")
	applyCmd.Flags().StringSliceVar(&applyShards, "shard", nil, "restrict to a region and run shards concurrently (repeatable, e.g. chr1 or chr2:1-5000000)")
	applyCmd.Flags().IntVar(&applyParallelism, "parallelism", 0, "concurrent shard limit (default from config)")
	applyCmd.Flags().BoolVar(&applyTrack, "track", false, "record this run in the run registry")

	_ = applyCmd.MarkFlagRequired("input")
	_ = applyCmd.MarkFlagRequired("recal")
	_ = applyCmd.MarkFlagRequired("tranches")

	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	settings := cfg.Apply
	if cmd.Flags().Changed("ts-filter-level") {
		settings.TSFilterLevel = applyLevel
	}
	if applyMode != "" {
		settings.Mode = applyMode
	}
	if len(applyIgnoreFilters) > 0 {
		settings.IgnoreFilters = applyIgnoreFilters
	}
	if cmd.Flags().Changed("max-records") {
		settings.MaxRecords = applyMaxRecords
	}
	if cmd.Flags().Changed("downsample") {
		settings.Downsample = applyDownsample
	}
	if cmd.Flags().Changed("parallelism") {
		settings.Parallelism = applyParallelism
	}

	check := *cfg
	check.Apply = settings
	if err := check.Validate("apply"); err != nil {
		return err
	}

	table, err := loadTable(ctx, applyTranchesPath, settings.TSFilterLevel)
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(applyOutput)
	if err != nil {
		return err
	}
	defer closeOut()
	w := vcfio.NewWriter(out)

	var st storeHandle
	if applyTrack {
		st, err = beginTrackedRun(ctx, settings)
		if err != nil {
			return err
		}
		defer st.close()
	}

	started := time.Now()
	counts, shardCounts, err := executePass(ctx, settings, table, w)

	if flushErr := w.Flush(); err == nil {
		err = flushErr
	}

	result := &model.RunResult{
		Counts:       counts,
		DurationSecs: time.Since(started).Seconds(),
	}
	if err != nil {
		result.Error = err.Error()
	}
	if applyTrack {
		if finishErr := st.finish(ctx, result, shardCounts); finishErr != nil {
			zap.L().Error("record run result", zap.Error(finishErr))
		}
	}
	if err != nil {
		return err
	}

	zap.L().Info("apply complete",
		zap.Int64("sites", counts.Sites),
		zap.Int64("emitted", counts.Emitted),
		zap.Int64("passed", counts.Passed),
		zap.Int64("filtered", counts.Filtered),
		zap.Int64("untouched", counts.Untouched),
		zap.Duration("took", time.Since(started)),
	)
	return nil
}

// loadTable parses the tranches file and retains the tiers at or above level.
func loadTable(ctx context.Context, path string, level float64) (*tranche.Table, error) {
	rc, err := vcfio.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	tranches, err := tranche.Parse(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "tranches %s", path)
	}
	return tranche.NewTable(tranches, level)
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "create %s", path)
	}
	return f, func() { f.Close() }, nil
}

// passReaders is one aligned set of input streams; shards open one set each.
type passReaders struct {
	sites   *vcfio.SiteSource
	calls   *vcfio.CallSource
	recal   *vcfio.RecalSource
	meta    []string
	closers []io.Closer
}

func (p *passReaders) Close() {
	for _, c := range p.closers {
		c.Close()
	}
}

func openPassReaders(ctx context.Context, dict *genome.Dictionary, region *genome.Locus) (*passReaders, error) {
	p := &passReaders{}

	open := func(path string) (*vcfio.Reader, error) {
		rc, err := vcfio.Open(ctx, path)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.closers = append(p.closers, rc)
		r, err := vcfio.NewReader(rc, dict)
		if err != nil {
			p.Close()
			return nil, eris.Wrapf(err, "read %s", path)
		}
		if region != nil {
			r.Restrict(*region)
		}
		return r, nil
	}

	callsReader, err := open(applyInput)
	if err != nil {
		return nil, err
	}
	p.meta = callsReader.Meta()
	p.calls = vcfio.NewCallSource(callsReader)

	sitesReader, err := open(applyInput)
	if err != nil {
		return nil, err
	}
	p.sites = vcfio.NewSiteSource(sitesReader)

	recalReader, err := open(applyRecal)
	if err != nil {
		return nil, err
	}
	p.recal = vcfio.NewRecalSource(recalReader)

	return p, nil
}

func annotateHeader(w *vcfio.Writer, meta []string, table *tranche.Table) {
	w.SetMeta(meta)
	w.AddInfo(variant.KeyVQSLOD, "1", "Float", "Log odds of being a true variant versus being false under the trained gaussian mixture model")
	w.AddInfo(variant.KeyCulprit, "1", "String", "The annotation which was the worst performing in the model, likely the reason why the variant was filtered out")
	for _, line := range table.FilterHeaderLines() {
		w.AddFilter(line.ID, line.Description)
	}
}

// executePass runs the traversal, sharded or not, writing records to w.
func executePass(ctx context.Context, settings config.ApplyConfig, table *tranche.Table, w *vcfio.Writer) (apply.Counts, []model.ShardCounts, error) {
	mode := variant.Mode(settings.Mode)
	engineCfg := traverse.Config{
		MaxRecords:   settings.MaxRecords,
		DownsampleTo: settings.Downsample,
		Seed:         applySeed,
	}

	dict := genome.NewDictionary()

	if len(applyShards) == 0 {
		readers, err := openPassReaders(ctx, dict, nil)
		if err != nil {
			return apply.Counts{}, nil, err
		}
		defer readers.Close()
		annotateHeader(w, readers.meta, table)

		walker := apply.New(table, mode, settings.IgnoreFilters, w)
		engine := traverse.New(readers.sites, []traverse.AuxSource{
			{Name: apply.SourceCalls, Source: readers.calls},
			{Name: apply.SourceRecal, Source: readers.recal},
		}, walker.Hooks(), engineCfg)

		counts, err := engine.Run(ctx)
		return counts, nil, err
	}

	// A throwaway header read registers the contigs so shard regions parse
	// against the input's own dictionary.
	probe, err := openPassReaders(ctx, dict, nil)
	if err != nil {
		return apply.Counts{}, nil, err
	}
	meta := probe.meta
	probe.Close()
	annotateHeader(w, meta, table)

	shards := make([]genome.Locus, 0, len(applyShards))
	shardIndex := make(map[genome.Locus]int, len(applyShards))
	for i, s := range applyShards {
		loc, err := dict.ParseRegion(s)
		if err != nil {
			return apply.Counts{}, nil, err
		}
		shards = append(shards, loc)
		shardIndex[loc] = i
	}

	sinks := make([]*vcfio.BufferedSink, len(shards))
	shardTotals := make([]apply.Counts, len(shards))
	readersByShard := make([]*passReaders, len(shards))
	defer func() {
		for _, r := range readersByShard {
			if r != nil {
				r.Close()
			}
		}
	}()

	build := func(shard genome.Locus) (*traverse.Engine[apply.Counts, apply.Counts], error) {
		readers, err := openPassReaders(ctx, dict, &shard)
		if err != nil {
			return nil, err
		}
		i := shardIndex[shard]
		readersByShard[i] = readers
		sinks[i] = &vcfio.BufferedSink{}
		walker := apply.New(table, mode, settings.IgnoreFilters, sinks[i])

		hooks := walker.Hooks()
		inner := hooks.Reduce
		hooks.Reduce = func(m, sum apply.Counts) apply.Counts {
			shardTotals[i] = shardTotals[i].Add(m)
			return inner(m, sum)
		}

		return traverse.New(readers.sites, []traverse.AuxSource{
			{Name: apply.SourceCalls, Source: readers.calls},
			{Name: apply.SourceRecal, Source: readers.recal},
		}, hooks, engineCfg), nil
	}

	counts, err := traverse.RunShards(ctx, shards, settings.Parallelism, build, apply.TreeReduce)
	if err != nil {
		return counts, nil, err
	}

	// Emission order across shards is the shard order itself.
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		if err := sink.Drain(w); err != nil {
			return counts, nil, err
		}
	}

	shardCounts := make([]model.ShardCounts, len(shards))
	for i, shard := range shards {
		shardCounts[i] = model.ShardCounts{Index: i, Region: shard.String(), Counts: shardTotals[i]}
	}
	return counts, shardCounts, nil
}

// storeHandle ties a tracked run to its registry entry.
type storeHandle struct {
	st    store.Store
	runID string
}

func beginTrackedRun(ctx context.Context, settings config.ApplyConfig) (storeHandle, error) {
	st, err := initStore(ctx)
	if err != nil {
		return storeHandle{}, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return storeHandle{}, err
	}

	run, err := st.CreateRun(ctx, model.RunParams{
		Input:         applyInput,
		Recal:         applyRecal,
		Tranches:      applyTranchesPath,
		Output:        applyOutput,
		Mode:          settings.Mode,
		TSFilterLevel: settings.TSFilterLevel,
		IgnoreFilters: settings.IgnoreFilters,
		MaxRecords:    settings.MaxRecords,
		Downsample:    settings.Downsample,
		Shards:        len(applyShards),
	})
	if err != nil {
		st.Close()
		return storeHandle{}, err
	}
	if err := st.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
		st.Close()
		return storeHandle{}, err
	}

	zap.L().Info("tracking run", zap.String("run_id", run.ID))
	return storeHandle{st: st, runID: run.ID}, nil
}

func (h storeHandle) finish(ctx context.Context, result *model.RunResult, shards []model.ShardCounts) error {
	for i := range shards {
		shards[i].RunID = h.runID
	}
	return h.st.FinishRun(ctx, h.runID, result, shards)
}

func (h storeHandle) close() {
	if h.st != nil {
		h.st.Close()
	}
}
