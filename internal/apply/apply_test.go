package apply

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvariant/tranchefilter/internal/genome"
	"github.com/openvariant/tranchefilter/internal/tranche"
	"github.com/openvariant/tranchefilter/internal/traverse"
	"github.com/openvariant/tranchefilter/internal/variant"
)

type memorySink struct {
	calls []*variant.Call
}

func (s *memorySink) Write(c *variant.Call) error {
	s.calls = append(s.calls, c)
	return nil
}

type sliceSource struct {
	entries []traverse.Interval
	next    int
}

func (s *sliceSource) Next() (traverse.Interval, error) {
	if s.next >= len(s.entries) {
		return nil, nil
	}
	e := s.entries[s.next]
	s.next++
	return e, nil
}

type lociSource struct {
	loci []genome.Locus
	next int
}

func (s *lociSource) Next() (genome.Locus, bool, error) {
	if s.next >= len(s.loci) {
		return genome.Locus{}, false, nil
	}
	loc := s.loci[s.next]
	s.next++
	return loc, true, nil
}

func testTable(t *testing.T) *tranche.Table {
	t.Helper()
	table, err := tranche.NewTable([]tranche.Tranche{
		{Name: "T90", MinScore: 2.0, TruthSensitivity: 90, Mode: variant.ModeSNP},
		{Name: "T99", MinScore: -1.5, TruthSensitivity: 99, Mode: variant.ModeSNP},
		{Name: "T100", MinScore: -5.0, TruthSensitivity: 100, Mode: variant.ModeSNP},
	}, 95)
	require.NoError(t, err)
	return table
}

func snpAt(d *genome.Dictionary, pos int64, id string) *variant.Call {
	return &variant.Call{
		Locus: d.Locus("chr1", pos, pos),
		ID:    id,
		Ref:   "A",
		Alts:  []string{"G"},
		Qual:  "50",
		Info:  map[string]string{"DP": "30"},
	}
}

func recalAt(d *genome.Dictionary, pos int64, score, culprit string) *variant.RecalDatum {
	return &variant.RecalDatum{Locus: d.Locus("chr1", pos, pos), ScoreTxt: score, Culprit: culprit}
}

// runPass traverses the given calls and recal data through a real engine.
func runPass(t *testing.T, w *Walker, d *genome.Dictionary, cfg traverse.Config,
	calls []*variant.Call, recals []*variant.RecalDatum) (Counts, error) {
	t.Helper()

	loci := make([]genome.Locus, 0, len(calls))
	callIvs := make([]traverse.Interval, 0, len(calls))
	for _, c := range calls {
		loci = append(loci, d.Locus(c.Locus.Contig, c.Locus.Start, c.Locus.Start))
		callIvs = append(callIvs, c)
	}
	recalIvs := make([]traverse.Interval, 0, len(recals))
	for _, r := range recals {
		recalIvs = append(recalIvs, r)
	}

	engine := traverse.New(&lociSource{loci: loci}, []traverse.AuxSource{
		{Name: SourceCalls, Source: &sliceSource{entries: callIvs}},
		{Name: SourceRecal, Source: &sliceSource{entries: recalIvs}},
	}, w.Hooks(), cfg)

	return engine.Run(context.Background())
}

func TestWalkerClassifiesScores(t *testing.T) {
	t.Parallel()

	d := genome.NewDictionary()
	sink := &memorySink{}
	w := New(testTable(t), variant.ModeSNP, nil, sink)

	calls := []*variant.Call{
		snpAt(d, 100, "pass-easily"),
		snpAt(d, 200, "pass-borderline"),
		snpAt(d, 300, "below-everything"),
	}
	recals := []*variant.RecalDatum{
		recalAt(d, 100, "3.25", "QD"),
		recalAt(d, 200, "-4.0", "FS"),
		recalAt(d, 300, "-6.0", "MQ"),
	}

	counts, err := runPass(t, w, d, traverse.Config{}, calls, recals)
	require.NoError(t, err)
	require.Len(t, sink.calls, 3)

	assert.Equal(t, []string{"PASS"}, sink.calls[0].Filters)
	assert.Equal(t, "3.25", sink.calls[0].Info[variant.KeyVQSLOD])
	assert.Equal(t, "QD", sink.calls[0].Info[variant.KeyCulprit])

	// Meets the most permissive threshold (-5.0) only, still a pass.
	assert.Equal(t, []string{"PASS"}, sink.calls[1].Filters)

	// Below every retained tranche: lowest tranche name plus "+".
	assert.Equal(t, []string{"T99+"}, sink.calls[2].Filters)

	assert.Equal(t, Counts{Sites: 3, Emitted: 3, Recalibrated: 3, Passed: 2, Filtered: 1}, counts)
}

func TestWalkerEmitsOutOfModeUntouched(t *testing.T) {
	t.Parallel()

	d := genome.NewDictionary()
	sink := &memorySink{}
	w := New(testTable(t), variant.ModeSNP, nil, sink)

	indel := &variant.Call{
		Locus: d.Locus("chr1", 100, 102),
		Ref:   "ATT",
		Alts:  []string{"A"},
		Info:  map[string]string{},
	}

	counts, err := runPass(t, w, d, traverse.Config{}, []*variant.Call{indel}, nil)
	require.NoError(t, err)
	require.Len(t, sink.calls, 1)
	assert.Same(t, indel, sink.calls[0], "out-of-mode calls pass through unannotated")
	assert.Equal(t, Counts{Sites: 1, Emitted: 1, Untouched: 1}, counts)
}

func TestWalkerHonorsIgnoredFilters(t *testing.T) {
	t.Parallel()

	d := genome.NewDictionary()

	prefiltered := snpAt(d, 100, "prefiltered")
	prefiltered.Filters = []string{"LowQual"}
	recals := []*variant.RecalDatum{recalAt(d, 100, "5.0", "QD")}

	t.Run("not ignored: passes through untouched", func(t *testing.T) {
		t.Parallel()
		sink := &memorySink{}
		w := New(testTable(t), variant.ModeSNP, nil, sink)
		counts, err := runPass(t, w, d, traverse.Config{}, []*variant.Call{prefiltered}, recals)
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts.Untouched)
		assert.Equal(t, []string{"LowQual"}, sink.calls[0].Filters)
	})

	t.Run("ignored: recalibrated like an unfiltered call", func(t *testing.T) {
		t.Parallel()
		sink := &memorySink{}
		w := New(testTable(t), variant.ModeSNP, []string{"LowQual"}, sink)
		counts, err := runPass(t, w, d, traverse.Config{}, []*variant.Call{prefiltered}, recals)
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts.Recalibrated)
		assert.Equal(t, []string{"PASS"}, sink.calls[0].Filters)
	})
}

func TestWalkerJoinMismatchIsFatal(t *testing.T) {
	t.Parallel()

	d := genome.NewDictionary()
	sink := &memorySink{}
	w := New(testTable(t), variant.ModeSNP, nil, sink)

	calls := []*variant.Call{snpAt(d, 100, ".")}

	_, err := runPass(t, w, d, traverse.Config{}, calls, nil)
	require.Error(t, err)
	jm, ok := variant.AsJoinMismatch(err)
	require.True(t, ok)
	assert.Equal(t, "chr1:100", jm.Locus.String())
	assert.Empty(t, sink.calls, "nothing is emitted for the mismatched call")
}

func TestWalkerMaxRecordsTruncates(t *testing.T) {
	t.Parallel()

	d := genome.NewDictionary()
	sink := &memorySink{}
	w := New(testTable(t), variant.ModeSNP, nil, sink)

	var calls []*variant.Call
	var recals []*variant.RecalDatum
	for pos := int64(1); pos <= 10; pos++ {
		calls = append(calls, snpAt(d, pos*10, ""))
		recals = append(recals, recalAt(d, pos*10, "3.0", "QD"))
	}

	counts, err := runPass(t, w, d, traverse.Config{MaxRecords: 3}, calls, recals)
	require.NoError(t, err, "the cutoff is a deliberate truncation, not a failure")
	assert.Equal(t, int64(3), counts.Sites)
	assert.Len(t, sink.calls, 3)
}

func TestWalkerShardedPassMerges(t *testing.T) {
	t.Parallel()

	d := genome.NewDictionary()
	table := testTable(t)
	perContig := map[string][]int64{"chr1": {10, 20}, "chr2": {5}}

	shards := []genome.Locus{d.Locus("chr1", 1, 1000), d.Locus("chr2", 1, 1000)}
	sinks := map[string]*memorySink{"chr1": {}, "chr2": {}}

	build := func(shard genome.Locus) (*traverse.Engine[Counts, Counts], error) {
		var (
			loci   []genome.Locus
			calls  []traverse.Interval
			recals []traverse.Interval
		)
		for _, pos := range perContig[shard.Contig] {
			loci = append(loci, d.Locus(shard.Contig, pos, pos))
			call := snpAt(d, pos, "")
			call.Locus = d.Locus(shard.Contig, pos, pos)
			calls = append(calls, call)
			recals = append(recals, &variant.RecalDatum{
				Locus: d.Locus(shard.Contig, pos, pos), ScoreTxt: "3.0", Culprit: "QD",
			})
		}
		w := New(table, variant.ModeSNP, nil, sinks[shard.Contig])
		return traverse.New(&lociSource{loci: loci}, []traverse.AuxSource{
			{Name: SourceCalls, Source: &sliceSource{entries: calls}},
			{Name: SourceRecal, Source: &sliceSource{entries: recals}},
		}, w.Hooks(), traverse.Config{}), nil
	}

	counts, err := traverse.RunShards(context.Background(), shards, 2, build, TreeReduce)
	require.NoError(t, err)
	assert.Equal(t, Counts{Sites: 3, Emitted: 3, Recalibrated: 3, Passed: 3}, counts)
	assert.Len(t, sinks["chr1"].calls, 2)
	assert.Len(t, sinks["chr2"].calls, 1)
}

func TestWalkerHeaderLines(t *testing.T) {
	t.Parallel()

	w := New(testTable(t), variant.ModeSNP, nil, &memorySink{})
	lines := w.HeaderLines()
	require.Len(t, lines, 2)
	assert.Equal(t, "T99", lines[0].ID)
	assert.Equal(t, "T99+", lines[1].ID)
}
