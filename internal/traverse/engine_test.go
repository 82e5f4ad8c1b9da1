package traverse

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvariant/tranchefilter/internal/genome"
)

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

func positions(d *genome.Dictionary, contig string, at ...int64) []genome.Locus {
	loci := make([]genome.Locus, 0, len(at))
	for _, pos := range at {
		loci = append(loci, d.Locus(contig, pos, pos))
	}
	return loci
}

func countingHooks() Hooks[int, int] {
	return Hooks[int, int]{
		Map:    func(*SiteContext) (int, error) { return 1, nil },
		Reduce: func(m, sum int) int { return m + sum },
	}
}

func TestEngineFoldsEverySite(t *testing.T) {
	t.Parallel()

	d := genome.NewDictionary()
	sites := &lociSource{loci: positions(d, "chr1", 1, 2, 3, 4, 5)}
	engine := New(sites, nil, countingHooks(), Config{})

	sum, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, sum)
	assert.Equal(t, int64(5), engine.Records())
}

func TestEngineFilterSkipsSites(t *testing.T) {
	t.Parallel()

	d := genome.NewDictionary()
	sites := &lociSource{loci: positions(d, "chr1", 10, 20, 30, 40)}

	hooks := countingHooks()
	hooks.Filter = func(site *SiteContext) bool { return site.Locus.Start > 20 }
	engine := New(sites, nil, hooks, Config{})

	sum, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum, "filtered sites are counted but not mapped")
	assert.Equal(t, int64(4), engine.Records())
}

func TestEngineMaxRecordsStopsEarly(t *testing.T) {
	t.Parallel()

	d := genome.NewDictionary()
	sites := &lociSource{loci: positions(d, "chr1", 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)}
	engine := New(sites, nil, countingHooks(), Config{MaxRecords: 3})

	sum, err := engine.Run(context.Background())
	require.NoError(t, err, "the record cutoff is a normal termination, not a failure")
	assert.Equal(t, 3, sum, "exactly the cutoff's worth of sites is processed")
	assert.Equal(t, int64(3), engine.Records(), "the site that trips the cutoff is not counted")
}

func TestEngineAlignsAuxSources(t *testing.T) {
	t.Parallel()

	d := genome.NewDictionary()
	sites := &lociSource{loci: positions(d, "chr1", 100, 200)}
	calls := &spanSource{entries: []*span{
		{d.Locus("chr1", 100, 100), "call-a"},
		{d.Locus("chr1", 200, 200), "call-b"},
	}}
	scores := &spanSource{entries: []*span{
		{d.Locus("chr1", 200, 200), "score-b"},
	}}

	var got [][]string
	hooks := Hooks[int, int]{
		Map: func(site *SiteContext) (int, error) {
			got = append(got, append(ids(site.Tracker.Values("calls")), ids(site.Tracker.Values("scores"))...))
			require.NotNil(t, site.Tracker.Values("missing"))
			return 1, nil
		},
		Reduce: func(m, sum int) int { return m + sum },
	}

	engine := New(sites, []AuxSource{
		{Name: "calls", Source: calls},
		{Name: "scores", Source: scores},
	}, hooks, Config{})

	_, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"call-a"}, {"call-b", "score-b"}}, got)
}

func TestEngineDownsamples(t *testing.T) {
	t.Parallel()

	d := genome.NewDictionary()
	entries := make([]*span, 10)
	for i := range entries {
		entries[i] = &span{d.Locus("chr1", 100, 100), string(rune('a' + i))}
	}
	sites := &lociSource{loci: positions(d, "chr1", 100)}

	var kept []string
	hooks := Hooks[int, int]{
		Map: func(site *SiteContext) (int, error) {
			kept = ids(site.Tracker.Values("pile"))
			return 1, nil
		},
		Reduce: func(m, sum int) int { return m + sum },
	}

	engine := New(sites,
		[]AuxSource{{Name: "pile", Source: &spanSource{entries: entries}}},
		hooks, Config{DownsampleTo: 4, Seed: 42})

	_, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, kept, 4)

	// Survivors keep their original relative order.
	for i := 1; i < len(kept); i++ {
		assert.Less(t, kept[i-1], kept[i])
	}
}

func TestEngineMapErrorAborts(t *testing.T) {
	t.Parallel()

	d := genome.NewDictionary()
	sites := &lociSource{loci: positions(d, "chr1", 1, 2, 3)}

	boom := eris.New("bad record")
	calls := 0
	hooks := Hooks[int, int]{
		Map: func(*SiteContext) (int, error) {
			calls++
			if calls == 2 {
				return 0, boom
			}
			return 1, nil
		},
		Reduce: func(m, sum int) int { return m + sum },
	}

	engine := New(sites, nil, hooks, Config{})
	sum, err := engine.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, sum, "the partial accumulator is returned with the error")
}

func TestEngineCancelled(t *testing.T) {
	t.Parallel()

	d := genome.NewDictionary()
	sites := &lociSource{loci: positions(d, "chr1", 1, 2, 3)}
	engine := New(sites, nil, countingHooks(), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
