package traverse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvariant/tranchefilter/internal/genome"
)

type span struct {
	loc genome.Locus
	id  string
}

func (s *span) Loc() genome.Locus { return s.loc }

type spanSource struct {
	entries []*span
	next    int
}

func (s *spanSource) Next() (Interval, error) {
	if s.next >= len(s.entries) {
		return nil, nil
	}
	e := s.entries[s.next]
	s.next++
	return e, nil
}

func ids(entries []Interval) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.(*span).id)
	}
	return out
}

func TestLookaheadQueueSeek(t *testing.T) {
	t.Parallel()

	d := genome.NewDictionary()
	source := &spanSource{entries: []*span{
		{d.Locus("chr1", 10, 10), "a"},
		{d.Locus("chr1", 50, 120), "b"},
		{d.Locus("chr1", 100, 100), "c"},
		{d.Locus("chr2", 5, 5), "d"},
	}}
	q := NewLookaheadQueue(source)

	require.NoError(t, q.Seek(d.Locus("chr1", 10, 10)))
	assert.Equal(t, []string{"a"}, ids(q.Overlapping()))

	// The long entry "b" overlaps both of the next two sites.
	require.NoError(t, q.Seek(d.Locus("chr1", 60, 60)))
	assert.Equal(t, []string{"b"}, ids(q.Overlapping()))

	require.NoError(t, q.Seek(d.Locus("chr1", 100, 100)))
	assert.Equal(t, []string{"b", "c"}, ids(q.Overlapping()))

	// Moving to the next contig discards everything buffered on chr1.
	require.NoError(t, q.Seek(d.Locus("chr2", 5, 5)))
	assert.Equal(t, []string{"d"}, ids(q.Overlapping()))
}

func TestLookaheadQueueEmptySites(t *testing.T) {
	t.Parallel()

	d := genome.NewDictionary()
	source := &spanSource{entries: []*span{
		{d.Locus("chr1", 100, 100), "a"},
	}}
	q := NewLookaheadQueue(source)

	require.NoError(t, q.Seek(d.Locus("chr1", 10, 10)))
	overlapping := q.Overlapping()
	require.NotNil(t, overlapping, "a site with no auxiliary data is a normal empty case")
	assert.Empty(t, overlapping)

	// Entries skipped over are never surfaced later.
	require.NoError(t, q.Seek(d.Locus("chr1", 500, 500)))
	assert.Empty(t, q.Overlapping())
}

func TestLookaheadQueueCoversEveryOverlap(t *testing.T) {
	t.Parallel()

	d := genome.NewDictionary()
	entries := []*span{
		{d.Locus("chr1", 1, 3), "a"},
		{d.Locus("chr1", 2, 9), "b"},
		{d.Locus("chr1", 5, 5), "c"},
		{d.Locus("chr1", 8, 20), "e"},
		{d.Locus("chr1", 30, 30), "f"},
	}
	q := NewLookaheadQueue(&spanSource{entries: entries})

	seen := make(map[string]bool)
	sites := []int64{2, 5, 9, 30}
	for _, pos := range sites {
		require.NoError(t, q.Seek(d.Locus("chr1", pos, pos)))
		for _, id := range ids(q.Overlapping()) {
			seen[id] = true
		}
	}

	// Union of everything returned == entries overlapping at least one site.
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true, "e": true, "f": true}, seen)
}

func TestLookaheadQueueRejectsBackwardSeek(t *testing.T) {
	t.Parallel()

	d := genome.NewDictionary()
	q := NewLookaheadQueue(&spanSource{})

	require.NoError(t, q.Seek(d.Locus("chr1", 100, 100)))
	err := q.Seek(d.Locus("chr1", 50, 50))
	require.ErrorIs(t, err, ErrOutOfOrder)

	// Seeking to the same coordinate again is allowed.
	q2 := NewLookaheadQueue(&spanSource{})
	require.NoError(t, q2.Seek(d.Locus("chr1", 100, 100)))
	require.NoError(t, q2.Seek(d.Locus("chr1", 100, 100)))

	// Going back a contig is also a violation.
	q3 := NewLookaheadQueue(&spanSource{})
	d.Add("chr2")
	require.NoError(t, q3.Seek(d.Locus("chr2", 1, 1)))
	require.ErrorIs(t, q3.Seek(d.Locus("chr1", 999, 999)), ErrOutOfOrder)
}
