// Package traverse drives a single forward pass over coordinate-sorted data:
// lookahead buffering of auxiliary streams, per-site downsampling, early
// termination, and merging of results from independently traversed shards.
package traverse

import (
	"github.com/rotisserie/eris"

	"github.com/openvariant/tranchefilter/internal/genome"
)

// Interval is anything anchored to a locus. Auxiliary stream entries
// implement it.
type Interval interface {
	Loc() genome.Locus
}

// Source yields coordinate-ordered intervals, ordered by (rank, start).
// Next returns nil when the source is exhausted. Sources are not
// restartable.
type Source interface {
	Next() (Interval, error)
}

// ErrOutOfOrder is returned by LookaheadQueue.Seek when asked to move
// backwards. It means either the driving traversal or an upstream source
// broke its ordering guarantee, and the pass must abort.
var ErrOutOfOrder = eris.New("coordinate order violation")

// LookaheadQueue keeps a bounded forward window over one coordinate-ordered
// source so that repeated Seek calls never rescan from the beginning. Valid
// only under a monotonic coordinate walk.
type LookaheadQueue struct {
	source  Source
	window  []Interval
	pending Interval
	sought  bool
	last    genome.Locus
	done    bool
}

// NewLookaheadQueue wraps source in a queue positioned before its first
// entry.
func NewLookaheadQueue(source Source) *LookaheadQueue {
	return &LookaheadQueue{source: source}
}

// Seek advances the window to loc: entries strictly before loc are
// discarded, entries starting at or before loc's end are buffered. Seeking
// backwards returns ErrOutOfOrder.
func (q *LookaheadQueue) Seek(loc genome.Locus) error {
	if q.sought && loc.Before(q.last) {
		return eris.Wrapf(ErrOutOfOrder, "seek to %s after %s", loc, q.last)
	}
	q.sought = true
	q.last = loc

	// Drop buffered entries that end before loc.
	kept := q.window[:0]
	for _, e := range q.window {
		if !before(e.Loc(), loc) {
			kept = append(kept, e)
		}
	}
	q.window = kept

	// Pull the source forward until the next entry starts past loc.
	for !q.done {
		if q.pending == nil {
			e, err := q.source.Next()
			if err != nil {
				return eris.Wrap(err, "lookahead: read source")
			}
			if e == nil {
				q.done = true
				break
			}
			q.pending = e
		}

		ploc := q.pending.Loc()
		if ploc.Rank > loc.Rank || (ploc.Rank == loc.Rank && ploc.Start > loc.Stop) {
			break // starts past the current locus, keep for a later seek
		}
		if !before(ploc, loc) {
			q.window = append(q.window, q.pending)
		}
		q.pending = nil
	}
	return nil
}

// Overlapping returns the entries overlapping the locus of the last Seek.
// The result is never nil: a site with no auxiliary data is a normal, empty
// case.
func (q *LookaheadQueue) Overlapping() []Interval {
	out := make([]Interval, 0, len(q.window))
	for _, e := range q.window {
		if e.Loc().Overlaps(q.last) {
			out = append(out, e)
		}
	}
	return out
}

// before reports whether entry locus a lies entirely before b.
func before(a, b genome.Locus) bool {
	return a.Rank < b.Rank || (a.Rank == b.Rank && a.Stop < b.Start)
}
