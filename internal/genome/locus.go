// Package genome defines coordinate types used as join and ordering keys for
// coordinate-sorted variant data.
package genome

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

// Locus is a closed interval on a contig. Rank is the contig's position in
// the sequence dictionary and drives ordering across contigs. Loci are
// immutable values.
type Locus struct {
	Contig string
	Rank   int
	Start  int64
	Stop   int64
}

// Compare orders loci by (rank, start, stop).
func (l Locus) Compare(other Locus) int {
	switch {
	case l.Rank != other.Rank:
		if l.Rank < other.Rank {
			return -1
		}
		return 1
	case l.Start != other.Start:
		if l.Start < other.Start {
			return -1
		}
		return 1
	case l.Stop != other.Stop:
		if l.Stop < other.Stop {
			return -1
		}
		return 1
	}
	return 0
}

// Before reports whether l sorts strictly before other.
func (l Locus) Before(other Locus) bool { return l.Compare(other) < 0 }

// Overlaps reports whether the two loci share at least one position.
func (l Locus) Overlaps(other Locus) bool {
	return l.Rank == other.Rank && l.Start <= other.Stop && other.Start <= l.Stop
}

// SameEnd reports whether both loci end at the same position. This is the
// join key between a raw call and its recalibration datum.
func (l Locus) SameEnd(other Locus) bool {
	return l.Contig == other.Contig && l.Stop == other.Stop
}

func (l Locus) String() string {
	if l.Start == l.Stop {
		return fmt.Sprintf("%s:%d", l.Contig, l.Start)
	}
	return fmt.Sprintf("%s:%d-%d", l.Contig, l.Start, l.Stop)
}

// Dictionary assigns ranks to contig names. Contigs are ranked in the order
// they are added, which for VCF input is header declaration order. Safe for
// concurrent use; shard readers share one Dictionary.
type Dictionary struct {
	mu    sync.RWMutex
	ranks map[string]int
	names []string
}

// NewDictionary creates an empty Dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{ranks: make(map[string]int)}
}

// Add registers a contig if it is not already known and returns its rank.
func (d *Dictionary) Add(contig string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rank, ok := d.ranks[contig]; ok {
		return rank
	}
	rank := len(d.names)
	d.ranks[contig] = rank
	d.names = append(d.names, contig)
	return rank
}

// Rank returns the rank of contig, or -1 if it is unknown.
func (d *Dictionary) Rank(contig string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if rank, ok := d.ranks[contig]; ok {
		return rank
	}
	return -1
}

// Contigs returns the known contig names in rank order.
func (d *Dictionary) Contigs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Locus builds a Locus on contig, registering the contig if needed.
func (d *Dictionary) Locus(contig string, start, stop int64) Locus {
	return Locus{Contig: contig, Rank: d.Add(contig), Start: start, Stop: stop}
}

// ParseRegion parses "contig", "contig:pos" or "contig:start-stop" into a
// Locus using d for the contig rank.
func (d *Dictionary) ParseRegion(s string) (Locus, error) {
	name, span, found := strings.Cut(s, ":")
	if name == "" {
		return Locus{}, eris.Errorf("region %q: empty contig", s)
	}
	if !found {
		return d.Locus(name, 1, maxPosition), nil
	}

	from, to, ranged := strings.Cut(span, "-")
	start, err := strconv.ParseInt(from, 10, 64)
	if err != nil {
		return Locus{}, eris.Wrapf(err, "region %q: parse start", s)
	}
	stop := start
	if ranged {
		stop, err = strconv.ParseInt(to, 10, 64)
		if err != nil {
			return Locus{}, eris.Wrapf(err, "region %q: parse stop", s)
		}
	}
	if start < 1 || stop < start {
		return Locus{}, eris.Errorf("region %q: invalid span", s)
	}
	return d.Locus(name, start, stop), nil
}

const maxPosition = int64(1) << 48
