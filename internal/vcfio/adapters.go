package vcfio

import (
	"github.com/openvariant/tranchefilter/internal/genome"
	"github.com/openvariant/tranchefilter/internal/traverse"
	"github.com/openvariant/tranchefilter/internal/variant"
)

// CallSource feeds a callset Reader into the traversal as an auxiliary
// stream.
type CallSource struct {
	r *Reader
}

// NewCallSource wraps r.
func NewCallSource(r *Reader) *CallSource { return &CallSource{r: r} }

// Next returns the next call, or (nil, nil) when the stream ends.
func (s *CallSource) Next() (traverse.Interval, error) {
	call, err := s.r.Next()
	if err != nil || call == nil {
		return nil, err
	}
	return call, nil
}

// RecalSource reads a recalibration stream. Records share the callset layout;
// the trained score and its culprit annotation ride in INFO. The score text
// is carried verbatim so emission preserves the trainer's formatting.
type RecalSource struct {
	r *Reader
}

// NewRecalSource wraps r.
func NewRecalSource(r *Reader) *RecalSource { return &RecalSource{r: r} }

// Next returns the next datum, or (nil, nil) when the stream ends.
func (s *RecalSource) Next() (traverse.Interval, error) {
	call, err := s.r.Next()
	if err != nil || call == nil {
		return nil, err
	}
	return &variant.RecalDatum{
		Locus:    call.Locus,
		ScoreTxt: call.Info[variant.KeyVQSLOD],
		Culprit:  call.Info[variant.KeyCulprit],
	}, nil
}

// SiteSource drives the traversal: it yields one point locus per distinct
// record start in a callset stream. Several calls starting at the same
// position produce a single site.
type SiteSource struct {
	r       *Reader
	last    genome.Locus
	started bool
}

// NewSiteSource wraps r.
func NewSiteSource(r *Reader) *SiteSource { return &SiteSource{r: r} }

// Next returns the next distinct site. The second result is false when the
// stream ends.
func (s *SiteSource) Next() (genome.Locus, bool, error) {
	for {
		call, err := s.r.Next()
		if err != nil {
			return genome.Locus{}, false, err
		}
		if call == nil {
			return genome.Locus{}, false, nil
		}
		site := genome.Locus{
			Contig: call.Locus.Contig,
			Rank:   call.Locus.Rank,
			Start:  call.Locus.Start,
			Stop:   call.Locus.Start,
		}
		if s.started && site == s.last {
			continue
		}
		s.last = site
		s.started = true
		return site, true, nil
	}
}
