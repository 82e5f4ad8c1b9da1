package variant

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/openvariant/tranchefilter/internal/genome"
)

// RecalDatum is one entry of the recalibration stream: the trained score for
// the call ending at Locus, plus the annotation most responsible for it. The
// score is kept in its original text form so emitting it loses no precision.
type RecalDatum struct {
	Locus    genome.Locus
	ScoreTxt string
	Culprit  string
}

// Loc returns the datum's locus. Satisfies traverse.Interval.
func (d *RecalDatum) Loc() genome.Locus { return d.Locus }

// Score parses the datum's score text.
func (d *RecalDatum) Score() (float64, error) {
	return strconv.ParseFloat(d.ScoreTxt, 64)
}

// JoinMismatchError reports a call that cannot be paired with a usable
// recalibration datum. The two streams are co-derived from the same callset,
// so a mismatch means the inputs are inconsistent and the pass must abort.
type JoinMismatchError struct {
	Locus  genome.Locus
	ID     string
	Reason string
}

func (e *JoinMismatchError) Error() string {
	id := e.ID
	if id == "" || id == "." {
		id = e.Locus.String()
	} else {
		id = fmt.Sprintf("%s at %s", id, e.Locus)
	}
	return fmt.Sprintf("recalibration join failed for %s: %s", id, e.Reason)
}

// MatchRecal returns the first candidate whose end coordinate equals the
// call's end coordinate, verifying the score is present and numeric. Every
// failure mode is a *JoinMismatchError naming the offending call.
func MatchRecal(call *Call, candidates []*RecalDatum) (*RecalDatum, error) {
	for _, datum := range candidates {
		if !call.Locus.SameEnd(datum.Locus) {
			continue
		}
		if datum.ScoreTxt == "" || datum.ScoreTxt == "." {
			return nil, &JoinMismatchError{Locus: call.Locus, ID: call.ID,
				Reason: "matching recalibration record has no score"}
		}
		if _, err := datum.Score(); err != nil {
			return nil, &JoinMismatchError{Locus: call.Locus, ID: call.ID,
				Reason: fmt.Sprintf("score %q is not numeric", datum.ScoreTxt)}
		}
		return datum, nil
	}
	return nil, &JoinMismatchError{Locus: call.Locus, ID: call.ID,
		Reason: "no recalibration record at this coordinate; were both inputs produced from the same callset?"}
}

// AsJoinMismatch unwraps err to a JoinMismatchError if there is one.
func AsJoinMismatch(err error) (*JoinMismatchError, bool) {
	var jm *JoinMismatchError
	ok := errors.As(err, &jm)
	return jm, ok
}
