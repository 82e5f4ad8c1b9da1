package traverse

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/time/rate"

	"github.com/openvariant/tranchefilter/internal/genome"
)

// SiteSource yields the coordinates to visit, in non-decreasing order.
type SiteSource interface {
	// Next returns the next site, or ok=false when the source is exhausted.
	Next() (loc genome.Locus, ok bool, err error)
}

// AuxSource names one auxiliary coordinate-ordered stream.
type AuxSource struct {
	Name   string
	Source Source
}

// Tracker holds the auxiliary entries overlapping one site, keyed by source
// name.
type Tracker struct {
	values map[string][]Interval
}

// Values returns the entries from the named source overlapping the current
// site. Never nil.
func (t *Tracker) Values(name string) []Interval {
	if v, ok := t.values[name]; ok {
		return v
	}
	return []Interval{}
}

// SiteContext is what the walker hooks see at each site.
type SiteContext struct {
	Locus   genome.Locus
	Tracker *Tracker
}

// Hooks are the walker callbacks driven by the engine. Reduce must be
// associative in its accumulator so shard results can be merged in any
// grouping.
type Hooks[M, A any] struct {
	// Zero is the initial accumulator value.
	Zero A
	// Filter decides whether a site is processed. Nil accepts every site.
	Filter func(*SiteContext) bool
	// Map produces a value for one accepted site.
	Map func(*SiteContext) (M, error)
	// Reduce folds a mapped value into the running accumulator.
	Reduce func(M, A) A
}

// Config tunes one traversal.
type Config struct {
	// MaxRecords stops the pass after this many sites; 0 means unbounded.
	// Exceeding it is a logged, non-error truncation for bounded debug runs.
	MaxRecords int64
	// DownsampleTo caps the overlapping entries per auxiliary source at each
	// site, discarding randomly; 0 disables downsampling.
	DownsampleTo int
	// Seed fixes the downsampling RNG; 0 seeds from the clock.
	Seed int64
	// ProgressEvery throttles progress logging; 0 means every 10 seconds.
	ProgressEvery time.Duration
}

// Engine performs one single-threaded forward pass over a site source,
// aligning auxiliary streams at each coordinate and folding walker results
// into an accumulator. An Engine owns all of its state; concurrent passes
// use one Engine per shard.
type Engine[M, A any] struct {
	sites    SiteSource
	aux      []AuxSource
	queues   []*LookaheadQueue
	hooks    Hooks[M, A]
	cfg      Config
	rng      *rand.Rand
	progress *rate.Limiter
	printer  *message.Printer
	nRecords int64
}

// New constructs an Engine over sites with zero or more auxiliary streams.
func New[M, A any](sites SiteSource, aux []AuxSource, hooks Hooks[M, A], cfg Config) *Engine[M, A] {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	every := cfg.ProgressEvery
	if every == 0 {
		every = 10 * time.Second
	}
	queues := make([]*LookaheadQueue, len(aux))
	for i, a := range aux {
		queues[i] = NewLookaheadQueue(a.Source)
	}
	return &Engine[M, A]{
		sites:    sites,
		aux:      aux,
		queues:   queues,
		hooks:    hooks,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(seed)),
		progress: rate.NewLimiter(rate.Every(every), 1),
		printer:  message.NewPrinter(language.English),
	}
}

// Records returns the number of sites processed so far. The site that trips
// the max-record cutoff is not processed and is not counted.
func (e *Engine[M, A]) Records() int64 { return e.nRecords }

// Run drives the pass to completion and returns the final accumulator. On
// error the accumulator built so far is returned alongside it. A max-record
// stop is not an error: the partial accumulator is returned with a warning
// logged.
func (e *Engine[M, A]) Run(ctx context.Context) (A, error) {
	sum := e.hooks.Zero

	for {
		if err := ctx.Err(); err != nil {
			return sum, eris.Wrap(err, "traversal cancelled")
		}

		loc, ok, err := e.sites.Next()
		if err != nil {
			return sum, eris.Wrap(err, "traversal: next site")
		}
		if !ok {
			break
		}

		e.nRecords++
		if e.cfg.MaxRecords > 0 && e.nRecords > e.cfg.MaxRecords {
			e.nRecords--
			zap.L().Warn("maximum record count reached, terminating traversal",
				zap.Int64("max_records", e.cfg.MaxRecords),
				zap.String("at", loc.String()),
			)
			return sum, nil
		}

		tracker := &Tracker{values: make(map[string][]Interval, len(e.aux))}
		for i, q := range e.queues {
			if err := q.Seek(loc); err != nil {
				return sum, eris.Wrapf(err, "traversal: aux source %q", e.aux[i].Name)
			}
			tracker.values[e.aux[i].Name] = e.downsample(q.Overlapping())
		}

		site := &SiteContext{Locus: loc, Tracker: tracker}
		if e.hooks.Filter == nil || e.hooks.Filter(site) {
			m, err := e.hooks.Map(site)
			if err != nil {
				return sum, err
			}
			sum = e.hooks.Reduce(m, sum)
		}

		if e.progress.Allow() {
			zap.L().Info("traversal progress",
				zap.String("at", loc.String()),
				zap.String("sites", e.printer.Sprintf("%d", e.nRecords)),
			)
		}
	}

	zap.L().Debug("traversal done", zap.String("sites", e.printer.Sprintf("%d", e.nRecords)))
	return sum, nil
}

// downsample randomly discards entries beyond the configured per-site cap,
// preserving the original order of the survivors.
func (e *Engine[M, A]) downsample(entries []Interval) []Interval {
	cap := e.cfg.DownsampleTo
	if cap <= 0 || len(entries) <= cap {
		return entries
	}
	picked := e.rng.Perm(len(entries))[:cap]
	sort.Ints(picked)
	out := make([]Interval, 0, cap)
	for _, i := range picked {
		out = append(out, entries[i])
	}
	return out
}
