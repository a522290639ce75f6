// Package query ranks stored songs against a hummed or sung clip.
package query

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/himanishpuri/HumDNA/pkg/humdna/dtw"
	"github.com/himanishpuri/HumDNA/pkg/humdna/melody"
	"github.com/himanishpuri/HumDNA/pkg/humdna/store"
)

// ErrNoMelody is returned when a query clip has no usable contour.
var ErrNoMelody = errors.New("no melody detected in query")

// DefaultTopK is the number of results returned when the caller asks for
// zero or fewer.
const DefaultTopK = 5

// QueryID names the transient signature built from a query clip.
const QueryID = "query"

// Result is one ranked candidate.
type Result struct {
	ID         string
	Distance   float64
	Similarity float64
}

// Report holds the ranked results and diagnostics about the query.
type Report struct {
	Results       []Result
	Candidates    int // songs compared
	PitchFrames   int
	ValidFrames   int
	ValidRatio    float64
	ContourLength int
}

// Config tunes a Matcher. Zero values select defaults.
type Config struct {
	TopK        int
	Workers     int
	MaxDuration float64 // seconds of query audio analysed, 0 for all
}

// Matcher compares queries against every signature in a store.
type Matcher struct {
	store     *store.Store
	extractor *melody.Extractor
	aligner   *dtw.Matcher
	cfg       Config
}

func New(st *store.Store, extractor *melody.Extractor, aligner *dtw.Matcher, cfg Config) *Matcher {
	if extractor == nil {
		extractor = st.Extractor()
	}
	if aligner == nil {
		aligner = dtw.NewMatcher(dtw.DefaultWindow)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Matcher{store: st, extractor: extractor, aligner: aligner, cfg: cfg}
}

// Similarity maps a distance to (0, 1]; +Inf maps to 0.
func Similarity(distance float64) float64 {
	if math.IsInf(distance, 1) || math.IsNaN(distance) {
		return 0
	}
	return 1 / (1 + distance)
}

// Match extracts the signature of samples and ranks the store against it.
func (m *Matcher) Match(ctx context.Context, samples []float64, sampleRate, topK int) (*Report, error) {
	sig, err := m.extractor.Extract(QueryID, samples, sampleRate, m.cfg.MaxDuration)
	if err != nil {
		return nil, err
	}
	return m.MatchSignature(ctx, sig, topK)
}

// MatchSignature ranks the store against an already extracted signature.
// Songs with an empty contour score zero rather than failing the query.
func (m *Matcher) MatchSignature(ctx context.Context, sig *melody.Signature, topK int) (*Report, error) {
	if topK <= 0 {
		topK = m.cfg.TopK
	}

	valid := sig.ValidFrames()
	report := &Report{
		PitchFrames:   len(sig.RawPitch),
		ValidFrames:   valid,
		ContourLength: len(sig.Contour),
	}
	if len(sig.RawPitch) > 0 {
		report.ValidRatio = float64(valid) / float64(len(sig.RawPitch))
	}
	if len(sig.Contour) == 0 {
		return report, ErrNoMelody
	}

	refs := m.store.Contours()
	results := make([]Result, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for i, ref := range refs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d := m.aligner.Distance(sig.Contour, ref.Contour)
			results[i] = Result{ID: ref.ID, Distance: d, Similarity: Similarity(d)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("matching query: %w", err)
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Similarity > results[b].Similarity
	})
	if len(results) > topK {
		results = results[:topK]
	}

	report.Results = results
	report.Candidates = len(refs)
	return report, nil
}
