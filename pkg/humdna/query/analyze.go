package query

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/himanishpuri/HumDNA/pkg/humdna/melody"
)

// Analysis describes the melody found in a clip.
type Analysis struct {
	Pitch          []melody.PitchFrame
	Contour        []int8
	Frames         int
	ValidFrames    int
	ValidRatio     float64
	MinHz          float64
	MaxHz          float64
	MeanHz         float64
	StdDevHz       float64
	MeanConfidence float64
	Up             int
	Down           int
	Stable         int
}

// Analyze runs the extractor on samples and summarises the result.
func (m *Matcher) Analyze(samples []float64, sampleRate int) (*Analysis, error) {
	return Analyze(m.extractor, samples, sampleRate, m.cfg.MaxDuration)
}

// Analyze summarises the melody of samples as seen by extractor.
func Analyze(extractor *melody.Extractor, samples []float64, sampleRate int, maxDuration float64) (*Analysis, error) {
	estimates, err := extractor.Pitch.Track(samples, sampleRate, maxDuration)
	if err != nil {
		return nil, err
	}
	frames := extractor.Pitch.Clean(estimates)
	sig := extractor.FromPitch(QueryID, frames, maxDuration)

	a := &Analysis{
		Pitch:   sig.RawPitch,
		Contour: sig.Contour,
		Frames:  len(frames),
	}

	conf := make([]float64, len(estimates))
	for i, est := range estimates {
		conf[i] = est.Confidence
	}
	if len(conf) > 0 {
		a.MeanConfidence = stat.Mean(conf, nil)
	}

	valid := melody.ValidHz(frames)
	a.ValidFrames = len(valid)
	if len(frames) > 0 {
		a.ValidRatio = float64(len(valid)) / float64(len(frames))
	}
	if len(valid) > 0 {
		a.MinHz = floats.Min(valid)
		a.MaxHz = floats.Max(valid)
		a.MeanHz = stat.Mean(valid, nil)
	}
	if len(valid) > 1 {
		a.StdDevHz = stat.StdDev(valid, nil)
	}

	for _, c := range sig.Contour {
		switch c {
		case melody.Up:
			a.Up++
		case melody.Down:
			a.Down++
		default:
			a.Stable++
		}
	}
	return a, nil
}
