// Package melody turns audio into melody signatures: a per-frame fundamental
// frequency track and the up/down/stable contour derived from it.
package melody

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/himanishpuri/HumDNA/internal/dsp"
)

// ErrEmptyAudio is returned when there are no samples to analyse.
var ErrEmptyAudio = errors.New("empty audio")

// PitchFrame is one analysis frame of a pitch track. Hz is meaningful only
// when Valid is set.
type PitchFrame struct {
	Hz    float64
	Valid bool
}

// Missing is the frame value used for unpitched frames.
var Missing = PitchFrame{}

// Voiced returns a valid frame at hz.
func Voiced(hz float64) PitchFrame {
	return PitchFrame{Hz: hz, Valid: true}
}

// PitchParams configures the pitch tracker and the cleaning stages.
type PitchParams struct {
	SampleRate          int     // analysis rate, input is resampled to it
	FrameLength         int     // samples per analysis frame
	HopLength           int     // samples between frame centres
	FMin                float64 // lowest detectable pitch (Hz)
	FMax                float64 // highest detectable pitch (Hz)
	YinThreshold        float64 // CMNDF dip that counts as voiced
	SilenceRMS          float64 // Hann-weighted RMS below which a frame is silent
	ConfidenceThreshold float64 // frames below this confidence are dropped
	MaxGap              int     // longest missing run that gets interpolated
	MedianWindow        int     // odd median filter width over valid frames
}

// DefaultPitchParams is tuned for sung or hummed melodies.
func DefaultPitchParams() PitchParams {
	return PitchParams{
		SampleRate:          22050,
		FrameLength:         2048,
		HopLength:           512,
		FMin:                80,
		FMax:                800,
		YinThreshold:        0.15,
		SilenceRMS:          1e-3,
		ConfidenceThreshold: 0.3,
		MaxGap:              5,
		MedianWindow:        5,
	}
}

// HummingPitchParams widens the search range to C2..C7.
func HummingPitchParams() PitchParams {
	p := DefaultPitchParams()
	p.FMin = 65.41
	p.FMax = 2093.0
	return p
}

// Estimate is the raw tracker output for one frame, before cleaning.
type Estimate struct {
	Hz         float64
	Voiced     bool
	Confidence float64
}

// PitchExtractor estimates a cleaned pitch track with YIN.
type PitchExtractor struct {
	params  PitchParams
	hann    []float64
	winSum  float64
	fftSize int
	minLag  int
	maxLag  int
}

// NewPitchExtractor builds an extractor, filling zero fields from the
// defaults.
func NewPitchExtractor(p PitchParams) *PitchExtractor {
	d := DefaultPitchParams()
	if p.SampleRate <= 0 {
		p.SampleRate = d.SampleRate
	}
	if p.FrameLength <= 0 {
		p.FrameLength = d.FrameLength
	}
	if p.HopLength <= 0 {
		p.HopLength = d.HopLength
	}
	if p.FMin <= 0 {
		p.FMin = d.FMin
	}
	if p.FMax <= p.FMin {
		p.FMax = math.Max(d.FMax, p.FMin*2)
	}
	if p.YinThreshold <= 0 {
		p.YinThreshold = d.YinThreshold
	}
	if p.MedianWindow <= 0 {
		p.MedianWindow = d.MedianWindow
	}

	half := p.FrameLength / 2
	minLag := max(1, int(math.Floor(float64(p.SampleRate)/p.FMax)))
	maxLag := min(half-1, int(math.Ceil(float64(p.SampleRate)/p.FMin)))
	minLag = max(1, min(minLag, maxLag-1))

	size := 1
	for size < p.FrameLength+half {
		size <<= 1
	}

	hann := window.Hann(p.FrameLength)
	var sum float64
	for _, w := range hann {
		sum += w * w
	}

	return &PitchExtractor{
		params:  p,
		hann:    hann,
		winSum:  sum,
		fftSize: size,
		minLag:  minLag,
		maxLag:  maxLag,
	}
}

// Params returns the effective parameters.
func (e *PitchExtractor) Params() PitchParams {
	return e.params
}

// Extract resamples samples to the analysis rate, caps them at maxDuration
// seconds (when positive) and returns the cleaned pitch track.
func (e *PitchExtractor) Extract(samples []float64, sampleRate int, maxDuration float64) ([]PitchFrame, error) {
	estimates, err := e.Track(samples, sampleRate, maxDuration)
	if err != nil {
		return nil, err
	}
	return e.Clean(estimates), nil
}

// Track returns the uncleaned per-frame estimates.
func (e *PitchExtractor) Track(samples []float64, sampleRate int, maxDuration float64) ([]Estimate, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}
	if sampleRate > 0 && sampleRate != e.params.SampleRate {
		samples = dsp.Resample(samples, sampleRate, e.params.SampleRate)
	}
	if maxDuration > 0 {
		if limit := int(maxDuration * float64(e.params.SampleRate)); limit < len(samples) {
			samples = samples[:limit]
		}
	}
	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}

	frameLen, hop := e.params.FrameLength, e.params.HopLength
	pad := frameLen / 2
	padded := make([]float64, len(samples)+2*pad)
	copy(padded[pad:], samples)

	count := (len(samples) + hop - 1) / hop
	out := make([]Estimate, count)
	frame := make([]float64, frameLen)
	for i := 0; i < count; i++ {
		start := i * hop
		end := min(start+frameLen, len(padded))
		clear(frame)
		copy(frame, padded[start:end])
		out[i] = e.estimate(frame)
	}
	return out, nil
}

// Clean applies the confidence gate, short gap interpolation and the median
// filter to raw estimates.
func (e *PitchExtractor) Clean(estimates []Estimate) []PitchFrame {
	frames := make([]PitchFrame, len(estimates))
	for i, est := range estimates {
		if !est.Voiced || est.Confidence < e.params.ConfidenceThreshold {
			continue
		}
		frames[i] = Voiced(est.Hz)
	}
	frames = interpolateGaps(frames, e.params.MaxGap)
	return medianFilterValid(frames, e.params.MedianWindow)
}

func (e *PitchExtractor) weightedRMS(frame []float64) float64 {
	var sum float64
	for i, x := range frame {
		w := x * e.hann[i]
		sum += w * w
	}
	return math.Sqrt(sum / e.winSum)
}

// estimate runs YIN on one frame. The difference function is computed over
// an integration window of half a frame, using FFT cross-correlation.
func (e *PitchExtractor) estimate(frame []float64) Estimate {
	if e.weightedRMS(frame) < e.params.SilenceRMS {
		return Estimate{}
	}

	w := len(frame) / 2
	head := make([]float64, e.fftSize)
	copy(head, frame[:w])
	body := make([]float64, e.fftSize)
	copy(body, frame)

	a := fft.FFTReal(head)
	b := fft.FFTReal(body)
	for i := range a {
		a[i] = cmplx.Conj(a[i]) * b[i]
	}
	corr := fft.IFFT(a)

	// running energies of x[tau:tau+w]
	energy := make([]float64, e.maxLag+2)
	var e0 float64
	for _, x := range frame[:w] {
		e0 += x * x
	}
	energy[0] = e0
	for tau := 1; tau < len(energy); tau++ {
		out := frame[tau-1]
		in := frame[tau-1+w]
		energy[tau] = energy[tau-1] - out*out + in*in
	}

	cmndf := make([]float64, e.maxLag+2)
	cmndf[0] = 1
	var running float64
	for tau := 1; tau < len(cmndf); tau++ {
		d := e0 + energy[tau] - 2*real(corr[tau])
		if d < 0 {
			d = 0
		}
		running += d
		if running == 0 {
			cmndf[tau] = 1
			continue
		}
		cmndf[tau] = d * float64(tau) / running
	}

	best := -1
	voiced := false
	for tau := e.minLag; tau <= e.maxLag; tau++ {
		if cmndf[tau] < e.params.YinThreshold {
			for tau+1 <= e.maxLag && cmndf[tau+1] < cmndf[tau] {
				tau++
			}
			best = tau
			voiced = true
			break
		}
	}
	if best < 0 {
		best = e.minLag
		for tau := e.minLag + 1; tau <= e.maxLag; tau++ {
			if cmndf[tau] < cmndf[best] {
				best = tau
			}
		}
	}

	period := dsp.ParabolicPeak(cmndf, best)
	if period <= 0 {
		return Estimate{}
	}
	hz := float64(e.params.SampleRate) / period
	confidence := math.Max(0, math.Min(1, 1-cmndf[best]))
	if hz < e.params.FMin || hz > e.params.FMax {
		voiced = false
	}
	return Estimate{Hz: hz, Voiced: voiced, Confidence: confidence}
}
