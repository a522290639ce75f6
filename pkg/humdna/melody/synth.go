package melody

import (
	"math"

	"github.com/himanishpuri/HumDNA/internal/dsp"
)

const humPeak = 0.8

// SynthesizeHum renders a hum-like sine wave that follows the pitch of
// samples and the loudness envelope of the input. The result has the
// analysis sample rate of the extractor and peaks at 0.8.
func (e *PitchExtractor) SynthesizeHum(samples []float64, sampleRate int) ([]float64, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}
	rate := e.params.SampleRate
	if sampleRate > 0 && sampleRate != rate {
		samples = dsp.Resample(samples, sampleRate, rate)
	}

	estimates, err := e.Track(samples, rate, 0)
	if err != nil {
		return nil, err
	}
	pitch := fillAll(estimates)
	if pitch == nil {
		return make([]float64, len(samples)), nil
	}

	hop := e.params.HopLength
	out := make([]float64, len(samples))
	var phase float64
	for i, hz := range pitch {
		start, end := frameSpan(i, len(pitch), hop, len(out))
		step := 2 * math.Pi * hz / float64(rate)
		for j := start; j < end; j++ {
			out[j] = math.Sin(phase)
			phase += step
		}
		phase = math.Mod(phase, 2*math.Pi)
	}

	envelope := e.rmsEnvelope(samples)
	var peak float64
	for j := range out {
		frame := float64(j) / float64(hop)
		k := min(int(frame), len(envelope)-1)
		amp := envelope[k]
		if k+1 < len(envelope) {
			frac := frame - float64(k)
			amp = envelope[k]*(1-frac) + envelope[k+1]*frac
		}
		out[j] *= amp
		peak = math.Max(peak, math.Abs(out[j]))
	}
	if peak > 0 {
		scale := humPeak / peak
		for j := range out {
			out[j] *= scale
		}
	}
	return out, nil
}

// frameSpan returns the samples painted with the pitch of frame i. Frames are
// centred on i*hop, so each covers half a hop either side; the first and last
// frames reach the ends of the signal.
func frameSpan(i, frames, hop, n int) (start, end int) {
	start = max(0, i*hop-hop/2)
	end = min(n, (i+1)*hop-hop/2)
	if i == frames-1 {
		end = n
	}
	if start > end {
		start = end
	}
	return start, end
}

// fillAll interpolates every unvoiced frame from its voiced neighbours and
// holds the first and last voiced values at the edges. It returns nil when
// nothing is voiced.
func fillAll(estimates []Estimate) []float64 {
	frames := make([]PitchFrame, len(estimates))
	for i, est := range estimates {
		if est.Voiced {
			frames[i] = Voiced(est.Hz)
		}
	}
	filled := interpolateGaps(frames, len(frames))

	first, last := -1, -1
	for i, f := range filled {
		if f.Valid {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return nil
	}

	out := make([]float64, len(filled))
	for i := range filled {
		switch {
		case i < first:
			out[i] = filled[first].Hz
		case i > last:
			out[i] = filled[last].Hz
		default:
			out[i] = filled[i].Hz
		}
	}
	return out
}

// rmsEnvelope returns one centred RMS value per hop.
func (e *PitchExtractor) rmsEnvelope(samples []float64) []float64 {
	hop, frameLen := e.params.HopLength, e.params.FrameLength
	count := len(samples)/hop + 1
	out := make([]float64, count)
	for i := range out {
		lo := max(0, i*hop-frameLen/2)
		hi := min(len(samples), i*hop+frameLen/2)
		if lo < hi {
			out[i] = dsp.RMS(samples[lo:hi])
		}
	}
	return out
}
