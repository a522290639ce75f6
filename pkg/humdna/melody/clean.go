package melody

import "github.com/himanishpuri/HumDNA/internal/dsp"

// interpolateGaps fills runs of missing frames no longer than maxGap that
// have a valid frame on both sides. Leading and trailing runs stay missing.
func interpolateGaps(frames []PitchFrame, maxGap int) []PitchFrame {
	out := make([]PitchFrame, len(frames))
	copy(out, frames)
	if maxGap <= 0 {
		return out
	}

	prev := -1
	for i, f := range out {
		if !f.Valid {
			continue
		}
		if prev >= 0 && i-prev > 1 && i-prev-1 <= maxGap {
			for j := prev + 1; j < i; j++ {
				out[j] = Voiced(dsp.Lerp(j, prev, i, out[prev].Hz, f.Hz))
			}
		}
		prev = i
	}
	return out
}

// medianFilterValid runs a median filter over the valid frames only, as one
// compressed sequence, and scatters the result back. Nothing changes unless
// there are more valid frames than the window.
func medianFilterValid(frames []PitchFrame, window int) []PitchFrame {
	out := make([]PitchFrame, len(frames))
	copy(out, frames)

	idx := make([]int, 0, len(frames))
	vals := make([]float64, 0, len(frames))
	for i, f := range frames {
		if f.Valid {
			idx = append(idx, i)
			vals = append(vals, f.Hz)
		}
	}
	if len(vals) <= window {
		return out
	}

	filtered := dsp.MedianFilter(vals, window)
	for k, i := range idx {
		out[i] = Voiced(filtered[k])
	}
	return out
}

// ValidHz returns the pitch of every valid frame, in order.
func ValidHz(frames []PitchFrame) []float64 {
	out := make([]float64, 0, len(frames))
	for _, f := range frames {
		if f.Valid {
			out = append(out, f.Hz)
		}
	}
	return out
}
