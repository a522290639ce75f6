// Package dsp holds the small numeric kernels shared by the audio decoder and
// the melody extractors.
package dsp

import (
	"math"

	"github.com/RyanBlaney/sonido-sonar/algorithms/common"
	"gonum.org/v1/gonum/floats"
)

var linear = common.NewInterpolator(common.Linear)

// Resample converts samples from one rate to another by linear interpolation.
// The output length is round(len(samples) * to / from); the last input sample
// is held past the end.
func Resample(samples []float64, from, to int) []float64 {
	if from <= 0 || to <= 0 || from == to || len(samples) == 0 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}

	ratio := float64(from) / float64(to)
	n := int(math.Round(float64(len(samples)) * float64(to) / float64(from)))
	out := make([]float64, n)
	for i := range out {
		out[i] = linear.Interpolate(samples, float64(i)*ratio)
	}
	return out
}

// Lerp interpolates linearly between (x0, y0) and (x1, y1) at x.
func Lerp(x, x0, x1 int, y0, y1 float64) float64 {
	if x1 == x0 {
		return y0
	}
	t := float64(x-x0) / float64(x1-x0)
	return y0 + t*(y1-y0)
}

// MedianFilter applies a centred running median with an odd window. Near the
// edges the window is truncated to the samples that exist; a window wider
// than values shrinks to len(values).
func MedianFilter(values []float64, window int) []float64 {
	if window < 2 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	return common.MedianFilter(values, window)
}

// MovingAverage applies a centred moving average. Near the edges the mean is
// taken over the neighbours that exist.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window < 2 {
		copy(out, values)
		return out
	}
	left := (window - 1) / 2
	right := window - 1 - left

	prefix := make([]float64, len(values)+1)
	for i, v := range values {
		prefix[i+1] = prefix[i] + v
	}
	for i := range values {
		lo := max(0, i-left)
		hi := min(len(values), i+right+1)
		out[i] = (prefix[hi] - prefix[lo]) / float64(hi-lo)
	}
	return out
}

// RMS returns the root-mean-square level of frame.
func RMS(frame []float64) float64 {
	if len(frame) == 0 {
		return 0
	}
	return math.Sqrt(floats.Dot(frame, frame) / float64(len(frame)))
}

// ParabolicPeak refines the position of an extremum at idx using its two
// neighbours. It returns idx unchanged at the borders or on a flat curve.
func ParabolicPeak(data []float64, idx int) float64 {
	if idx <= 0 || idx >= len(data)-1 {
		return float64(idx)
	}
	y0, y1, y2 := data[idx-1], data[idx], data[idx+1]
	denom := y0 - 2*y1 + y2
	if denom == 0 {
		return float64(idx)
	}
	shift := 0.5 * (y0 - y2) / denom
	if math.Abs(shift) > 1 {
		return float64(idx)
	}
	return float64(idx) + shift
}
