// Package dtw aligns melody contours with banded dynamic time warping.
package dtw

import "math"

// DefaultWindow is the default Sakoe-Chiba band half-width.
const DefaultWindow = 50

// Matcher computes normalised DTW distances between contours. A Window of
// zero or less disables the band.
type Matcher struct {
	Window int
}

func NewMatcher(window int) *Matcher {
	return &Matcher{Window: window}
}

// Cost is the local distance between two contour steps: 0 when equal, 2 when
// they move in opposite directions, 1 otherwise.
func Cost(a, b int8) float64 {
	switch {
	case a == b:
		return 0
	case int(a)*int(b) == -1:
		return 2
	default:
		return 1
	}
}

// Distance returns the DTW cost of aligning query with reference divided by
// len(query)+len(reference). The result is in [0, 2] for comparable inputs
// and +Inf when either side is empty.
func (m *Matcher) Distance(query, reference []int8) float64 {
	n, k := len(query), len(reference)
	if n == 0 || k == 0 {
		return math.Inf(1)
	}

	band := max(n, k)
	if m != nil && m.Window > 0 {
		band = max(m.Window, abs(n-k))
	}

	inf := math.Inf(1)
	prev := make([]float64, k+1)
	curr := make([]float64, k+1)
	for j := range prev {
		prev[j] = inf
	}
	prev[0] = 0

	for i := 1; i <= n; i++ {
		for j := range curr {
			curr[j] = inf
		}
		lo := max(1, i-band)
		hi := min(k, i+band)
		for j := lo; j <= hi; j++ {
			best := min(prev[j], curr[j-1], prev[j-1])
			if math.IsInf(best, 1) {
				continue
			}
			curr[j] = Cost(query[i-1], reference[j-1]) + best
		}
		prev, curr = curr, prev
	}

	return prev[k] / float64(n+k)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
