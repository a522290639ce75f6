package melody

import "github.com/himanishpuri/HumDNA/internal/dsp"

// Contour directions.
const (
	Down   int8 = -1
	Stable int8 = 0
	Up     int8 = 1
)

// ContourParams configures contour quantisation.
type ContourParams struct {
	Threshold       float64 // Hz change needed to count as movement
	SmoothingWindow int     // moving average width over valid pitch
	MinDuration     int     // shorter runs are merged into the previous one
}

func DefaultContourParams() ContourParams {
	return ContourParams{
		Threshold:       10,
		SmoothingWindow: 3,
		MinDuration:     2,
	}
}

// ContourExtractor turns a pitch track into a sequence of Up/Down/Stable
// steps between consecutive valid frames.
type ContourExtractor struct {
	params ContourParams
}

func NewContourExtractor(p ContourParams) *ContourExtractor {
	if p.SmoothingWindow <= 0 {
		p.SmoothingWindow = 1
	}
	if p.MinDuration <= 0 {
		p.MinDuration = 1
	}
	return &ContourExtractor{params: p}
}

// Extract returns a contour of length valid-1, or an empty contour when fewer
// than two frames are valid.
func (c *ContourExtractor) Extract(frames []PitchFrame) []int8 {
	pitch := ValidHz(frames)
	if len(pitch) < 2 {
		return []int8{}
	}

	if c.params.SmoothingWindow <= len(pitch) {
		pitch = dsp.MovingAverage(pitch, c.params.SmoothingWindow)
	}

	raw := make([]int8, len(pitch)-1)
	for i := range raw {
		diff := pitch[i+1] - pitch[i]
		switch {
		case diff > c.params.Threshold:
			raw[i] = Up
		case diff < -c.params.Threshold:
			raw[i] = Down
		default:
			raw[i] = Stable
		}
	}

	return mergeShortRuns(raw, c.params.MinDuration)
}

// mergeShortRuns replaces every run shorter than minDuration with the last
// value already emitted. A short leading run has nothing before it and is
// kept as is.
func mergeShortRuns(contour []int8, minDuration int) []int8 {
	out := make([]int8, 0, len(contour))
	if len(contour) < minDuration {
		return append(out, contour...)
	}

	for start := 0; start < len(contour); {
		end := start + 1
		for end < len(contour) && contour[end] == contour[start] {
			end++
		}
		run := contour[start:end]
		if len(run) >= minDuration || len(out) == 0 {
			out = append(out, run...)
		} else {
			last := out[len(out)-1]
			for range run {
				out = append(out, last)
			}
		}
		start = end
	}
	return out
}
