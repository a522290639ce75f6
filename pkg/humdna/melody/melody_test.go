package melody

import (
	"math"
	"slices"
	"sort"
	"testing"
)

const testRate = 22050

func tone(freq, seconds float64) []float64 {
	n := int(seconds * testRate)
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/testRate)
	}
	return out
}

func melodyOf(freqs []float64, noteSeconds float64) []float64 {
	var out []float64
	var phase float64
	n := int(noteSeconds * testRate)
	for _, f := range freqs {
		step := 2 * math.Pi * f / testRate
		for i := 0; i < n; i++ {
			out = append(out, 0.5*math.Sin(phase))
			phase += step
		}
	}
	return out
}

func hzFrames(values ...float64) []PitchFrame {
	out := make([]PitchFrame, len(values))
	for i, v := range values {
		if !math.IsNaN(v) {
			out[i] = Voiced(v)
		}
	}
	return out
}

func median(values []float64) float64 {
	tmp := slices.Clone(values)
	sort.Float64s(tmp)
	return tmp[len(tmp)/2]
}

func TestPitchRecoversSine(t *testing.T) {
	x := NewPitchExtractor(DefaultPitchParams())
	frames, err := x.Extract(tone(220, 1), testRate, 0)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	expectedFrames := (testRate + 511) / 512
	if len(frames) != expectedFrames {
		t.Errorf("Expected %d frames, got %d", expectedFrames, len(frames))
	}

	valid := ValidHz(frames)
	if len(valid) < len(frames)/2 {
		t.Fatalf("Expected most frames voiced, got %d of %d", len(valid), len(frames))
	}
	if got := median(valid); math.Abs(got-220) > 2 {
		t.Errorf("Expected pitch near 220 Hz, got %.2f", got)
	}
}

func TestPitchResamplesInput(t *testing.T) {
	x := NewPitchExtractor(DefaultPitchParams())
	src := make([]float64, 11025)
	for i := range src {
		src[i] = 0.5 * math.Sin(2*math.Pi*330*float64(i)/11025)
	}
	frames, err := x.Extract(src, 11025, 0)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	valid := ValidHz(frames)
	if len(valid) == 0 {
		t.Fatal("Expected voiced frames")
	}
	if got := median(valid); math.Abs(got-330) > 3 {
		t.Errorf("Expected pitch near 330 Hz, got %.2f", got)
	}
}

func TestPitchMaxDuration(t *testing.T) {
	x := NewPitchExtractor(DefaultPitchParams())
	frames, err := x.Extract(tone(220, 2), testRate, 1)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if want := (testRate + 511) / 512; len(frames) != want {
		t.Errorf("Expected %d frames for a 1s cap, got %d", want, len(frames))
	}
}

func TestPitchSilenceAndEmpty(t *testing.T) {
	x := NewPitchExtractor(DefaultPitchParams())

	if _, err := x.Extract(nil, testRate, 0); err != ErrEmptyAudio {
		t.Errorf("Expected ErrEmptyAudio, got %v", err)
	}

	frames, err := x.Extract(make([]float64, testRate), testRate, 0)
	if err != nil {
		t.Fatalf("Extract failed on silence: %v", err)
	}
	if n := len(ValidHz(frames)); n != 0 {
		t.Errorf("Expected no voiced frames in silence, got %d", n)
	}
}

func TestInterpolateGaps(t *testing.T) {
	nan := math.NaN()
	in := hzFrames(
		nan, 100, // leading run stays missing
		nan, nan, nan, 140, // short gap is filled
		nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, 200, // long gap stays
		nan, // trailing run stays
	)
	out := interpolateGaps(in, 5)

	if out[0].Valid {
		t.Error("Leading gap should stay missing")
	}
	for i, want := range []float64{110, 120, 130} {
		f := out[2+i]
		if !f.Valid || math.Abs(f.Hz-want) > 1e-9 {
			t.Errorf("Frame %d: expected %.0f, got %+v", 2+i, want, f)
		}
	}
	for i := 6; i < 16; i++ {
		if out[i].Valid {
			t.Errorf("Frame %d in long gap should stay missing", i)
		}
	}
	if out[len(out)-1].Valid {
		t.Error("Trailing gap should stay missing")
	}
	if in[2].Valid {
		t.Error("Input must not be modified")
	}
}

func TestInterpolateGapsBoundary(t *testing.T) {
	nan := math.NaN()
	five := hzFrames(100, nan, nan, nan, nan, nan, 160)
	if out := interpolateGaps(five, 5); !out[3].Valid {
		t.Error("Gap of exactly MaxGap frames should be filled")
	}
	six := hzFrames(100, nan, nan, nan, nan, nan, nan, 170)
	if out := interpolateGaps(six, 5); out[3].Valid {
		t.Error("Gap longer than MaxGap should stay missing")
	}
}

func TestMedianFilterValid(t *testing.T) {
	nan := math.NaN()
	in := hzFrames(200, 200, nan, 200, 900, 200, 200, nan, 200)
	out := medianFilterValid(in, 5)

	if out[4].Hz != 200 {
		t.Errorf("Expected spike removed, got %.1f", out[4].Hz)
	}
	if out[2].Valid || out[7].Valid {
		t.Error("Missing frames must stay missing")
	}

	few := hzFrames(200, 900, 200, 200, 200)
	if got := medianFilterValid(few, 5); got[1].Hz != 900 {
		t.Errorf("Expected no filtering with valid count <= window, got %.1f", got[1].Hz)
	}
}

func TestMergeShortRuns(t *testing.T) {
	tests := []struct {
		name string
		in   []int8
		want []int8
	}{
		{"short first run kept", []int8{1, -1, -1, 0, 0}, []int8{1, -1, -1, 0, 0}},
		{"short middle run merged", []int8{1, 1, -1, 1, 1}, []int8{1, 1, 1, 1, 1}},
		{"merge into previous not next", []int8{0, 0, 1, -1, -1}, []int8{0, 0, 0, -1, -1}},
		{"chained short runs", []int8{1, 1, -1, 0, -1, -1}, []int8{1, 1, 1, 1, -1, -1}},
		{"trailing short run", []int8{-1, -1, 1}, []int8{-1, -1, -1}},
		{"shorter than min duration", []int8{1}, []int8{1}},
		{"empty", []int8{}, []int8{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeShortRuns(tt.in, 2)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestContourFromRamp(t *testing.T) {
	c := NewContourExtractor(DefaultContourParams())
	// smoothed: 110 120 140 160 180 190, diffs 10 20 20 20 10
	got := c.Extract(hzFrames(100, 120, 140, 160, 180, 200))
	want := []int8{0, 1, 1, 1, 1}
	if !slices.Equal(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestContourLengthLaw(t *testing.T) {
	nan := math.NaN()
	c := NewContourExtractor(DefaultContourParams())
	tests := []struct {
		frames []PitchFrame
		want   int
	}{
		{hzFrames(), 0},
		{hzFrames(nan, nan), 0},
		{hzFrames(220), 0},
		{hzFrames(220, 240), 1},
		{hzFrames(220, nan, 240, 200, nan, nan, 300), 3},
		{hzFrames(100, 110, 120, 130, 140, 150, 160, 170), 7},
	}
	for i, tt := range tests {
		if got := len(c.Extract(tt.frames)); got != tt.want {
			t.Errorf("Case %d: expected length %d, got %d", i, tt.want, got)
		}
	}
}

func TestContourSkipsSmoothingWhenTooShort(t *testing.T) {
	c := NewContourExtractor(ContourParams{Threshold: 10, SmoothingWindow: 3, MinDuration: 1})
	if got := c.Extract(hzFrames(100, 150)); !slices.Equal(got, []int8{Up}) {
		t.Errorf("Expected [1], got %v", got)
	}
}

func TestSignatureDeterminism(t *testing.T) {
	x := DefaultExtractor()
	audio := melodyOf([]float64{220, 330, 440, 330}, 0.3)

	a, err := x.Extract("a", audio, testRate, 0)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	b, err := x.Extract("a", audio, testRate, 0)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !slices.Equal(a.Contour, b.Contour) || !slices.Equal(a.RawPitch, b.RawPitch) {
		t.Error("Identical audio produced different signatures")
	}
	if len(a.Contour) != max(0, a.ValidFrames()-1) {
		t.Errorf("Expected contour length %d, got %d", a.ValidFrames()-1, len(a.Contour))
	}
}

func TestSignatureFollowsMelody(t *testing.T) {
	x := DefaultExtractor()
	sig, err := x.Extract("up-down", melodyOf([]float64{220, 330, 440, 330}, 0.3), testRate, 0)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	firstUp := slices.Index(sig.Contour, Up)
	firstDown := slices.Index(sig.Contour, Down)
	if firstUp < 0 || firstDown < 0 {
		t.Fatalf("Expected both Up and Down steps, got %v", sig.Contour)
	}
	if firstUp > firstDown {
		t.Errorf("Expected rising steps before falling ones, got %v", sig.Contour)
	}
}

func TestSignatureClone(t *testing.T) {
	s := &Signature{ID: "x", Contour: []int8{1, 0}, RawPitch: hzFrames(200, 210, 200)}
	c := s.Clone()
	c.Contour[0] = -1
	c.RawPitch[0] = Missing
	if s.Contour[0] != 1 || !s.RawPitch[0].Valid {
		t.Error("Clone shares memory with the original")
	}
}

func TestSynthesizeHum(t *testing.T) {
	x := NewPitchExtractor(HummingPitchParams())
	src := tone(262, 1)
	hum, err := x.SynthesizeHum(src, testRate)
	if err != nil {
		t.Fatalf("SynthesizeHum failed: %v", err)
	}
	if len(hum) != len(src) {
		t.Fatalf("Expected %d samples, got %d", len(src), len(hum))
	}

	var peak float64
	for _, v := range hum {
		peak = math.Max(peak, math.Abs(v))
	}
	if math.Abs(peak-0.8) > 1e-9 {
		t.Errorf("Expected peak 0.8, got %f", peak)
	}

	frames, err := NewPitchExtractor(DefaultPitchParams()).Extract(hum, testRate, 0)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got := median(ValidHz(frames)); math.Abs(got-262) > 3 {
		t.Errorf("Expected hum near 262 Hz, got %.2f", got)
	}
}

func TestHumFrameSpans(t *testing.T) {
	const hop, n = 512, 1500
	frames := (n + hop - 1) / hop

	next := 0
	for i := 0; i < frames; i++ {
		start, end := frameSpan(i, frames, hop, n)
		if start != next {
			t.Errorf("frame %d starts at %d, want %d", i, start, next)
		}
		if centre := i * hop; centre < start || centre >= end {
			t.Errorf("frame %d span [%d, %d) misses its centre %d", i, start, end, centre)
		}
		next = end
	}
	if next != n {
		t.Errorf("spans end at %d, want %d", next, n)
	}

	if start, end := frameSpan(1, frames, hop, n); start != 256 || end != 768 {
		t.Errorf("frame 1 span = [%d, %d), want [256, 768)", start, end)
	}
}

func TestSynthesizeHumSilence(t *testing.T) {
	x := NewPitchExtractor(HummingPitchParams())
	hum, err := x.SynthesizeHum(make([]float64, 4096), testRate)
	if err != nil {
		t.Fatalf("SynthesizeHum failed: %v", err)
	}
	for _, v := range hum {
		if v != 0 {
			t.Fatal("Expected silent output for silent input")
		}
	}
}
