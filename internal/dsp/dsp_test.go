package dsp

import (
	"math"
	"testing"
)

func TestResampleLength(t *testing.T) {
	samples := make([]float64, 44100)
	out := Resample(samples, 44100, 22050)
	if len(out) != 22050 {
		t.Errorf("Expected 22050 samples, got %d", len(out))
	}

	same := Resample([]float64{1, 2, 3}, 8000, 8000)
	if len(same) != 3 || same[2] != 3 {
		t.Errorf("Same-rate resample should copy input, got %v", same)
	}
}

func TestResampleInterpolates(t *testing.T) {
	out := Resample([]float64{0, 2, 4, 6}, 1, 2)
	want := []float64{0, 1, 2, 3, 4, 5, 6, 6}
	if len(out) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(out))
	}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-9 {
			t.Errorf("out[%d] = %f, want %f", i, out[i], want[i])
		}
	}
}

func TestMedianFilterEdges(t *testing.T) {
	out := MedianFilter([]float64{1, 9, 2, 8, 3}, 3)
	want := []float64{5, 2, 8, 3, 5.5}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %f, want %f", i, out[i], want[i])
		}
	}

	in := []float64{4, 1}
	same := MedianFilter(in, 1)
	same[0] = 0
	if in[0] != 4 {
		t.Error("MedianFilter with a trivial window must return a copy")
	}
}

func TestMedianFilterRemovesSpike(t *testing.T) {
	in := []float64{200, 200, 400, 200, 200}
	out := MedianFilter(in, 5)
	for i, v := range out {
		if v != 200 {
			t.Errorf("out[%d] = %f, want 200", i, v)
		}
	}
	if in[2] != 400 {
		t.Error("MedianFilter must not modify its input")
	}
}

func TestMovingAverage(t *testing.T) {
	out := MovingAverage([]float64{3, 6, 9, 12}, 3)
	want := []float64{4.5, 6, 9, 10.5}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-9 {
			t.Errorf("out[%d] = %f, want %f", i, out[i], want[i])
		}
	}
}

func TestMovingAverageConstantIsUnchanged(t *testing.T) {
	in := []float64{220, 220, 220, 220, 220}
	for i, v := range MovingAverage(in, 3) {
		if v != 220 {
			t.Errorf("out[%d] = %f, want 220", i, v)
		}
	}
}

func TestParabolicPeak(t *testing.T) {
	// y = (x - 2.25)^2 sampled at 1, 2, 3
	data := []float64{5.0625, 1.5625, 0.0625, 0.5625, 3.0625}
	got := ParabolicPeak(data, 2)
	if math.Abs(got-2.25) > 1e-9 {
		t.Errorf("ParabolicPeak = %f, want 2.25", got)
	}
	if ParabolicPeak(data, 0) != 0 {
		t.Error("Border index should be returned unchanged")
	}
}

func TestRMS(t *testing.T) {
	if got := RMS([]float64{1, -1, 1, -1}); math.Abs(got-1) > 1e-12 {
		t.Errorf("RMS = %f, want 1", got)
	}
	if RMS(nil) != 0 {
		t.Error("RMS of empty frame should be 0")
	}
}
