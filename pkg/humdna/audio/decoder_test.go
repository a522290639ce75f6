package audio

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func sine(freq float64, rate int, seconds float64) []float64 {
	n := int(seconds * float64(rate))
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return out
}

func writeTestWav(t *testing.T, samples []float64, rate int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := WriteWav(path, samples, rate); err != nil {
		t.Fatalf("WriteWav failed: %v", err)
	}
	return path
}

func TestWavRoundTrip(t *testing.T) {
	src := sine(440, 8000, 0.5)
	path := writeTestWav(t, src, 8000)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open wav: %v", err)
	}
	defer f.Close()

	got, rate, err := ReadWav(f)
	if err != nil {
		t.Fatalf("ReadWav failed: %v", err)
	}
	if rate != 8000 {
		t.Errorf("Expected rate 8000, got %d", rate)
	}
	if len(got) != len(src) {
		t.Fatalf("Expected %d samples, got %d", len(src), len(got))
	}
	for i := range src {
		if math.Abs(got[i]-src[i]) > 1e-3 {
			t.Fatalf("Sample %d: expected %.4f, got %.4f", i, src[i], got[i])
		}
	}
}

func TestWavDecoderResamplesAndTruncates(t *testing.T) {
	path := writeTestWav(t, sine(220, 11025, 2), 11025)

	samples, err := WavDecoder{}.Decode(context.Background(), path, 22050, 1.0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(samples) != 22050 {
		t.Errorf("Expected 22050 samples after resample and 1s cap, got %d", len(samples))
	}

	full, err := WavDecoder{}.Decode(context.Background(), path, 22050, 0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(full) != 44100 {
		t.Errorf("Expected 44100 samples uncapped, got %d", len(full))
	}
}

func TestWavDecoderInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.wav")
	if err := os.WriteFile(path, []byte("INVALID HEADER DATA"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	_, err := WavDecoder{}.Decode(context.Background(), path, 22050, 0)
	if !errors.Is(err, ErrDecode) {
		t.Errorf("Expected ErrDecode, got %v", err)
	}
}

func TestWavDecoderMissingFile(t *testing.T) {
	_, err := WavDecoder{}.Decode(context.Background(), "/nonexistent/file.wav", 22050, 0)
	if !errors.Is(err, ErrDecode) {
		t.Errorf("Expected ErrDecode, got %v", err)
	}
}

func TestWriteWavClips(t *testing.T) {
	path := writeTestWav(t, []float64{2, -2, 0.25}, 8000)
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open wav: %v", err)
	}
	defer f.Close()

	got, _, err := ReadWav(f)
	if err != nil {
		t.Fatalf("ReadWav failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 samples, got %d", len(got))
	}
	if got[0] < 0.99 || got[1] > -0.99 {
		t.Errorf("Expected clipped samples near +/-1, got %v", got[:2])
	}
}

func TestParseProbe(t *testing.T) {
	raw := []byte(`{
		"format": {"duration": "12.5", "format_name": "mp3", "tags": {"TITLE": "Song", "artist": "Band"}},
		"streams": [{"codec_type": "audio", "sample_rate": "44100", "channels": 2}]
	}`)
	meta, err := parseProbe("/music/song.mp3", raw)
	if err != nil {
		t.Fatalf("parseProbe failed: %v", err)
	}
	if meta.Title != "Song" || meta.Artist != "Band" {
		t.Errorf("Expected tags Song/Band, got %q/%q", meta.Title, meta.Artist)
	}
	if meta.SampleRate != 44100 || meta.Channels != 2 {
		t.Errorf("Expected 44100 Hz stereo, got %d Hz %d ch", meta.SampleRate, meta.Channels)
	}
	if meta.DurationSec != 12.5 {
		t.Errorf("Expected duration 12.5, got %f", meta.DurationSec)
	}

	if _, err := parseProbe("x", []byte(`{"streams":[{"codec_type":"video"}]}`)); err == nil {
		t.Error("Expected error when no audio stream present")
	}
}

func TestTitleFromFilename(t *testing.T) {
	if got := TitleFromFilename("/a/b/My Song.mp3"); got != "My Song" {
		t.Errorf("Expected 'My Song', got %q", got)
	}
}

func TestFFmpegDecoder(t *testing.T) {
	if !FFmpegAvailable() {
		t.Skipf("ffmpeg not installed")
	}
	path := writeTestWav(t, sine(440, 44100, 1), 44100)

	dec := FFmpegDecoder{TempDir: t.TempDir()}
	samples, err := dec.Decode(context.Background(), path, 22050, 0.5)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if math.Abs(float64(len(samples)-11025)) > 64 {
		t.Errorf("Expected about 11025 samples, got %d", len(samples))
	}
}
