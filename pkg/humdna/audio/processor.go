package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/himanishpuri/HumDNA/pkg/utils"
)

type ConvertWAVConfig struct {
	SampleRate  int     // e.g. 16000, 22050, 44100
	MaxDuration float64 // seconds, 0 keeps the whole input
}

// ConvertToMonoWAV converts an audio file to mono 16-bit PCM WAV in outputDir.
// The output name is unique per call so concurrent conversions of the same
// input never collide.
func ConvertToMonoWAV(
	ctx context.Context,
	inputPath string,
	outputDir string,
	cfg ConvertWAVConfig,
) (string, error) {

	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	if err := utils.MakeDir(outputDir); err != nil {
		return "", err
	}

	baseName := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outputPath := filepath.Join(outputDir, fmt.Sprintf("%s_%s.wav", baseName, uuid.NewString()[:8]))

	tmpPath := outputPath + ".tmp.wav"
	defer os.Remove(tmpPath)

	args := []string{
		"-y",
		"-v", "quiet",
		"-i", inputPath,
		"-ac", "1", // mono
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-c:a", "pcm_s16le",
	}
	if cfg.MaxDuration > 0 {
		args = append(args, "-t", strconv.FormatFloat(cfg.MaxDuration, 'f', 3, 64))
	}
	args = append(args, tmpPath)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: ffmpeg failed: %v (%s)", ErrDecode, err, out)
	}

	if err := utils.MoveFile(tmpPath, outputPath); err != nil {
		return "", err
	}

	return outputPath, nil
}

// FFmpegDecoder decodes any format ffmpeg understands by converting it to a
// temporary mono WAV at the requested rate.
type FFmpegDecoder struct {
	TempDir string
}

func (d FFmpegDecoder) Decode(ctx context.Context, path string, sampleRate int, maxDuration float64) ([]float64, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	tempDir := d.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	wavPath, err := ConvertToMonoWAV(ctx, path, tempDir, ConvertWAVConfig{
		SampleRate:  sampleRate,
		MaxDuration: maxDuration,
	})
	if err != nil {
		return nil, err
	}
	defer os.Remove(wavPath)

	return WavDecoder{}.Decode(ctx, wavPath, sampleRate, maxDuration)
}

// AutoDecoder reads WAV files natively and hands everything else to ffmpeg.
type AutoDecoder struct {
	FFmpeg FFmpegDecoder
}

func (d AutoDecoder) Decode(ctx context.Context, path string, sampleRate int, maxDuration float64) ([]float64, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		samples, err := WavDecoder{}.Decode(ctx, path, sampleRate, maxDuration)
		if err == nil {
			return samples, nil
		}
		// compressed or float WAV variants that go-audio cannot read
	}
	return d.FFmpeg.Decode(ctx, path, sampleRate, maxDuration)
}

// FFmpegAvailable reports whether an ffmpeg binary is on PATH.
func FFmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}
