package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/himanishpuri/HumDNA/internal/dsp"
)

// ErrDecode marks audio that could not be read or converted.
var ErrDecode = errors.New("audio decode failed")

// Decoder yields mono PCM samples in [-1, 1] at the requested sample rate.
// A positive maxDuration (seconds) caps how much audio is returned.
type Decoder interface {
	Decode(ctx context.Context, path string, sampleRate int, maxDuration float64) ([]float64, error)
}

// WavDecoder reads PCM WAV files directly.
type WavDecoder struct{}

func (WavDecoder) Decode(ctx context.Context, path string, sampleRate int, maxDuration float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer f.Close()
	return DecodeReader(f, sampleRate, maxDuration)
}

// DecodeReader decodes a WAV stream, downmixes it to mono, resamples it to
// sampleRate (when non-zero) and truncates it to maxDuration.
func DecodeReader(r io.ReadSeeker, sampleRate int, maxDuration float64) ([]float64, error) {
	samples, rate, err := ReadWav(r)
	if err != nil {
		return nil, err
	}
	if sampleRate > 0 && rate != sampleRate {
		samples = dsp.Resample(samples, rate, sampleRate)
		rate = sampleRate
	}
	if maxDuration > 0 {
		limit := int(maxDuration * float64(rate))
		if limit < len(samples) {
			samples = samples[:limit]
		}
	}
	return samples, nil
}

// ReadWav returns the mono, normalised samples of a PCM WAV stream and its
// native sample rate.
func ReadWav(r io.ReadSeeker) ([]float64, int, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: not a valid WAV file", ErrDecode)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading PCM data: %v", ErrDecode, err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, 0, fmt.Errorf("%w: missing channel information", ErrDecode)
	}

	bitDepth := int(d.BitDepth)
	if bitDepth == 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, 0, fmt.Errorf("%w: unsupported bit depth %d", ErrDecode, bitDepth)
	}

	return downmix(buf, bitDepth), int(d.SampleRate), nil
}

// downmix averages interleaved channels into a mono signal in [-1, 1].
func downmix(buf *goaudio.IntBuffer, bitDepth int) []float64 {
	channels := buf.Format.NumChannels
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	offset := 0
	if bitDepth == 8 {
		// 8-bit WAV is unsigned
		offset = 128
	}

	frames := len(buf.Data) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c]-offset) * scale
		}
		out[i] = sum / float64(channels)
	}
	return out
}
