package main

import (
	"context"
	"image"
	"image/draw"

	"github.com/eligwz/spectrogram"

	"github.com/himanishpuri/HumDNA/pkg/humdna/audio"
)

const (
	spectrogramWidth  = 2048
	spectrogramHeight = 512
)

// writeSpectrogram renders a linear magnitude spectrogram of the clip as
// the analyser hears it.
func writeSpectrogram(ctx context.Context, audioPath, pngPath string) error {
	decoder := audio.AutoDecoder{FFmpeg: audio.FFmpegDecoder{TempDir: tempDir}}
	samples, err := decoder.Decode(ctx, audioPath, sampleRate, 0)
	if err != nil {
		return err
	}

	img := spectrogram.NewImage128(image.Rect(0, 0, spectrogramWidth, spectrogramHeight))
	black := spectrogram.ParseColor("000000")
	draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	// Hamming window, FFT, magnitude, linear scale
	spectrogram.Drawfft(
		img,
		samples,
		uint32(sampleRate),
		uint32(spectrogramHeight),
		false,
		false,
		true,
		false,
	)

	return spectrogram.SavePng(img, pngPath)
}
