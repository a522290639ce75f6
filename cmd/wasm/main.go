//go:build js && wasm

package main

import (
	"errors"
	"fmt"
	"syscall/js"

	"github.com/himanishpuri/HumDNA/pkg/humdna/melody"
)

// Error codes returned to JavaScript
const (
	ErrorNone = iota
	ErrorInvalidArgs
	ErrorProcessing
	ErrorNoMelody
)

// queryDuration caps the analysed length of a recording, in seconds.
const queryDuration = 30

var extractor = melody.NewExtractor(melody.HummingPitchParams(), melody.DefaultContourParams())

// Tracks the pitch of a recording and returns its melodic contour, ready to
// be posted to /api/match/contour.
// Returns: {error: number, data: {contour, frames, validFrames} | string}
func extractContour(this js.Value, args []js.Value) any {
	if len(args) < 3 {
		return makeErrorResponse(ErrorInvalidArgs, "Expected 3 arguments: audioArray, sampleRate, channels")
	}

	audioDataJS := args[0]
	sampleRateJS := args[1]
	channelsJS := args[2]

	if audioDataJS.Type() != js.TypeObject {
		return makeErrorResponse(ErrorInvalidArgs, "audioArray must be an Array or Float32Array")
	}
	if sampleRateJS.Type() != js.TypeNumber {
		return makeErrorResponse(ErrorInvalidArgs, "sampleRate must be a number")
	}
	if channelsJS.Type() != js.TypeNumber {
		return makeErrorResponse(ErrorInvalidArgs, "channels must be a number")
	}

	sampleRate := sampleRateJS.Int()
	channels := channelsJS.Int()

	if sampleRate <= 0 {
		return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("Invalid sample rate: %d", sampleRate))
	}
	if channels < 1 || channels > 2 {
		return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("Channels must be 1 (mono) or 2 (stereo), got: %d", channels))
	}

	length := audioDataJS.Length()
	if length == 0 {
		return makeErrorResponse(ErrorInvalidArgs, "audioArray is empty")
	}

	samples := make([]float64, length)
	for i := 0; i < length; i++ {
		val := audioDataJS.Index(i)
		if val.Type() != js.TypeNumber {
			return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("audioArray element %d is not a number", i))
		}
		samples[i] = val.Float()
	}

	if channels == 2 {
		samples = stereoToMono(samples)
	}

	sig, err := extractor.Extract("query", samples, sampleRate, queryDuration)
	if errors.Is(err, melody.ErrEmptyAudio) {
		return makeErrorResponse(ErrorInvalidArgs, err.Error())
	}
	if err != nil {
		return makeErrorResponse(ErrorProcessing, fmt.Sprintf("Failed to track pitch: %v", err))
	}
	if len(sig.Contour) == 0 {
		return makeErrorResponse(ErrorNoMelody, "No melody found in audio (it may be silent, unvoiced or too short)")
	}

	contour := js.Global().Get("Array").New(len(sig.Contour))
	for i, c := range sig.Contour {
		contour.SetIndex(i, int(c))
	}

	data := js.Global().Get("Object").New()
	data.Set("contour", contour)
	data.Set("frames", len(sig.RawPitch))
	data.Set("validFrames", sig.ValidFrames())

	result := js.Global().Get("Object").New()
	result.Set("error", ErrorNone)
	result.Set("data", data)
	return result
}

func stereoToMono(stereo []float64) []float64 {
	if len(stereo)%2 != 0 {
		stereo = stereo[:len(stereo)-1]
	}

	mono := make([]float64, len(stereo)/2)
	for i := range mono {
		mono[i] = (stereo[i*2] + stereo[i*2+1]) / 2.0
	}
	return mono
}

func makeErrorResponse(errorCode int, message string) js.Value {
	result := js.Global().Get("Object").New()
	result.Set("error", errorCode)
	result.Set("data", message)
	return result
}

func main() {
	console := js.Global().Get("console")
	logf := func(method, msg string) {
		if !console.IsUndefined() {
			console.Call(method, msg)
		}
	}

	logf("log", "🔧 HumDNA WASM module initializing...")

	done := make(chan struct{})
	js.Global().Set("extractContour", js.FuncOf(extractContour))
	logf("log", "📝 extractContour function registered")

	window := js.Global().Get("window")
	if window.IsUndefined() {
		logf("error", "❌ window object is undefined!")
	} else {
		eventInit := js.Global().Get("Object").New()
		event := js.Global().Get("CustomEvent").New("wasmReady", eventInit)
		window.Call("dispatchEvent", event)
		logf("log", "✅ wasmReady event dispatched")
	}

	<-done
}
