package melody

import (
	"errors"
	"math"
	"path/filepath"
	"slices"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func sampleSignature() *Signature {
	return &Signature{
		ID:       "song-1",
		Contour:  []int8{Up, Stable, Down, Up},
		RawPitch: []PitchFrame{Voiced(220), Missing, Voiced(233.1), Missing, Voiced(247)},
		Duration: 30,
	}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := bson.Marshal(v)
	if err != nil {
		t.Fatalf("bson.Marshal failed: %v", err)
	}
	return data
}

func TestSignatureRecordRoundTrip(t *testing.T) {
	sig := sampleSignature()
	data, err := EncodeSignature(sig)
	if err != nil {
		t.Fatalf("EncodeSignature failed: %v", err)
	}

	got, err := DecodeSignature("renamed", data)
	if err != nil {
		t.Fatalf("DecodeSignature failed: %v", err)
	}
	if got.ID != "renamed" {
		t.Errorf("Expected id renamed, got %q", got.ID)
	}
	if !slices.Equal(got.Contour, sig.Contour) {
		t.Errorf("Contour mismatch: %v vs %v", got.Contour, sig.Contour)
	}
	if !slices.Equal(got.RawPitch, sig.RawPitch) {
		t.Errorf("Pitch mismatch: %v vs %v", got.RawPitch, sig.RawPitch)
	}
	if got.Duration != 30 {
		t.Errorf("Expected duration 30, got %v", got.Duration)
	}
}

func TestSignatureRecordChecksum(t *testing.T) {
	sig := sampleSignature()
	doc := signatureDoc{
		SongID:      sig.ID,
		Contour:     []int32{1, 0, -1, -1},
		PitchValues: []float64{220, math.NaN(), 233.1, math.NaN(), 247},
	}
	data := mustMarshal(t, recordEnvelope{
		Format:    recordFormat,
		Version:   recordVersion,
		Checksum:  int64(checksum(sig.Contour, sig.RawPitch)),
		Signature: doc,
	})

	if _, err := DecodeSignature("x", data); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("Expected ErrCorruptRecord for tampered contour, got %v", err)
	}
}

func TestSignatureRecordRejects(t *testing.T) {
	good := signatureDoc{Contour: []int32{1}, PitchValues: []float64{100, 110}}

	tests := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte("not a record")},
		{"unknown format", mustMarshal(t, recordEnvelope{Format: "other", Version: 1, Signature: good})},
		{"newer version", mustMarshal(t, recordEnvelope{Format: recordFormat, Version: recordVersion + 1, Signature: good})},
		{"missing signature", mustMarshal(t, bson.M{"format": recordFormat, "version": int32(1), "checksum": int64(0)})},
		{"contour out of range", mustMarshal(t, bson.M{"pitch_contour": bson.A{int32(1), int32(2)}})},
		{"contour not an array", mustMarshal(t, bson.M{"pitch_contour": "up"})},
		{"pitch element not a number", mustMarshal(t, bson.M{"pitch_values": bson.A{"a"}})},
		{"duration not a number", mustMarshal(t, bson.M{"duration": "long"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeSignature("x", tt.data); !errors.Is(err, ErrCorruptRecord) {
				t.Errorf("Expected ErrCorruptRecord, got %v", err)
			}
		})
	}
}

func TestSignatureRecordFlatDocument(t *testing.T) {
	data := mustMarshal(t, bson.M{
		"song_id":       "ignored",
		"pitch_contour": bson.A{int32(1), int64(0), float64(-1)},
		"pitch_values":  bson.A{1.0, math.NaN(), int32(3)},
	})

	sig, err := DecodeSignature("flat", data)
	if err != nil {
		t.Fatalf("DecodeSignature failed: %v", err)
	}
	if sig.ID != "flat" {
		t.Errorf("Expected id flat, got %q", sig.ID)
	}
	if !slices.Equal(sig.Contour, []int8{Up, Stable, Down}) {
		t.Errorf("Unexpected contour %v", sig.Contour)
	}
	want := []PitchFrame{Voiced(1), Missing, Voiced(3)}
	if !slices.Equal(sig.RawPitch, want) {
		t.Errorf("Expected pitch %v, got %v", want, sig.RawPitch)
	}
	if sig.Duration != 0 {
		t.Errorf("Expected absent duration to read as 0, got %v", sig.Duration)
	}
}

func TestSignatureRecordEmptyDocument(t *testing.T) {
	sig, err := DecodeSignature("empty", mustMarshal(t, bson.M{}))
	if err != nil {
		t.Fatalf("DecodeSignature failed: %v", err)
	}
	if len(sig.Contour) != 0 || len(sig.RawPitch) != 0 || sig.Duration != 0 {
		t.Errorf("Expected empty signature, got %+v", sig)
	}
}

func TestSignatureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song-1"+SignatureExt)
	sig := sampleSignature()
	if err := WriteSignatureFile(path, sig); err != nil {
		t.Fatalf("WriteSignatureFile failed: %v", err)
	}
	got, err := ReadSignatureFile("song-1", path)
	if err != nil {
		t.Fatalf("ReadSignatureFile failed: %v", err)
	}
	if !slices.Equal(got.Contour, sig.Contour) || !slices.Equal(got.RawPitch, sig.RawPitch) {
		t.Errorf("File round trip changed the signature: %+v", got)
	}

	if _, err := ReadSignatureFile("missing", filepath.Join(t.TempDir(), "none.sig")); err == nil {
		t.Error("Expected error for missing file")
	}
}
