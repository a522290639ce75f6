package melody

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/OneOfOne/xxhash"
	"go.mongodb.org/mongo-driver/bson"
)

// ErrCorruptRecord marks a signature record that cannot be decoded.
var ErrCorruptRecord = errors.New("corrupt signature record")

const (
	recordFormat  = "humdna/signature"
	recordVersion = 1
)

// SignatureExt is the file extension used for exported signatures.
const SignatureExt = ".sig"

type signatureDoc struct {
	SongID      string    `bson:"song_id"`
	Contour     []int32   `bson:"pitch_contour"`
	PitchValues []float64 `bson:"pitch_values"`
	Duration    float64   `bson:"duration"`
}

type recordEnvelope struct {
	Format    string       `bson:"format"`
	Version   int32        `bson:"version"`
	Checksum  int64        `bson:"checksum"`
	Signature signatureDoc `bson:"signature"`
}

type rawEnvelope struct {
	Format    string   `bson:"format"`
	Version   int32    `bson:"version"`
	Checksum  int64    `bson:"checksum"`
	Signature bson.Raw `bson:"signature"`
}

// EncodeSignature serialises sig as a tagged, checksummed BSON document.
// Missing pitch frames are written as NaN.
func EncodeSignature(sig *Signature) ([]byte, error) {
	if sig == nil {
		return nil, errors.New("nil signature")
	}
	doc := signatureDoc{
		SongID:      sig.ID,
		Contour:     make([]int32, len(sig.Contour)),
		PitchValues: make([]float64, len(sig.RawPitch)),
		Duration:    sig.Duration,
	}
	for i, c := range sig.Contour {
		doc.Contour[i] = int32(c)
	}
	for i, f := range sig.RawPitch {
		if f.Valid {
			doc.PitchValues[i] = f.Hz
		} else {
			doc.PitchValues[i] = math.NaN()
		}
	}

	data, err := bson.Marshal(recordEnvelope{
		Format:    recordFormat,
		Version:   recordVersion,
		Checksum:  int64(checksum(sig.Contour, sig.RawPitch)),
		Signature: doc,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding signature %s: %w", sig.ID, err)
	}
	return data, nil
}

// DecodeSignature parses a record produced by EncodeSignature. A flat
// document carrying song_id, pitch_contour, pitch_values and duration at the
// top level is accepted too. The returned signature always carries id,
// whatever the record says.
func DecodeSignature(id string, data []byte) (*Signature, error) {
	raw := bson.Raw(data)
	if err := raw.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, id, err)
	}

	if _, err := raw.LookupErr("format"); err != nil {
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, id, err)
		}
		return fields.signature(id), nil
	}

	var env rawEnvelope
	if err := bson.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, id, err)
	}
	if env.Format != recordFormat {
		return nil, fmt.Errorf("%w: %s: unknown format %q", ErrCorruptRecord, id, env.Format)
	}
	if env.Version > recordVersion {
		return nil, fmt.Errorf("%w: %s: unsupported version %d", ErrCorruptRecord, id, env.Version)
	}
	if env.Signature == nil {
		return nil, fmt.Errorf("%w: %s: missing signature", ErrCorruptRecord, id)
	}

	fields, err := decodeFields(env.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, id, err)
	}
	sig := fields.signature(id)
	if uint64(env.Checksum) != checksum(sig.Contour, sig.RawPitch) {
		return nil, fmt.Errorf("%w: %s: checksum mismatch", ErrCorruptRecord, id)
	}
	return sig, nil
}

type decodedFields struct {
	contour  []int8
	pitch    []float64
	duration float64
}

func (f decodedFields) signature(id string) *Signature {
	frames := make([]PitchFrame, len(f.pitch))
	for i, hz := range f.pitch {
		if !math.IsNaN(hz) {
			frames[i] = Voiced(hz)
		}
	}
	return &Signature{
		ID:       id,
		Contour:  f.contour,
		RawPitch: frames,
		Duration: f.duration,
	}
}

// decodeFields reads the signature fields from a document, tolerating
// int32, int64 and double elements. Absent fields are empty.
func decodeFields(doc bson.Raw) (decodedFields, error) {
	var m bson.M
	if err := bson.Unmarshal(doc, &m); err != nil {
		return decodedFields{}, err
	}

	var out decodedFields
	contour, err := numbers(m["pitch_contour"])
	if err != nil {
		return out, fmt.Errorf("pitch_contour: %w", err)
	}
	out.contour = make([]int8, len(contour))
	for i, v := range contour {
		if v != -1 && v != 0 && v != 1 {
			return out, fmt.Errorf("pitch_contour: value %v out of range", v)
		}
		out.contour[i] = int8(v)
	}

	if out.pitch, err = numbers(m["pitch_values"]); err != nil {
		return out, fmt.Errorf("pitch_values: %w", err)
	}

	if v, ok := m["duration"]; ok && v != nil {
		d, ok := number(v)
		if !ok {
			return out, fmt.Errorf("duration: unexpected type %T", v)
		}
		out.duration = d
	}
	return out, nil
}

func numbers(v any) ([]float64, error) {
	var items []any
	switch a := v.(type) {
	case nil:
		return []float64{}, nil
	case bson.A:
		items = a
	case []any:
		items = a
	default:
		return nil, fmt.Errorf("expected array, got %T", v)
	}

	out := make([]float64, len(items))
	for i, item := range items {
		n, ok := number(item)
		if !ok {
			return nil, fmt.Errorf("element %d has type %T", i, item)
		}
		out[i] = n
	}
	return out, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// checksum hashes the contour and the pitch bits. Missing frames hash as a
// single canonical NaN.
func checksum(contour []int8, pitch []PitchFrame) uint64 {
	buf := make([]byte, 0, len(contour)+8*len(pitch))
	for _, c := range contour {
		buf = append(buf, byte(c))
	}
	nan := math.Float64bits(math.NaN())
	for _, f := range pitch {
		bits := nan
		if f.Valid {
			bits = math.Float64bits(f.Hz)
		}
		buf = binary.LittleEndian.AppendUint64(buf, bits)
	}
	return xxhash.Checksum64(buf)
}

// WriteSignatureFile encodes sig to path.
func WriteSignatureFile(path string, sig *Signature) error {
	data, err := EncodeSignature(sig)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing signature file: %w", err)
	}
	return nil
}

// ReadSignatureFile decodes the record at path under the given id.
func ReadSignatureFile(id, path string) (*Signature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading signature file: %w", err)
	}
	return DecodeSignature(id, data)
}
