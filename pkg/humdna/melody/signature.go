package melody

import "fmt"

// Signature is the stored melodic fingerprint of one song or query.
type Signature struct {
	ID       string
	Contour  []int8
	RawPitch []PitchFrame
	Duration float64 // requested analysis window in seconds, 0 when uncapped
}

// Clone returns a deep copy.
func (s *Signature) Clone() *Signature {
	if s == nil {
		return nil
	}
	c := &Signature{
		ID:       s.ID,
		Contour:  make([]int8, len(s.Contour)),
		RawPitch: make([]PitchFrame, len(s.RawPitch)),
		Duration: s.Duration,
	}
	copy(c.Contour, s.Contour)
	copy(c.RawPitch, s.RawPitch)
	return c
}

// ValidFrames counts the pitched frames.
func (s *Signature) ValidFrames() int {
	n := 0
	for _, f := range s.RawPitch {
		if f.Valid {
			n++
		}
	}
	return n
}

// Extractor runs the pitch and contour stages together.
type Extractor struct {
	Pitch   *PitchExtractor
	Contour *ContourExtractor
}

func NewExtractor(pitch PitchParams, contour ContourParams) *Extractor {
	return &Extractor{
		Pitch:   NewPitchExtractor(pitch),
		Contour: NewContourExtractor(contour),
	}
}

// DefaultExtractor uses DefaultPitchParams and DefaultContourParams.
func DefaultExtractor() *Extractor {
	return NewExtractor(DefaultPitchParams(), DefaultContourParams())
}

// Extract builds the signature of samples recorded at sampleRate.
func (x *Extractor) Extract(id string, samples []float64, sampleRate int, maxDuration float64) (*Signature, error) {
	frames, err := x.Pitch.Extract(samples, sampleRate, maxDuration)
	if err != nil {
		return nil, fmt.Errorf("extracting pitch: %w", err)
	}
	return x.FromPitch(id, frames, maxDuration), nil
}

// FromPitch derives the contour of an existing pitch track.
func (x *Extractor) FromPitch(id string, frames []PitchFrame, duration float64) *Signature {
	raw := make([]PitchFrame, len(frames))
	for i, f := range frames {
		if f.Valid {
			raw[i] = f
		}
	}
	return &Signature{
		ID:       id,
		Contour:  x.Contour.Extract(raw),
		RawPitch: raw,
		Duration: duration,
	}
}
