package models

import "time"

// Confidence labels attached to match results.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// MatchResult represents a ranked song match with metadata and scoring.
type MatchResult struct {
	SongID     string  // Database ID of the matched song (UUID)
	Title      string  // Song title
	Artist     string  // Artist name
	YouTubeID  string  // YouTube video ID (if available)
	Distance   float64 // Normalised DTW distance, lower is closer
	Similarity float64 // 1 / (1 + Distance), in [0, 1]
	Confidence string  // high, medium or low
}

// ConfidenceLabel buckets a similarity score.
func ConfidenceLabel(similarity float64) string {
	switch {
	case similarity > 0.7:
		return ConfidenceHigh
	case similarity > 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Song represents a song entry in the catalogue.
type Song struct {
	ID            string    // Database ID (UUID)
	Title         string    // Song title
	Artist        string    // Artist name
	YouTubeID     string    // YouTube video ID (if available)
	Filename      string    // Source file name, used when indexing directories
	DurationSec   float64   // Analysed window in seconds
	ContourLength int       // Number of contour steps in the stored signature
	CreatedAt     time.Time // Registration time
}

// MatchReport is the outcome of one query.
type MatchReport struct {
	Results       []MatchResult
	Candidates    int     // Songs compared
	PitchFrames   int     // Analysis frames in the query
	ValidFrames   int     // Frames with a usable pitch
	ValidRatio    float64 // ValidFrames / PitchFrames
	ContourLength int     // Steps in the query contour
}

// AddResult reports the outcome of one item in a batch add.
type AddResult struct {
	Path   string
	SongID string
	Err    error
}
