package main

import (
	"fmt"
	"math"

	"github.com/himanishpuri/HumDNA/pkg/humdna/query"
	"github.com/himanishpuri/HumDNA/pkg/models"
)

// Contour limit constants for validation
const (
	// MaxContourSoftLimit is about 30 seconds of humming at the default hop
	MaxContourSoftLimit = 1300

	// MaxContourHardLimit is the absolute maximum allowed (~2 minutes of audio)
	MaxContourHardLimit = 5200
)

// MatchContourRequest is the request body for POST /api/match/contour
type MatchContourRequest struct {
	// Contour holds one step per voiced frame: -1 down, 0 stable, 1 up
	Contour []int `json:"contour"`
	TopK    int   `json:"top_k,omitempty"`
}

// Validate checks if the request is valid
func (r *MatchContourRequest) Validate() error {
	if len(r.Contour) == 0 {
		return fmt.Errorf("contour cannot be empty")
	}
	if len(r.Contour) > MaxContourHardLimit {
		return fmt.Errorf("contour too long: %d (maximum: %d)", len(r.Contour), MaxContourHardLimit)
	}
	for i, c := range r.Contour {
		if c < -1 || c > 1 {
			return fmt.Errorf("invalid contour step %d at index %d", c, i)
		}
	}
	if r.TopK < 0 {
		return fmt.Errorf("top_k must not be negative")
	}
	return nil
}

// Steps converts the validated contour to its compact form.
func (r *MatchContourRequest) Steps() []int8 {
	out := make([]int8, len(r.Contour))
	for i, c := range r.Contour {
		out[i] = int8(c)
	}
	return out
}

// MatchResponse is the response for file and contour matching
type MatchResponse struct {
	Matches       []MatchResultDTO `json:"matches"`
	Count         int              `json:"count"`
	Candidates    int              `json:"candidates"`
	ContourLength int              `json:"contour_length"`
	ValidRatio    float64          `json:"valid_ratio"`
}

// MatchResultDTO represents a single match result
type MatchResultDTO struct {
	SongID     string  `json:"song_id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	YouTubeID  string  `json:"youtube_id,omitempty"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
	Confidence string  `json:"confidence"`
}

func newMatchResponse(report *models.MatchReport) MatchResponse {
	matches := make([]MatchResultDTO, len(report.Results))
	for i, m := range report.Results {
		matches[i] = MatchResultDTO{
			SongID:     m.SongID,
			Title:      m.Title,
			Artist:     m.Artist,
			YouTubeID:  m.YouTubeID,
			Distance:   finite(m.Distance),
			Similarity: m.Similarity,
			Confidence: m.Confidence,
		}
	}
	return MatchResponse{
		Matches:       matches,
		Count:         len(matches),
		Candidates:    report.Candidates,
		ContourLength: report.ContourLength,
		ValidRatio:    report.ValidRatio,
	}
}

// finite maps the infinite distance of an empty contour to -1, which JSON can
// carry.
func finite(d float64) float64 {
	if math.IsInf(d, 0) || math.IsNaN(d) {
		return -1
	}
	return d
}

// AddSongYouTubeRequest is the request body for POST /api/songs/youtube
type AddSongYouTubeRequest struct {
	// YouTubeURL is the full YouTube video URL (required)
	YouTubeURL string `json:"youtube_url"`
}

// Validate checks if the request is valid
func (r *AddSongYouTubeRequest) Validate() error {
	if r.YouTubeURL == "" {
		return fmt.Errorf("youtube_url is required")
	}
	return nil
}

// AddSongResponse is the response for successful song addition
type AddSongResponse struct {
	Message string  `json:"message"`
	Song    SongDTO `json:"song"`
}

// SongDTO represents a song in API responses
type SongDTO struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Artist        string  `json:"artist"`
	YouTubeID     string  `json:"youtube_id,omitempty"`
	DurationSec   float64 `json:"duration_sec"`
	ContourLength int     `json:"contour_length"`
}

func newSongDTO(song *models.Song) SongDTO {
	return SongDTO{
		ID:            song.ID,
		Title:         song.Title,
		Artist:        song.Artist,
		YouTubeID:     song.YouTubeID,
		DurationSec:   song.DurationSec,
		ContourLength: song.ContourLength,
	}
}

// ListSongsResponse is the response for GET /api/songs
type ListSongsResponse struct {
	Songs []SongDTO `json:"songs"`
	Count int       `json:"count"`
}

// DeleteSongResponse is the response for DELETE /api/songs/{id}
type DeleteSongResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// AnalysisResponse carries the raw pitch track and contour of a clip for
// visualisation. Missing pitch frames are null.
type AnalysisResponse struct {
	Pitch          []*float64 `json:"pitch"`
	Contour        []int8     `json:"contour"`
	Frames         int        `json:"frames"`
	ValidFrames    int        `json:"valid_frames"`
	ValidRatio     float64    `json:"valid_ratio"`
	MinHz          float64    `json:"min_hz"`
	MaxHz          float64    `json:"max_hz"`
	MeanHz         float64    `json:"mean_hz"`
	StdDevHz       float64    `json:"stddev_hz"`
	MeanConfidence float64    `json:"mean_confidence"`
	Up             int        `json:"up"`
	Down           int        `json:"down"`
	Stable         int        `json:"stable"`
}

func newAnalysisResponse(a *query.Analysis) AnalysisResponse {
	pitch := make([]*float64, len(a.Pitch))
	for i, f := range a.Pitch {
		if f.Valid {
			hz := f.Hz
			pitch[i] = &hz
		}
	}
	return AnalysisResponse{
		Pitch:          pitch,
		Contour:        a.Contour,
		Frames:         a.Frames,
		ValidFrames:    a.ValidFrames,
		ValidRatio:     a.ValidRatio,
		MinHz:          a.MinHz,
		MaxHz:          a.MaxHz,
		MeanHz:         a.MeanHz,
		StdDevHz:       a.StdDevHz,
		MeanConfidence: a.MeanConfidence,
		Up:             a.Up,
		Down:           a.Down,
		Stable:         a.Stable,
	}
}

// MetricsResponse provides server health and catalogue metrics
type MetricsResponse struct {
	Status       string `json:"status"`
	DatabasePath string `json:"database_path"`
	Backend      string `json:"backend"`
	SongCount    int    `json:"song_count"`
	SampleRate   int    `json:"sample_rate"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
