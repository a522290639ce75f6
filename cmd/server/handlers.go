package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/HumDNA/pkg/humdna"
	"github.com/himanishpuri/HumDNA/pkg/logger"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service humdna.Service
	config  *ServerConfig
	log     humdna.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	DBPath         string
	Backend        string
	TempDir        string
	SampleRate     int
	AllowedOrigins []string
	LogRequests    bool
}

// NewServer creates a new server instance
func NewServer(service humdna.Service, config *ServerConfig) *Server {
	return &Server{
		service: service,
		config:  config,
		log:     logger.GetLogger(),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, humdna.ErrSongNotFound):
		return http.StatusNotFound
	case errors.Is(err, humdna.ErrDecode), errors.Is(err, humdna.ErrEmptyAudio):
		return http.StatusBadRequest
	case errors.Is(err, humdna.ErrNoMelody):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// saveUpload copies the multipart file field into a fresh directory under
// the temp dir, keeping the client's file name. The caller removes dir.
func (s *Server) saveUpload(r *http.Request, field string) (path, dir string, err error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", "", fmt.Errorf("%s file is required", field)
	}
	defer file.Close()

	dir, err = os.MkdirTemp(s.config.TempDir, "upload_*")
	if err != nil {
		return "", "", fmt.Errorf("creating upload dir: %w", err)
	}

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) {
		name = "upload"
	}
	path = filepath.Join(dir, name)
	out, err := os.Create(path)
	if err != nil {
		os.RemoveAll(dir)
		return "", "", fmt.Errorf("creating upload file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.RemoveAll(dir)
		return "", "", fmt.Errorf("saving upload: %w", err)
	}
	return path, dir, nil
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "HumDNA API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":         "GET /health",
			"metrics":        "GET /api/health/metrics",
			"songs":          "GET /api/songs",
			"addSongFile":    "POST /api/songs",
			"addSongYouTube": "POST /api/songs/youtube",
			"getSong":        "GET /api/songs/{id}",
			"deleteSong":     "DELETE /api/songs/{id}",
			"matchFile":      "POST /api/match",
			"matchContour":   "POST /api/match/contour",
			"analyze":        "POST /api/analyze",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleMetrics handles GET /api/health/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	songs, err := s.service.ListSongs()
	if err != nil {
		s.log.Errorf("Failed to get song count: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}

	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:       "healthy",
		DatabasePath: s.config.DBPath,
		Backend:      s.config.Backend,
		SongCount:    len(songs),
		SampleRate:   s.config.SampleRate,
	})
}

// handleListSongs handles GET /api/songs
func (s *Server) handleListSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := s.service.ListSongs()
	if err != nil {
		s.log.Errorf("Failed to list songs: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve songs")
		return
	}

	songDTOs := make([]SongDTO, len(songs))
	for i := range songs {
		songDTOs[i] = newSongDTO(&songs[i])
	}

	s.respondJSON(w, http.StatusOK, ListSongsResponse{
		Songs: songDTOs,
		Count: len(songDTOs),
	})
}

// handleGetSong handles GET /api/songs/{id}
func (s *Server) handleGetSong(w http.ResponseWriter, r *http.Request, songID string) {
	song, err := s.service.GetSongByID(songID)
	if err != nil {
		s.log.Warnf("Song not found: %s", songID)
		s.respondError(w, statusFor(err), fmt.Sprintf("Song with ID %s not found", songID))
		return
	}
	s.respondJSON(w, http.StatusOK, newSongDTO(song))
}

// handleDeleteSong handles DELETE /api/songs/{id}
func (s *Server) handleDeleteSong(w http.ResponseWriter, r *http.Request, songID string) {
	// Get song info before deletion
	song, err := s.service.GetSongByID(songID)
	if err != nil {
		s.log.Warnf("Song not found for deletion: %s", songID)
		s.respondError(w, statusFor(err), fmt.Sprintf("Song with ID %s not found", songID))
		return
	}

	if err := s.service.DeleteSong(songID); err != nil {
		s.log.Errorf("Failed to delete song %s: %v", songID, err)
		s.respondError(w, statusFor(err), "Failed to delete song")
		return
	}

	s.log.Infof("Deleted song: %s by %s (ID: %s)", song.Title, song.Artist, songID)
	s.respondJSON(w, http.StatusOK, DeleteSongResponse{
		Message: "Song deleted successfully",
		ID:      songID,
	})
}

// handleAddSongFile handles POST /api/songs (multipart file upload)
func (s *Server) handleAddSongFile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	// Parse multipart form (max 100MB)
	if err := r.ParseMultipartForm(100 << 20); err != nil {
		s.log.Errorf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}

	title := r.FormValue("title")
	artist := r.FormValue("artist")
	youtubeID := r.FormValue("youtube_id")
	if title == "" || artist == "" {
		s.respondError(w, http.StatusBadRequest, "title and artist are required")
		return
	}

	path, dir, err := s.saveUpload(r, "audio")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.RemoveAll(dir)

	s.log.Infof("Adding song from file: %s by %s", title, artist)
	songID, err := s.service.AddSong(ctx, path, title, artist, youtubeID)
	if err != nil {
		s.log.Errorf("Failed to add song: %v", err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to add song: %v", err))
		return
	}
	s.respondAdded(w, songID, "Song added successfully")
}

func (s *Server) respondAdded(w http.ResponseWriter, songID, message string) {
	song, err := s.service.GetSongByID(songID)
	if err != nil {
		s.log.Errorf("Failed to read back song %s: %v", songID, err)
		s.respondError(w, http.StatusInternalServerError, "Song added but could not be read back")
		return
	}
	s.log.Infof("Successfully added song: %s by %s (ID: %s)", song.Title, song.Artist, songID)
	s.respondJSON(w, http.StatusCreated, AddSongResponse{
		Message: message,
		Song:    newSongDTO(song),
	})
}

// handleAddSongYouTube handles POST /api/songs/youtube
func (s *Server) handleAddSongYouTube(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	var req AddSongYouTubeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.log.Errorf("Failed to decode request: %v", err)
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.log.Infof("Adding song from YouTube URL: %s", req.YouTubeURL)
	songID, err := s.service.AddYouTube(ctx, req.YouTubeURL)
	if err != nil {
		s.log.Errorf("Failed to add song from YouTube: %v", err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to add song: %v", err))
		return
	}
	s.respondAdded(w, songID, "Song added successfully from YouTube")
}

// topK reads the optional top_k query or form value.
func topK(r *http.Request) int {
	k, err := strconv.Atoi(r.FormValue("top_k"))
	if err != nil || k < 0 {
		return 0
	}
	return k
}

// handleMatchFile handles POST /api/match (multipart file upload)
func (s *Server) handleMatchFile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	// Parse multipart form (max 50MB)
	if err := r.ParseMultipartForm(50 << 20); err != nil {
		s.log.Errorf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}

	path, dir, err := s.saveUpload(r, "audio")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.RemoveAll(dir)

	s.log.Infof("Matching uploaded file: %s", filepath.Base(path))
	report, err := s.service.MatchSong(ctx, path, topK(r))
	if err != nil {
		s.log.Warnf("Failed to match song: %v", err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to match song: %v", err))
		return
	}

	s.log.Infof("Match complete: %d results", len(report.Results))
	s.respondJSON(w, http.StatusOK, newMatchResponse(report))
}

// handleMatchContour handles POST /api/match/contour (contours computed by
// WASM clients)
func (s *Server) handleMatchContour(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req MatchContourRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.log.Errorf("Failed to decode request: %v", err)
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Contour) > MaxContourSoftLimit {
		s.log.Warnf("Long contour received: %d steps", len(req.Contour))
	}

	report, err := s.service.MatchContour(ctx, req.Steps(), req.TopK)
	if err != nil {
		s.log.Errorf("Failed to match contour: %v", err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to match contour: %v", err))
		return
	}

	s.log.Infof("Contour match complete: %d results", len(report.Results))
	s.respondJSON(w, http.StatusOK, newMatchResponse(report))
}

// handleAnalyze handles POST /api/analyze (multipart file upload)
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	if err := r.ParseMultipartForm(50 << 20); err != nil {
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}
	path, dir, err := s.saveUpload(r, "audio")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.RemoveAll(dir)

	a, err := s.service.Analyze(ctx, path)
	if err != nil {
		s.log.Warnf("Failed to analyze: %v", err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to analyze: %v", err))
		return
	}
	s.respondJSON(w, http.StatusOK, newAnalysisResponse(a))
}

// handleSongs routes requests to /api/songs
func (s *Server) handleSongs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListSongs(w, r)
	case http.MethodPost:
		s.handleAddSongFile(w, r)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleSong routes requests to /api/songs/{id}
func (s *Server) handleSong(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(r.URL.Path[len("/api/songs/"):], "/")
	if id == "" {
		s.respondError(w, http.StatusBadRequest, "Song ID required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetSong(w, r, id)
	case http.MethodDelete:
		s.handleDeleteSong(w, r, id)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleMatch routes requests to /api/match
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleMatchFile(w, r)
}

// handleMatchContourRoute routes requests to /api/match/contour
func (s *Server) handleMatchContourRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleMatchContour(w, r)
}
