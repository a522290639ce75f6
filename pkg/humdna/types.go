package humdna

import (
	"github.com/himanishpuri/HumDNA/pkg/humdna/audio"
	"github.com/himanishpuri/HumDNA/pkg/humdna/melody"
	"github.com/himanishpuri/HumDNA/pkg/humdna/query"
	"github.com/himanishpuri/HumDNA/pkg/humdna/storage"
	"github.com/himanishpuri/HumDNA/pkg/models"
)

var (
	ErrDecode        = audio.ErrDecode
	ErrEmptyAudio    = melody.ErrEmptyAudio
	ErrCorruptRecord = melody.ErrCorruptRecord
	ErrNoMelody      = query.ErrNoMelody
	ErrSongNotFound  = storage.ErrSongNotFound
)

// SongInput describes one file for AddSongs.
type SongInput struct {
	Path      string
	Title     string
	Artist    string
	YouTubeID string
}

// IndexReport summarises IndexDirectory.
type IndexReport struct {
	Added  []models.Song
	Reused []models.Song
	Failed []models.AddResult
}
