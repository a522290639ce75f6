package humdna

import (
	"context"

	"github.com/himanishpuri/HumDNA/pkg/humdna/melody"
	"github.com/himanishpuri/HumDNA/pkg/humdna/query"
	"github.com/himanishpuri/HumDNA/pkg/humdna/store"
	"github.com/himanishpuri/HumDNA/pkg/models"
)

type Service interface {
	ExtractSignature(ctx context.Context, audioPath string) (*melody.Signature, error)
	AddSong(ctx context.Context, audioPath, title, artist, youtubeID string) (string, error)
	AddYouTube(ctx context.Context, youtubeURL string) (string, error)
	AddSongs(ctx context.Context, songs []SongInput) []models.AddResult
	IndexDirectory(ctx context.Context, dir string, progress func(path string, err error)) (*IndexReport, error)
	MatchSong(ctx context.Context, audioPath string, topK int) (*models.MatchReport, error)
	MatchContour(ctx context.Context, contour []int8, topK int) (*models.MatchReport, error)
	Analyze(ctx context.Context, audioPath string) (*query.Analysis, error)
	SynthesizeHum(ctx context.Context, inputPath, outputPath string) error
	GetSongByID(songID string) (*models.Song, error)
	ListSongs() ([]models.Song, error)
	DeleteSong(songID string) error
	ExportSignatures(dir string) (int, error)
	ImportSignatures(dir string) (store.LoadReport, error)
	Close() error
}

// Storage is the persistent song catalogue. Signature records are opaque
// bytes to it.
type Storage interface {
	RegisterSong(song models.Song) (string, error)
	StoreSignature(songID string, record []byte, contourLength int) error
	GetSignature(songID string) ([]byte, error)
	ForEachSignature(fn func(songID string, record []byte) error) error
	DeleteSongByID(songID string) error
	GetSongByID(songID string) (*models.Song, error)
	FindSongByFilename(filename string) (*models.Song, error)
	FindSongByYouTubeID(videoID string) (*models.Song, error)
	ListSongs() ([]models.Song, error)
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
