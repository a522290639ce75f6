package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/HumDNA/pkg/models"
)

const DefaultDBFile = "humdna.sqlite3"
const errDBClientNil = "db client is nil"

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

type Song struct {
	ID            string  `gorm:"primaryKey;type:varchar(36)"`
	Title         string  `gorm:"uniqueIndex:idx_song_unique,priority:1;index:idx_song_meta,priority:1" json:"title"`
	Artist        string  `gorm:"uniqueIndex:idx_song_unique,priority:2;index:idx_song_meta,priority:2" json:"artist"`
	YouTubeID     string  `gorm:"index:idx_youtube_id" json:"youtube_id"`
	Filename      string  `gorm:"index:idx_filename" json:"filename"`
	DurationSec   float64 `json:"duration_sec"`
	ContourLength int     `json:"contour_length"`
	CreatedAt     time.Time
}

// SignatureBlob holds the encoded signature record of one song.
type SignatureBlob struct {
	SongID string `gorm:"primaryKey;type:varchar(36)" json:"song_id"`
	Record []byte `json:"record"`
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil && !os.IsExist(err) {
		if filepath.Dir(dbPath) != "." {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Song{}, &SignatureBlob{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// RegisterSong inserts song, or returns the ID of the existing song with the
// same title and artist. Missing YouTube IDs and file names are filled in on
// the existing row.
func (c *DBClient) RegisterSong(song models.Song) (string, error) {
	if c == nil || c.DB == nil {
		return "", errors.New(errDBClientNil)
	}

	var row Song
	err := c.DB.Where("title = ? AND artist = ?", song.Title, song.Artist).First(&row).Error
	if err == nil {
		updates := map[string]any{}
		if row.YouTubeID == "" && song.YouTubeID != "" {
			updates["you_tube_id"] = song.YouTubeID
		}
		if row.Filename == "" && song.Filename != "" {
			updates["filename"] = song.Filename
		}
		if len(updates) > 0 {
			if err := c.DB.Model(&row).Updates(updates).Error; err != nil {
				return "", fmt.Errorf("updating song metadata: %w", err)
			}
		}
		return row.ID, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("querying existing song: %w", err)
	}

	row = fromModel(song)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	err = c.DB.Create(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "constraint failed") {
			if fetchErr := c.DB.Where("title = ? AND artist = ?", song.Title, song.Artist).First(&row).Error; fetchErr != nil {
				return "", fmt.Errorf("fetching song after constraint violation: %w", fetchErr)
			}
			return row.ID, nil
		}
		return "", fmt.Errorf("creating song: %w", err)
	}

	return row.ID, nil
}

// StoreSignature saves the signature record of songID, replacing any
// previous one, and records its contour length on the song row.
func (c *DBClient) StoreSignature(songID string, record []byte, contourLength int) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Song{}).Where("id = ?", songID).Update("contour_length", contourLength)
		if res.Error != nil {
			return fmt.Errorf("updating contour length: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrSongNotFound, songID)
		}
		if err := tx.Save(&SignatureBlob{SongID: songID, Record: record}).Error; err != nil {
			return fmt.Errorf("saving signature: %w", err)
		}
		return nil
	})
}

func (c *DBClient) GetSignature(songID string) ([]byte, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var blob SignatureBlob
	if err := c.DB.Where("song_id = ?", songID).First(&blob).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSongNotFound, songID)
		}
		return nil, fmt.Errorf("querying signature: %w", err)
	}
	return blob.Record, nil
}

// ForEachSignature calls fn with every stored record, in song creation
// order. It stops at the first error fn returns.
func (c *DBClient) ForEachSignature(fn func(songID string, record []byte) error) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	var blobs []SignatureBlob
	err := c.DB.Model(&SignatureBlob{}).
		Joins("JOIN songs ON songs.id = signature_blobs.song_id").
		Order("songs.created_at, songs.id").
		Find(&blobs).Error
	if err != nil {
		return fmt.Errorf("querying signatures: %w", err)
	}
	for _, b := range blobs {
		if err := fn(b.SongID, b.Record); err != nil {
			return err
		}
	}
	return nil
}

func (c *DBClient) DeleteSongByID(songID string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("song_id = ?", songID).Delete(&SignatureBlob{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", songID).Delete(&Song{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrSongNotFound, songID)
		}
		return nil
	})
}

func (c *DBClient) GetSongByID(songID string) (*models.Song, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var row Song
	if err := c.DB.Where("id = ?", songID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSongNotFound, songID)
		}
		return nil, fmt.Errorf("querying song: %w", err)
	}
	song := row.toModel()
	return &song, nil
}

func (c *DBClient) FindSongByFilename(filename string) (*models.Song, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var row Song
	if err := c.DB.Where("filename = ?", filename).Order("created_at").First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSongNotFound, filename)
		}
		return nil, fmt.Errorf("querying song by filename: %w", err)
	}
	song := row.toModel()
	return &song, nil
}

func (c *DBClient) FindSongByYouTubeID(videoID string) (*models.Song, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var row Song
	if err := c.DB.Where("you_tube_id = ?", videoID).Order("created_at").First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSongNotFound, videoID)
		}
		return nil, fmt.Errorf("querying song by youtube id: %w", err)
	}
	song := row.toModel()
	return &song, nil
}

func (c *DBClient) ListSongs() ([]models.Song, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var rows []Song
	if err := c.DB.Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing songs: %w", err)
	}
	songs := make([]models.Song, len(rows))
	for i, r := range rows {
		songs[i] = r.toModel()
	}
	return songs, nil
}

func fromModel(s models.Song) Song {
	return Song{
		ID:            s.ID,
		Title:         s.Title,
		Artist:        s.Artist,
		YouTubeID:     s.YouTubeID,
		Filename:      s.Filename,
		DurationSec:   s.DurationSec,
		ContourLength: s.ContourLength,
		CreatedAt:     s.CreatedAt,
	}
}

func (s Song) toModel() models.Song {
	return models.Song{
		ID:            s.ID,
		Title:         s.Title,
		Artist:        s.Artist,
		YouTubeID:     s.YouTubeID,
		Filename:      s.Filename,
		DurationSec:   s.DurationSec,
		ContourLength: s.ContourLength,
		CreatedAt:     s.CreatedAt,
	}
}
