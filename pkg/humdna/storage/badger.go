package storage

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/himanishpuri/HumDNA/pkg/models"
)

// ErrSongNotFound is returned when a song ID or file name is unknown.
var ErrSongNotFound = errors.New("song not found")

const (
	songPrefix  = "song:"
	sigPrefix   = "sig:"
	titlePrefix = "title:"
	filePrefix  = "file:"
	ytPrefix    = "yt:"
)

type songDoc struct {
	ID            string    `bson:"_id"`
	Title         string    `bson:"title"`
	Artist        string    `bson:"artist"`
	YouTubeID     string    `bson:"youtube_id"`
	Filename      string    `bson:"filename"`
	DurationSec   float64   `bson:"duration_sec"`
	ContourLength int       `bson:"contour_length"`
	CreatedAt     time.Time `bson:"created_at"`
}

// BadgerClient is a catalogue backed by an embedded badger key-value store.
// Songs are BSON documents under song:<id>, signature records live under
// sig:<id>.
type BadgerClient struct {
	db *badger.DB
}

// NewBadgerClient opens (or creates) a badger directory. An empty dir opens
// an in-memory store.
func NewBadgerClient(dir string) (*BadgerClient, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}
	return &BadgerClient{db: db}, nil
}

func (c *BadgerClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func titleKey(title, artist string) []byte {
	return []byte(titlePrefix + title + "\x00" + artist)
}

func getString(txn *badger.Txn, key []byte) (string, error) {
	item, err := txn.Get(key)
	if err != nil {
		return "", err
	}
	v, err := item.ValueCopy(nil)
	return string(v), err
}

func getSong(txn *badger.Txn, id string) (*songDoc, error) {
	item, err := txn.Get([]byte(songPrefix + id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSongNotFound, id)
		}
		return nil, err
	}
	var doc songDoc
	err = item.Value(func(v []byte) error {
		return bson.Unmarshal(v, &doc)
	})
	if err != nil {
		return nil, fmt.Errorf("decoding song %s: %w", id, err)
	}
	return &doc, nil
}

// setIfAbsent points an index key at id unless another song owns it.
func setIfAbsent(txn *badger.Txn, key []byte, id string) error {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return txn.Set(key, []byte(id))
	}
	return err
}

func putSong(txn *badger.Txn, doc *songDoc) error {
	data, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding song %s: %w", doc.ID, err)
	}
	return txn.Set([]byte(songPrefix+doc.ID), data)
}

// RegisterSong behaves like DBClient.RegisterSong.
func (c *BadgerClient) RegisterSong(song models.Song) (string, error) {
	var id string
	err := c.db.Update(func(txn *badger.Txn) error {
		existing, err := getString(txn, titleKey(song.Title, song.Artist))
		switch {
		case err == nil:
			id = existing
			doc, err := getSong(txn, id)
			if err != nil {
				return err
			}
			changed := false
			if doc.YouTubeID == "" && song.YouTubeID != "" {
				doc.YouTubeID = song.YouTubeID
				changed = true
				if err := setIfAbsent(txn, []byte(ytPrefix+doc.YouTubeID), id); err != nil {
					return err
				}
			}
			if doc.Filename == "" && song.Filename != "" {
				doc.Filename = song.Filename
				changed = true
				if err := txn.Set([]byte(filePrefix+doc.Filename), []byte(id)); err != nil {
					return err
				}
			}
			if changed {
				return putSong(txn, doc)
			}
			return nil
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		id = song.ID
		if id == "" {
			id = uuid.NewString()
		}
		created := song.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		doc := &songDoc{
			ID:            id,
			Title:         song.Title,
			Artist:        song.Artist,
			YouTubeID:     song.YouTubeID,
			Filename:      song.Filename,
			DurationSec:   song.DurationSec,
			ContourLength: song.ContourLength,
			CreatedAt:     created.UTC(),
		}
		if err := putSong(txn, doc); err != nil {
			return err
		}
		if err := txn.Set(titleKey(song.Title, song.Artist), []byte(id)); err != nil {
			return err
		}
		if song.YouTubeID != "" {
			if err := setIfAbsent(txn, []byte(ytPrefix+song.YouTubeID), id); err != nil {
				return err
			}
		}
		if song.Filename != "" {
			return setIfAbsent(txn, []byte(filePrefix+song.Filename), id)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("registering song: %w", err)
	}
	return id, nil
}

func (c *BadgerClient) StoreSignature(songID string, record []byte, contourLength int) error {
	return c.db.Update(func(txn *badger.Txn) error {
		doc, err := getSong(txn, songID)
		if err != nil {
			return err
		}
		doc.ContourLength = contourLength
		if err := putSong(txn, doc); err != nil {
			return err
		}
		return txn.Set([]byte(sigPrefix+songID), record)
	})
}

func (c *BadgerClient) GetSignature(songID string) ([]byte, error) {
	var out []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sigPrefix + songID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrSongNotFound, songID)
			}
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

// ForEachSignature visits records in song creation order.
func (c *BadgerClient) ForEachSignature(fn func(songID string, record []byte) error) error {
	songs, err := c.ListSongs()
	if err != nil {
		return err
	}
	for _, s := range songs {
		record, err := c.GetSignature(s.ID)
		if errors.Is(err, ErrSongNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(s.ID, record); err != nil {
			return err
		}
	}
	return nil
}

func (c *BadgerClient) DeleteSongByID(songID string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		doc, err := getSong(txn, songID)
		if err != nil {
			return err
		}
		keys := [][]byte{
			[]byte(songPrefix + songID),
			[]byte(sigPrefix + songID),
			titleKey(doc.Title, doc.Artist),
		}
		var indexes [][]byte
		if doc.Filename != "" {
			indexes = append(indexes, []byte(filePrefix+doc.Filename))
		}
		if doc.YouTubeID != "" {
			indexes = append(indexes, []byte(ytPrefix+doc.YouTubeID))
		}
		for _, k := range indexes {
			if owner, err := getString(txn, k); err == nil && owner == songID {
				keys = append(keys, k)
			}
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *BadgerClient) GetSongByID(songID string) (*models.Song, error) {
	var song models.Song
	err := c.db.View(func(txn *badger.Txn) error {
		doc, err := getSong(txn, songID)
		if err != nil {
			return err
		}
		song = doc.toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &song, nil
}

func (c *BadgerClient) FindSongByFilename(filename string) (*models.Song, error) {
	return c.findByIndex(filePrefix, filename)
}

func (c *BadgerClient) FindSongByYouTubeID(videoID string) (*models.Song, error) {
	return c.findByIndex(ytPrefix, videoID)
}

func (c *BadgerClient) findByIndex(prefix, value string) (*models.Song, error) {
	var song models.Song
	err := c.db.View(func(txn *badger.Txn) error {
		id, err := getString(txn, []byte(prefix+value))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrSongNotFound, value)
			}
			return err
		}
		doc, err := getSong(txn, id)
		if err != nil {
			return err
		}
		song = doc.toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &song, nil
}

func (c *BadgerClient) ListSongs() ([]models.Song, error) {
	var songs []models.Song
	err := c.db.View(func(txn *badger.Txn) error {
		prefix := []byte(songPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var doc songDoc
			err := it.Item().Value(func(v []byte) error {
				return bson.Unmarshal(v, &doc)
			})
			if err != nil {
				return fmt.Errorf("decoding song: %w", err)
			}
			songs = append(songs, doc.toModel())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing songs: %w", err)
	}
	sort.SliceStable(songs, func(i, j int) bool {
		if songs[i].CreatedAt.Equal(songs[j].CreatedAt) {
			return songs[i].ID < songs[j].ID
		}
		return songs[i].CreatedAt.Before(songs[j].CreatedAt)
	})
	return songs, nil
}

func (d songDoc) toModel() models.Song {
	return models.Song{
		ID:            d.ID,
		Title:         d.Title,
		Artist:        d.Artist,
		YouTubeID:     d.YouTubeID,
		Filename:      d.Filename,
		DurationSec:   d.DurationSec,
		ContourLength: d.ContourLength,
		CreatedAt:     d.CreatedAt,
	}
}
