package humdna

import (
	"os"

	"github.com/himanishpuri/HumDNA/pkg/humdna/audio"
	"github.com/himanishpuri/HumDNA/pkg/humdna/dtw"
	"github.com/himanishpuri/HumDNA/pkg/humdna/query"
)

// Catalogue backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

type Config struct {
	DBPath           string
	Backend          string
	TempDir          string
	SampleRate       int
	MaxDuration      float64 // seconds analysed per library song
	QueryMaxDuration float64 // seconds analysed per query, 0 for all
	TopK             int
	Window           int
	Humming          bool // widen the query pitch range to C2..C7
	Workers          int
	Logger           Logger
	Storage          Storage
	Decoder          audio.Decoder
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

// WithBackend selects the catalogue backend, BackendSQLite or BackendBadger.
func WithBackend(backend string) Option {
	return func(c *Config) {
		c.Backend = backend
	}
}

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

func WithMaxDuration(seconds float64) Option {
	return func(c *Config) {
		c.MaxDuration = seconds
	}
}

func WithQueryMaxDuration(seconds float64) Option {
	return func(c *Config) {
		c.QueryMaxDuration = seconds
	}
}

func WithTopK(k int) Option {
	return func(c *Config) {
		c.TopK = k
	}
}

// WithWindow sets the DTW band half-width; 0 disables the band.
func WithWindow(window int) Option {
	return func(c *Config) {
		c.Window = window
	}
}

func WithHumming(humming bool) Option {
	return func(c *Config) {
		c.Humming = humming
	}
}

func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithStorage(storage Storage) Option {
	return func(c *Config) {
		c.Storage = storage
	}
}

func WithDecoder(decoder audio.Decoder) Option {
	return func(c *Config) {
		c.Decoder = decoder
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath:      "humdna.sqlite3",
		Backend:     BackendSQLite,
		TempDir:     os.TempDir(),
		SampleRate:  audio.DefaultSampleRate,
		MaxDuration: 30,
		TopK:        query.DefaultTopK,
		Window:      dtw.DefaultWindow,
		Logger:      nil,
	}
}
