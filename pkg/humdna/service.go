package humdna

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/himanishpuri/HumDNA/pkg/humdna/audio"
	"github.com/himanishpuri/HumDNA/pkg/humdna/dtw"
	"github.com/himanishpuri/HumDNA/pkg/humdna/melody"
	"github.com/himanishpuri/HumDNA/pkg/humdna/query"
	"github.com/himanishpuri/HumDNA/pkg/humdna/storage"
	"github.com/himanishpuri/HumDNA/pkg/humdna/store"
	"github.com/himanishpuri/HumDNA/pkg/logger"
	"github.com/himanishpuri/HumDNA/pkg/models"
	"github.com/himanishpuri/HumDNA/pkg/utils"
)

var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
	".aac":  true,
	".opus": true,
}

// humService is the default implementation of the Service interface.
type humService struct {
	storage Storage
	log     Logger
	config  *Config

	decoder   audio.Decoder
	extractor *melody.Extractor // library songs
	hummer    *melody.PitchExtractor
	store     *store.Store
	matcher   *query.Matcher
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	// Set default logger if none provided
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Decoder == nil {
		cfg.Decoder = audio.AutoDecoder{FFmpeg: audio.FFmpegDecoder{TempDir: cfg.TempDir}}
	}

	// Create or use provided storage
	var stor Storage
	var err error
	if cfg.Storage != nil {
		stor = cfg.Storage
	} else {
		stor, err = openStorage(cfg.Backend, cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
	}

	songParams := melody.DefaultPitchParams()
	songParams.SampleRate = cfg.SampleRate
	queryParams := songParams
	hummingParams := melody.HummingPitchParams()
	hummingParams.SampleRate = cfg.SampleRate
	if cfg.Humming {
		queryParams = hummingParams
	}

	songExtractor := melody.NewExtractor(songParams, melody.DefaultContourParams())
	queryExtractor := melody.NewExtractor(queryParams, melody.DefaultContourParams())

	st := store.New(songExtractor, cfg.Decoder)
	s := &humService{
		storage:   stor,
		log:       cfg.Logger,
		config:    cfg,
		decoder:   cfg.Decoder,
		extractor: songExtractor,
		hummer:    melody.NewPitchExtractor(hummingParams),
		store:     st,
		matcher: query.New(st, queryExtractor, dtw.NewMatcher(cfg.Window), query.Config{
			TopK:        cfg.TopK,
			Workers:     cfg.Workers,
			MaxDuration: cfg.QueryMaxDuration,
		}),
	}

	if err := s.loadCatalogue(); err != nil {
		stor.Close()
		return nil, err
	}
	return s, nil
}

func openStorage(backend, path string) (Storage, error) {
	switch strings.ToLower(backend) {
	case "", BackendSQLite:
		return storage.NewDBClientWithPath(path)
	case BackendBadger:
		return storage.NewBadgerClient(path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// loadCatalogue fills the in-memory store from persisted records. Corrupt
// records are skipped.
func (s *humService) loadCatalogue() error {
	loaded, failed := 0, 0
	err := s.storage.ForEachSignature(func(songID string, record []byte) error {
		if _, err := s.store.Load(songID, record); err != nil {
			s.log.Warnf("Skipping signature of song %s: %v", songID, err)
			failed++
			return nil
		}
		loaded++
		return nil
	})
	if err != nil {
		return fmt.Errorf("loading signatures: %w", err)
	}
	s.log.Debugf("Loaded %d signatures (%d failed)", loaded, failed)
	return nil
}

func (s *humService) decode(ctx context.Context, path string, maxDuration float64) ([]float64, error) {
	samples, err := s.decoder.Decode(ctx, path, s.config.SampleRate, maxDuration)
	if err != nil {
		return nil, fmt.Errorf("audio conversion failed: %w", err)
	}
	return samples, nil
}

// ExtractSignature computes the library signature of a file without storing
// it.
func (s *humService) ExtractSignature(ctx context.Context, audioPath string) (*melody.Signature, error) {
	sig, _, err := s.extract(ctx, audioPath)
	return sig, err
}

// extract also returns the length in seconds of the audio that was analysed.
func (s *humService) extract(ctx context.Context, audioPath string) (*melody.Signature, float64, error) {
	samples, err := s.decode(ctx, audioPath, s.config.MaxDuration)
	if err != nil {
		return nil, 0, err
	}
	id := audio.TitleFromFilename(audioPath)
	sig, err := s.extractor.Extract(id, samples, s.config.SampleRate, s.config.MaxDuration)
	if err != nil {
		return nil, 0, err
	}
	return sig, float64(len(samples)) / float64(s.config.SampleRate), nil
}

// AddSong extracts the signature of a file and registers it. The store only
// sees the song once the catalogue holds its record.
func (s *humService) AddSong(ctx context.Context, audioPath, title, artist, youtubeID string) (string, error) {
	s.log.Infof("Processing song: %s by %s", title, artist)

	sig, seconds, err := s.extract(ctx, audioPath)
	if err != nil {
		return "", err
	}
	if len(sig.Contour) == 0 {
		s.log.Warnf("No melody found in %s; it will never match", audioPath)
	}
	s.log.Debugf("Extracted %d frames, %d valid, contour length %d", len(sig.RawPitch), sig.ValidFrames(), len(sig.Contour))

	songID, err := s.storage.RegisterSong(models.Song{
		Title:       title,
		Artist:      artist,
		YouTubeID:   youtubeID,
		Filename:    filepath.Base(audioPath),
		DurationSec: seconds,
	})
	if err != nil {
		return "", fmt.Errorf("failed to register song: %w", err)
	}

	sig.ID = songID
	if err := s.persist(sig); err != nil {
		return "", err
	}
	s.store.Put(sig)

	s.log.Infof("Successfully added song ID=%s", songID)
	return songID, nil
}

// persist writes sig to the catalogue. A song row created for a signature
// that could not be written is rolled back.
func (s *humService) persist(sig *melody.Signature) error {
	record, err := melody.EncodeSignature(sig)
	if err == nil {
		err = s.storage.StoreSignature(sig.ID, record, len(sig.Contour))
	}
	if err != nil {
		if _, getErr := s.storage.GetSignature(sig.ID); errors.Is(getErr, storage.ErrSongNotFound) {
			s.storage.DeleteSongByID(sig.ID) // Rollback
		}
		return fmt.Errorf("failed to store signature: %w", err)
	}
	return nil
}

// AddYouTube downloads the audio of a video and adds it. A video that is
// already indexed is not downloaded again; its song ID is returned.
func (s *humService) AddYouTube(ctx context.Context, youtubeURL string) (string, error) {
	videoID, err := utils.ExtractYouTubeID(youtubeURL)
	if err != nil {
		return "", fmt.Errorf("not a YouTube video URL: %w", err)
	}

	existing, err := s.storage.FindSongByYouTubeID(videoID)
	if err == nil {
		if _, ok := s.store.Get(existing.ID); ok {
			s.log.Infof("YouTube video %s already indexed as %s", videoID, existing.ID)
			return existing.ID, nil
		}
	} else if !errors.Is(err, storage.ErrSongNotFound) {
		return "", err
	}

	s.log.Infof("Downloading YouTube video %s", videoID)
	path, meta, err := audio.DownloadYouTubeAudio(ctx, utils.WatchURL(videoID), s.config.TempDir)
	if err != nil {
		return "", fmt.Errorf("youtube download failed: %w", err)
	}
	defer os.Remove(path)

	title := meta.Title
	if title == "" {
		title = videoID
	}
	return s.AddSong(ctx, path, title, meta.Artist, videoID)
}

// AddSongs adds every input concurrently. One failure does not stop the
// others; results are in input order.
func (s *humService) AddSongs(ctx context.Context, songs []SongInput) []models.AddResult {
	results := make([]models.AddResult, len(songs))
	var g errgroup.Group
	g.SetLimit(s.config.Workers)
	for i, in := range songs {
		g.Go(func() error {
			results[i].Path = in.Path
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].SongID, results[i].Err = s.AddSong(ctx, in.Path, in.Title, in.Artist, in.YouTubeID)
			return nil
		})
	}
	g.Wait()
	return results
}

// IndexDirectory adds every audio file directly under dir. Files whose name
// is already in the catalogue with a loaded signature are reused rather than
// analysed again. progress, when set, is called once per file.
func (s *humService) IndexDirectory(ctx context.Context, dir string, progress func(path string, err error)) (*IndexReport, error) {
	paths, err := AudioFiles(dir)
	if err != nil {
		return nil, err
	}
	s.log.Infof("Indexing %d files from %s", len(paths), dir)

	report := &IndexReport{}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.config.Workers)
	for _, path := range paths {
		g.Go(func() error {
			song, reused, err := s.indexOne(ctx, path)
			mu.Lock()
			switch {
			case err != nil:
				report.Failed = append(report.Failed, models.AddResult{Path: path, Err: err})
			case reused:
				report.Reused = append(report.Reused, *song)
			default:
				report.Added = append(report.Added, *song)
			}
			mu.Unlock()
			if progress != nil {
				progress(path, err)
			}
			return nil
		})
	}
	g.Wait()

	s.log.Infof("Indexed %s: %d added, %d reused, %d failed", dir, len(report.Added), len(report.Reused), len(report.Failed))
	return report, nil
}

func (s *humService) indexOne(ctx context.Context, path string) (*models.Song, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	existing, err := s.storage.FindSongByFilename(filepath.Base(path))
	if err == nil {
		if _, ok := s.store.Get(existing.ID); ok {
			return existing, true, nil
		}
	} else if !errors.Is(err, storage.ErrSongNotFound) {
		return nil, false, err
	}

	title, artist := audio.TitleFromFilename(path), "Unknown Artist"
	if meta, err := audio.ReadMetadataFFmpeg(ctx, path); err == nil {
		if meta.Title != "" {
			title = meta.Title
		}
		if meta.Artist != "" {
			artist = meta.Artist
		}
	}

	id, err := s.AddSong(ctx, path, title, artist, "")
	if err != nil {
		return nil, false, err
	}
	song, err := s.storage.GetSongByID(id)
	if err != nil {
		return nil, false, err
	}
	return song, false, nil
}

// AudioFiles lists the audio files directly under dir, sorted by name.
func AudioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !audioExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}

// MatchSong ranks the catalogue against a query clip.
func (s *humService) MatchSong(ctx context.Context, audioPath string, topK int) (*models.MatchReport, error) {
	s.log.Infof("Matching audio: %s", audioPath)

	samples, err := s.decode(ctx, audioPath, s.config.QueryMaxDuration)
	if err != nil {
		return nil, err
	}

	rep, err := s.matcher.Match(ctx, samples, s.config.SampleRate, topK)
	if err != nil {
		if errors.Is(err, query.ErrNoMelody) {
			s.log.Warnf("No melody detected in %s", audioPath)
		}
		return nil, fmt.Errorf("matching %s: %w", audioPath, err)
	}
	s.log.Debugf("Query: %d frames, %.0f%% valid, contour length %d", rep.PitchFrames, rep.ValidRatio*100, rep.ContourLength)
	return s.toMatchReport(rep), nil
}

// MatchContour ranks the catalogue against a contour computed elsewhere,
// such as by a browser client.
func (s *humService) MatchContour(ctx context.Context, contour []int8, topK int) (*models.MatchReport, error) {
	for i, c := range contour {
		if c < melody.Down || c > melody.Up {
			return nil, fmt.Errorf("contour step %d out of range: %d", i, c)
		}
	}
	sig := &melody.Signature{ID: query.QueryID, Contour: contour}
	rep, err := s.matcher.MatchSignature(ctx, sig, topK)
	if err != nil {
		return nil, err
	}
	return s.toMatchReport(rep), nil
}

func (s *humService) toMatchReport(rep *query.Report) *models.MatchReport {
	out := &models.MatchReport{
		Results:       make([]models.MatchResult, 0, len(rep.Results)),
		Candidates:    rep.Candidates,
		PitchFrames:   rep.PitchFrames,
		ValidFrames:   rep.ValidFrames,
		ValidRatio:    rep.ValidRatio,
		ContourLength: rep.ContourLength,
	}
	for _, r := range rep.Results {
		result := models.MatchResult{
			SongID:     r.ID,
			Distance:   r.Distance,
			Similarity: r.Similarity,
			Confidence: models.ConfidenceLabel(r.Similarity),
		}
		if song, err := s.storage.GetSongByID(r.ID); err == nil {
			result.Title = song.Title
			result.Artist = song.Artist
			result.YouTubeID = song.YouTubeID
		} else {
			s.log.Warnf("Failed to get song %s: %v", r.ID, err)
		}
		out.Results = append(out.Results, result)
	}

	s.log.Infof("Returning %d matches out of %d songs", len(out.Results), out.Candidates)
	return out
}

// Analyze reports the pitch track and contour of a clip as a query sees it.
func (s *humService) Analyze(ctx context.Context, audioPath string) (*query.Analysis, error) {
	samples, err := s.decode(ctx, audioPath, s.config.QueryMaxDuration)
	if err != nil {
		return nil, err
	}
	return s.matcher.Analyze(samples, s.config.SampleRate)
}

// SynthesizeHum converts a vocal recording to a hummed sine rendition.
func (s *humService) SynthesizeHum(ctx context.Context, inputPath, outputPath string) error {
	samples, err := s.decode(ctx, inputPath, 0)
	if err != nil {
		return err
	}
	hum, err := s.hummer.SynthesizeHum(samples, s.config.SampleRate)
	if err != nil {
		return fmt.Errorf("synthesising hum: %w", err)
	}
	if err := audio.WriteWav(outputPath, hum, s.config.SampleRate); err != nil {
		return err
	}
	s.log.Infof("Wrote %.1fs of humming to %s", float64(len(hum))/float64(s.config.SampleRate), outputPath)
	return nil
}

// GetSongByID retrieves a song's metadata by its database ID.
func (s *humService) GetSongByID(songID string) (*models.Song, error) {
	return s.storage.GetSongByID(songID)
}

// ListSongs returns all songs in the database.
func (s *humService) ListSongs() ([]models.Song, error) {
	return s.storage.ListSongs()
}

// DeleteSong removes a song and its signature.
func (s *humService) DeleteSong(songID string) error {
	if err := s.storage.DeleteSongByID(songID); err != nil {
		return err
	}
	s.store.Remove(songID)
	return nil
}

// ExportSignatures writes every loaded signature to dir as <id>.sig.
func (s *humService) ExportSignatures(dir string) (int, error) {
	if err := s.store.SaveDir(dir); err != nil {
		return 0, err
	}
	return s.store.Len(), nil
}

// ImportSignatures loads <id>.sig files from dir into the catalogue. Songs
// unknown to the catalogue are registered under their file name.
func (s *humService) ImportSignatures(dir string) (store.LoadReport, error) {
	staging := store.New(s.extractor, s.decoder)
	report, err := staging.LoadDir(dir)
	if err != nil {
		return report, err
	}

	loaded := report.Loaded[:0]
	for _, id := range report.Loaded {
		sig, _ := staging.Get(id)
		if err := s.importOne(sig); err != nil {
			report.Failed = append(report.Failed, store.LoadFailure{ID: id, Err: err})
			continue
		}
		loaded = append(loaded, id)
	}
	report.Loaded = loaded

	s.log.Infof("Imported %d signatures, %d failed", len(report.Loaded), len(report.Failed))
	return report, nil
}

func (s *humService) importOne(sig *melody.Signature) error {
	if _, err := s.storage.GetSongByID(sig.ID); err != nil {
		if !errors.Is(err, storage.ErrSongNotFound) {
			return err
		}
		id, err := s.storage.RegisterSong(models.Song{
			ID:          sig.ID,
			Title:       sig.ID,
			Artist:      "Unknown Artist",
			DurationSec: sig.Duration,
		})
		if err != nil {
			return fmt.Errorf("failed to register song: %w", err)
		}
		sig.ID = id
	}
	if err := s.persist(sig); err != nil {
		return err
	}
	s.store.Put(sig)
	return nil
}

// Close releases all resources held by the service.
func (s *humService) Close() error {
	return s.storage.Close()
}
