package humdna

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/himanishpuri/HumDNA/pkg/humdna/audio"
	"github.com/himanishpuri/HumDNA/pkg/logger"
)

const testRate = 22050

func quietLogger() Logger {
	cfg := logger.DefaultConfig()
	cfg.Output = io.Discard
	return logger.New(cfg)
}

func writeTune(t *testing.T, dir, name string, freqs ...float64) string {
	t.Helper()
	var samples []float64
	var phase float64
	for _, f := range freqs {
		for i := 0; i < testRate/4; i++ {
			samples = append(samples, 0.5*math.Sin(phase))
			phase += 2 * math.Pi * f / testRate
		}
	}
	path := filepath.Join(dir, name)
	if err := audio.WriteWav(path, samples, testRate); err != nil {
		t.Fatalf("WriteWav failed: %v", err)
	}
	return path
}

func newTestService(t *testing.T, opts ...Option) Service {
	t.Helper()
	base := []Option{
		WithDBPath(filepath.Join(t.TempDir(), "test.sqlite3")),
		WithTempDir(t.TempDir()),
		WithLogger(quietLogger()),
		WithWorkers(2),
	}
	svc, err := NewService(append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestAddAndMatch(t *testing.T) {
	dir := t.TempDir()
	rising := writeTune(t, dir, "rising.wav", 220, 262, 330, 392, 440)
	falling := writeTune(t, dir, "falling.wav", 440, 392, 330, 262, 220)

	svc := newTestService(t)
	ctx := context.Background()

	risingID, err := svc.AddSong(ctx, rising, "Rising", "Tester", "")
	if err != nil {
		t.Fatalf("AddSong failed: %v", err)
	}
	if _, err := svc.AddSong(ctx, falling, "Falling", "Tester", "yt123"); err != nil {
		t.Fatalf("AddSong failed: %v", err)
	}

	report, err := svc.MatchSong(ctx, rising, 5)
	if err != nil {
		t.Fatalf("MatchSong failed: %v", err)
	}
	if len(report.Results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(report.Results))
	}
	top := report.Results[0]
	if top.SongID != risingID || top.Title != "Rising" || top.Artist != "Tester" {
		t.Errorf("Expected Rising first, got %+v", top)
	}
	if top.Similarity != 1 || top.Confidence != "high" {
		t.Errorf("Expected exact high confidence match, got %+v", top)
	}
	if report.Results[1].Similarity >= top.Similarity {
		t.Errorf("Expected Falling to rank lower, got %+v", report.Results)
	}
	if report.Results[1].YouTubeID != "yt123" {
		t.Errorf("Expected YouTube ID to be carried, got %q", report.Results[1].YouTubeID)
	}

	song, err := svc.GetSongByID(risingID)
	if err != nil {
		t.Fatalf("GetSongByID failed: %v", err)
	}
	if song.Filename != "rising.wav" || song.ContourLength == 0 || math.Abs(song.DurationSec-1.25) > 0.01 {
		t.Errorf("Unexpected song row: %+v", song)
	}
}

func TestServiceReloadsCatalogue(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "persist.sqlite3")
	tune := writeTune(t, dir, "tune.wav", 262, 330, 262, 392)

	first, err := NewService(WithDBPath(dbPath), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	id, err := first.AddSong(context.Background(), tune, "Tune", "Tester", "")
	if err != nil {
		t.Fatalf("AddSong failed: %v", err)
	}
	first.Close()

	second, err := NewService(WithDBPath(dbPath), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer second.Close()

	report, err := second.MatchSong(context.Background(), tune, 1)
	if err != nil {
		t.Fatalf("MatchSong failed: %v", err)
	}
	if len(report.Results) != 1 || report.Results[0].SongID != id {
		t.Errorf("Expected reloaded song %s, got %+v", id, report.Results)
	}
}

func TestMatchSilenceHasNoMelody(t *testing.T) {
	dir := t.TempDir()
	silence := filepath.Join(dir, "silence.wav")
	if err := audio.WriteWav(silence, make([]float64, testRate), testRate); err != nil {
		t.Fatalf("WriteWav failed: %v", err)
	}

	svc := newTestService(t)
	if _, err := svc.MatchSong(context.Background(), silence, 5); !errors.Is(err, ErrNoMelody) {
		t.Errorf("Expected ErrNoMelody, got %v", err)
	}
}

func TestAddSongDecodeFailureLeavesCatalogueUnchanged(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.wav")
	if err := os.WriteFile(broken, []byte("not audio at all"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	svc := newTestService(t)
	if _, err := svc.AddSong(context.Background(), broken, "Broken", "Tester", ""); !errors.Is(err, ErrDecode) {
		t.Errorf("Expected ErrDecode, got %v", err)
	}
	songs, err := svc.ListSongs()
	if err != nil {
		t.Fatalf("ListSongs failed: %v", err)
	}
	if len(songs) != 0 {
		t.Errorf("Expected empty catalogue, got %d songs", len(songs))
	}
}

func TestDeleteSong(t *testing.T) {
	dir := t.TempDir()
	tune := writeTune(t, dir, "tune.wav", 262, 330, 392)

	svc := newTestService(t)
	id, err := svc.AddSong(context.Background(), tune, "Tune", "Tester", "")
	if err != nil {
		t.Fatalf("AddSong failed: %v", err)
	}
	if err := svc.DeleteSong(id); err != nil {
		t.Fatalf("DeleteSong failed: %v", err)
	}
	if _, err := svc.GetSongByID(id); !errors.Is(err, ErrSongNotFound) {
		t.Errorf("Expected ErrSongNotFound, got %v", err)
	}

	report, err := svc.MatchSong(context.Background(), tune, 5)
	if err != nil {
		t.Fatalf("MatchSong failed: %v", err)
	}
	if len(report.Results) != 0 {
		t.Errorf("Expected no results after delete, got %+v", report.Results)
	}
}

func TestAddSongsBatch(t *testing.T) {
	dir := t.TempDir()
	inputs := []SongInput{
		{Path: writeTune(t, dir, "a.wav", 220, 330), Title: "A", Artist: "T"},
		{Path: filepath.Join(dir, "missing.wav"), Title: "Missing", Artist: "T"},
		{Path: writeTune(t, dir, "b.wav", 330, 220), Title: "B", Artist: "T"},
	}

	svc := newTestService(t, WithBackend(BackendBadger), WithDBPath(""), WithWorkers(4))
	results := svc.AddSongs(context.Background(), inputs)
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Path != inputs[i].Path {
			t.Errorf("Result %d: expected path %s, got %s", i, inputs[i].Path, r.Path)
		}
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("Expected valid files to succeed, got %v and %v", results[0].Err, results[2].Err)
	}
	if !errors.Is(results[1].Err, ErrDecode) {
		t.Errorf("Expected ErrDecode for missing file, got %v", results[1].Err)
	}

	songs, _ := svc.ListSongs()
	if len(songs) != 2 {
		t.Errorf("Expected 2 songs, got %d", len(songs))
	}
}

func TestIndexDirectory(t *testing.T) {
	dir := t.TempDir()
	writeTune(t, dir, "one.wav", 220, 330, 440)
	writeTune(t, dir, "two.wav", 440, 330, 220)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	svc := newTestService(t, WithBackend(BackendBadger), WithDBPath(""), WithWorkers(4))

	var calls int
	report, err := svc.IndexDirectory(context.Background(), dir, func(string, error) { calls++ })
	if err != nil {
		t.Fatalf("IndexDirectory failed: %v", err)
	}
	if len(report.Added) != 2 || len(report.Reused) != 0 || len(report.Failed) != 0 {
		t.Errorf("Expected 2 added, got %+v", report)
	}
	if calls != 2 {
		t.Errorf("Expected 2 progress calls, got %d", calls)
	}

	report, err = svc.IndexDirectory(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("IndexDirectory failed: %v", err)
	}
	if len(report.Reused) != 2 || len(report.Added) != 0 {
		t.Errorf("Expected 2 reused on second pass, got %+v", report)
	}
}

func TestExportImportSignatures(t *testing.T) {
	dir := t.TempDir()
	tune := writeTune(t, dir, "tune.wav", 262, 392, 330, 262)
	exportDir := filepath.Join(t.TempDir(), "export")

	src := newTestService(t)
	id, err := src.AddSong(context.Background(), tune, "Tune", "Tester", "")
	if err != nil {
		t.Fatalf("AddSong failed: %v", err)
	}
	n, err := src.ExportSignatures(exportDir)
	if err != nil {
		t.Fatalf("ExportSignatures failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 exported signature, got %d", n)
	}
	if err := os.WriteFile(filepath.Join(exportDir, "junk.sig"), []byte("junk"), 0o644); err != nil {
		t.Fatalf("Failed to write junk record: %v", err)
	}

	dst := newTestService(t, WithBackend(BackendBadger), WithDBPath(""))
	report, err := dst.ImportSignatures(exportDir)
	if err != nil {
		t.Fatalf("ImportSignatures failed: %v", err)
	}
	if len(report.Loaded) != 1 || len(report.Failed) != 1 {
		t.Errorf("Expected 1 loaded and 1 failed, got %+v", report)
	}

	match, err := dst.MatchSong(context.Background(), tune, 1)
	if err != nil {
		t.Fatalf("MatchSong failed: %v", err)
	}
	if len(match.Results) != 1 || match.Results[0].SongID != id || match.Results[0].Similarity != 1 {
		t.Errorf("Expected imported song to match exactly, got %+v", match.Results)
	}
}

func TestAddYouTubeReusesIndexedVideo(t *testing.T) {
	dir := t.TempDir()
	tune := writeTune(t, dir, "video.wav", 262, 330, 392)
	svc := newTestService(t)
	ctx := context.Background()

	id, err := svc.AddSong(ctx, tune, "Video", "Channel", "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("AddSong failed: %v", err)
	}

	got, err := svc.AddYouTube(ctx, "https://youtu.be/dQw4w9WgXcQ?si=share")
	if err != nil {
		t.Fatalf("AddYouTube failed: %v", err)
	}
	if got != id {
		t.Errorf("Expected indexed song %s, got %s", id, got)
	}

	if _, err := svc.AddYouTube(ctx, "https://example.com/watch?v=dQw4w9WgXcQ"); err == nil {
		t.Error("Expected error for a non-YouTube URL")
	}
}

func TestAnalyzeAndSynthesize(t *testing.T) {
	dir := t.TempDir()
	tune := writeTune(t, dir, "tune.wav", 262, 330, 392)
	svc := newTestService(t)

	a, err := svc.Analyze(context.Background(), tune)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if a.ValidFrames == 0 || len(a.Contour) != a.ValidFrames-1 {
		t.Errorf("Unexpected analysis: %d valid frames, contour %d", a.ValidFrames, len(a.Contour))
	}

	out := filepath.Join(dir, "hum.wav")
	if err := svc.SynthesizeHum(context.Background(), tune, out); err != nil {
		t.Fatalf("SynthesizeHum failed: %v", err)
	}
	samples, err := audio.WavDecoder{}.Decode(context.Background(), out, testRate, 0)
	if err != nil {
		t.Fatalf("Decode of hum failed: %v", err)
	}
	// writeTune renders testRate/4 samples per note
	if want := 3 * (testRate / 4); len(samples) != want {
		t.Errorf("Expected %d samples, got %d", want, len(samples))
	}
}

func TestUnknownBackend(t *testing.T) {
	_, err := NewService(WithBackend("postgres"), WithLogger(quietLogger()))
	if err == nil {
		t.Error("Expected error for unknown backend")
	}
}
