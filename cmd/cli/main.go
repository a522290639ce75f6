package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/himanishpuri/HumDNA/pkg/humdna"
	"github.com/himanishpuri/HumDNA/pkg/humdna/audio"
	"github.com/himanishpuri/HumDNA/pkg/logger"
	"github.com/himanishpuri/HumDNA/pkg/models"
	"github.com/himanishpuri/HumDNA/pkg/utils"
)

// Global flags
var (
	dbPath     string
	backend    string
	tempDir    string
	sampleRate int
	window     int
	workers    int
	humming    bool
)

func init() {
	// .env is optional
	_ = godotenv.Load()

	// Global flags that can be used with any command
	flag.StringVar(&dbPath, "db", getEnvOrDefault("HUMDNA_DB_PATH", "humdna.sqlite3"), "Path to the catalogue (SQLite file or Badger directory)")
	flag.StringVar(&backend, "backend", getEnvOrDefault("HUMDNA_BACKEND", humdna.BackendSQLite), "Catalogue backend: sqlite or badger")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("HUMDNA_TEMP_DIR", os.TempDir()), "Directory for temporary audio conversion files")
	flag.IntVar(&sampleRate, "rate", audio.DefaultSampleRate, "Audio sample rate for processing")
	flag.IntVar(&window, "window", 50, "DTW band half-width in contour steps (0 = unconstrained)")
	flag.IntVar(&workers, "workers", 0, "Parallel workers (0 = one per CPU)")
	flag.BoolVar(&humming, "humming", false, "Use the wider humming pitch range for queries")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// createService creates a new HumDNA service with configured options
func createService() (humdna.Service, error) {
	return humdna.NewService(
		humdna.WithDBPath(dbPath),
		humdna.WithBackend(backend),
		humdna.WithTempDir(tempDir),
		humdna.WithSampleRate(sampleRate),
		humdna.WithWindow(window),
		humdna.WithWorkers(workers),
		humdna.WithHumming(humming),
	)
}

func mustService() humdna.Service {
	fmt.Println("\n🔧 Initializing service...")
	svc, err := createService()
	if err != nil {
		fail("Failed to create service", err)
	}
	return svc
}

// fail prints and logs err, then exits.
func fail(what string, err error) {
	fmt.Printf("\n❌ %s: %v\n", what, err)
	logger.GetLogger().Errorf("%s: %v", what, err)
	os.Exit(1)
}

// parseCommand parses fs from args, allowing flags and positional arguments
// in any order, and returns the positional arguments.
func parseCommand(fs *flag.FlagSet, args []string) []string {
	var positional []string
	for {
		fs.Parse(args)
		args = fs.Args()
		if len(args) == 0 {
			return positional
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	log := logger.GetLogger()
	printBanner()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]
	log.Infof("Executing command: %s", command)

	switch command {
	case "add":
		handleAdd(args)
	case "match":
		handleMatch(args)
	case "list":
		handleList()
	case "delete":
		handleDelete(args)
	case "analyze":
		handleAnalyze(args)
	case "index":
		handleIndex(args)
	case "hum":
		handleHum(args)
	case "export":
		handleExport(args)
	case "import":
		handleImport(args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printBanner() {
	banner := `
 _   _                 ____  _   _    _
| | | |_   _ _ __ ___ |  _ \| \ | |  / \
| |_| | | | | '_ ' _ \| | | |  \| | / _ \
|  _  | |_| | | | | | | |_| | |\  |/ ___ \
|_| |_|\__,_|_| |_| |_|____/|_| \_/_/   \_\

         Query-by-Humming CLI Tool
`
	fmt.Println(banner)
}

func handleAdd(args []string) {
	log := logger.GetLogger()

	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	title := addCmd.String("title", "", "Song title (required for local files)")
	artist := addCmd.String("artist", "", "Artist name (required for local files)")
	youtube := addCmd.String("youtube", "", "YouTube ID (optional)")
	youtubeURL := addCmd.String("youtube-url", "", "YouTube URL to download and add (alternative to audio file)")
	positional := parseCommand(addCmd, args)

	var audioPath string
	if len(positional) > 0 {
		audioPath = positional[0]
	}
	// A bare URL is accepted in place of --youtube-url
	if *youtubeURL == "" && utils.IsYouTubeURL(audioPath) {
		*youtubeURL, audioPath = audioPath, ""
	}

	switch {
	case *youtubeURL != "" && audioPath != "":
		fmt.Println("Error: cannot specify both audio file and --youtube-url")
		os.Exit(1)
	case *youtubeURL == "" && audioPath == "":
		fmt.Println("Error: audio file path or --youtube-url required")
		fmt.Println("Usage: humdna add <audio_file> --title <title> --artist <artist> [--youtube <id>]")
		fmt.Println("   OR: humdna add --youtube-url <url>")
		os.Exit(1)
	case *youtubeURL == "" && (*title == "" || *artist == ""):
		fmt.Println("Error: --title and --artist are required")
		log.Warn("Missing required arguments: title and artist")
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var songID string
	var err error
	if *youtubeURL != "" {
		fmt.Println("📥 Downloading audio from YouTube...")
		fmt.Println("   This may take a few moments depending on video length")
		songID, err = svc.AddYouTube(ctx, *youtubeURL)
	} else {
		fmt.Println("🎵 Extracting melody...")
		songID, err = svc.AddSong(ctx, audioPath, *title, *artist, *youtube)
	}
	if err != nil {
		fail("Failed to add song", err)
	}

	song, err := svc.GetSongByID(songID)
	if err != nil {
		fail("Failed to read back song", err)
	}
	fmt.Println("\n✅ Successfully added song to catalogue!")
	printSong(song)
}

func handleMatch(args []string) {
	matchCmd := flag.NewFlagSet("match", flag.ExitOnError)
	topK := matchCmd.Int("k", 5, "Number of results to show")
	positional := parseCommand(matchCmd, args)
	if len(positional) < 1 {
		fmt.Println("Usage: humdna match <audio_file> [-k <n>]")
		os.Exit(1)
	}
	audioPath := positional[0]

	svc := mustService()
	defer svc.Close()

	fmt.Println("🔍 Tracking pitch and comparing contours...")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	report, err := svc.MatchSong(ctx, audioPath, *topK)
	if errors.Is(err, humdna.ErrNoMelody) {
		fmt.Println("\n🤫 No melody detected in the recording. Try humming louder or longer.")
		os.Exit(1)
	}
	if err != nil {
		fail("Failed to match song", err)
	}

	fmt.Printf("\nQuery: %d frames, %.0f%% voiced, contour length %d\n",
		report.PitchFrames, report.ValidRatio*100, report.ContourLength)

	if len(report.Results) == 0 {
		fmt.Println("\n📭 Catalogue is empty")
		return
	}

	fmt.Printf("\n🎵 Top %d of %d songs:\n\n", len(report.Results), report.Candidates)
	for i, r := range report.Results {
		printResult(i+1, r)
	}
}

func printResult(rank int, r models.MatchResult) {
	fmt.Printf("%d. \"%s\" by %s\n", rank, r.Title, r.Artist)
	fmt.Printf("   Similarity: %.3f | Distance: %.4f | Confidence: %s\n", r.Similarity, r.Distance, r.Confidence)
	if r.YouTubeID != "" {
		fmt.Printf("   YouTube: https://youtube.com/watch?v=%s\n", r.YouTubeID)
	}
	fmt.Println()
}

func printSong(song *models.Song) {
	fmt.Printf("   ID:      %s\n", song.ID)
	fmt.Printf("   Title:   %s\n", song.Title)
	fmt.Printf("   Artist:  %s\n", song.Artist)
	if song.YouTubeID != "" {
		fmt.Printf("   YouTube: https://youtube.com/watch?v=%s\n", song.YouTubeID)
	}
	if song.DurationSec > 0 {
		d := int(song.DurationSec)
		fmt.Printf("   Length:  %d:%02d\n", d/60, d%60)
	}
	fmt.Printf("   Contour: %d steps\n", song.ContourLength)
}

func handleList() {
	svc, err := createService()
	if err != nil {
		fail("Failed to create service", err)
	}
	defer svc.Close()

	songs, err := svc.ListSongs()
	if err != nil {
		fail("Failed to list songs", err)
	}

	if len(songs) == 0 {
		fmt.Println("\n📭 No songs in catalogue")
		return
	}

	fmt.Printf("\n📚 Found %d song(s):\n\n", len(songs))
	for i := range songs {
		fmt.Printf("%d. \"%s\" by %s\n", i+1, songs[i].Title, songs[i].Artist)
		printSong(&songs[i])
		fmt.Println()
	}
	logger.GetLogger().Infof("Listed %d songs", len(songs))
}

func handleDelete(args []string) {
	log := logger.GetLogger()

	if len(args) < 1 {
		fmt.Println("Usage: humdna delete <song_id>")
		os.Exit(1)
	}
	songID := args[0]

	svc := mustService()
	defer svc.Close()

	// Get song info before deletion
	song, err := svc.GetSongByID(songID)
	if err != nil {
		fmt.Printf("❌ Song not found (ID: %s)\n", songID)
		log.Warnf("Song %s not found: %v", songID, err)
		os.Exit(1)
	}

	if err := svc.DeleteSong(songID); err != nil {
		fail("Failed to delete song", err)
	}

	fmt.Printf("\n✅ Successfully deleted song:\n")
	printSong(song)
	log.Infof("Deleted song ID=%s ('%s' by '%s')", song.ID, song.Title, song.Artist)
}

func handleAnalyze(args []string) {
	analyzeCmd := flag.NewFlagSet("analyze", flag.ExitOnError)
	pngPath := analyzeCmd.String("png", "", "Also write a spectrogram of the clip to this PNG file")
	positional := parseCommand(analyzeCmd, args)
	if len(positional) < 1 {
		fmt.Println("Usage: humdna analyze <audio_file> [-png <out.png>]")
		os.Exit(1)
	}
	audioPath := positional[0]

	svc := mustService()
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	a, err := svc.Analyze(ctx, audioPath)
	if err != nil {
		fail("Failed to analyze", err)
	}

	fmt.Printf("\n📈 %s\n", audioPath)
	fmt.Printf("   Frames:     %d (%d voiced, %.0f%%)\n", a.Frames, a.ValidFrames, a.ValidRatio*100)
	if a.ValidFrames > 0 {
		fmt.Printf("   Pitch:      %.1f to %.1f Hz, mean %.1f Hz, stddev %.1f Hz\n", a.MinHz, a.MaxHz, a.MeanHz, a.StdDevHz)
		fmt.Printf("   Confidence: %.2f\n", a.MeanConfidence)
	}
	fmt.Printf("   Contour:    %d steps (%d up, %d down, %d stable)\n", len(a.Contour), a.Up, a.Down, a.Stable)
	fmt.Printf("   Shape:      %s\n", contourString(a.Contour, 80))

	if *pngPath != "" {
		if err := writeSpectrogram(ctx, audioPath, *pngPath); err != nil {
			fail("Failed to write spectrogram", err)
		}
		fmt.Printf("\n🖼  Saved spectrogram to %s\n", *pngPath)
	}
}

// contourString renders up to limit contour steps as U, D and S.
func contourString(contour []int8, limit int) string {
	var b strings.Builder
	for i, c := range contour {
		if i == limit {
			b.WriteString("...")
			break
		}
		switch {
		case c > 0:
			b.WriteByte('U')
		case c < 0:
			b.WriteByte('D')
		default:
			b.WriteByte('S')
		}
	}
	return b.String()
}

func handleIndex(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: humdna index <directory>")
		os.Exit(1)
	}
	dir := args[0]

	files, err := humdna.AudioFiles(dir)
	if err != nil {
		fail("Failed to read directory", err)
	}
	if len(files) == 0 {
		fmt.Printf("\n📭 No audio files in %s\n", dir)
		return
	}

	svc := mustService()
	defer svc.Close()

	// progress bar
	p := mpb.New(mpb.WithWidth(64))
	bar := p.AddBar(int64(len(files)),
		mpb.PrependDecorators(
			decor.Name("Indexing: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.EwmaETA(decor.ET_STYLE_GO, 60),
		),
	)

	start := time.Now()
	report, err := svc.IndexDirectory(context.Background(), dir, func(string, error) {
		bar.Increment()
	})
	bar.SetTotal(-1, true)
	p.Wait()
	if err != nil {
		fail("Failed to index directory", err)
	}

	fmt.Printf("\n✅ Indexed %s in %s\n", dir, time.Since(start).Round(time.Millisecond))
	fmt.Printf("   Added:  %d\n", len(report.Added))
	fmt.Printf("   Reused: %d\n", len(report.Reused))
	fmt.Printf("   Failed: %d\n", len(report.Failed))
	for _, f := range report.Failed {
		fmt.Printf("   ❌ %s: %v\n", f.Path, f.Err)
	}
}

func handleHum(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: humdna hum <input_audio> <output.wav>")
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fmt.Println("🎤 Converting vocals to humming...")
	if err := svc.SynthesizeHum(ctx, args[0], args[1]); err != nil {
		fail("Failed to synthesise hum", err)
	}
	fmt.Printf("\n✅ Wrote %s\n", args[1])
}

func handleExport(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: humdna export <directory>")
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	n, err := svc.ExportSignatures(args[0])
	if err != nil {
		fail("Failed to export signatures", err)
	}
	fmt.Printf("\n✅ Exported %d signature(s) to %s\n", n, args[0])
}

func handleImport(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: humdna import <directory>")
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	report, err := svc.ImportSignatures(args[0])
	if err != nil {
		fail("Failed to import signatures", err)
	}
	fmt.Printf("\n✅ Imported %d signature(s) from %s\n", len(report.Loaded), args[0])
	for _, f := range report.Failed {
		fmt.Printf("   ❌ %s: %v\n", f.ID, f.Err)
	}
}

func printUsage() {
	fmt.Println("HumDNA - Query-by-Humming CLI")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --db <path>        Catalogue path (env: HUMDNA_DB_PATH, default: humdna.sqlite3)")
	fmt.Println("  --backend <name>   sqlite or badger (env: HUMDNA_BACKEND, default: sqlite)")
	fmt.Println("  --temp <dir>       Temporary directory for audio conversion (env: HUMDNA_TEMP_DIR)")
	fmt.Println("  --rate <hz>        Audio sample rate (default: 22050)")
	fmt.Println("  --window <n>       DTW band half-width (default: 50, 0 = unconstrained)")
	fmt.Println("  --workers <n>      Parallel workers (default: one per CPU)")
	fmt.Println("  --humming          Use the wider humming pitch range for queries")
	fmt.Println("\nUsage:")
	fmt.Println("  humdna [global-options] add <audio_file> --title <title> --artist <artist> [--youtube <id>]")
	fmt.Println("  humdna [global-options] add --youtube-url <url>")
	fmt.Println("  humdna [global-options] match <audio_file> [-k <n>]")
	fmt.Println("  humdna [global-options] analyze <audio_file> [-png <out.png>]")
	fmt.Println("  humdna [global-options] index <directory>")
	fmt.Println("  humdna [global-options] hum <input_audio> <output.wav>")
	fmt.Println("  humdna [global-options] list")
	fmt.Println("  humdna [global-options] delete <song_id>")
	fmt.Println("  humdna [global-options] export <directory>")
	fmt.Println("  humdna [global-options] import <directory>")
	fmt.Println("\nExamples:")
	fmt.Println("  # Build a catalogue from a folder of songs")
	fmt.Println("  humdna index ~/Music/singles")
	fmt.Println()
	fmt.Println("  # Add from YouTube URL (auto-detects metadata)")
	fmt.Println("  humdna add --youtube-url \"https://youtube.com/watch?v=dQw4w9WgXcQ\"")
	fmt.Println()
	fmt.Println("  # Match a hummed recording")
	fmt.Println("  humdna --humming match hum.m4a -k 3")
}
