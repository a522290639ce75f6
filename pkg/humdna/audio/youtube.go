package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/himanishpuri/HumDNA/pkg/utils"
)

// YTMetadata contains metadata extracted from a YouTube video
type YTMetadata struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Track    string  `json:"track"`
	Uploader string  `json:"uploader"`
	Channel  string  `json:"channel"`
	Duration float64 `json:"duration"`
}

func pickArtist(meta YTMetadata) string {
	for _, candidate := range []string{meta.Artist, meta.Channel, meta.Uploader} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return "Unknown Artist"
}

// DownloadYouTubeAudio fetches the best audio stream of a video with yt-dlp.
// The returned file still needs decoding; the caller removes it when done.
func DownloadYouTubeAudio(ctx context.Context, youtubeURL, outputDir string) (string, *YTMetadata, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 3*time.Minute)
		defer cancel()
	}

	if err := utils.MakeDir(outputDir); err != nil {
		return "", nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var stdout, stderr bytes.Buffer
	metaCmd := exec.CommandContext(ctx, "yt-dlp", "-J", "--no-warnings", "--no-playlist", youtubeURL)
	metaCmd.Stdout = &stdout
	metaCmd.Stderr = &stderr
	if err := metaCmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		return "", nil, fmt.Errorf("yt-dlp metadata extraction failed: %v\nstderr: %s", err, stderr.String())
	}

	var meta YTMetadata
	if err := json.Unmarshal(stdout.Bytes(), &meta); err != nil {
		return "", nil, fmt.Errorf("failed to parse yt-dlp JSON: %w", err)
	}
	if strings.TrimSpace(meta.ID) == "" {
		return "", nil, fmt.Errorf("missing video ID in yt-dlp output")
	}
	if meta.Title == "" && meta.Track != "" {
		meta.Title = meta.Track
	}
	meta.Artist = pickArtist(meta)

	outputTemplate := filepath.Join(outputDir, meta.ID+".%(ext)s")
	var dlStderr bytes.Buffer
	dlCmd := exec.CommandContext(ctx, "yt-dlp", "-f", "ba", "--no-warnings", "--no-playlist", "-o", outputTemplate, youtubeURL)
	dlCmd.Stderr = &dlStderr
	if err := dlCmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		return "", nil, fmt.Errorf("yt-dlp download failed: %v\nstderr: %s", err, dlStderr.String())
	}

	matches, _ := filepath.Glob(filepath.Join(outputDir, meta.ID+".*"))
	for _, candidate := range matches {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, &meta, nil
		}
	}
	return "", nil, fmt.Errorf("downloaded audio file not found for video %s", meta.ID)
}
