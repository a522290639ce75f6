package utils

import "testing"

func TestExtractYouTubeID(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://youtube.com/watch?v=dQw4w9WgXcQ&t=42&list=PL123", "dQw4w9WgXcQ", false},
		{"https://m.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://music.youtube.com/watch?v=dQw4w9WgXcQ&feature=share", "dQw4w9WgXcQ", false},
		{"https://youtu.be/dQw4w9WgXcQ?si=tracking", "dQw4w9WgXcQ", false},
		{"youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/v/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/live/dQw4w9WgXcQ/", "dQw4w9WgXcQ", false},
		{" dQw4w9WgXcQ ", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/watch?v=short", "", true},
		{"https://www.youtube.com/channel/abc", "", true},
		{"https://youtu.be/", "", true},
		{"https://example.com/watch?v=dQw4w9WgXcQ", "", true},
		{"https://notyoutube.com/watch?v=dQw4w9WgXcQ", "", true},
	}
	for _, tt := range tests {
		got, err := ExtractYouTubeID(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ExtractYouTubeID(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ExtractYouTubeID(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestWatchURL(t *testing.T) {
	url := WatchURL("dQw4w9WgXcQ")
	if url != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Errorf("Unexpected watch URL %q", url)
	}
	id, err := ExtractYouTubeID(url)
	if err != nil || id != "dQw4w9WgXcQ" {
		t.Errorf("Watch URL does not parse back: %q (%v)", id, err)
	}
}

func TestIsYouTubeURL(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"https://youtu.be/abc", true},
		{"https://music.youtube.com/watch?v=x", true},
		{"www.youtube.com/watch?v=x", true},
		{"song.mp3", false},
		{"dQw4w9WgXcQ", false},
		{"https://notyoutube.com/watch", false},
	}
	for _, tt := range tests {
		if got := IsYouTubeURL(tt.in); got != tt.want {
			t.Errorf("IsYouTubeURL(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
