package curator

import (
	"errors"
	"strings"
	"testing"
)

func TestMaxAlbums(t *testing.T) {
	tests := []struct {
		images int
		want   int
	}{
		{images: 1, want: 1},
		{images: 2, want: 1},
		{images: 3, want: 1},
		{images: 4, want: 2},
		{images: 6, want: 2},
		{images: 7, want: 3},
		{images: 29, want: 10},
		{images: 30, want: 10},
		{images: 100, want: 10},
	}

	for _, tt := range tests {
		if got := MaxAlbums(tt.images); got != tt.want {
			t.Errorf("MaxAlbums(%d) = %d, want %d", tt.images, got, tt.want)
		}
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "no fence",
			input: `{"albums":[]}`,
			want:  `{"albums":[]}`,
		},
		{
			name:  "fence with language tag",
			input: "```json\n{\"albums\":[]}\n```",
			want:  `{"albums":[]}`,
		},
		{
			name:  "fence without language tag",
			input: "```\n{\"albums\":[]}\n```",
			want:  `{"albums":[]}`,
		},
		{
			name:  "surrounding whitespace",
			input: "  \n```json\n{\"albums\":[]}\n```\n  ",
			want:  `{"albums":[]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripCodeFence(tt.input); got != tt.want {
				t.Errorf("StripCodeFence(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseProposal(t *testing.T) {
	batch := []string{"2025/a.jpg", "2025/b.jpg", "2025/c.jpg"}

	tests := []struct {
		name    string
		reply   string
		wantErr bool
	}{
		{
			name:  "valid proposal",
			reply: `{"albums":[{"title":"Beach","theme":"Sea and sand","image_keys":["2025/a.jpg","2025/b.jpg","2025/c.jpg"]}]}`,
		},
		{
			name:  "fenced valid proposal",
			reply: "```json\n{\"albums\":[{\"title\":\"Beach\",\"theme\":\"Sea\",\"image_keys\":[\"2025/a.jpg\",\"2025/b.jpg\",\"2025/c.jpg\"]}]}\n```",
		},
		{
			name:    "not json",
			reply:   "here are your albums!",
			wantErr: true,
		},
		{
			name:    "empty album list",
			reply:   `{"albums":[]}`,
			wantErr: true,
		},
		{
			name:    "blank title",
			reply:   `{"albums":[{"title":"   ","theme":"Sea","image_keys":["2025/a.jpg"]}]}`,
			wantErr: true,
		},
		{
			name:    "blank theme",
			reply:   `{"albums":[{"title":"Beach","theme":"","image_keys":["2025/a.jpg"]}]}`,
			wantErr: true,
		},
		{
			name:    "album without images",
			reply:   `{"albums":[{"title":"Beach","theme":"Sea","image_keys":[]}]}`,
			wantErr: true,
		},
		{
			name:    "unknown key",
			reply:   `{"albums":[{"title":"Beach","theme":"Sea","image_keys":["2025/z.jpg"]}]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseProposal(tt.reply, batch)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got proposal %+v", p)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(p.Albums) == 0 {
				t.Fatal("expected at least one album")
			}
		})
	}
}

func TestParseProposalValidationError(t *testing.T) {
	_, err := ParseProposal(`{"albums":[]}`, []string{"a.jpg"})
	if !errors.Is(err, ErrInvalidProposal) {
		t.Errorf("expected ErrInvalidProposal, got %v", err)
	}
}

func TestFallback(t *testing.T) {
	keys := []string{"2025/a.jpg", "2025/b.jpg", "2025/c.jpg"}

	p := Fallback(keys)

	if len(p.Albums) != 1 {
		t.Fatalf("expected exactly one fallback album, got %d", len(p.Albums))
	}

	album := p.Albums[0]
	if album.Title == "" || album.Theme == "" {
		t.Error("fallback album must have a title and a theme")
	}

	if len(album.ImageKeys) != len(keys) {
		t.Fatalf("fallback album has %d keys, want %d", len(album.ImageKeys), len(keys))
	}
	for i, key := range keys {
		if album.ImageKeys[i] != key {
			t.Errorf("fallback key %d = %q, want %q", i, album.ImageKeys[i], key)
		}
	}

	// The fallback must not alias the caller's slice.
	album.ImageKeys[0] = "mutated"
	if keys[0] != "2025/a.jpg" {
		t.Error("fallback proposal aliases the input key slice")
	}
}

func TestBuildPrompt(t *testing.T) {
	keys := []string{"2025/a.jpg", "2025/b.jpg", "2025/c.jpg", "2025/d.jpg"}

	prompt := buildPrompt(len(keys), keys)

	for _, key := range keys {
		if !strings.Contains(prompt, key) {
			t.Errorf("prompt does not reference key %q", key)
		}
	}
	if !strings.Contains(prompt, "between 1 and 2 albums") {
		t.Error("prompt does not state the album count bound for 4 images")
	}
	if !strings.Contains(prompt, "exactly one album") {
		t.Error("prompt does not state the one-album-per-photo rule")
	}
	if !strings.Contains(prompt, "at least 2 photos") {
		t.Error("prompt does not state the minimum album size")
	}
	if !strings.Contains(prompt, "single JSON object") {
		t.Error("prompt does not demand a JSON-only reply")
	}
}

func TestBuildPromptSingleImage(t *testing.T) {
	prompt := buildPrompt(1, []string{"solo.jpg"})

	if strings.Contains(prompt, "at least 2 photos") {
		t.Error("minimum album size must not apply to a single-image batch")
	}
}
