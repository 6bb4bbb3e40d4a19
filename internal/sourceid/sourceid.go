// Package sourceid derives and validates source identifiers and the collection names bound to them.
package sourceid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kotoba/internal/models"
)

const (
	collectionPrefix = "video_"
	filePrefix       = "file_"
	maxLen           = 64
)

// Validate returns ErrInvalidInput unless id is 1-64 characters of [A-Za-z0-9_-].
func Validate(id string) error {
	if id == "" || len(id) > maxLen {
		return fmt.Errorf("%w: source id must be 1-%d characters", models.ErrInvalidInput, maxLen)
	}
	for _, r := range id {
		if !validRune(r) {
			return fmt.Errorf("%w: source id %q contains %q", models.ErrInvalidInput, id, r)
		}
	}
	return nil
}

func validRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
}

// CollectionName returns the vector store collection name for a source.
func CollectionName(id string) string {
	return collectionPrefix + id
}

// FromURL extracts a video ID from a YouTube URL (watch, youtu.be, shorts, embed) or accepts
// a bare ID. Returns ErrInvalidInput when nothing usable is found.
func FromURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: no URL provided", models.ErrInvalidInput)
	}
	if !strings.Contains(raw, "/") && !strings.Contains(raw, ".") {
		if err := Validate(raw); err != nil {
			return "", err
		}
		return raw, nil
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: invalid URL: %v", models.ErrInvalidInput, err)
	}
	var id string
	switch strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.") {
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"):
			id = firstSegment(strings.TrimPrefix(u.Path, "/shorts/"))
		case strings.HasPrefix(u.Path, "/embed/"):
			id = firstSegment(strings.TrimPrefix(u.Path, "/embed/"))
		case strings.HasPrefix(u.Path, "/live/"):
			id = firstSegment(strings.TrimPrefix(u.Path, "/live/"))
		}
	case "youtu.be":
		id = firstSegment(strings.TrimPrefix(u.Path, "/"))
	}
	if id == "" {
		return "", fmt.Errorf("%w: invalid YouTube URL", models.ErrInvalidInput)
	}
	if err := Validate(id); err != nil {
		return "", err
	}
	return id, nil
}

func firstSegment(p string) string {
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
}

// FromPath returns the source ID for a transcript file: the base name up to the first dot
// ("abc123.en.srt" -> "abc123"). Names that are not valid IDs get a stable hash of the
// cleaned absolute path instead.
func FromPath(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	if Validate(base) == nil {
		return base
	}
	normalized := filepath.Clean(path)
	hash := sha256.Sum256([]byte(normalized))
	return filePrefix + hex.EncodeToString(hash[:])[:32]
}
