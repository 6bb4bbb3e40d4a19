package transcript

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/sourceid"
	"go.uber.org/zap"
)

// Transcript file extensions understood by FileProvider and the watcher.
const (
	ExtSRT      = ".srt"
	ExtJSON     = ".json"
	ExtDisabled = ".disabled"
)

// FileProvider serves transcripts from a directory holding <id>.srt, <id>.<lang>.srt,
// <id>.json or <id>.<lang>.json files. An <id>.disabled file marks a source whose captions
// are turned off.
type FileProvider struct {
	dir       string
	languages []string
	logger    *zap.Logger // optional
}

// FileOption configures a FileProvider.
type FileOption func(*FileProvider)

// WithLanguages sets the language preference order.
func WithLanguages(langs []string) FileOption {
	return func(p *FileProvider) { p.languages = langs }
}

// WithLogger sets a logger for language selection debug output.
func WithLogger(l *zap.Logger) FileOption {
	return func(p *FileProvider) { p.logger = l }
}

// NewFileProvider creates a provider reading from dir.
func NewFileProvider(dir string, opts ...FileOption) *FileProvider {
	p := &FileProvider{dir: dir, languages: DefaultLanguages}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dir returns the transcripts directory.
func (p *FileProvider) Dir() string { return p.dir }

// Fetch loads the preferred-language transcript for sourceID.
func (p *FileProvider) Fetch(ctx context.Context, sourceID string) ([]models.TimedSegment, error) {
	if err := sourceid.Validate(sourceID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(p.dir, sourceID+ExtDisabled)); err == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrTranscriptDisabled, sourceID)
	}

	files, err := p.Available(sourceID)
	if err != nil {
		return nil, err
	}
	langs := make([]string, 0, len(files))
	for lang := range files {
		langs = append(langs, lang)
	}
	lang, ok := SelectLanguage(langs, p.languages)
	if !ok {
		return nil, fmt.Errorf("%w: no transcript found for %s", models.ErrTranscriptUnavailable, sourceID)
	}
	path := files[lang]
	if p.logger != nil {
		p.logger.Debug("transcript selected", zap.String("source_id", sourceID), zap.String("language", lang), zap.String("path", path))
	}

	segments, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: transcript %s has no captions", models.ErrInvalidInput, filepath.Base(path))
	}
	return segments, nil
}

// Available maps each language with a transcript file for sourceID to its path. A file with
// no language tag is listed under "". When both .srt and .json exist for a language, .srt wins.
func (p *FileProvider) Available(sourceID string) (map[string]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: transcripts directory %s does not exist", models.ErrTranscriptUnavailable, p.dir)
		}
		return nil, fmt.Errorf("read transcripts directory: %w", err)
	}
	out := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, lang, ext, ok := SplitName(e.Name())
		if !ok || id != sourceID || ext == ExtDisabled {
			continue
		}
		if prev, seen := out[lang]; seen && strings.EqualFold(filepath.Ext(prev), ExtSRT) {
			continue
		}
		out[lang] = filepath.Join(p.dir, e.Name())
	}
	return out, nil
}

// SplitName parses a transcript file name into source id, language tag and extension.
// ok is false for files that are not transcripts.
func SplitName(name string) (id, lang, ext string, ok bool) {
	ext = strings.ToLower(filepath.Ext(name))
	switch ext {
	case ExtSRT, ExtJSON, ExtDisabled:
	default:
		return "", "", "", false
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if ext != ExtDisabled {
		if i := strings.LastIndex(stem, "."); i >= 0 {
			stem, lang = stem[:i], stem[i+1:]
		}
	}
	if sourceid.Validate(stem) != nil {
		return "", "", "", false
	}
	return stem, lang, ext, true
}

// ParseFile parses an .srt or .json transcript file.
func ParseFile(path string) ([]models.TimedSegment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTranscriptUnavailable, err)
	}
	defer f.Close()
	return Parse(f, filepath.Ext(path))
}

// Parse dispatches on the file extension.
func Parse(r io.Reader, ext string) ([]models.TimedSegment, error) {
	switch strings.ToLower(ext) {
	case ExtSRT:
		return ParseSRT(r)
	case ExtJSON:
		return ParseJSON(r)
	default:
		return nil, fmt.Errorf("%w: unsupported transcript format %q", models.ErrInvalidInput, ext)
	}
}
