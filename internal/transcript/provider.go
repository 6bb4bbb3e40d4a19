// Package transcript loads timed caption segments for a source: SRT and JSON parsing, a
// directory-backed provider, and language selection.
package transcript

import (
	"context"
	"slices"
	"strings"

	"github.com/hyperjump/kotoba/internal/models"
)

// Provider fetches the timed segments of a source. Implementations return errors wrapping
// ErrTranscriptUnavailable or ErrTranscriptDisabled when no transcript can be served, and
// ErrInvalidInput when the file exists but cannot be parsed.
type Provider interface {
	Fetch(ctx context.Context, sourceID string) ([]models.TimedSegment, error)
}

// DefaultLanguages is the preference order used when none is configured.
var DefaultLanguages = []string{"hi", "en"}

// SelectLanguage picks the first preference present in available (case-insensitive), falling
// back to the first available language in sorted order. ok is false when available is empty.
func SelectLanguage(available, preferences []string) (lang string, ok bool) {
	if len(available) == 0 {
		return "", false
	}
	for _, pref := range preferences {
		for _, a := range available {
			if strings.EqualFold(a, pref) {
				return a, true
			}
		}
	}
	sorted := slices.Clone(available)
	slices.Sort(sorted)
	return sorted[0], true
}
