package transcript

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/pkg/utils"
)

// ParseSRT reads SubRip captions. Each cue becomes one segment whose text is the cue's lines
// joined by spaces, with inline markup removed. Cues with no text are dropped.
//
//	1
//	00:00:00,000 --> 00:00:01,830
//	I'm happy to
//	have you here today.
func ParseSRT(r io.Reader) ([]models.TimedSegment, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		segments []models.TimedSegment
		lines    []string
		start    float64
		inCue    bool
		lineNo   int
	)
	flush := func() {
		if inCue {
			if text := utils.CleanCaption(strings.Join(lines, " ")); text != "" {
				segments = append(segments, models.TimedSegment{Text: text, Start: start})
			}
		}
		lines = lines[:0]
		inCue = false
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		switch {
		case line == "":
			flush()
		case strings.Contains(line, "-->"):
			flush()
			from, _, _ := strings.Cut(line, "-->")
			ts, err := parseTimestamp(strings.TrimSpace(from))
			if err != nil {
				return nil, fmt.Errorf("%w: srt line %d: %v", models.ErrInvalidInput, lineNo, err)
			}
			start = ts
			inCue = true
		case !inCue:
			// Sequence number or stray text before the first timing line.
		default:
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	flush()
	return segments, nil
}

// parseTimestamp converts HH:MM:SS,mmm (or with '.') into seconds. Hours may be omitted.
func parseTimestamp(s string) (float64, error) {
	s = strings.Replace(s, ",", ".", 1)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	var total float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("bad timestamp %q", s)
		}
		if i < len(parts)-1 && strings.Contains(p, ".") {
			return 0, fmt.Errorf("bad timestamp %q", s)
		}
		total = total*60 + v
	}
	return total, nil
}
