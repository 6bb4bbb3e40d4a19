package transcript

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/pkg/utils"
)

// ParseJSON reads a JSON array of {"text", "start"} objects. Segment text is cleaned the same
// way as SRT cues; segments left empty are dropped.
func ParseJSON(r io.Reader) ([]models.TimedSegment, error) {
	var raw []models.TimedSegment
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode json transcript: %v", models.ErrInvalidInput, err)
	}
	out := make([]models.TimedSegment, 0, len(raw))
	for _, s := range raw {
		if text := utils.CleanCaption(s.Text); text != "" {
			out = append(out, models.TimedSegment{Text: text, Start: s.Start})
		}
	}
	return out, nil
}
