// Package cli provides output formatting and an HTTP client for the kotoba command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/kotoba/internal/models"
)

// OutputFormat selects how results are printed.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// WriteAnswer writes an answer and its timestamped sources to w.
func WriteAnswer(w io.Writer, ans *models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, ans)
	}
	fmt.Fprintf(w, "%s\n", ans.Answer)
	if len(ans.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for i, src := range ans.Sources {
			fmt.Fprintf(w, "  %d. %s\n", i+1, FormatTimestamp(src.Timestamp))
		}
	}
	return nil
}

// WriteIndexResult writes the outcome of indexing a source to w.
func WriteIndexResult(w io.Writer, res *models.IndexResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, res)
	}
	fmt.Fprintf(w, "Indexed %s: %d chunks in collection %s\n", res.SourceID, res.ChunksCreated, res.CollectionName)
	return nil
}

// WriteSession writes a source's readiness to w. A nil entry means the source is not indexed.
func WriteSession(w io.Writer, sourceID string, entry *models.SessionEntry, format OutputFormat) error {
	if format == OutputJSON {
		out := map[string]interface{}{"source_id": sourceID, "ready": entry != nil}
		if entry != nil {
			out["collection_name"] = entry.CollectionName
			out["total_chunks"] = entry.TotalChunks
		}
		return WriteJSON(w, out)
	}
	if entry == nil {
		fmt.Fprintf(w, "%s: not indexed\n", sourceID)
		return nil
	}
	fmt.Fprintf(w, "%s: ready (%d chunks in %s)\n", sourceID, entry.TotalChunks, entry.CollectionName)
	return nil
}

// FormatTimestamp renders seconds as m:ss, or h:mm:ss past the hour.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
