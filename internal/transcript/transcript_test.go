package transcript

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kotoba/internal/models"
)

const sampleSRT = "\ufeff1\r\n00:00:00,000 --> 00:00:01,830\r\nI'm happy to\r\nhave you here today.\r\n\r\n" +
	"2\n00:00:01,910 --> 00:00:03,610\n<i>As I'm sure</i> you're all\naware\n\n" +
	"3\n00:00:04,000 --> 00:00:05,000\n\n" +
	"4\n01:02:03.500 --> 01:02:04.000\nlate line\n"

func TestParseSRT(t *testing.T) {
	got, err := ParseSRT(strings.NewReader(sampleSRT))
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	want := []models.TimedSegment{
		{Text: "I'm happy to have you here today.", Start: 0},
		{Text: "As I'm sure you're all aware", Start: 1.91},
		{Text: "late line", Start: 3723.5},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d segments: %+v", len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("segment %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseSRT_BadTimestamp(t *testing.T) {
	_, err := ParseSRT(strings.NewReader("1\nxx:00 --> 00:01\nhello\n"))
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"00:00:01,500", 1.5, false},
		{"00:01:00.250", 60.25, false},
		{"02:00", 120, false},
		{"1:2:3", 3723, false},
		{"abc", 0, true},
		{"00:-1:00", 0, true},
		{"00.5:00:00", 0, true},
	}
	for _, tt := range tests {
		got, err := parseTimestamp(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseTimestamp(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseJSON(t *testing.T) {
	got, err := ParseJSON(strings.NewReader(`[{"text":"hello  world","start":0.5},{"text":"  ","start":1},{"text":"bye","start":2}]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Text != "hello world" || got[1].Start != 2 {
		t.Errorf("got %+v", got)
	}
	if _, err := ParseJSON(strings.NewReader(`{"not":"a list"}`)); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSelectLanguage(t *testing.T) {
	tests := []struct {
		name      string
		available []string
		prefs     []string
		want      string
		ok        bool
	}{
		{"first preference wins", []string{"en", "hi"}, []string{"hi", "en"}, "hi", true},
		{"second preference", []string{"fr", "en"}, []string{"hi", "en"}, "en", true},
		{"case insensitive", []string{"EN"}, []string{"en"}, "EN", true},
		{"fallback to first sorted", []string{"ja", "fr"}, []string{"hi"}, "fr", true},
		{"untagged sorts first", []string{"fr", ""}, nil, "", true},
		{"nothing available", nil, []string{"en"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectLanguage(tt.available, tt.prefs)
			if got != tt.want || ok != tt.ok {
				t.Errorf("SelectLanguage = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		name          string
		id, lang, ext string
		ok            bool
	}{
		{"abc.srt", "abc", "", ".srt", true},
		{"abc.en.srt", "abc", "en", ".srt", true},
		{"abc.pt-BR.JSON", "abc", "pt-BR", ".json", true},
		{"abc.disabled", "abc", "", ".disabled", true},
		{"abc.txt", "", "", "", false},
		{"bad id.srt", "", "", "", false},
	}
	for _, tt := range tests {
		id, lang, ext, ok := SplitName(tt.name)
		if id != tt.id || lang != tt.lang || ext != tt.ext || ok != tt.ok {
			t.Errorf("SplitName(%q) = %q %q %q %v", tt.name, id, lang, ext, ok)
		}
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestFileProvider_Fetch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "vid.en.srt", "1\n00:00:00,000 --> 00:00:01,000\nenglish\n")
	writeFile(t, dir, "vid.hi.json", `[{"text":"hindi","start":0}]`)
	writeFile(t, dir, "other.srt", "1\n00:00:00,000 --> 00:00:01,000\nother\n")
	ctx := context.Background()

	p := NewFileProvider(dir)
	got, err := p.Fetch(ctx, "vid")
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Text != "hindi" {
		t.Errorf("default preference should pick hi, got %+v", got)
	}

	p = NewFileProvider(dir, WithLanguages([]string{"en"}))
	got, err = p.Fetch(ctx, "vid")
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Text != "english" {
		t.Errorf("expected en transcript, got %+v", got)
	}

	p = NewFileProvider(dir, WithLanguages([]string{"de"}))
	got, _ = p.Fetch(ctx, "vid")
	if len(got) == 0 || got[0].Text != "english" {
		t.Errorf("fallback should pick first sorted language (en), got %+v", got)
	}
}

func TestFileProvider_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "off.disabled", "")
	writeFile(t, dir, "off.srt", "1\n00:00:00,000 --> 00:00:01,000\nx\n")
	writeFile(t, dir, "blank.srt", "")
	ctx := context.Background()
	p := NewFileProvider(dir)

	if _, err := p.Fetch(ctx, "off"); !errors.Is(err, models.ErrTranscriptDisabled) {
		t.Errorf("disabled: %v", err)
	}
	if _, err := p.Fetch(ctx, "none"); !errors.Is(err, models.ErrTranscriptUnavailable) {
		t.Errorf("missing: %v", err)
	}
	if _, err := p.Fetch(ctx, "blank"); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("empty: %v", err)
	}
	if _, err := p.Fetch(ctx, "../x"); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("bad id: %v", err)
	}
	if _, err := NewFileProvider(filepath.Join(dir, "nope")).Fetch(ctx, "vid"); !errors.Is(err, models.ErrTranscriptUnavailable) {
		t.Errorf("missing dir: %v", err)
	}
}
