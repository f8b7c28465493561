package notes

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileStore_Save(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "notes"))
	if err != nil {
		t.Fatal(err)
	}

	n := &Note{
		Title:      "Standup Recap!",
		Summary:    "We agreed to ship on Friday.",
		Transcript: "let's ship on friday",
		CreatedAt:  time.Date(2026, 8, 24, 9, 30, 0, 0, time.UTC),
	}
	if err := store.Save(context.Background(), n); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	if n.ID == "" {
		t.Fatal("Save did not set the note ID")
	}
	if base := filepath.Base(n.ID); base != "20260824-093000-standup-recap.md" {
		t.Errorf("filename = %q", base)
	}

	data, err := os.ReadFile(n.ID)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	for _, want := range []string{"# Standup Recap!", "## Summary", "ship on Friday", "## Transcript"} {
		if !strings.Contains(content, want) {
			t.Errorf("written note missing %q", want)
		}
	}
}

func TestFileStore_SaveAssignsTimestamp(t *testing.T) {
	t.Parallel()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	n := &Note{Summary: "s", Transcript: "t"}
	if err := store.Save(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	if n.CreatedAt.IsZero() {
		t.Error("Save should assign CreatedAt when unset")
	}
}

func TestSlugify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"Standup Recap!", "standup-recap"},
		{"  --  ", ""},
		{"Q3 / budget review", "q3-budget-review"},
		{"ümläut Täst", "ümläut-täst"},
	}
	for _, tc := range tests {
		if got := slugify(tc.in); got != tc.want {
			t.Errorf("slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRenderMarkdown(t *testing.T) {
	t.Parallel()
	n := &Note{
		Title:           "Planning",
		CreatedAt:       time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC),
		Summary:         "Gist first.",
		Transcript:      "we talked",
		Model:           "ollama/llama3",
		Audio:           91 * time.Second,
		Corrections:     2,
		DroppedSegments: 1,
	}
	md := RenderMarkdown(n)

	for _, want := range []string{
		"# Planning",
		"- Audio: 1m31s",
		"- Model: `ollama/llama3`",
		"- Vocabulary corrections: 2",
		"- Dropped segments: 1",
		"## Summary",
		"## Transcript",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestRenderMarkdown_MinimalNote(t *testing.T) {
	t.Parallel()
	md := RenderMarkdown(&Note{Summary: "only a summary"})
	if !strings.Contains(md, "# Voice Note") {
		t.Error("default title missing")
	}
	if strings.Contains(md, "Dropped segments") || strings.Contains(md, "corrections") {
		t.Error("zero-valued metadata should be omitted")
	}
}
