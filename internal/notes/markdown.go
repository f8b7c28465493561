package notes

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown formats the note as a markdown document: a metadata header,
// the generated summary, and the full transcript.
func RenderMarkdown(n *Note) string {
	var b strings.Builder

	title := n.Title
	if title == "" {
		title = "Voice Note"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	if !n.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "- Created: %s\n", n.CreatedAt.Format(time.RFC3339))
	}
	if n.Audio > 0 {
		fmt.Fprintf(&b, "- Audio: %s\n", n.Audio.Truncate(time.Second))
	}
	if n.Model != "" {
		fmt.Fprintf(&b, "- Model: `%s`\n", n.Model)
	}
	if n.Corrections > 0 {
		fmt.Fprintf(&b, "- Vocabulary corrections: %d\n", n.Corrections)
	}
	if n.DroppedSegments > 0 {
		fmt.Fprintf(&b, "- Dropped segments: %d (transcript incomplete)\n", n.DroppedSegments)
	}

	b.WriteString("\n---\n\n")

	if n.Summary != "" {
		b.WriteString("## Summary\n\n")
		b.WriteString(strings.TrimSpace(n.Summary))
		b.WriteString("\n\n")
	}
	if n.Transcript != "" {
		b.WriteString("## Transcript\n\n")
		b.WriteString(strings.TrimSpace(n.Transcript))
		b.WriteString("\n")
	}
	return b.String()
}
