// Package notes turns a finished transcript into a structured note and
// persists it. It sits strictly downstream of the pipeline: a note is built
// from the final corrected transcript, never from in-flight chunks.
package notes

import (
	"context"
	"time"
)

// Note is one generated note with the material it was built from.
type Note struct {
	// ID identifies the stored note. Assigned by the Store on Save: the
	// file path for the file store, the row id for the Postgres store.
	ID string

	// Title is the note heading.
	Title string

	// CreatedAt is when the note was generated. Stores that assign their
	// own timestamp overwrite it on Save.
	CreatedAt time.Time

	// Summary is the model-generated structured note body.
	Summary string

	// Transcript is the corrected transcript the summary was built from.
	Transcript string

	// Model labels the summarizer backend, e.g. "ollama/llama3".
	Model string

	// Audio is the duration of captured audio behind the transcript.
	Audio time.Duration

	// Corrections is the number of vocabulary substitutions applied.
	Corrections int

	// DroppedSegments is the number of speech segments lost to decoder
	// failures; nonzero means the transcript is incomplete.
	DroppedSegments int
}

// Store persists generated notes.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save persists the note and fills in its ID and, for stores that
	// assign timestamps, CreatedAt.
	Save(ctx context.Context, n *Note) error
}
