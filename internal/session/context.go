package session

// Source records where the active file's data came from.
type Source string

const (
	// SourceNone means no file has been selected yet.
	SourceNone Source = ""

	// SourceServer marks the editable head backed by the server store.
	SourceServer Source = "server"

	// SourceLocal marks a locally opened file: no history, no saves.
	SourceLocal Source = "local"

	// SourceHistory marks a read-only view of a historical snapshot.
	SourceHistory Source = "history"
)

// FileContext tracks the active file's identity and provenance. Exactly
// one context is active at a time; selecting a new file atomically
// clears all layers and edit sessions before loading.
type FileContext struct {
	Name   string
	Source Source
}

// Editable reports whether saves are allowed for this context.
func (fc FileContext) Editable() bool {
	return fc.Source == SourceServer
}
