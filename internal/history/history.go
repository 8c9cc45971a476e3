// Package history lists and retrieves saved snapshots for a file scope.
//
// Listing is cached per (file, school) query; snapshots themselves are
// immutable once written, so retrieval is cached with no forced-refresh
// path. Promotion and read-only viewing of a snapshot are driven by the
// session controller, which owns the file context and layer store.
package history

import (
	"context"

	"github.com/mirrorlake/geodesk/internal/client"
)

// Manager provides cached access to the backend's history endpoints.
type Manager struct {
	api *client.Client
}

// New creates a manager over the given API client.
func New(api *client.Client) *Manager {
	return &Manager{api: api}
}

// List returns the saved versions for a file, newest first. With no
// server-backed file there is nothing to list; callers pass file == ""
// and get an empty list without a network call.
func (m *Manager) List(ctx context.Context, file, school string, force bool) ([]client.HistoryVersion, error) {
	if file == "" {
		return nil, nil
	}
	return m.api.HistoryList(ctx, file, school, force)
}

// Get retrieves a full snapshot by save ID.
func (m *Manager) Get(ctx context.Context, saveID string) (*client.HistorySnapshot, error) {
	return m.api.HistoryVersion(ctx, saveID)
}

// Invalidate drops cached version lists for the file. Restoring a
// snapshot changes what "current" means, so stale lists must not be
// served afterwards.
func (m *Manager) Invalidate(file string) {
	m.api.InvalidateHistory(file)
}
