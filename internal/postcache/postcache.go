// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package postcache remembers the last generated post for each paper so a
// reselected paper shows its previous post without regenerating.
package postcache

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/pdiddy/slopped-in/pkg/types"
)

// ErrEmptyLink rejects an entry without a paper link.
var ErrEmptyLink = errors.New("post cache entry has no link")

// Store maps a paper link to the last post generated for it.
type Store interface {
	// Get returns the cached entry for link. ok is false when none exists.
	Get(ctx context.Context, link string) (entry types.PostEntry, ok bool, err error)

	// Put stores entry, replacing any earlier post for the same link.
	Put(ctx context.Context, entry types.PostEntry) error

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]types.PostEntry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]types.PostEntry)}
}

func (m *MemoryStore) Get(_ context.Context, link string) (types.PostEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[strings.TrimSpace(link)]
	return e, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, entry types.PostEntry) error {
	entry.Link = strings.TrimSpace(entry.Link)
	if entry.Link == "" {
		return ErrEmptyLink
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Link] = entry
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.entries)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
