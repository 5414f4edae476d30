package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// OpenFunc builds a backend. fresh requests an empty index, discarding any
// persisted state; otherwise existing state is loaded.
type OpenFunc func(ctx context.Context, fresh bool) (Backend, error)

// Manager owns the single shared index handle. The backend is opened
// lazily on first use and shared by every caller; mutations run one at a
// time through WithMutation, reads go straight to the handle.
type Manager struct {
	open OpenFunc

	mu      sync.Mutex // guards backend lifecycle
	backend Backend

	writeMu sync.Mutex // single-writer mutation scope

	logger *slog.Logger
}

// NewManager creates a Manager. The backend is not opened until the first
// Get, Reload or WithMutation call.
func NewManager(open OpenFunc, logger *slog.Logger) *Manager {
	return &Manager{open: open, logger: logger}
}

// Get returns the shared backend handle, opening it on first use. With
// forceReload the current handle is discarded and state is re-read from
// storage.
func (m *Manager) Get(ctx context.Context, forceReload bool) (Backend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if forceReload && m.backend != nil {
		if err := m.backend.Close(); err != nil {
			m.logger.Warn("closing index backend for reload", slog.String("error", err.Error()))
		}
		m.backend = nil
	}

	return m.ensureLocked(ctx, false)
}

// Reload discards the current handle and loads persisted state again.
func (m *Manager) Reload(ctx context.Context) (Backend, error) {
	return m.Get(ctx, true)
}

// CreateNew replaces the current handle with an empty index, discarding
// persisted state.
func (m *Manager) CreateNew(ctx context.Context) (Backend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend != nil {
		if err := m.backend.Close(); err != nil {
			m.logger.Warn("closing index backend for recreate", slog.String("error", err.Error()))
		}
		m.backend = nil
	}

	return m.ensureLocked(ctx, true)
}

func (m *Manager) ensureLocked(ctx context.Context, fresh bool) (Backend, error) {
	if m.backend != nil {
		return m.backend, nil
	}

	backend, err := m.open(ctx, fresh)
	if err != nil {
		return nil, fmt.Errorf("open index backend: %w", err)
	}
	m.backend = backend
	return backend, nil
}

// WithMutation runs fn while holding the single-writer mutation scope for
// the whole call. The scope is released on every exit path, including
// panics inside fn.
func (m *Manager) WithMutation(ctx context.Context, fn func(Backend) error) error {
	backend, err := m.Get(ctx, false)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return fn(backend)
}

// Persist flushes the backend to durable storage. A no-op when the backend
// has not been opened or writes through on every mutation.
func (m *Manager) Persist(ctx context.Context) error {
	m.mu.Lock()
	backend := m.backend
	m.mu.Unlock()

	if backend == nil {
		return nil
	}
	return backend.Persist(ctx)
}

// Close releases the backend handle.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend == nil {
		return nil
	}
	err := m.backend.Close()
	m.backend = nil
	return err
}
