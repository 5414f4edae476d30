package index

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragmag/ragmag/domain/document"
)

func localOpen(dir string) OpenFunc {
	return func(_ context.Context, fresh bool) (Backend, error) {
		if fresh {
			b, err := NewLocalBackend(dir, discardLogger())
			if err != nil {
				return nil, err
			}
			// Drop any restored state for a fresh index.
			if docs, err := b.ListDocuments(context.Background()); err == nil {
				for id := range docs {
					_ = b.DeleteByDocument(context.Background(), id)
				}
			}
			return b, nil
		}
		return NewLocalBackend(dir, discardLogger())
	}
}

func TestManager_LazySharedHandle(t *testing.T) {
	opened := 0
	m := NewManager(func(ctx context.Context, fresh bool) (Backend, error) {
		opened++
		return NewLocalBackend(t.TempDir(), discardLogger())
	}, discardLogger())

	assert.Zero(t, opened, "backend not opened before first use")

	ctx := context.Background()
	first, err := m.Get(ctx, false)
	require.NoError(t, err)
	second, err := m.Get(ctx, false)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, opened)
}

func TestManager_ForceReloadReopens(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(localOpen(dir), discardLogger())
	ctx := context.Background()

	first, err := m.Get(ctx, false)
	require.NoError(t, err)

	fragments, vectors := pageFragments("doc-1", 1)
	require.NoError(t, first.Insert(ctx, fragments, vectors))
	require.NoError(t, m.Persist(ctx))

	reloaded, err := m.Get(ctx, true)
	require.NoError(t, err)
	assert.NotSame(t, first, reloaded)

	docs, err := reloaded.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1, "reload sees persisted state")
}

func TestManager_OpenFailurePropagates(t *testing.T) {
	wantErr := errors.New("backend unavailable")
	m := NewManager(func(context.Context, bool) (Backend, error) {
		return nil, wantErr
	}, discardLogger())

	_, err := m.Get(context.Background(), false)
	require.ErrorIs(t, err, wantErr)

	err = m.WithMutation(context.Background(), func(Backend) error { return nil })
	require.ErrorIs(t, err, wantErr)
}

func TestManager_WithMutationSerializesWriters(t *testing.T) {
	m := NewManager(localOpen(t.TempDir()), discardLogger())
	ctx := context.Background()

	inScope := 0
	maxInScope := 0
	var observe sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := m.WithMutation(ctx, func(b Backend) error {
				observe.Lock()
				inScope++
				if inScope > maxInScope {
					maxInScope = inScope
				}
				observe.Unlock()

				fragments, vectors := pageFragments(document.NewID(), 2)
				err := b.Insert(ctx, fragments, vectors)

				observe.Lock()
				inScope--
				observe.Unlock()
				return err
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, maxInScope, "only one writer in the mutation scope")

	backend, err := m.Get(ctx, false)
	require.NoError(t, err)
	docs, err := backend.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 8)
}

func TestManager_WithMutationReleasesOnError(t *testing.T) {
	m := NewManager(localOpen(t.TempDir()), discardLogger())
	ctx := context.Background()

	wantErr := errors.New("mutation failed")
	err := m.WithMutation(ctx, func(Backend) error { return wantErr })
	require.ErrorIs(t, err, wantErr)

	// The scope must be free for the next writer.
	err = m.WithMutation(ctx, func(Backend) error { return nil })
	require.NoError(t, err)
}

func TestManager_CreateNewDiscardsState(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(localOpen(dir), discardLogger())
	ctx := context.Background()

	backend, err := m.Get(ctx, false)
	require.NoError(t, err)
	fragments, vectors := pageFragments("doc-1", 1)
	require.NoError(t, backend.Insert(ctx, fragments, vectors))

	fresh, err := m.CreateNew(ctx)
	require.NoError(t, err)

	docs, err := fresh.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestManager_PersistBeforeOpenIsNoop(t *testing.T) {
	m := NewManager(localOpen(t.TempDir()), discardLogger())
	require.NoError(t, m.Persist(context.Background()))
	require.NoError(t, m.Close())
}
