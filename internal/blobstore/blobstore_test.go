package blobstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "documents/1/statut.pdf")
	require.True(t, errors.Is(err, ErrObjectNotFound))

	require.NoError(t, s.Put(ctx, "documents/1/statut.pdf", []byte("%PDF-1.7"), "application/pdf"))
	err = s.Put(ctx, "documents/1/statut.pdf", []byte("other"), "application/pdf")
	require.True(t, errors.Is(err, ErrObjectExists))

	data, err := s.Get(ctx, "documents/1/statut.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))

	require.NoError(t, s.Delete(ctx, "documents/1/statut.pdf"))
	require.NoError(t, s.Delete(ctx, "documents/1/statut.pdf"))
	_, err = s.Get(ctx, "documents/1/statut.pdf")
	require.True(t, errors.Is(err, ErrObjectNotFound))
}

func TestLocalStore(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, s)

	_, err = s.Get(context.Background(), "../etc/passwd")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrObjectNotFound))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)
	assert.Equal(t, 0, s.Len())
}
