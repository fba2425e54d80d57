package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "projects/a.json", []byte(`{"id":"a"}`)))
	require.NoError(t, s.Write(ctx, "projects/b.json", []byte(`{"id":"b"}`)))

	data, err := s.Read(ctx, "projects/a.json")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"a"}`, string(data))

	paths, err := s.List(ctx, "projects")
	require.NoError(t, err)
	assert.Equal(t, []string{"projects/a.json", "projects/b.json"}, paths)

	require.NoError(t, s.Write(ctx, "projects/b.json", []byte(`{"id":"b","v":2}`)))
	data, err = s.Read(ctx, "projects/b.json")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"b","v":2}`, string(data))
}

func TestLocalStorageNotFound(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = s.Read(ctx, "projects/missing.json")
	assert.ErrorIs(t, err, ErrNotFound)

	paths, err := s.List(ctx, "nothing-here")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestLocalStorageListSkipsTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewLocalStorage(dir)
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "projects/a.json", []byte("{}")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "projects", "b.json.tmp"), []byte("{"), 0o644))

	paths, err := s.List(ctx, "projects")
	require.NoError(t, err)
	assert.Equal(t, []string{"projects/a.json"}, paths)
}

func TestLocalStorageStaysUnderBase(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewLocalStorage(filepath.Join(dir, "base"))
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "../escape.json", []byte("{}")))
	_, err = os.Stat(filepath.Join(dir, "escape.json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "base", "escape.json"))
	assert.NoError(t, err)
}
