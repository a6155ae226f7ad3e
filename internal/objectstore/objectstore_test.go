package objectstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)

	content := []byte("a large tool output that would not fit inline")
	hash, path, err := s.Put(content)
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	require.Equal(t, filepath.Join(root, "objects", hash), path)

	got, err := s.Get(path)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestPutIsIdempotent(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)

	content := []byte("same content twice")
	hash1, path1, err := s.Put(content)
	require.NoError(t, err)
	hash2, path2, err := s.Put(content)
	require.NoError(t, err)

	require.Equal(t, hash1, hash2)
	require.Equal(t, path1, path2)

	entries, err := os.ReadDir(filepath.Join(root, "objects"))
	require.NoError(t, err)
	// One object file plus the generation index (objects/.index).
	require.Len(t, entries, 2)
}

func TestDifferentContentDifferentHash(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)

	h1, _, err := s.Put([]byte("one"))
	require.NoError(t, err)
	h2, _, err := s.Put([]byte("two"))
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
}
