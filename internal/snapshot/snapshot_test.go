package snapshot

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/smithers/internal/store"
)

func TestIsWriteClassification(t *testing.T) {
	for _, name := range []string{"Read", "Glob", "Grep", "WebFetch", "WebSearch", "TaskOutput"} {
		require.False(t, IsWrite(name), "%s should be read-only", name)
	}
	for _, name := range []string{"Write", "Edit", "Bash", "MultiEdit"} {
		require.True(t, IsWrite(name), "%s should be write-classified", name)
	}
}

func TestBeforeAfterRollback(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t)
	exec, err := store.CreateExecution(db, "snap-test", "agent.yaml", "")
	require.NoError(t, err)

	m, err := Open(dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	beforeRef, err := m.Before(db, exec.ID, "", "tool-1")
	require.NoError(t, err)
	require.NotEmpty(t, beforeRef)

	require.NoError(t, os.WriteFile(path, []byte("v2-bad-edit"), 0o644))

	require.NoError(t, m.RollbackToolCall(db, "tool-1"))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "v1", string(got))
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.InitDBWithPath(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
