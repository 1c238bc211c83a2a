package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCopiesDatabase(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "live.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("database bytes"), 0o644))

	m := New(dbPath, filepath.Join(dir, "backups"), 0, logrus.New())
	path, err := m.Create("pre_training")
	require.NoError(t, err)

	assert.Contains(t, filepath.Base(path), "pre_training_")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("database bytes"), data)
}

func TestCreateFailsWhenDatabaseMissing(t *testing.T) {
	dir := t.TempDir()
	m := New(filepath.Join(dir, "missing.db"), filepath.Join(dir, "backups"), 0, nil)
	_, err := m.Create("pre_betting_reset")
	assert.Error(t, err)
}

func TestPruneKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "live.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("x"), 0o644))
	backupDir := filepath.Join(dir, "backups")

	require.NoError(t, os.MkdirAll(backupDir, 0o755))
	for _, name := range []string{
		"pre_training_20250101T000000Z.db",
		"pre_training_20250102T000000Z.db",
		"pre_betting_reset_20250101T000000Z.db",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(backupDir, name), []byte("old"), 0o644))
	}

	m := New(dbPath, backupDir, 2, nil)
	_, err := m.Create("pre_training")
	require.NoError(t, err)

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)

	var training, reset int
	for _, e := range entries {
		switch {
		case len(e.Name()) > len("pre_training_") && e.Name()[:len("pre_training_")] == "pre_training_":
			training++
		default:
			reset++
		}
	}
	// Two retained per label; other labels untouched.
	assert.Equal(t, 2, training)
	assert.Equal(t, 1, reset)
}
