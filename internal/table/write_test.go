package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "result.csv")

	err := WriteCSV(path, []string{"country", "grain_yield"}, [][]string{{"Kenya", "1.5"}, {"South Sudan", "2"}})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "country,grain_yield\nKenya,1.5\nSouth Sudan,2\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not survive the rename")

	tbl, err := LoadFile(path, Options{Format: FormatCSV})
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, "South Sudan", tbl.String(1, "country"))
}

func TestWriteCSV_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0644))

	require.NoError(t, WriteCSV(path, []string{"a"}, nil))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a\n", string(data))
}
