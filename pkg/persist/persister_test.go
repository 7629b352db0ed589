package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSaveLoadResults verifies a file round trip for each extension.
func TestSaveLoadResults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	for _, name := range []string{"dut.json", "dut.yaml", "dut.json.lz4"} {
		path := filepath.Join(dir, name)

		require.NoError(t, SaveResults(path, sampleRecord()), name)

		got, err := Load[testRecord](path)
		require.NoError(t, err, name)
		assert.Equal(t, sampleRecord(), got, name)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

// TestSaveResults_UnknownExtension verifies nothing is written.
func TestSaveResults_UnknownExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	err := SaveResults(filepath.Join(dir, "dut.xlsx"), sampleRecord())
	require.ErrorIs(t, err, ErrUnknownFormat)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestLoadResults_Missing verifies a missing file is an error.
func TestLoadResults_Missing(t *testing.T) {
	t.Parallel()

	_, err := Load[testRecord](filepath.Join(t.TempDir(), "none.json"))
	require.Error(t, err)
}
