package journal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend_CreatesWorkbookWithHeader(t *testing.T) {
	folder := filepath.Join(t.TempDir(), "sessions", "2024-05-01_08-00-00_Olena_007")

	require.NoError(t, Append(folder, "4820000000017", "2024-05-01 08:01:02"))

	_, err := os.Stat(Path(folder))
	require.NoError(t, err)

	rows, err := Rows(folder)
	require.NoError(t, err)
	assert.Equal(t, []Row{{Time: "2024-05-01 08:01:02", Barcode: "4820000000017"}}, rows)
}

func TestAppend_AddsRowsInOrder(t *testing.T) {
	folder := t.TempDir()

	require.NoError(t, Append(folder, "A-1", "2024-05-01 08:01:02"))
	require.NoError(t, Append(folder, "B-2", "2024-05-01 08:02:03"))
	require.NoError(t, Append(folder, "C-3", "2024-05-01 08:03:04"))

	rows, err := Rows(folder)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "A-1", rows[0].Barcode)
	assert.Equal(t, "C-3", rows[2].Barcode)
	assert.Equal(t, "2024-05-01 08:02:03", rows[1].Time)
}

func TestRows_MissingWorkbook(t *testing.T) {
	_, err := Rows(t.TempDir())
	assert.Error(t, err)
}
