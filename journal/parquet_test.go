package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParquetJournalRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	j, err := NewParquet(dir)
	require.NoError(t, err)

	run := testRun("r1")
	require.NoError(t, j.RecordGaps(run, testGaps()))
	assert.Equal(t, filepath.Join(dir, "AAPL_1h_fvgs.parquet"), j.GapsPath(run))

	got, err := ReadParquetGaps(j.GapsPath(run))
	require.NoError(t, err)
	assert.Equal(t, testGaps(), got)
}

func TestGapRowUnfilledHasNoFillTime(t *testing.T) {
	row := toRow(testGaps()[1])
	assert.Zero(t, row.FillTime)

	g, err := row.Gap()
	require.NoError(t, err)
	assert.Nil(t, g.FillTime)
	assert.False(t, g.Filled)
}

func TestGapRowRejectsUnknownType(t *testing.T) {
	row := toRow(testGaps()[0])
	row.Type = "Sideways"

	_, err := row.Gap()
	assert.Error(t, err)
}
