package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otaviobraga/registry-harvester/internal/scraper"
)

func sampleOutcomes() []scraper.Outcome {
	rec := scraper.Record{
		CadastralNumber: "12345678901",
		OwnerName:       "MARIA DA SILVA",
		Street:          "RUA DAS FLORES",
		Number:          "123",
		District:        "CENTRO",
		PostalCode:      "01001-000",
	}
	return []scraper.Outcome{
		{JobID: "12345678901", Success: true, Record: &rec},
		{JobID: "22222222222", Success: true},
		{JobID: "33333333333", Success: false, Err: "target page unreachable"},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleOutcomes()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "MARIA DA SILVA", rows[1][3])
	assert.Equal(t, "true", rows[1][1])

	// A success without a record writes empty fields, not a nil panic.
	assert.Equal(t, "22222222222", rows[2][0])
	assert.Empty(t, rows[2][2])

	assert.Equal(t, "false", rows[3][1])
	assert.Equal(t, "target page unreachable", rows[3][10])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1, "header only")
}

func TestDefaultFilename(t *testing.T) {
	ts := time.Date(2026, 8, 27, 14, 30, 5, 0, time.UTC)
	got := DefaultFilename("output", ts)
	assert.Equal(t, filepath.Join("output", "registry_scraped_20260827_143005.csv"), got)
}

func TestWriteCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	require.NoError(t, WriteCSVFile(path, sampleOutcomes()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "12345678901")
}
