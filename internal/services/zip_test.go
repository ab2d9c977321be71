package services

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestParseArchiveMergesEntries(t *testing.T) {
	data := buildZip(t, map[string]string{
		"genetics.csv": "rsid,genotype\nrs1801133,CT\n",
		"labs.txt":     "Vitamin D: 22 ng/mL\n",
	})

	result, err := ParseArchive(data)
	require.NoError(t, err)

	markers := markerMap(result.GeneticMarkers)
	assert.Equal(t, "CT", markers["rs1801133"])
	assert.Equal(t, "22 ng/mL", result.Biomarkers["vitamin_d"])
	assert.NotEmpty(t, result.RawText)
}

func TestParseArchiveOverlappingRsidsLastEntryWins(t *testing.T) {
	// Zip entries preserve insertion order only within one writer call, so
	// write them explicitly in sequence.
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	first, err := w.Create("a_first.csv")
	require.NoError(t, err)
	_, err = first.Write([]byte("rsid,genotype\nrs1801133,CC\n"))
	require.NoError(t, err)
	second, err := w.Create("b_second.csv")
	require.NoError(t, err)
	_, err = second.Write([]byte("rsid,genotype\nrs1801133,CT\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	result, err := ParseArchive(buf.Bytes())
	require.NoError(t, err)

	require.Len(t, result.GeneticMarkers, 1)
	assert.Equal(t, "CT", result.GeneticMarkers[0].Genotype)
}

func TestParseArchiveSkipsBookkeepingEntries(t *testing.T) {
	data := buildZip(t, map[string]string{
		"__MACOSX/genetics.csv": "rsid,genotype\nrs1801133,CC\n",
		".hidden.txt":           "rs4680: GG\n",
		"report.pdf":            "%PDF-1.4 not parseable here",
		"real.csv":              "rsid,genotype\nrs1801131,AC\n",
	})

	result, err := ParseArchive(data)
	require.NoError(t, err)

	markers := markerMap(result.GeneticMarkers)
	assert.Equal(t, map[string]string{"rs1801131": "AC"}, markers)
}

func TestParseArchiveRejectsGarbage(t *testing.T) {
	_, err := ParseArchive([]byte("not a zip archive"))
	require.Error(t, err)

	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeBadRequest, svcErr.Code)
}

func TestParseArchiveEmptyArchive(t *testing.T) {
	data := buildZip(t, map[string]string{})

	result, err := ParseArchive(data)
	require.NoError(t, err)
	assert.Empty(t, result.GeneticMarkers)
	assert.Empty(t, result.Biomarkers)
}
