package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsupp/healthdataflow/internal/models"
)

func markerMap(markers []models.GeneticMarker) map[string]string {
	m := make(map[string]string, len(markers))
	for _, marker := range markers {
		m[marker.RSID] = marker.Genotype
	}
	return m
}

func TestParseTextGeneticCSV(t *testing.T) {
	csv := "rsid,genotype\nrs1801133,CT\nrs4680,GG\nrs9999999,AA\n"

	result := ParseText(csv, "csv")

	markers := markerMap(result.GeneticMarkers)
	assert.Equal(t, "CT", markers["rs1801133"])
	assert.Equal(t, "GG", markers["rs4680"])
	assert.NotContains(t, markers, "rs9999999", "off-panel rsids are filtered")
	assert.Empty(t, result.Biomarkers)
}

func TestParseTextGeneticCSVSlashGenotypes(t *testing.T) {
	csv := "SNP,Allele\nrs1801133,C/T\nrs4680,G-G\n"

	result := ParseText(csv, "csv")

	markers := markerMap(result.GeneticMarkers)
	assert.Equal(t, "CT", markers["rs1801133"])
	assert.Equal(t, "GG", markers["rs4680"])
}

func TestParseTextBiomarkerCSV(t *testing.T) {
	csv := "Test,Result\nVitamin D,22\nHemoglobin,14.2\nUnknown Thing,99\n"

	result := ParseText(csv, "csv")

	assert.Equal(t, "22 ng/mL", result.Biomarkers["vitamin_d"])
	assert.Equal(t, "14.2 g/dL", result.Biomarkers["hemoglobin"])
	assert.Len(t, result.Biomarkers, 2)
	assert.Empty(t, result.GeneticMarkers)
}

func TestParseTextFreeformBiomarkers(t *testing.T) {
	report := `Lab Report
Collected: 3/15/2024

Vitamin D: 22 ng/mL
Hemoglobin 14.2 g/dL
`
	result := ParseText(report, "txt")

	require.Contains(t, result.Biomarkers, "vitamin_d")
	assert.Equal(t, "22 ng/mL", result.Biomarkers["vitamin_d"])
	assert.Contains(t, result.Biomarkers, "hemoglobin")
	assert.Equal(t, "2024-03-15", result.TestDate)
}

func TestParseTextFreeformGenetic(t *testing.T) {
	report := `Genetic Results

rs1801133: CT
The patient is heterozygous for VDR rs2228570 (AA).
COMT rs4680 ++ Homozygous GG G
`
	result := ParseText(report, "txt")

	markers := markerMap(result.GeneticMarkers)
	assert.Equal(t, "CT", markers["rs1801133"])
	assert.Equal(t, "AA", markers["rs2228570"])
	assert.Equal(t, "GG", markers["rs4680"])
}

func TestParseTextTabSeparatedRawExport(t *testing.T) {
	export := "# This data file generated by 23andMe\nrsid\tchromosome\tposition\tgenotype\nrs1801133\t1\t11856378\tCT\nrs4680\t22\t19951271\tGG\n"

	result := ParseText(export, "txt")

	markers := markerMap(result.GeneticMarkers)
	assert.Equal(t, "CT", markers["rs1801133"])
	assert.Equal(t, "GG", markers["rs4680"])
	assert.Equal(t, "23andMe", result.SourceCompany)
}

func TestParseTextDuplicateRsidLastWins(t *testing.T) {
	csv := "rsid,genotype\nrs1801133,CC\nrs1801133,CT\n"

	result := ParseText(csv, "csv")

	require.Len(t, result.GeneticMarkers, 1)
	assert.Equal(t, "CT", result.GeneticMarkers[0].Genotype)
}

func TestParseTextCompanyDetectionPriority(t *testing.T) {
	// MaxGen markers outrank the generic 23andMe mention later in the text.
	text := "MaxGen Labs report, data imported from 23andme"
	result := ParseText(text, "txt")
	assert.Equal(t, "MaxGen Labs", result.SourceCompany)

	result = ParseText("plain lab report", "txt")
	assert.Equal(t, "", result.SourceCompany)
}

func TestParseTextInterpretedReportFlag(t *testing.T) {
	interpreted := `Summary of your results

Your results show elevated homocysteine. Recommendation: supplement B12.
rs1801133: CT
`
	result := ParseText(interpreted, "txt")
	assert.True(t, result.IsInterpretedReport)
	assert.NotEmpty(t, result.InterpretationSummary)

	// Interpretive language alone is not enough when raw markers are plentiful.
	raw := "recommendation\n"
	for _, rsid := range []string{"rs1801133", "rs1801131", "rs4680", "rs2228570", "rs1544410", "rs429358", "rs7412", "rs1695", "rs4880", "rs601338", "rs174547", "rs662"} {
		raw += rsid + ": CT\n"
	}
	result = ParseText(raw, "txt")
	assert.False(t, result.IsInterpretedReport)
}

func TestParseTextRawTextBounded(t *testing.T) {
	long := make([]byte, 20000)
	for i := range long {
		long[i] = 'x'
	}
	result := ParseText(string(long), "txt")
	assert.Len(t, result.RawText, rawTextLimit)
}

func TestExtractTestDateFormats(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Test Date: 3/15/2024", "2024-03-15"},
		{"Collected: 12/1/2023", "2023-12-01"},
		{"Report Date: 1/2/24", "2024-01-02"},
		{"Drawn on 2024-03-15 at clinic", "2024-03-15"},
		{"Results from March 15, 2024", "2024-03-15"},
		{"no date here", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractTestDate(tt.in), "input %q", tt.in)
	}
}

func TestDedupeMarkers(t *testing.T) {
	markers := []models.GeneticMarker{
		{RSID: "rs1", Genotype: "AA"},
		{RSID: "rs2", Genotype: "CC"},
		{RSID: "rs1", Genotype: "AT"},
		{RSID: "", Genotype: "GG"},
	}
	deduped := dedupeMarkers(markers)

	require.Len(t, deduped, 2)
	assert.Equal(t, "rs1", deduped[0].RSID)
	assert.Equal(t, "AT", deduped[0].Genotype, "last occurrence wins")
	assert.Equal(t, "rs2", deduped[1].RSID)
}
