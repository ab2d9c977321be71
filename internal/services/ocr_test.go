package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAI struct {
	transcript    string
	analysis      string
	transcribeErr error
	analyzeErr    error
}

func (s *stubAI) Transcribe(_ context.Context, _ []byte) (string, error) {
	return s.transcript, s.transcribeErr
}

func (s *stubAI) Analyze(_ context.Context, _ string) (string, error) {
	return s.analysis, s.analyzeErr
}

func defaultGate() OCRGateConfig {
	return OCRGateConfig{CharsPerMB: 2000, MinCharsFloor: 5000, GateMinMB: 2}
}

func TestCheckCompletenessLargeDocShortTranscript(t *testing.T) {
	stage := NewOCRStage(&stubAI{}, defaultGate())

	// 10MB document expects 20000+ chars; 500 is a severe shortfall.
	err := stage.checkCompleteness(strings.Repeat("x", 500), 10<<20)
	require.Error(t, err)
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeIncompleteExtraction, svcErr.Code)
}

func TestCheckCompletenessSmallDocShortTranscriptPasses(t *testing.T) {
	stage := NewOCRStage(&stubAI{}, defaultGate())

	// A 1MB document below the gate threshold only warns on a shortfall.
	err := stage.checkCompleteness(strings.Repeat("x", 3000), 1<<20)
	assert.NoError(t, err)
}

func TestCheckCompletenessAbsoluteFloor(t *testing.T) {
	stage := NewOCRStage(&stubAI{}, defaultGate())

	err := stage.checkCompleteness(strings.Repeat("x", 200), 100<<10)
	require.Error(t, err)

	err = stage.checkCompleteness("", 100<<10)
	require.Error(t, err)
}

func TestOCRStageRejectsOversizedDocument(t *testing.T) {
	stage := NewOCRStage(&stubAI{}, defaultGate())

	_, err := stage.Process(context.Background(), make([]byte, maxPDFBytes+1))
	require.Error(t, err)
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeBadRequest, svcErr.Code)
}

func TestOCRStageRejectsNonPDFBytes(t *testing.T) {
	stage := NewOCRStage(&stubAI{transcript: strings.Repeat("x", 6000)}, defaultGate())

	_, err := stage.Process(context.Background(), []byte("this is not a pdf"))
	require.Error(t, err)
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeBadRequest, svcErr.Code)
}

func TestParseAnalysis(t *testing.T) {
	response := "Here is the analysis:\n```json\n" + `{
		"is_interpreted_report": false,
		"interpretation_summary": "",
		"genetic_markers": [{"rsid": "rs1801133", "genotype": "CT"}],
		"biomarkers": {"vitamin_d": "22 ng/mL"},
		"source_company": "LabCorp",
		"test_date": "2024-03-15"
	}` + "\n```"

	result, err := parseAnalysis(response)
	require.NoError(t, err)

	require.Len(t, result.GeneticMarkers, 1)
	assert.Equal(t, "rs1801133", result.GeneticMarkers[0].RSID)
	assert.Equal(t, "22 ng/mL", result.Biomarkers["vitamin_d"])
	assert.Equal(t, "LabCorp", result.SourceCompany)
	assert.Equal(t, "2024-03-15", result.TestDate)
	assert.False(t, result.IsInterpretedReport)
}

func TestParseAnalysisNoJSON(t *testing.T) {
	_, err := parseAnalysis("the model refused to answer")
	require.Error(t, err)
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeAnalysisParse, svcErr.Code)
}

func TestParseAnalysisMalformedJSON(t *testing.T) {
	_, err := parseAnalysis(`{"genetic_markers": [`)
	require.Error(t, err)
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeAnalysisParse, svcErr.Code)
}

func TestFirstJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"leading prose", `sure: {"a": 1} done`, `{"a": 1}`},
		{"nested", `{"a": {"b": 2}}`, `{"a": {"b": 2}}`},
		{"brace in string", `{"a": "}"}`, `{"a": "}"}`},
		{"escaped quote in string", `{"a": "\"}"}`, `{"a": "\"}"}`},
		{"unbalanced", `{"a": 1`, ""},
		{"no object", "plain text", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, firstJSONObject(tt.in))
		})
	}
}
