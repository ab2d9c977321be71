package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/fsupp/healthdataflow/internal/gcp"
	"github.com/fsupp/healthdataflow/internal/models"
)

// DocumentAI is the black-box text capability consumed by the OCR stage:
// bytes in, text out, then text in, JSON-bearing text out.
type DocumentAI interface {
	Transcribe(ctx context.Context, document []byte) (string, error)
	Analyze(ctx context.Context, text string) (string, error)
}

// maxPDFBytes caps the document size submitted to the AI capability.
const maxPDFBytes = 50 << 20

// rawTextLimit bounds the raw-text snapshot kept on the extraction result.
const rawTextLimit = 5000

// OCRGateConfig holds the transcription quality-gate thresholds. The exact
// constants are empirically chosen policy, so they stay tunable through the
// environment rather than being compiled-in contract.
type OCRGateConfig struct {
	// CharsPerMB is the expected minimum transcription yield per megabyte.
	CharsPerMB float64
	// MinCharsFloor is the expectation floor regardless of document size.
	MinCharsFloor int
	// GateMinMB is the document size above which a severe shortfall is a
	// hard failure instead of a logged warning.
	GateMinMB float64
}

func loadOCRGateConfig() OCRGateConfig {
	return OCRGateConfig{
		CharsPerMB:    envFloat("OCR_CHARS_PER_MB", 2000),
		MinCharsFloor: int(envFloat("OCR_MIN_CHARS_FLOOR", 5000)),
		GateMinMB:     envFloat("OCR_GATE_MIN_MB", 2),
	}
}

func envFloat(key string, fallback float64) float64 {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("Ignoring unparseable numeric environment variable.", "key", key, "value", raw)
		return fallback
	}
	return value
}

// OCRStage is the two-pass AI-assisted extraction flow for scanned/PDF input:
// a verbatim transcription pass gated on completeness, then a structured-JSON
// analysis pass. No retries happen here; the caller owns retry policy.
type OCRStage struct {
	ai   DocumentAI
	gate OCRGateConfig
}

// NewOCRStage builds the stage around a text capability.
func NewOCRStage(ai DocumentAI, gate OCRGateConfig) *OCRStage {
	return &OCRStage{ai: ai, gate: gate}
}

// Process runs both passes over the document bytes.
func (s *OCRStage) Process(ctx context.Context, document []byte) (*models.ExtractionResult, error) {
	if len(document) > maxPDFBytes {
		return nil, Errf(CodeBadRequest, "PDF file too large for AI processing (max 50MB)")
	}

	prepared, pageCount, err := preflightPDF(document)
	if err != nil {
		return nil, Errf(CodeBadRequest, "invalid PDF document: %w", err)
	}
	slog.Info("Starting transcription pass.", "sizeBytes", len(prepared), "pageCount", pageCount)

	transcript, err := s.ai.Transcribe(ctx, prepared)
	if err != nil {
		return nil, Errf(CodeIncompleteExtraction, "transcription pass failed: %w", err)
	}
	if err := s.checkCompleteness(transcript, len(prepared)); err != nil {
		return nil, err
	}

	slog.Info("Starting analysis pass.", "transcriptChars", len(transcript))
	analysis, err := s.ai.Analyze(ctx, transcript)
	if err != nil {
		return nil, Errf(CodeAnalysisParse, "analysis pass failed: %w", err)
	}

	result, err := parseAnalysis(analysis)
	if err != nil {
		return nil, err
	}
	result.RawText = truncate(transcript, rawTextLimit)
	result.PageCount = pageCount
	result.GeneticMarkers = dedupeMarkers(result.GeneticMarkers)
	return result, nil
}

// checkCompleteness enforces the transcription quality gate. Partial OCR on a
// large document is worse than an explicit error, since downstream
// normalization has no way to know what was missed.
func (s *OCRStage) checkCompleteness(transcript string, sizeBytes int) error {
	if len(transcript) == 0 {
		return Errf(CodeIncompleteExtraction, "transcription returned no text")
	}

	sizeMB := float64(sizeBytes) / (1 << 20)
	expectedMin := int(sizeMB * s.gate.CharsPerMB)
	if expectedMin < s.gate.MinCharsFloor {
		expectedMin = s.gate.MinCharsFloor
	}

	if len(transcript) < expectedMin {
		slog.Warn("Transcription shorter than expected.",
			"chars", len(transcript), "expectedMin", expectedMin, "sizeMB", fmt.Sprintf("%.1f", sizeMB))
		if sizeMB > s.gate.GateMinMB && len(transcript) < expectedMin/2 {
			return Errf(CodeIncompleteExtraction,
				"severely incomplete extraction: only %d characters from a %.1fMB document, expected %d+",
				len(transcript), sizeMB, expectedMin)
		}
	}

	// An absolute floor independent of document size: below this nothing
	// useful survived transcription.
	if len(transcript) < 1000 {
		return Errf(CodeIncompleteExtraction,
			"text extraction incomplete: only %d characters extracted", len(transcript))
	}
	return nil
}

// analysisPayload is the JSON shape the analysis pass must return.
type analysisPayload struct {
	IsInterpretedReport   bool                   `json:"is_interpreted_report"`
	InterpretationSummary string                 `json:"interpretation_summary"`
	GeneticMarkers        []models.GeneticMarker `json:"genetic_markers"`
	Biomarkers            map[string]string      `json:"biomarkers"`
	SourceCompany         string                 `json:"source_company"`
	TestDate              string                 `json:"test_date"`
}

// parseAnalysis extracts and decodes the first JSON object in the response.
func parseAnalysis(response string) (*models.ExtractionResult, error) {
	jsonStr := firstJSONObject(response)
	if jsonStr == "" {
		return nil, Errf(CodeAnalysisParse, "no JSON object found in analysis response")
	}

	var payload analysisPayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		return nil, Errf(CodeAnalysisParse, "failed to decode analysis JSON: %w", err)
	}

	result := models.NewExtractionResult()
	result.GeneticMarkers = payload.GeneticMarkers
	if payload.Biomarkers != nil {
		result.Biomarkers = payload.Biomarkers
	}
	result.SourceCompany = payload.SourceCompany
	result.TestDate = payload.TestDate
	result.IsInterpretedReport = payload.IsInterpretedReport
	result.InterpretationSummary = payload.InterpretationSummary
	return result, nil
}

// firstJSONObject returns the first balanced {...} block in s, skipping
// braces inside JSON strings.
func firstJSONObject(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if start >= 0 {
				inString = true
			}
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start >= 0 {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

// preflightPDF validates and optimizes the PDF bytes before the AI call and
// reports the page count. Validation is relaxed; real-world lab reports are
// frequently produced by sloppy generators.
func preflightPDF(document []byte) ([]byte, int, error) {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed

	var optimized bytes.Buffer
	if err := api.Optimize(bytes.NewReader(document), &optimized, cfg); err != nil {
		return nil, 0, fmt.Errorf("failed to validate/optimize PDF: %w", err)
	}

	pageCount, err := api.PageCount(bytes.NewReader(optimized.Bytes()), cfg)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return optimized.Bytes(), pageCount, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
