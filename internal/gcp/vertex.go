package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// --- OCR Model Prompts ---
const OCRSystemPrompt = "You are an OCR specialist for comprehensive medical documents. Your task is to transcribe every page of a document completely and verbatim. Accuracy, detail, and information preservation are of utmost importance."
const OCRUserPrompt = `This document may contain 1-100+ pages with BOTH genetic data AND extensive biomarker lab results.

Extract ALL text from ALL pages, including:
1. Genetic variant tables (MaxGen Labs, 23andMe, AncestryDNA, or other formats), e.g. "VDR-FOK rs2228570 ++ Homozygous AA A" or "rs1801133 1 11796321 CT".
2. Comprehensive lab biomarker panels: vitamins, minerals, metabolic markers, lipids, liver, kidney, CBC, thyroid, hormones, inflammation, specialty panels. A single report can span hundreds of rows across many pages.
3. Patient demographics, test dates, laboratory methodology, reference ranges, and source company identification.

Preserve all spacing, tables, and structure. Large comprehensive reports are expected to produce 20,000-100,000+ characters; extract everything rather than summarizing. Return the complete extracted text and nothing else.`

// --- Analysis Model Prompts ---
const AnalysisSystemPrompt = "You are a medical data extraction specialist. You analyze transcribed document text and return every genetic variant (SNP) and every biomarker lab result found, as strict JSON."
const AnalysisUserPrompt = `Analyze the provided text and extract every genetic variant and every biomarker lab result.

Biomarkers appear in formats such as "Vitamin D: 25.3 ng/mL", "Vitamin D    25.3    ng/mL    Normal", or table rows of Name | Value | Unit | Reference Range. Extract every value found with its unit; comprehensive reports can carry 50-200+ biomarkers.

Genetic variants appear in formats such as "VDR-FOK rs2228570 ++ Homozygous AA A" (extract rs2228570 and AA), "rs1801133: CT", "rs1801133 1 11796321 CT", or "MTHFR C677T: CT". Extract every rsid/genotype pair found.

Also determine the source company, the test date, and whether the document is an interpreted narrative report rather than raw data.

Return EXACTLY this JSON shape and nothing else:
{
  "is_interpreted_report": false,
  "interpretation_summary": null,
  "genetic_markers": [
    {"rsid": "rs1801133", "genotype": "CT"}
  ],
  "biomarkers": {
    "vitamin_d": "25 ng/mL",
    "hemoglobin": "14.5 g/dL"
  },
  "source_company": "company name or null",
  "test_date": "date or null"
}`

// VertexClient holds the pre-configured generative models for the pipeline:
// one for verbatim transcription, one for structured-JSON analysis.
type VertexClient struct {
	ocrModel      *genai.GenerativeModel
	analysisModel *genai.GenerativeModel
	baseClient    *genai.Client
}

// NewVertexClient creates a new client holding both models.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	// --- Configure the OCR model ---
	ocrModel := baseClient.GenerativeModel("gemini-1.5-pro")
	ocrModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(OCRSystemPrompt)},
	}
	ocrModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.1),
	}

	// --- Configure the analysis model ---
	analysisModel := baseClient.GenerativeModel("gemini-1.5-pro")
	analysisModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(AnalysisSystemPrompt)},
	}
	analysisModel.GenerationConfig = genai.GenerationConfig{
		// Force JSON output. This is a critical setting for this model.
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}
	analysisModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{
		ocrModel:      ocrModel,
		analysisModel: analysisModel,
		baseClient:    baseClient,
	}, nil
}

// Transcribe submits raw document bytes to the OCR model and returns the
// recovered text.
func (c *VertexClient) Transcribe(ctx context.Context, document []byte) (string, error) {
	filePart := genai.Blob{
		MIMEType: "application/pdf",
		Data:     document,
	}
	resp, err := c.ocrModel.GenerateContent(ctx, filePart, genai.Text(OCRUserPrompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate transcription from gemini: %w", err)
	}
	return extractText(resp), nil
}

// Analyze submits transcribed text to the analysis model and returns the raw
// JSON-bearing response.
func (c *VertexClient) Analyze(ctx context.Context, text string) (string, error) {
	prompt := genai.Text(AnalysisUserPrompt + "\n\nExtracted text to analyze:\n" + text)
	resp, err := c.analysisModel.GenerateContent(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate analysis from gemini: %w", err)
	}
	return extractText(resp), nil
}

// extractText robustly gets the raw text content from a model response,
// concatenating parts and trimming markdown fences.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}

	var content strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			content.WriteString(string(txt))
		}
	}

	contentStr := strings.TrimSpace(content.String())
	contentStr = strings.TrimPrefix(contentStr, "```json")
	contentStr = strings.TrimPrefix(contentStr, "```")
	contentStr = strings.TrimSuffix(contentStr, "```")
	return strings.TrimSpace(contentStr)
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
