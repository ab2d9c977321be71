package models

// GeneticMarker is one observed variant, e.g. rsid "rs1801133" with genotype "CT".
type GeneticMarker struct {
	RSID     string `json:"rsid"`
	Genotype string `json:"genotype"`
}

// ExtractionResult is the shared intermediate structure every pipeline stage
// communicates through. It is created fresh per invocation, fully consumed by
// the persistence step, then discarded.
type ExtractionResult struct {
	GeneticMarkers        []GeneticMarker   `json:"genetic_markers"`
	Biomarkers            map[string]string `json:"biomarkers"`
	RawText               string            `json:"raw_text"`
	PageCount             int               `json:"page_count,omitempty"`
	SourceCompany         string            `json:"source_company"`
	TestDate              string            `json:"test_date"`
	IsInterpretedReport   bool              `json:"is_interpreted_report"`
	InterpretationSummary string            `json:"interpretation_summary"`
}

// NewExtractionResult returns an empty result with the biomarker map initialized.
func NewExtractionResult() *ExtractionResult {
	return &ExtractionResult{
		GeneticMarkers: []GeneticMarker{},
		Biomarkers:     map[string]string{},
	}
}
