package models

// These structs define the JSON payloads for the parse-health-data HTTP
// function and the summary/accounting structures it returns.

// ParseRequest is the input for the parse-health-data function.
type ParseRequest struct {
	FileID string `json:"file_id"`
	UserID string `json:"user_id"`
}

// StorageResults accounts for what the persistence step actually wrote.
// Warnings accumulate without changing overall success.
type StorageResults struct {
	GeneticMarkersStored int      `json:"genetic_markers_stored"`
	BiomarkersStored     int      `json:"biomarkers_stored"`
	OutOfRangeCount      int      `json:"out_of_range_count"`
	Errors               []string `json:"errors"`
	Warnings             []string `json:"warnings"`
}

// ParseSummary describes what was found in the document.
type ParseSummary struct {
	GeneticMarkersFound int    `json:"genetic_markers_found"`
	BiomarkersFound     int    `json:"biomarkers_found"`
	SourceCompany       string `json:"source_company,omitempty"`
	TestDate            string `json:"test_date,omitempty"`
	IsInterpretedReport bool   `json:"is_interpreted_report"`
}

// ParseResponse is the success envelope of the parse-health-data function.
type ParseResponse struct {
	Success bool            `json:"success"`
	FileID  string          `json:"file_id"`
	Results *StorageResults `json:"results"`
	Summary *ParseSummary   `json:"summary"`
}

// ErrorResponse is the error envelope of the parse-health-data function.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	FileID  string `json:"file_id,omitempty"`
}
