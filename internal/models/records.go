package models

import "time"

// Persisted views of one extraction result. Each upload produces up to four
// rows: a comprehensive record per data family (genetic_data, lab_data) that
// is the source of truth, and a flattened compatibility record per family
// (genetic_markers, lab_biomarkers) for schema-typed downstream queries.

// GeneticRecord is the comprehensive genetic row for one upload.
type GeneticRecord struct {
	UserID        string            `firestore:"userId"`
	FileID        string            `firestore:"fileId"`
	FileName      string            `firestore:"fileName,omitempty"`
	SourceCompany string            `firestore:"sourceCompany,omitempty"`
	SNPData       map[string]string `firestore:"snpData"`
	SNPCount      int               `firestore:"snpCount"`
	GenesCovered  []string          `firestore:"genesCovered,omitempty"`
	APOEVariant   string            `firestore:"apoeVariant,omitempty"`
	IsInterpreted bool              `firestore:"isInterpreted"`
	CreatedAt     time.Time         `firestore:"createdAt"`
}

// GeneticMarkersRecord is the flattened compatibility row. The named fields
// cover the variants downstream analysis queries directly.
type GeneticMarkersRecord struct {
	UserID        string            `firestore:"userId"`
	FileID        string            `firestore:"fileId"`
	SNPData       map[string]string `firestore:"snpData"`
	SNPCount      int               `firestore:"snpCount"`
	SourceCompany string            `firestore:"sourceCompany,omitempty"`
	MTHFRC677T    string            `firestore:"mthfrC677t,omitempty"`
	MTHFRA1298C   string            `firestore:"mthfrA1298c,omitempty"`
	APOEVariant   string            `firestore:"apoeVariant,omitempty"`
	RS1801133     string            `firestore:"rs1801133,omitempty"`
	RS1801131     string            `firestore:"rs1801131,omitempty"`
	RS429358      string            `firestore:"rs429358,omitempty"`
	RS7412        string            `firestore:"rs7412,omitempty"`
	RS2228570     string            `firestore:"rs2228570,omitempty"`
	RS1544410     string            `firestore:"rs1544410,omitempty"`
	RS4680        string            `firestore:"rs4680,omitempty"`
	CreatedAt     time.Time         `firestore:"createdAt"`
}

// FlaggedBiomarker is one out-of-range value with its classification.
type FlaggedBiomarker struct {
	Name           string  `firestore:"name" json:"name"`
	Value          float64 `firestore:"value" json:"value"`
	Unit           string  `firestore:"unit" json:"unit"`
	Status         string  `firestore:"status" json:"status"`
	Severity       string  `firestore:"severity" json:"severity"`
	ReferenceRange string  `firestore:"referenceRange" json:"reference_range"`
}

// LabRecord is the comprehensive biomarker row for one upload.
type LabRecord struct {
	UserID         string             `firestore:"userId"`
	FileID         string             `firestore:"fileId"`
	FileName       string             `firestore:"fileName,omitempty"`
	LabName        string             `firestore:"labName,omitempty"`
	TestDate       string             `firestore:"testDate,omitempty"`
	BiomarkerData  map[string]float64 `firestore:"biomarkerData"`
	BiomarkerCount int                `firestore:"biomarkerCount"`
	Flagged        []FlaggedBiomarker `firestore:"flaggedBiomarkers,omitempty"`
	IsInterpreted  bool               `firestore:"isInterpreted"`
	CreatedAt      time.Time          `firestore:"createdAt"`
}

// LabBiomarkersRecord is the flattened compatibility row for biomarkers.
type LabBiomarkersRecord struct {
	UserID         string             `firestore:"userId"`
	FileID         string             `firestore:"fileId"`
	BiomarkerData  map[string]float64 `firestore:"biomarkerData"`
	BiomarkerCount int                `firestore:"biomarkerCount"`
	CreatedAt      time.Time          `firestore:"createdAt"`
}
