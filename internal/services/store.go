package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsupp/healthdataflow/internal/models"
	"github.com/fsupp/healthdataflow/internal/reference"
)

// storeExtractedData persists one extraction result. Each data family writes
// a comprehensive record first, then a flattened compatibility record. A
// comprehensive-write failure is an error; a compatibility-write failure is
// only a warning because the source of truth already landed.
func (f *PipelineFunction) storeExtractedData(ctx context.Context, logCtx *slog.Logger, userID, fileID string, upload *models.UploadedFile, result *models.ExtractionResult) *models.StorageResults {
	results := &models.StorageResults{
		Errors:   []string{},
		Warnings: []string{},
	}

	if len(result.GeneticMarkers) > 0 {
		f.storeGeneticFamily(ctx, logCtx, userID, fileID, upload, result, results)
	}
	if len(result.Biomarkers) > 0 {
		f.storeLabFamily(ctx, logCtx, userID, fileID, upload, result, results)
	}
	return results
}

func (f *PipelineFunction) storeGeneticFamily(ctx context.Context, logCtx *slog.Logger, userID, fileID string, upload *models.UploadedFile, result *models.ExtractionResult, results *models.StorageResults) {
	snpData := make(map[string]string, len(result.GeneticMarkers))
	for _, marker := range result.GeneticMarkers {
		genotype, ok := reference.CoerceGenotype(marker.RSID, marker.Genotype)
		if !ok {
			results.Warnings = append(results.Warnings, fmt.Sprintf("skipped %s: unrecognized genotype %q", marker.RSID, marker.Genotype))
			continue
		}
		snpData[marker.RSID] = genotype
	}
	if len(snpData) == 0 {
		results.Warnings = append(results.Warnings, "no genetic markers survived genotype validation")
		return
	}

	apoeVariant := reference.DeriveAPOE(snpData["rs429358"], snpData["rs7412"])

	record := &models.GeneticRecord{
		UserID:        userID,
		FileID:        fileID,
		FileName:      upload.FileName,
		SourceCompany: result.SourceCompany,
		SNPData:       snpData,
		SNPCount:      len(snpData),
		GenesCovered:  reference.CoveredGenes(snpData),
		APOEVariant:   apoeVariant,
		IsInterpreted: result.IsInterpretedReport,
	}
	if err := f.records.InsertGeneticData(ctx, record); err != nil {
		results.Errors = append(results.Errors, fmt.Sprintf("storing genetic data: %v", err))
		return
	}
	results.GeneticMarkersStored = len(snpData)
	logCtx.Info("Stored genetic data.", "snpCount", len(snpData), "apoeVariant", apoeVariant)

	// The compatibility row references the upload by id, so confirm the
	// upload record still exists before writing it.
	exists, err := f.records.UploadExists(ctx, fileID)
	if err != nil || !exists {
		results.Warnings = append(results.Warnings, "skipped genetic compatibility record: upload record not found")
		return
	}
	compat := &models.GeneticMarkersRecord{
		UserID:        userID,
		FileID:        fileID,
		SNPData:       snpData,
		SNPCount:      len(snpData),
		SourceCompany: result.SourceCompany,
		MTHFRC677T:    snpData["rs1801133"],
		MTHFRA1298C:   snpData["rs1801131"],
		APOEVariant:   apoeVariant,
		RS1801133:     snpData["rs1801133"],
		RS1801131:     snpData["rs1801131"],
		RS429358:      snpData["rs429358"],
		RS7412:        snpData["rs7412"],
		RS2228570:     snpData["rs2228570"],
		RS1544410:     snpData["rs1544410"],
		RS4680:        snpData["rs4680"],
	}
	if err := f.records.InsertGeneticMarkers(ctx, compat); err != nil {
		results.Warnings = append(results.Warnings, fmt.Sprintf("storing genetic compatibility record: %v", err))
	}
}

func (f *PipelineFunction) storeLabFamily(ctx context.Context, logCtx *slog.Logger, userID, fileID string, upload *models.UploadedFile, result *models.ExtractionResult, results *models.StorageResults) {
	biomarkerData := make(map[string]float64, len(result.Biomarkers))
	var flagged []models.FlaggedBiomarker

	for rawName, rawValue := range result.Biomarkers {
		name, ok := reference.NormalizeName(rawName)
		if !ok {
			results.Warnings = append(results.Warnings, fmt.Sprintf("skipped unrecognized biomarker %q", rawName))
			continue
		}
		value, ok := reference.ExtractNumericValue(rawValue)
		if !ok {
			results.Warnings = append(results.Warnings, fmt.Sprintf("skipped biomarker %s: non-numeric value %q", name, rawValue))
			continue
		}
		biomarkerData[name] = value

		bm := reference.Catalog[name]
		if status := bm.RangeStatus(value); status != reference.StatusOptimal {
			flagged = append(flagged, models.FlaggedBiomarker{
				Name:           name,
				Value:          value,
				Unit:           bm.Unit,
				Status:         status,
				Severity:       bm.Severity(value),
				ReferenceRange: bm.ReferenceRange(),
			})
		}
	}
	if len(biomarkerData) == 0 {
		results.Warnings = append(results.Warnings, "no biomarkers survived validation")
		return
	}

	record := &models.LabRecord{
		UserID:         userID,
		FileID:         fileID,
		FileName:       upload.FileName,
		LabName:        result.SourceCompany,
		TestDate:       result.TestDate,
		BiomarkerData:  biomarkerData,
		BiomarkerCount: len(biomarkerData),
		Flagged:        flagged,
		IsInterpreted:  result.IsInterpretedReport,
	}
	if err := f.records.InsertLabData(ctx, record); err != nil {
		results.Errors = append(results.Errors, fmt.Sprintf("storing lab data: %v", err))
		return
	}
	results.BiomarkersStored = len(biomarkerData)
	results.OutOfRangeCount = len(flagged)
	logCtx.Info("Stored lab data.", "biomarkerCount", len(biomarkerData), "outOfRange", len(flagged))

	exists, err := f.records.UploadExists(ctx, fileID)
	if err != nil || !exists {
		results.Warnings = append(results.Warnings, "skipped lab compatibility record: upload record not found")
		return
	}
	compat := &models.LabBiomarkersRecord{
		UserID:         userID,
		FileID:         fileID,
		BiomarkerData:  biomarkerData,
		BiomarkerCount: len(biomarkerData),
	}
	if err := f.records.InsertLabBiomarkers(ctx, compat); err != nil {
		results.Warnings = append(results.Warnings, fmt.Sprintf("storing lab compatibility record: %v", err))
	}
}
