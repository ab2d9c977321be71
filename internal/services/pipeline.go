package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/fsupp/healthdataflow/internal/gcp"
	"github.com/fsupp/healthdataflow/internal/models"
)

// RecordStore is the relational-record collaborator: upload lookups, status
// transitions, and the four destination collections.
type RecordStore interface {
	GetUpload(ctx context.Context, fileID string) (*models.UploadedFile, error)
	FindUploadByStoragePath(ctx context.Context, storagePath string) (*models.UploadedFile, error)
	UploadExists(ctx context.Context, fileID string) (bool, error)
	UpdateUpload(ctx context.Context, fileID string, fields map[string]interface{}) error
	InsertGeneticData(ctx context.Context, rec *models.GeneticRecord) error
	InsertLabData(ctx context.Context, rec *models.LabRecord) error
	InsertGeneticMarkers(ctx context.Context, rec *models.GeneticMarkersRecord) error
	InsertLabBiomarkers(ctx context.Context, rec *models.LabBiomarkersRecord) error
}

// ObjectStore resolves a storage locator to bytes.
type ObjectStore interface {
	Download(ctx context.Context, objectPath string) ([]byte, error)
}

// Notifier hands parsed content to the downstream embedding/indexing service.
type Notifier interface {
	Notify(ctx context.Context, userID, sourceID, content string) error
}

// testContent is the deliberate demo fallback used when an upload record has
// neither cached content nor a storage locator.
const testContent = `Patient: Test User
Date: 2024-01-15

Lab Results:
- Vitamin D: 35 ng/mL
- Hemoglobin: 14.2 g/dL
- Total Cholesterol: 180 mg/dL

Notes:
No storage path provided - using test data for processing demonstration.`

// embeddingContentLimit bounds the text handed to the embedding workflow.
const embeddingContentLimit = 10000

// PipelineConfig holds all configuration for the parse pipeline.
type PipelineConfig struct {
	ProjectID           string
	VertexAIRegion      string
	UploadsBucket       string
	RawTextBucket       string
	WorkflowLocation    string
	EmbeddingWorkflowID string
	OCRGate             OCRGateConfig
}

// PipelineFunction holds the dependencies for one parse invocation.
type PipelineFunction struct {
	records   RecordStore
	objects   ObjectStore
	ocr       *OCRStage
	notifier  Notifier
	rawBucket *storage.BucketHandle
	config    PipelineConfig
}

// loadPipelineConfig loads and validates the environment for this service.
func loadPipelineConfig() (*PipelineConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	uploadsBucket := gcp.GetEnv("UPLOADS_BUCKET", "")
	if uploadsBucket == "" {
		return nil, fmt.Errorf("UPLOADS_BUCKET environment variable must be set")
	}

	return &PipelineConfig{
		ProjectID:           projectID,
		VertexAIRegion:      gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		UploadsBucket:       uploadsBucket,
		RawTextBucket:       gcp.GetEnv("RAW_TEXT_BUCKET", ""),
		WorkflowLocation:    gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		EmbeddingWorkflowID: gcp.GetEnv("EMBEDDING_WORKFLOW_ID", "embedding-worker"),
		OCRGate:             loadOCRGateConfig(),
	}, nil
}

// NewPipeline creates a PipelineFunction with live GCP collaborators.
func NewPipeline(ctx context.Context) (*PipelineFunction, error) {
	config, err := loadPipelineConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	records := gcp.NewRecordStore(firestoreClient, gcp.RecordStoreConfig{
		UploadsCollection:        gcp.GetEnv("UPLOADS_COLLECTION", "user_uploads"),
		GeneticDataCollection:    gcp.GetEnv("GENETIC_DATA_COLLECTION", "genetic_data"),
		LabDataCollection:        gcp.GetEnv("LAB_DATA_COLLECTION", "lab_data"),
		GeneticMarkersCollection: gcp.GetEnv("GENETIC_MARKERS_COLLECTION", "genetic_markers"),
		LabBiomarkersCollection:  gcp.GetEnv("LAB_BIOMARKERS_COLLECTION", "lab_biomarkers"),
	})

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	f := &PipelineFunction{
		records: records,
		objects: gcp.NewObjectStore(storageClient, config.UploadsBucket),
		config:  *config,
	}
	if config.RawTextBucket != "" {
		f.rawBucket = storageClient.Bucket(config.RawTextBucket)
	}

	// An empty region deliberately disables the AI capability; PDF uploads
	// then fail with a configuration error instead of a broken client.
	if config.VertexAIRegion != "" {
		vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion)
		if err != nil {
			return nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		f.ocr = NewOCRStage(vertexClient, config.OCRGate)
	}

	notifier, err := gcp.NewEmbeddingNotifier(ctx, config.ProjectID, config.WorkflowLocation, config.EmbeddingWorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding notifier: %w", err)
	}
	f.notifier = notifier

	slog.Info("Parse pipeline initialized.", "uploadsBucket", config.UploadsBucket, "aiEnabled", f.ocr != nil)
	return f, nil
}

// Process handles one parse invocation end to end: dispatch, extraction,
// normalization, persistence, and the terminal status update.
func (f *PipelineFunction) Process(ctx context.Context, req *models.ParseRequest) (*models.ParseResponse, error) {
	if req == nil || req.FileID == "" || req.UserID == "" {
		return nil, Errf(CodeBadRequest, "file_id and user_id are required")
	}
	logCtx := slog.With("fileId", req.FileID, "userId", req.UserID)

	upload, err := f.records.GetUpload(ctx, req.FileID)
	if err != nil {
		return nil, Errf(CodeStorage, "failed to look up upload record: %w", err)
	}
	if upload == nil || upload.UserID != req.UserID {
		return nil, Errf(CodeNotFound, "file record does not exist or access denied")
	}

	resp, err := f.process(ctx, logCtx, req, upload)
	if err != nil {
		f.failUpload(ctx, logCtx, req.FileID, err)
		return nil, err
	}
	return resp, nil
}

// process runs everything after the ownership check. Any error it returns has
// already been classified; the caller owns the terminal failed-status update.
func (f *PipelineFunction) process(ctx context.Context, logCtx *slog.Logger, req *models.ParseRequest, upload *models.UploadedFile) (*models.ParseResponse, error) {
	if err := f.records.UpdateUpload(ctx, req.FileID, map[string]interface{}{
		"status": models.StatusProcessing,
	}); err != nil {
		return nil, Errf(CodeStorage, "failed to mark upload as processing: %w", err)
	}

	data, source, err := f.resolveBytes(ctx, logCtx, upload)
	if err != nil {
		return nil, err
	}
	fileType := normalizeFileType(upload)
	logCtx.Info("Dispatching upload.", "fileType", fileType, "source", source, "sizeBytes", len(data))

	var result *models.ExtractionResult
	switch routeFor(fileType) {
	case routeOCR:
		if f.ocr == nil {
			return nil, Errf(CodeConfiguration, "PDF processing requires a configured AI capability")
		}
		result, err = f.ocr.Process(ctx, data)
	case routeText:
		result = ParseText(string(data), fileType)
	case routeArchive:
		result, err = ParseArchive(data)
	default:
		return nil, Errf(CodeUnsupportedType, "file type %q is not supported; supported types: PDF, CSV, TXT, ZIP", fileType)
	}
	if err != nil {
		return nil, err
	}

	results := f.storeExtractedData(ctx, logCtx, req.UserID, req.FileID, upload, result)
	if len(results.Errors) > 0 {
		return nil, Errf(CodeStorage, "%s", strings.Join(results.Errors, "; "))
	}

	if err := f.records.UpdateUpload(ctx, req.FileID, completedFields(result, source)); err != nil {
		return nil, Errf(CodeStorage, "failed to mark upload as completed: %w", err)
	}

	f.saveRawTextSnapshot(ctx, logCtx, req.FileID, result.RawText)
	f.notifyEmbedding(ctx, logCtx, req.UserID, req.FileID, result.RawText)

	logCtx.Info("Processing completed.",
		"geneticMarkers", len(result.GeneticMarkers),
		"biomarkers", len(result.Biomarkers),
		"outOfRange", results.OutOfRangeCount,
		"warnings", len(results.Warnings),
	)
	return &models.ParseResponse{
		Success: true,
		FileID:  req.FileID,
		Results: results,
		Summary: &models.ParseSummary{
			GeneticMarkersFound: len(result.GeneticMarkers),
			BiomarkersFound:     len(result.Biomarkers),
			SourceCompany:       result.SourceCompany,
			TestDate:            result.TestDate,
			IsInterpretedReport: result.IsInterpretedReport,
		},
	}, nil
}

// ProcessStoragePath resolves an upload record from its object path and runs
// the pipeline. Used by the storage-triggered entry point; objects with no
// matching record are skipped cleanly.
func (f *PipelineFunction) ProcessStoragePath(ctx context.Context, storagePath string) error {
	upload, err := f.records.FindUploadByStoragePath(ctx, storagePath)
	if err != nil {
		return err
	}
	if upload == nil {
		slog.Info("No upload record references object. Skipping.", "storagePath", storagePath)
		return nil
	}
	if upload.Status != models.StatusPending && upload.Status != "" {
		slog.Info("Upload already handled. Skipping.", "fileId", upload.ID, "status", upload.Status)
		return nil
	}

	_, err = f.Process(ctx, &models.ParseRequest{FileID: upload.ID, UserID: upload.UserID})
	return err
}

// resolveBytes resolves the upload to raw bytes: cached inline content first,
// then the storage locator, then the synthetic demo fallback.
func (f *PipelineFunction) resolveBytes(ctx context.Context, logCtx *slog.Logger, upload *models.UploadedFile) ([]byte, string, error) {
	if content, ok := upload.InlineContent(); ok {
		logCtx.Info("Using cached inline content.")
		return []byte(content), "parsed_data", nil
	}

	if upload.StoragePath == "" {
		logCtx.Warn("No storage path on upload record. Using synthetic test content.")
		return []byte(testContent), "test_data", nil
	}

	data, err := f.objects.Download(ctx, upload.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, "", Errf(CodeNotFound, "file not found in storage: %w", err)
		}
		return nil, "", Errf(CodeStorage, "storage download failed: %w", err)
	}
	return data, "storage", nil
}

// completedFields builds the terminal completed-status update. The page count
// is only known for PDF uploads; zero means the stage had no notion of pages.
func completedFields(result *models.ExtractionResult, source string) map[string]interface{} {
	fields := map[string]interface{}{
		"status": models.StatusCompleted,
		"parsedData": map[string]interface{}{
			"genetic_markers_count": len(result.GeneticMarkers),
			"biomarkers_count":      len(result.Biomarkers),
			"source_company":        result.SourceCompany,
			"test_date":             result.TestDate,
			"is_interpreted":        result.IsInterpretedReport,
			"processing_source":     source,
		},
	}
	if result.PageCount > 0 {
		fields["pageCount"] = result.PageCount
	}
	return fields
}

// failUpload flips the record to failed with the captured message. A failure
// here is logged but never masks the original error.
func (f *PipelineFunction) failUpload(ctx context.Context, logCtx *slog.Logger, fileID string, cause error) {
	if err := f.records.UpdateUpload(ctx, fileID, map[string]interface{}{
		"status":       models.StatusFailed,
		"errorMessage": cause.Error(),
	}); err != nil {
		logCtx.Error("CRITICAL: Failed to update upload status to failed after a processing error.", "updateError", err, "originalError", cause)
	}
}

// saveRawTextSnapshot writes the bounded raw-text snapshot for audit use.
// Best-effort: a failure is logged, never propagated.
func (f *PipelineFunction) saveRawTextSnapshot(ctx context.Context, logCtx *slog.Logger, fileID, rawText string) {
	if f.rawBucket == nil || rawText == "" {
		return
	}
	objectName := fmt.Sprintf("%s/raw.txt", fileID)
	if err := gcp.SaveToGCSAtomically(ctx, f.rawBucket, objectName, rawText); err != nil {
		logCtx.Warn("Failed to save raw text snapshot.", "error", err, "object", objectName)
	}
}

// notifyEmbedding triggers downstream embedding generation. Best-effort: a
// failure is logged, never propagated.
func (f *PipelineFunction) notifyEmbedding(ctx context.Context, logCtx *slog.Logger, userID, fileID, rawText string) {
	if f.notifier == nil || rawText == "" {
		return
	}
	content := rawText
	if len(content) > embeddingContentLimit {
		content = content[:embeddingContentLimit]
	}
	if err := f.notifier.Notify(ctx, userID, fileID, content); err != nil {
		logCtx.Warn("Embedding notification failed.", "error", err)
	}
}

type route int

const (
	routeUnsupported route = iota
	routeOCR
	routeText
	routeArchive
)

// normalizeFileType prefers the declared MIME type over the coarse file type.
func normalizeFileType(upload *models.UploadedFile) string {
	if upload.MimeType != "" {
		return strings.ToLower(upload.MimeType)
	}
	if upload.FileType != "" {
		return strings.ToLower(upload.FileType)
	}
	return "unknown"
}

// routeFor selects a parsing strategy from the normalized type string.
func routeFor(fileType string) route {
	switch {
	case fileType == "pdf" || fileType == "application/pdf":
		return routeOCR
	case fileType == "csv" || fileType == "txt" || fileType == "text/csv" || strings.HasPrefix(fileType, "text/"):
		return routeText
	case fileType == "zip" || fileType == "application/zip":
		return routeArchive
	default:
		return routeUnsupported
	}
}
