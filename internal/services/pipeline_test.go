package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsupp/healthdataflow/internal/models"
)

// fakeStore is an in-memory RecordStore capturing every write.
type fakeStore struct {
	uploads map[string]*models.UploadedFile
	updates map[string][]map[string]interface{}

	genetic       []*models.GeneticRecord
	lab           []*models.LabRecord
	geneticCompat []*models.GeneticMarkersRecord
	labCompat     []*models.LabBiomarkersRecord

	getErr           error
	insertGeneticErr error
	insertLabErr     error
	insertCompatErr  error
}

func newFakeStore(uploads ...*models.UploadedFile) *fakeStore {
	s := &fakeStore{
		uploads: make(map[string]*models.UploadedFile),
		updates: make(map[string][]map[string]interface{}),
	}
	for _, u := range uploads {
		s.uploads[u.ID] = u
	}
	return s
}

func (s *fakeStore) GetUpload(_ context.Context, fileID string) (*models.UploadedFile, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.uploads[fileID], nil
}

func (s *fakeStore) FindUploadByStoragePath(_ context.Context, storagePath string) (*models.UploadedFile, error) {
	for _, u := range s.uploads {
		if u.StoragePath == storagePath {
			return u, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) UploadExists(_ context.Context, fileID string) (bool, error) {
	_, ok := s.uploads[fileID]
	return ok, nil
}

func (s *fakeStore) UpdateUpload(_ context.Context, fileID string, fields map[string]interface{}) error {
	s.updates[fileID] = append(s.updates[fileID], fields)
	if u, ok := s.uploads[fileID]; ok {
		if status, ok := fields["status"].(string); ok {
			u.Status = status
		}
	}
	return nil
}

func (s *fakeStore) InsertGeneticData(_ context.Context, rec *models.GeneticRecord) error {
	if s.insertGeneticErr != nil {
		return s.insertGeneticErr
	}
	s.genetic = append(s.genetic, rec)
	return nil
}

func (s *fakeStore) InsertLabData(_ context.Context, rec *models.LabRecord) error {
	if s.insertLabErr != nil {
		return s.insertLabErr
	}
	s.lab = append(s.lab, rec)
	return nil
}

func (s *fakeStore) InsertGeneticMarkers(_ context.Context, rec *models.GeneticMarkersRecord) error {
	if s.insertCompatErr != nil {
		return s.insertCompatErr
	}
	s.geneticCompat = append(s.geneticCompat, rec)
	return nil
}

func (s *fakeStore) InsertLabBiomarkers(_ context.Context, rec *models.LabBiomarkersRecord) error {
	if s.insertCompatErr != nil {
		return s.insertCompatErr
	}
	s.labCompat = append(s.labCompat, rec)
	return nil
}

// fakeObjects serves objects from a map and reports missing ones the way the
// real client does.
type fakeObjects struct {
	objects map[string][]byte
}

func (o *fakeObjects) Download(_ context.Context, objectPath string) ([]byte, error) {
	data, ok := o.objects[objectPath]
	if !ok {
		return nil, fmt.Errorf("object %q: %w", objectPath, storage.ErrObjectNotExist)
	}
	return data, nil
}

type fakeNotifier struct {
	calls   int
	content string
}

func (n *fakeNotifier) Notify(_ context.Context, _, _, content string) error {
	n.calls++
	n.content = content
	return nil
}

func newTestPipeline(records RecordStore, objects ObjectStore) *PipelineFunction {
	return &PipelineFunction{records: records, objects: objects}
}

func inlineUpload(id, userID, fileType, content string) *models.UploadedFile {
	return &models.UploadedFile{
		ID:       id,
		UserID:   userID,
		FileType: fileType,
		ParsedData: map[string]interface{}{
			"content": content,
		},
	}
}

func TestProcessRequiresIdentifiers(t *testing.T) {
	f := newTestPipeline(newFakeStore(), nil)

	for _, req := range []*models.ParseRequest{
		nil,
		{FileID: "f1"},
		{UserID: "u1"},
	} {
		_, err := f.Process(context.Background(), req)
		require.Error(t, err)
		svcErr, ok := AsError(err)
		require.True(t, ok)
		assert.Equal(t, CodeBadRequest, svcErr.Code)
	}
}

func TestProcessRejectsForeignUpload(t *testing.T) {
	store := newFakeStore(inlineUpload("f1", "owner", "csv", "rsid,genotype\nrs1801133,CT\n"))
	f := newTestPipeline(store, nil)

	_, err := f.Process(context.Background(), &models.ParseRequest{FileID: "f1", UserID: "intruder"})
	require.Error(t, err)
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeNotFound, svcErr.Code)

	// The ownership check fires before any state transition.
	assert.Empty(t, store.updates["f1"])
}

func TestProcessUnknownUpload(t *testing.T) {
	f := newTestPipeline(newFakeStore(), nil)

	_, err := f.Process(context.Background(), &models.ParseRequest{FileID: "missing", UserID: "u1"})
	require.Error(t, err)
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeNotFound, svcErr.Code)
}

func TestProcessUnsupportedFileType(t *testing.T) {
	upload := inlineUpload("f1", "u1", "docx", "irrelevant")
	store := newFakeStore(upload)
	f := newTestPipeline(store, nil)

	_, err := f.Process(context.Background(), &models.ParseRequest{FileID: "f1", UserID: "u1"})
	require.Error(t, err)
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeUnsupportedType, svcErr.Code)

	assert.Equal(t, models.StatusFailed, upload.Status)
	lastUpdate := store.updates["f1"][len(store.updates["f1"])-1]
	assert.NotEmpty(t, lastUpdate["errorMessage"])
}

func TestProcessGeneticCSVEndToEnd(t *testing.T) {
	upload := inlineUpload("f1", "u1", "csv", "rsid,genotype\nrs1801133,CT\nrs429358,CT\nrs7412,CC\n")
	store := newFakeStore(upload)
	notifier := &fakeNotifier{}
	f := newTestPipeline(store, nil)
	f.notifier = notifier

	resp, err := f.Process(context.Background(), &models.ParseRequest{FileID: "f1", UserID: "u1"})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Results.GeneticMarkersStored)
	assert.Empty(t, resp.Results.Errors)
	assert.Equal(t, models.StatusCompleted, upload.Status)

	require.Len(t, store.genetic, 1)
	rec := store.genetic[0]
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, "CT", rec.SNPData["rs1801133"])
	assert.Equal(t, "E2/E3", rec.APOEVariant)
	assert.Equal(t, []string{"MTHFR", "APOE"}, rec.GenesCovered)

	require.Len(t, store.geneticCompat, 1)
	assert.Equal(t, "CT", store.geneticCompat[0].MTHFRC677T)

	assert.Equal(t, 1, notifier.calls)
	assert.NotEmpty(t, notifier.content)
}

func TestProcessLabTextEndToEnd(t *testing.T) {
	report := "Collected: 3/15/2024\n\nVitamin D: 22 ng/mL\nHemoglobin 14.2 g/dL\n"
	upload := inlineUpload("f1", "u1", "txt", report)
	store := newFakeStore(upload)
	f := newTestPipeline(store, nil)

	resp, err := f.Process(context.Background(), &models.ParseRequest{FileID: "f1", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, 2, resp.Results.BiomarkersStored)
	assert.Equal(t, 1, resp.Results.OutOfRangeCount)

	require.Len(t, store.lab, 1)
	rec := store.lab[0]
	assert.Equal(t, "2024-03-15", rec.TestDate)
	assert.InDelta(t, 22, rec.BiomarkerData["vitamin_d"], 1e-9)
	require.Len(t, rec.Flagged, 1)
	assert.Equal(t, "vitamin_d", rec.Flagged[0].Name)
	assert.Equal(t, "low", rec.Flagged[0].Status)
}

func TestProcessDownloadsFromStorage(t *testing.T) {
	upload := &models.UploadedFile{ID: "f1", UserID: "u1", FileType: "csv", StoragePath: "u1/f1.csv"}
	store := newFakeStore(upload)
	objects := &fakeObjects{objects: map[string][]byte{
		"u1/f1.csv": []byte("rsid,genotype\nrs4680,GG\n"),
	}}
	f := newTestPipeline(store, objects)

	resp, err := f.Process(context.Background(), &models.ParseRequest{FileID: "f1", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Results.GeneticMarkersStored)
}

func TestProcessMissingObject(t *testing.T) {
	upload := &models.UploadedFile{ID: "f1", UserID: "u1", FileType: "csv", StoragePath: "u1/gone.csv"}
	store := newFakeStore(upload)
	f := newTestPipeline(store, &fakeObjects{objects: map[string][]byte{}})

	_, err := f.Process(context.Background(), &models.ParseRequest{FileID: "f1", UserID: "u1"})
	require.Error(t, err)
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeNotFound, svcErr.Code)
	assert.Equal(t, models.StatusFailed, upload.Status)
}

func TestProcessFallsBackToTestContent(t *testing.T) {
	upload := &models.UploadedFile{ID: "f1", UserID: "u1", FileType: "txt"}
	store := newFakeStore(upload)
	f := newTestPipeline(store, nil)

	resp, err := f.Process(context.Background(), &models.ParseRequest{FileID: "f1", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, upload.Status)
	assert.Greater(t, resp.Results.BiomarkersStored, 0)
}

func TestProcessStoragePathSkipsHandledUploads(t *testing.T) {
	upload := &models.UploadedFile{ID: "f1", UserID: "u1", FileType: "csv", StoragePath: "u1/f1.csv", Status: models.StatusCompleted}
	store := newFakeStore(upload)
	f := newTestPipeline(store, nil)

	require.NoError(t, f.ProcessStoragePath(context.Background(), "u1/f1.csv"))
	assert.Empty(t, store.updates["f1"])

	require.NoError(t, f.ProcessStoragePath(context.Background(), "nobody/owns/this.csv"))
}

func TestStoreCompatibilityFailureIsWarning(t *testing.T) {
	store := newFakeStore(&models.UploadedFile{ID: "f1", UserID: "u1"})
	store.insertCompatErr = errors.New("schema mismatch")
	f := newTestPipeline(store, nil)

	result := models.NewExtractionResult()
	result.GeneticMarkers = []models.GeneticMarker{{RSID: "rs1801133", Genotype: "CT"}}

	results := f.storeExtractedData(context.Background(), slog.Default(), "u1", "f1", store.uploads["f1"], result)

	assert.Empty(t, results.Errors)
	assert.NotEmpty(t, results.Warnings)
	assert.Equal(t, 1, results.GeneticMarkersStored)
	require.Len(t, store.genetic, 1)
}

func TestStoreComprehensiveFailureIsError(t *testing.T) {
	store := newFakeStore(&models.UploadedFile{ID: "f1", UserID: "u1"})
	store.insertGeneticErr = errors.New("firestore unavailable")
	f := newTestPipeline(store, nil)

	result := models.NewExtractionResult()
	result.GeneticMarkers = []models.GeneticMarker{{RSID: "rs1801133", Genotype: "CT"}}

	results := f.storeExtractedData(context.Background(), slog.Default(), "u1", "f1", store.uploads["f1"], result)

	assert.NotEmpty(t, results.Errors)
	assert.Zero(t, results.GeneticMarkersStored)
	assert.Empty(t, store.geneticCompat)
}

func TestStoreSkipsInvalidGenotypes(t *testing.T) {
	store := newFakeStore(&models.UploadedFile{ID: "f1", UserID: "u1"})
	f := newTestPipeline(store, nil)

	result := models.NewExtractionResult()
	result.GeneticMarkers = []models.GeneticMarker{
		{RSID: "rs1801133", Genotype: "CT"},
		{RSID: "rs4680", Genotype: "ZZ"},
	}

	results := f.storeExtractedData(context.Background(), slog.Default(), "u1", "f1", store.uploads["f1"], result)

	assert.Equal(t, 1, results.GeneticMarkersStored)
	assert.NotEmpty(t, results.Warnings)
	require.Len(t, store.genetic, 1)
	assert.NotContains(t, store.genetic[0].SNPData, "rs4680")
}

func TestCompletedFieldsRecordsPageCount(t *testing.T) {
	result := models.NewExtractionResult()
	result.PageCount = 12

	fields := completedFields(result, "storage")
	assert.Equal(t, models.StatusCompleted, fields["status"])
	assert.Equal(t, 12, fields["pageCount"])

	// Text and archive uploads have no notion of pages; the field stays off
	// the update instead of writing a zero.
	result.PageCount = 0
	fields = completedFields(result, "storage")
	assert.NotContains(t, fields, "pageCount")
}

func TestRouteFor(t *testing.T) {
	assert.Equal(t, routeOCR, routeFor("pdf"))
	assert.Equal(t, routeOCR, routeFor("application/pdf"))
	assert.Equal(t, routeText, routeFor("csv"))
	assert.Equal(t, routeText, routeFor("text/plain"))
	assert.Equal(t, routeArchive, routeFor("application/zip"))
	assert.Equal(t, routeUnsupported, routeFor("docx"))
	assert.Equal(t, routeUnsupported, routeFor("unknown"))
}

func TestProcessPDFWithoutAICapability(t *testing.T) {
	upload := inlineUpload("f1", "u1", "pdf", "raw pdf bytes")
	store := newFakeStore(upload)
	f := newTestPipeline(store, nil)

	_, err := f.Process(context.Background(), &models.ParseRequest{FileID: "f1", UserID: "u1"})
	require.Error(t, err)
	svcErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeConfiguration, svcErr.Code)
	assert.Equal(t, models.StatusFailed, upload.Status)
}
