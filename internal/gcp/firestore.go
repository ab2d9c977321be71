package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fsupp/healthdataflow/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given
// project ID. It centralizes client creation for all services.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// RecordStoreConfig names the collections the pipeline reads and writes.
type RecordStoreConfig struct {
	UploadsCollection        string
	GeneticDataCollection    string
	LabDataCollection        string
	GeneticMarkersCollection string
	LabBiomarkersCollection  string
}

// RecordStore is the Firestore-backed record store: the canonical uploads
// collection plus the four destination collections for extraction results.
type RecordStore struct {
	client *firestore.Client
	config RecordStoreConfig
}

// NewRecordStore wraps an existing Firestore client.
func NewRecordStore(client *firestore.Client, config RecordStoreConfig) *RecordStore {
	return &RecordStore{client: client, config: config}
}

// GetUpload fetches one upload record by id. A missing document returns
// (nil, nil) so callers can map absence to their own error taxonomy.
func (s *RecordStore) GetUpload(ctx context.Context, fileID string) (*models.UploadedFile, error) {
	snap, err := s.client.Collection(s.config.UploadsCollection).Doc(fileID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch upload %s: %w", fileID, err)
	}

	var upload models.UploadedFile
	if err := snap.DataTo(&upload); err != nil {
		return nil, fmt.Errorf("failed to decode upload %s: %w", fileID, err)
	}
	upload.ID = snap.Ref.ID
	return &upload, nil
}

// FindUploadByStoragePath resolves an upload record from its object path, for
// the storage-triggered entry point. Returns (nil, nil) when no record
// references the path.
func (s *RecordStore) FindUploadByStoragePath(ctx context.Context, storagePath string) (*models.UploadedFile, error) {
	docs, err := s.client.Collection(s.config.UploadsCollection).
		Where("storagePath", "==", storagePath).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads by storage path: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	var upload models.UploadedFile
	if err := docs[0].DataTo(&upload); err != nil {
		return nil, fmt.Errorf("failed to decode upload %s: %w", docs[0].Ref.ID, err)
	}
	upload.ID = docs[0].Ref.ID
	return &upload, nil
}

// UploadExists checks that the upload document is still present. The
// compatibility collections logically reference user_uploads, so the pipeline
// verifies existence itself before writing them.
func (s *RecordStore) UploadExists(ctx context.Context, fileID string) (bool, error) {
	_, err := s.client.Collection(s.config.UploadsCollection).Doc(fileID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to verify upload %s: %w", fileID, err)
	}
	return true, nil
}

// UpdateUpload applies field updates to an upload record.
func (s *RecordStore) UpdateUpload(ctx context.Context, fileID string, fields map[string]interface{}) error {
	updates := make([]firestore.Update, 0, len(fields))
	for path, value := range fields {
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}
	if _, err := s.client.Collection(s.config.UploadsCollection).Doc(fileID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update upload %s: %w", fileID, err)
	}
	return nil
}

// InsertGeneticData writes the comprehensive genetic record.
func (s *RecordStore) InsertGeneticData(ctx context.Context, rec *models.GeneticRecord) error {
	rec.CreatedAt = time.Now()
	if _, _, err := s.client.Collection(s.config.GeneticDataCollection).Add(ctx, rec); err != nil {
		return fmt.Errorf("failed to insert genetic data: %w", err)
	}
	return nil
}

// InsertLabData writes the comprehensive biomarker record.
func (s *RecordStore) InsertLabData(ctx context.Context, rec *models.LabRecord) error {
	rec.CreatedAt = time.Now()
	if _, _, err := s.client.Collection(s.config.LabDataCollection).Add(ctx, rec); err != nil {
		return fmt.Errorf("failed to insert lab data: %w", err)
	}
	return nil
}

// InsertGeneticMarkers writes the flattened genetic compatibility record.
func (s *RecordStore) InsertGeneticMarkers(ctx context.Context, rec *models.GeneticMarkersRecord) error {
	rec.CreatedAt = time.Now()
	if _, _, err := s.client.Collection(s.config.GeneticMarkersCollection).Add(ctx, rec); err != nil {
		return fmt.Errorf("failed to insert genetic markers: %w", err)
	}
	return nil
}

// InsertLabBiomarkers writes the flattened biomarker compatibility record.
func (s *RecordStore) InsertLabBiomarkers(ctx context.Context, rec *models.LabBiomarkersRecord) error {
	rec.CreatedAt = time.Now()
	if _, _, err := s.client.Collection(s.config.LabBiomarkersCollection).Add(ctx, rec); err != nil {
		return fmt.Errorf("failed to insert lab biomarkers: %w", err)
	}
	return nil
}
