package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// ObjectStore wraps one GCS bucket holding user-submitted documents.
type ObjectStore struct {
	bucket *storage.BucketHandle
	name   string
}

// NewObjectStore creates an ObjectStore for the named bucket.
func NewObjectStore(client *storage.Client, bucketName string) *ObjectStore {
	return &ObjectStore{bucket: client.Bucket(bucketName), name: bucketName}
}

// Download reads the full object at the given path. A missing object is
// reported with storage.ErrObjectNotExist in the chain so callers can
// distinguish a bad reference from a processing error.
func (o *ObjectStore) Download(ctx context.Context, objectPath string) ([]byte, error) {
	reader, err := o.bucket.Object(objectPath).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("object gs://%s/%s: %w", o.name, objectPath, storage.ErrObjectNotExist)
		}
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", o.name, objectPath, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", o.name, objectPath, err)
	}
	return data, nil
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't
// already exist. Used for the raw-text audit snapshots; re-runs of the same
// upload must not clobber the original snapshot.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName, content string) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)

	if _, err := io.Copy(writer, strings.NewReader(content)); err != nil {
		_ = writer.Close()
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 412 {
			log.Printf("SKIPPING: Object %s already exists.", objectName)
			return nil // Not a failure in an idempotent workflow.
		}
		log.Printf("ERROR: Failed to copy content to GCS object %s: %v", objectName, err)
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 412 {
			log.Printf("SKIPPING: Object %s already exists.", objectName)
			return nil
		}
		log.Printf("ERROR: Failed to close GCS writer for %s: %v", objectName, err)
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}
