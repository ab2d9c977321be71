package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/fsupp/healthdataflow/internal/services"
)

var (
	pipelineInstance *services.PipelineFunction
	once             sync.Once
	initErr          error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the CloudEvent function. The framework routes the
	// storage.object.finalized event here.
	functions.CloudEvent("WatchHealthUploads", watchHealthUploads)
}

// main is required by the Go Functions Framework.
func main() {}

// watchHealthUploads is the storage-triggered entry point. It resolves the
// finalized object back to its upload record and runs the parse pipeline.
func watchHealthUploads(ctx context.Context, e cloudevents.Event) error {
	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		pipelineInstance, initErr = services.NewPipeline(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	slog.Info("Received storage event.", "bucket", gcsEvent.Bucket, "object", gcsEvent.Name)

	// Objects with no matching upload record are skipped inside, not failed,
	// so unrelated writes to the bucket never retry.
	return pipelineInstance.ProcessStoragePath(ctx, gcsEvent.Name)
}
