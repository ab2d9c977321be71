package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/fsupp/healthdataflow/internal/models"
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

	// Register the HTTP function with the framework.
	// "ParseHealthData" is the entry point name configured in GCP.
	functions.HTTP("ParseHealthData", handleParseHealthData)
}

// main is required by the Go Functions Framework.
func main() {}

// handleParseHealthData is the HTTP handler for the parse service.
func handleParseHealthData(w http.ResponseWriter, r *http.Request) {
	// Browser clients call this directly, so CORS headers are required.
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, &models.ErrorResponse{Error: "method not allowed"})
		return
	}

	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		pipelineInstance, initErr = services.NewPipeline(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Pipeline initialization failed.", "error", initErr)
		writeError(w, http.StatusInternalServerError, &models.ErrorResponse{Error: "failed to initialize service"})
		return
	}

	var req models.ParseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body.", "error", err)
		writeError(w, http.StatusBadRequest, &models.ErrorResponse{Error: "could not parse JSON body"})
		return
	}

	resp, err := pipelineInstance.Process(r.Context(), &req)
	if err != nil {
		// The specific error is already logged inside Process.
		status := http.StatusInternalServerError
		details := ""
		var svcErr *services.Error
		if errors.As(err, &svcErr) {
			status = svcErr.HTTPStatus()
			details = svcErr.Message
		}
		writeError(w, status, &models.ErrorResponse{
			Error:   err.Error(),
			Details: details,
			FileID:  req.FileID,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode response.", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, payload *models.ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode error response.", "error", err)
	}
}
