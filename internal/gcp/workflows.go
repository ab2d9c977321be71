package gcp

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
)

// EmbeddingNotifier hands parsed content off to the embedding workflow.
// The hand-off is fire-and-forget from the pipeline's perspective; the
// workflow owns chunking, embedding, and indexing.
type EmbeddingNotifier struct {
	client           *executions.Client
	projectID        string
	workflowLocation string
	workflowID       string
}

// NewEmbeddingNotifier creates a notifier for the named workflow.
func NewEmbeddingNotifier(ctx context.Context, projectID, location, workflowID string) (*EmbeddingNotifier, error) {
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return &EmbeddingNotifier{
		client:           client,
		projectID:        projectID,
		workflowLocation: location,
		workflowID:       workflowID,
	}, nil
}

// Notify triggers one embedding workflow execution for the parsed content.
func (n *EmbeddingNotifier) Notify(ctx context.Context, userID, sourceID, content string) error {
	payload := map[string]interface{}{
		"user_id":     userID,
		"source_type": "file",
		"source_id":   sourceID,
		"content":     content,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding payload: %w", err)
	}

	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", n.projectID, n.workflowLocation, n.workflowID),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	if _, err := n.client.CreateExecution(ctx, req); err != nil {
		return fmt.Errorf("failed to trigger embedding workflow execution: %w", err)
	}
	return nil
}
