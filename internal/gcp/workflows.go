package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/Lllllllleong/formationflow/internal/outbox"
)

// WorkflowDispatcher hands generation markers to a Cloud Workflows
// orchestrator, which calls the document worker.
type WorkflowDispatcher struct {
	client *executions.Client
	parent string
}

func NewWorkflowDispatcher(ctx context.Context, projectID, location, workflowID string) (*WorkflowDispatcher, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to trigger workflows")
	}
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return &WorkflowDispatcher{
		client: client,
		parent: WorkflowParent(projectID, location, workflowID),
	}, nil
}

// WorkflowParent is the resource name executions are created under.
func WorkflowParent(projectID, location, workflowID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID)
}

func (d *WorkflowDispatcher) Dispatch(ctx context.Context, msg outbox.Claimed) error {
	logCtx := slog.With("eventId", msg.EventID.String(), "requestId", msg.RequestID)
	req, err := executionRequest(d.parent, msg)
	if err != nil {
		return err
	}
	exec, err := d.client.CreateExecution(ctx, req)
	if err != nil {
		logCtx.Error("Failed to create workflow execution.", "error", err)
		return models.Upstream("workflows", fmt.Errorf("failed to create workflow execution: %w", err))
	}
	logCtx.Info("Workflow execution created.", "execution", exec.GetName())
	return nil
}

func (d *WorkflowDispatcher) Close() error {
	return d.client.Close()
}

func executionRequest(parent string, msg outbox.Claimed) (*executionspb.CreateExecutionRequest, error) {
	workflowPayload := map[string]interface{}{
		"eventId":   msg.EventID.String(),
		"requestId": msg.RequestID,
		"topic":     msg.Topic,
		"payload":   json.RawMessage(msg.Payload),
	}
	payloadBytes, err := json.Marshal(workflowPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	return &executionspb.CreateExecutionRequest{
		Parent: parent,
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}, nil
}
