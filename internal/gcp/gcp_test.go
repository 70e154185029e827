package gcp

import (
	"encoding/json"
	"testing"

	"github.com/Lllllllleong/formationflow/internal/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionRequest(t *testing.T) {
	parent := WorkflowParent("proj", "europe-west1", "document-generation")
	assert.Equal(t, "projects/proj/locations/europe-west1/workflows/document-generation", parent)

	msg := outbox.Claimed{
		EventID:   uuid.New(),
		RequestID: 12,
		Topic:     outbox.TopicGenerationRequested,
		Payload:   []byte(`{"requestId":12,"requestedBy":"admin:1"}`),
	}
	req, err := executionRequest(parent, msg)
	require.NoError(t, err)
	assert.Equal(t, parent, req.Parent)

	var arg struct {
		EventID   string          `json:"eventId"`
		RequestID int64           `json:"requestId"`
		Payload   json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(req.Execution.Argument), &arg))
	assert.Equal(t, msg.EventID.String(), arg.EventID)
	assert.Equal(t, int64(12), arg.RequestID)
	assert.JSONEq(t, string(msg.Payload), string(arg.Payload))
}
