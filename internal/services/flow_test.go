package services

import (
	"context"
	"testing"

	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/Lllllllleong/formationflow/internal/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFormationFlow walks a request from creation to a downloaded statute
// through the outbox relay.
func TestFormationFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.formation.Create(ctx, owner, validPayload())
	require.NoError(t, err)
	_, err = f.formation.ConfirmPayment(ctx, owner, req.ID)
	require.NoError(t, err)
	resp, err := f.status.Transition(ctx, admin, req.ID, "PAID")
	require.NoError(t, err)
	require.True(t, resp.GenerationRequested)

	relay, err := outbox.NewRelay(f.outbox, outbox.NewHandlerDispatcher(f.docs), outbox.RelayOptions{})
	require.NoError(t, err)
	n, err := relay.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	detail, err := f.formation.Detail(ctx, owner, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, detail.Status)
	require.Len(t, detail.Documents, 1)
	require.NotNil(t, detail.Generation)
	assert.Equal(t, models.GenerationDelivered, detail.Generation.State)
	assert.Equal(t, 1, detail.Generation.Attempts)

	doc := detail.Documents[0]
	out, err := f.docs.Download(ctx, owner, req.ID, doc.FileName)
	require.NoError(t, err)
	assert.EqualValues(t, doc.FileSize, len(out.Data))

	n, err = relay.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "delivered markers are not claimed again")
}
