package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusDraft, StatusAwaitingPayment, true},
		{StatusDraft, StatusPaid, false},
		{StatusDraft, StatusFailed, true},
		{StatusAwaitingPayment, StatusPaymentPending, true},
		{StatusAwaitingPayment, StatusPaid, true},
		{StatusPaymentPending, StatusPaid, true},
		{StatusPaid, StatusProcessing, true},
		{StatusPaid, StatusPaid, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusDraft, false},
		{StatusCompleted, StatusDraft, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusDraft, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusPaid.IsTerminal())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("PAID")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, s)

	_, err = ParseStatus("paid")
	require.Error(t, err)

	assert.False(t, IsAdminSettable(StatusDraft))
	assert.False(t, IsAdminSettable(StatusAwaitingPayment))
	assert.True(t, IsAdminSettable(StatusCompleted))
}

func TestAllowsGeneration(t *testing.T) {
	for _, s := range []Status{StatusPaid, StatusProcessing, StatusCompleted} {
		assert.True(t, s.AllowsGeneration(), s)
	}
	for _, s := range []Status{StatusDraft, StatusAwaitingPayment, StatusPaymentPending, StatusFailed} {
		assert.False(t, s.AllowsGeneration(), s)
	}
}

func TestSharesTotalIsExact(t *testing.T) {
	founders := []Founder{
		{SharePercentage: decimal.RequireFromString("33.33")},
		{SharePercentage: decimal.RequireFromString("33.33")},
		{SharePercentage: decimal.RequireFromString("33.34")},
	}
	assert.True(t, SharesTotal(founders).Equal(decimal.NewFromInt(100)))
}

func TestErrorClassification(t *testing.T) {
	verr := NewValidationError("founders", "shares must sum to 100")
	assert.True(t, errors.Is(verr, ErrValidation))
	assert.Contains(t, verr.Error(), "founders")

	assert.True(t, errors.Is(ErrStorageIntegrity, ErrNotFound))
	assert.True(t, errors.Is(ErrDocumentNotFound, ErrNotFound))
	assert.False(t, errors.Is(ErrStorageIntegrity, ErrDocumentNotFound))

	up := Upstream("rasterizer", errors.New("timeout"))
	assert.True(t, errors.Is(up, ErrUpstream))
	assert.Nil(t, Upstream("rasterizer", nil))
}

func TestActorAccess(t *testing.T) {
	req := &FormationRequest{UserID: 7}
	assert.True(t, Actor{UserID: 7, Role: RoleUser}.CanAccess(req))
	assert.False(t, Actor{UserID: 8, Role: RoleUser}.CanAccess(req))
	assert.True(t, Actor{UserID: 8, Role: RoleAdmin}.CanAccess(req))
	assert.True(t, SystemActor.CanAccess(req))
	assert.Equal(t, "system", SystemActor.Label())
	assert.Equal(t, "user:7", Actor{UserID: 7, Role: RoleUser}.Label())
}
