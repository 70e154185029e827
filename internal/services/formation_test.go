package services

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldKeys(t *testing.T, err error) []string {
	t.Helper()
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
	keys := make([]string, 0, len(verr.Fields))
	for k := range verr.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestCreate_SharesMustSumToExactlyHundred(t *testing.T) {
	cases := []struct {
		name   string
		shares []string
		ok     bool
	}{
		{name: "60/40", shares: []string{"60", "40"}, ok: true},
		{name: "thirds", shares: []string{"33.33", "33.33", "33.34"}, ok: true},
		{name: "short", shares: []string{"50", "40"}},
		{name: "over", shares: []string{"60", "40.01"}},
		{name: "float trap", shares: []string{"0.1", "0.2", "99.7"}, ok: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			p := validPayload()
			base := p.Founders[1]
			p.Founders = p.Founders[:1]
			p.Founders[0].SharePercentage = decimal.RequireFromString(tc.shares[0])
			for _, s := range tc.shares[1:] {
				fp := base
				fp.SharePercentage = decimal.RequireFromString(s)
				p.Founders = append(p.Founders, fp)
			}

			req, err := f.formation.Create(context.Background(), owner, p)
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, models.StatusDraft, req.Status)
				assert.True(t, models.SharesTotal(req.Founders).Equal(decimal.NewFromInt(100)))
				return
			}
			require.True(t, errors.Is(err, models.ErrValidation))
			assert.Equal(t, []string{"founders"}, fieldKeys(t, err))
			list, err := f.formation.ListOwn(context.Background(), owner)
			require.NoError(t, err)
			assert.Empty(t, list, "nothing is stored on validation failure")
		})
	}
}

func TestCreate_ReportsEveryInvalidField(t *testing.T) {
	f := newFixture(t)
	p := validPayload()
	p.CompanyName = ""
	p.Email = "not-an-email"
	p.Capital = decimal.NewFromInt(-1)
	p.ActivityCode = "99.99"
	p.Founders[0].Name = ""
	p.Founders[0].PersonalNumber = ""
	p.Founders[1].IDDocumentType = "DRIVING_LICENCE"

	_, err := f.formation.Create(context.Background(), owner, p)
	want := []string{
		"activityCode",
		"capital",
		"companyName",
		"email",
		"founders[0].name",
		"founders[0].personalNumber",
		"founders[1].idDocumentType",
	}
	if diff := cmp.Diff(want, fieldKeys(t, err)); diff != "" {
		t.Fatalf("invalid fields mismatch (-want +got):\n%s", diff)
	}
}

func TestCreate_RejectsBlankActivityCode(t *testing.T) {
	f := newFixture(t)
	for _, code := range []string{"", "   ", "\t"} {
		p := validPayload()
		p.ActivityCode = code

		_, err := f.formation.Create(context.Background(), owner, p)
		require.Error(t, err, "code %q", code)
		require.True(t, errors.Is(err, models.ErrValidation), "code %q", code)
		assert.Equal(t, []string{"activityCode"}, fieldKeys(t, err), "code %q", code)
	}
	list, err := f.formation.ListOwn(context.Background(), owner)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreate_RejectsInactiveActivityAndEmptyFounders(t *testing.T) {
	f := newFixture(t)
	p := validPayload()
	p.ActivityCode = "01.11"
	p.Founders = []models.FounderPayload{}

	_, err := f.formation.Create(context.Background(), owner, p)
	assert.Equal(t, []string{"activityCode", "founders"}, fieldKeys(t, err))
}

func TestCreate_RequiresIdentity(t *testing.T) {
	f := newFixture(t)
	_, err := f.formation.Create(context.Background(), models.Actor{}, validPayload())
	assert.True(t, errors.Is(err, models.ErrUnauthorized))
}

func TestCreate_PricesAndLinksActivity(t *testing.T) {
	f := newFixture(t)
	req, err := f.formation.Create(context.Background(), owner, validPayload())
	require.NoError(t, err)
	assert.Equal(t, "121", req.Price.String())
	assert.Equal(t, "EUR", req.Currency)
	require.NotNil(t, req.Activity)
	assert.Equal(t, "62.01", req.Activity.Code)
	assert.Equal(t, models.IDCard, req.Founders[0].IDDocumentType)
	assert.Equal(t, models.Passport, req.Founders[1].IDDocumentType)
}

func TestConfirmPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.formation.Create(ctx, owner, validPayload())
	require.NoError(t, err)

	_, err = f.formation.ConfirmPayment(ctx, stranger, req.ID)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	resp, err := f.formation.ConfirmPayment(ctx, owner, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAwaitingPayment, resp.Status)
	assert.Equal(t, "DOO-1", resp.PaymentInstructions.Reference)
	assert.Equal(t, "121", resp.PaymentInstructions.Amount.String())
	assert.Equal(t, "CKBCMEPG", resp.PaymentInstructions.Swift)

	_, err = f.formation.ConfirmPayment(ctx, owner, req.ID)
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))

	_, err = f.formation.ConfirmPayment(ctx, owner, 404)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestDetailAndListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.createPaid(t)

	detail, err := f.formation.Detail(ctx, owner, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, detail.Status)
	require.NotNil(t, detail.Generation)
	assert.Equal(t, models.GenerationPending, detail.Generation.State)
	assert.Empty(t, detail.Documents)
	assert.Equal(t, "DOO-1", detail.PaymentInstructions.Reference)

	_, err = f.formation.Detail(ctx, stranger, req.ID)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	_, err = f.formation.ListAll(ctx, owner, models.RequestFilter{})
	assert.True(t, errors.Is(err, models.ErrForbidden))

	all, err := f.formation.ListAll(ctx, admin, models.RequestFilter{Status: models.StatusPaid})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = f.formation.ListAll(ctx, admin, models.RequestFilter{Status: "SHIPPED"})
	assert.True(t, errors.Is(err, models.ErrValidation))

	codes, err := f.formation.ActivityCodes(ctx)
	require.NoError(t, err)
	require.Len(t, codes, 2)
	assert.Equal(t, "47.11", codes[0].Code)
}
