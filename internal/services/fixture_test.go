package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Lllllllleong/formationflow/internal/blobstore"
	"github.com/Lllllllleong/formationflow/internal/config"
	"github.com/Lllllllleong/formationflow/internal/lock"
	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/Lllllllleong/formationflow/internal/outbox"
	"github.com/Lllllllleong/formationflow/internal/rasterizer"
	"github.com/Lllllllleong/formationflow/internal/render"
	"github.com/Lllllllleong/formationflow/internal/repository"
	"github.com/Lllllllleong/formationflow/internal/templates"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	owner    = models.Actor{UserID: 1, Role: models.RoleUser}
	stranger = models.Actor{UserID: 2, Role: models.RoleUser}
	admin    = models.Actor{UserID: 99, Role: models.RoleAdmin}
)

type fakeRasterizer struct {
	mu       sync.Mutex
	calls    atomic.Int32
	delay    time.Duration
	err      error
	lastHTML string
	lastOpts rasterizer.Options
}

func (f *fakeRasterizer) Rasterize(ctx context.Context, html string, opts rasterizer.Options) ([]byte, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastHTML, f.lastOpts = html, opts
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, models.Upstream("rasterizer", err)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []byte(fmt.Sprintf("%%PDF-1.7\n%% final=%t len=%d\n%%%%EOF", opts.Final, len(html))), nil
}

func (f *fakeRasterizer) last() (string, rasterizer.Options) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastHTML, f.lastOpts
}

type fakeInspector struct{}

func (fakeInspector) Inspect(data []byte) (int, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return 0, rasterizer.ErrCorruptArtifact
	}
	return 2, nil
}

func (fakeInspector) Optimize(data []byte) ([]byte, error) { return data, nil }

type fixture struct {
	mem       *repository.Memory
	outbox    *outbox.MemoryStore
	artifacts *blobstore.MemoryStore
	raster    *fakeRasterizer
	templates *templates.MemoryStore
	formation *FormationService
	status    *StatusService
	docs      *DocumentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	ob := outbox.NewMemoryStore()
	mem := repository.NewMemory(ob)
	require.NoError(t, mem.Upsert(ctx, []models.ActivityCode{
		{Code: "47.11", Description: "Trgovina na malo", IsActive: true},
		{Code: "62.01", Description: "Računarsko programiranje", IsActive: true},
		{Code: "01.11", Description: "Gajenje žitarica", IsActive: false},
	}))

	tpls, err := templates.NewBundledStore()
	require.NoError(t, err)
	compositor, err := render.NewCompositor("", "")
	require.NoError(t, err)

	f := &fixture{
		mem:       mem,
		outbox:    ob,
		artifacts: blobstore.NewMemoryStore(),
		raster:    &fakeRasterizer{},
		templates: tpls,
	}
	f.formation = NewFormationService(mem, mem, mem, ob,
		config.PricingOptions{NetPrice: decimal.NewFromInt(100), VATPercent: decimal.NewFromInt(21), Currency: "EUR"},
		config.BankOptions{AccountNumber: "510-1-11", BankName: "CKB", Swift: "CKBCMEPG", ReferencePrefix: "DOO"},
	)
	f.status = NewStatusService(mem)
	f.docs, err = NewDocumentService(DocumentDeps{
		Requests:   mem,
		Activities: mem,
		Documents:  mem,
		Templates:  tpls,
		Renderer:   render.NewRenderer(),
		Compositor: compositor,
		Rasterizer: f.raster,
		Inspector:  fakeInspector{},
		Artifacts:  f.artifacts,
		Locker:     lock.NewLocal(),
	}, DocumentConfig{ObscureSensitive: true, Optimize: true})
	require.NoError(t, err)
	return f
}

func validPayload() *models.CreateRequestPayload {
	return &models.CreateRequestPayload{
		CompanyName:  "Primorje Tech",
		CompanyType:  "DOO",
		Capital:      decimal.NewFromInt(1000),
		Address:      "Bulevar Svetog Petra Cetinjskog 1",
		City:         "Podgorica",
		Email:        "osnivac@primorje.me",
		Phone:        "+38267111222",
		ActivityCode: "62.01",
		Founders: []models.FounderPayload{
			{Name: "Ana Petrović", IsResident: true, PersonalNumber: "0101990215001", IDNumber: "ID123456", Address: "Njegoševa 2", SharePercentage: decimal.NewFromInt(60)},
			{Name: "Marko Marković", IDDocumentType: "PASSPORT", IDNumber: "P9876543", Address: "Knez Mihailova 5, Beograd", SharePercentage: decimal.NewFromInt(40)},
		},
	}
}

// createPaid creates a request for owner and walks it to PAID.
func (f *fixture) createPaid(t *testing.T) *models.FormationRequest {
	t.Helper()
	ctx := context.Background()
	req, err := f.formation.Create(ctx, owner, validPayload())
	require.NoError(t, err)
	_, err = f.formation.ConfirmPayment(ctx, owner, req.ID)
	require.NoError(t, err)
	_, err = f.status.Transition(ctx, admin, req.ID, "PAID")
	require.NoError(t, err)
	return req
}

// racingDocuments hides the registered document from the first lookup, as
// if another generator registered it in between.
type racingDocuments struct {
	repository.Documents
	hidden atomic.Bool
}

func (r *racingDocuments) FindByTemplate(ctx context.Context, requestID int64, slug string) (*models.GeneratedDocument, error) {
	if r.hidden.CompareAndSwap(false, true) {
		return nil, nil
	}
	return r.Documents.FindByTemplate(ctx, requestID, slug)
}

var errEngineDown = errors.New("chrome exited")
