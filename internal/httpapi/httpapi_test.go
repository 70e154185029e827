package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Lllllllleong/formationflow/internal/blobstore"
	"github.com/Lllllllleong/formationflow/internal/config"
	"github.com/Lllllllleong/formationflow/internal/lock"
	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/Lllllllleong/formationflow/internal/outbox"
	"github.com/Lllllllleong/formationflow/internal/rasterizer"
	"github.com/Lllllllleong/formationflow/internal/render"
	"github.com/Lllllllleong/formationflow/internal/repository"
	"github.com/Lllllllleong/formationflow/internal/services"
	"github.com/Lllllllleong/formationflow/internal/templates"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type stubRasterizer struct{ err error }

func (s stubRasterizer) Rasterize(_ context.Context, html string, opts rasterizer.Options) ([]byte, error) {
	if s.err != nil {
		return nil, models.Upstream("rasterizer", s.err)
	}
	return []byte(fmt.Sprintf("%%PDF-1.7\n%% final=%t\n%%%%EOF", opts.Final)), nil
}

type stubInspector struct{}

func (stubInspector) Inspect([]byte) (int, error) { return 1, nil }
func (stubInspector) Optimize(data []byte) ([]byte, error) { return data, nil }

type apiFixture struct {
	router    *mux.Router
	mem       *repository.Memory
	artifacts *blobstore.MemoryStore
}

func newAPI(t *testing.T, raster rasterizer.Rasterizer, opts Options) *apiFixture {
	t.Helper()
	ctx := context.Background()
	ob := outbox.NewMemoryStore()
	mem := repository.NewMemory(ob)
	require.NoError(t, mem.Upsert(ctx, []models.ActivityCode{
		{Code: "62.01", Description: "Računarsko programiranje", IsActive: true},
	}))
	tpls, err := templates.NewBundledStore()
	require.NoError(t, err)
	compositor, err := render.NewCompositor("", "")
	require.NoError(t, err)
	artifacts := blobstore.NewMemoryStore()

	formation := services.NewFormationService(mem, mem, mem, ob,
		config.PricingOptions{NetPrice: decimal.NewFromInt(100), VATPercent: decimal.NewFromInt(21), Currency: "EUR"},
		config.BankOptions{ReferencePrefix: "DOO"},
	)
	docs, err := services.NewDocumentService(services.DocumentDeps{
		Requests:   mem,
		Activities: mem,
		Documents:  mem,
		Templates:  tpls,
		Renderer:   render.NewRenderer(),
		Compositor: compositor,
		Rasterizer: raster,
		Inspector:  stubInspector{},
		Artifacts:  artifacts,
		Locker:     lock.NewLocal(),
	}, services.DocumentConfig{ObscureSensitive: true})
	require.NoError(t, err)

	return &apiFixture{
		router:    NewRouter(formation, services.NewStatusService(mem), docs, opts),
		mem:       mem,
		artifacts: artifacts,
	}
}

func (f *apiFixture) do(t *testing.T, method, target string, userID int64, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if userID != 0 {
		req.Header.Set(HeaderUserID, fmt.Sprint(userID))
	}
	if role != "" {
		req.Header.Set(HeaderUserRole, role)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

const createBody = `{
  "companyName": "Primorje Tech",
  "companyType": "DOO",
  "capital": "1000",
  "address": "Bulevar Svetog Petra Cetinjskog 1",
  "city": "Podgorica",
  "email": "osnivac@primorje.me",
  "phone": "+38267111222",
  "activityCode": "62.01",
  "founders": [
    {"name": "Ana Petrović", "isResident": true, "personalNumber": "0101990215001", "idNumber": "ID123456", "address": "Njegoševa 2", "sharePercentage": 33.33},
    {"name": "Marko Marković", "idNumber": "P9876543", "address": "Knez Mihailova 5", "sharePercentage": "33.33"},
    {"name": "Jovana Jovanović", "idNumber": "P1112223", "address": "Hercegovačka 9", "sharePercentage": 33.34}
  ]
}`

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCreateAndDetail(t *testing.T) {
	f := newAPI(t, stubRasterizer{}, Options{BasePath: "/api"})

	rec := f.do(t, http.MethodPost, "/api/company-request", 1, "", createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.FormationRequest](t, rec)
	assert.Equal(t, models.StatusDraft, created.Status)
	assert.Len(t, created.Founders, 3)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/company-request/%d", created.ID), 1, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[map[string]any](t, rec)
	assert.Equal(t, "Primorje Tech", detail["companyName"])
	assert.Contains(t, detail, "paymentInstructions")
	assert.Contains(t, detail, "documents")

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/company-request/%d", created.ID), 2, "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"forbidden"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/company-request/999", 1, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/company-request", 1, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.FormationRequest](t, rec), 1)
}

func TestCreateValidation(t *testing.T) {
	f := newAPI(t, stubRasterizer{}, Options{BasePath: "/api"})

	body := strings.Replace(createBody, "33.34", "33.33", 1)
	rec := f.do(t, http.MethodPost, "/api/company-request", 1, "", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	got := decode[errorBody](t, rec)
	assert.Equal(t, "validation failed", got.Error)
	assert.Contains(t, got.Fields["founders"], "99.99")

	rec = f.do(t, http.MethodPost, "/api/company-request", 1, "", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/company-request", 0, "", createBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/company-request", 0, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	list, err := f.mem.List(context.Background(), models.RequestFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLifecycleOverHTTP(t *testing.T) {
	f := newAPI(t, stubRasterizer{}, Options{BasePath: "/api"})

	rec := f.do(t, http.MethodPost, "/api/company-request", 1, "", createBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[models.FormationRequest](t, rec).ID
	base := fmt.Sprintf("/api/company-request/%d", id)

	rec = f.do(t, http.MethodPost, base+"/generate-documents", 1, "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "documents require payment")

	rec = f.do(t, http.MethodPost, base+"/confirm-payment", 1, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	confirm := decode[models.ConfirmPaymentResponse](t, rec)
	assert.Equal(t, fmt.Sprintf("DOO-%d", id), confirm.PaymentInstructions.Reference)

	rec = f.do(t, http.MethodPost, base+"/confirm-payment", 1, "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	status := fmt.Sprintf("/api/admin/company-request/%d/status", id)
	rec = f.do(t, http.MethodPatch, status, 1, "", `{"status":"PAID"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(t, http.MethodPatch, status, 9, "ADMIN", `{"status":"DRAFT"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPatch, status, 9, "ADMIN", `{"status":"PAID"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[models.StatusUpdateResponse](t, rec).GenerationRequested)

	rec = f.do(t, http.MethodPost, base+"/generate-documents", 1, "", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	gen := decode[models.GenerateDocumentsResponse](t, rec)
	require.NotNil(t, gen.Document)
	assert.True(t, gen.Created)

	rec = f.do(t, http.MethodPost, base+"/generate-documents", 1, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[models.GenerateDocumentsResponse](t, rec).Created)

	rec = f.do(t, http.MethodGet, gen.Document.FileURL, 1, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, fmt.Sprint(gen.Document.FileSize), rec.Header().Get("Content-Length"))
	assert.EqualValues(t, gen.Document.FileSize, rec.Body.Len())
	assert.Equal(t, `attachment; filename="`+gen.Document.FileName+`"`, rec.Header().Get("Content-Disposition"))

	rec = f.do(t, http.MethodGet, gen.Document.FileURL, 2, "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(t, http.MethodGet, base+"/download/other.pdf", 1, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, f.artifacts.Delete(context.Background(), gen.Document.StorageKey))
	rec = f.do(t, http.MethodGet, gen.Document.FileURL, 1, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/admin/company-request/%d/regenerate-documents", id), 9, "ADMIN", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	regen := decode[models.GenerateDocumentsResponse](t, rec)
	rec = f.do(t, http.MethodGet, regen.Document.FileURL, 1, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPreviewIsInline(t *testing.T) {
	f := newAPI(t, stubRasterizer{}, Options{BasePath: "/api"})
	rec := f.do(t, http.MethodPost, "/api/company-request", 1, "", createBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[models.FormationRequest](t, rec).ID

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/company-request/%d/preview", id), 1, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `inline; filename="preview-statut-Primorje-Tech.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Zero(t, f.artifacts.Len())
}

func TestUpstreamFailureIs502(t *testing.T) {
	f := newAPI(t, stubRasterizer{err: fmt.Errorf("chrome exited")}, Options{BasePath: "/api"})
	rec := f.do(t, http.MethodPost, "/api/company-request", 1, "", createBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[models.FormationRequest](t, rec).ID

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/company-request/%d/preview", id), 1, "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "chrome")
}

func TestGatewayToken(t *testing.T) {
	f := newAPI(t, stubRasterizer{}, Options{BasePath: "/api", GatewayToken: "s3cret"})

	rec := f.do(t, http.MethodGet, "/api/activity-codes", 0, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/activity-codes", nil)
	req.Header.Set(HeaderGatewayToken, "s3cret")
	out := httptest.NewRecorder()
	f.router.ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)
	codes := decode[[]models.ActivityCode](t, out)
	require.Len(t, codes, 1)
	assert.Equal(t, "62.01", codes[0].Code)
	assert.NotEmpty(t, out.Header().Get(HeaderRequestID))
}

func TestAdminListAndExport(t *testing.T) {
	f := newAPI(t, stubRasterizer{}, Options{BasePath: "/api", Metrics: true})
	for _, user := range []int64{1, 2} {
		rec := f.do(t, http.MethodPost, "/api/company-request", user, "", createBody)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/api/admin/company-requests", 1, "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/admin/company-requests?status=draft&limit=1", 9, "ADMIN", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.FormationRequest](t, rec), 1)

	rec = f.do(t, http.MethodGet, "/api/admin/company-requests?limit=-1", 9, "ADMIN", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/admin/company-requests/export", 9, "ADMIN", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxMimeType, rec.Header().Get("Content-Type"))

	book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Company", rows[0][1])
	assert.Equal(t, "Primorje Tech", rows[1][1])
	assert.Contains(t, rows[1][8], "Ana Petrović (33.33%)")

	rec = f.do(t, http.MethodGet, "/metrics", 0, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "formationflow_http_requests_total")
}
