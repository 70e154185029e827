package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/Lllllllleong/formationflow/internal/services"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FormationAPI is the slice of FormationService the handlers use.
type FormationAPI interface {
	Create(ctx context.Context, actor models.Actor, p *models.CreateRequestPayload) (*models.FormationRequest, error)
	ConfirmPayment(ctx context.Context, actor models.Actor, requestID int64) (*models.ConfirmPaymentResponse, error)
	Detail(ctx context.Context, actor models.Actor, requestID int64) (*models.RequestDetail, error)
	ListOwn(ctx context.Context, actor models.Actor) ([]models.FormationRequest, error)
	ListAll(ctx context.Context, actor models.Actor, filter models.RequestFilter) ([]models.FormationRequest, error)
	ActivityCodes(ctx context.Context) ([]models.ActivityCode, error)
}

// StatusAPI applies privileged status changes.
type StatusAPI interface {
	Transition(ctx context.Context, actor models.Actor, requestID int64, raw string) (*models.StatusUpdateResponse, error)
}

// DocumentAPI generates and serves documents.
type DocumentAPI interface {
	Generate(ctx context.Context, actor models.Actor, requestID int64) (*models.GenerateDocumentsResponse, error)
	Regenerate(ctx context.Context, actor models.Actor, requestID int64) (*models.GenerateDocumentsResponse, error)
	Preview(ctx context.Context, actor models.Actor, requestID int64) (*services.Rendered, error)
	Download(ctx context.Context, actor models.Actor, requestID int64, fileName string) (*services.Rendered, error)
}

// Options configure the router.
type Options struct {
	BasePath     string
	GatewayToken string
	// Metrics mounts /metrics when true.
	Metrics bool
}

type handlers struct {
	formation FormationAPI
	status    StatusAPI
	documents DocumentAPI
}

// NewRouter wires every endpoint of the formation API.
func NewRouter(formation FormationAPI, status StatusAPI, documents DocumentAPI, opts Options) *mux.Router {
	h := &handlers{formation: formation, status: status, documents: documents}
	base := "/" + strings.Trim(opts.BasePath, "/")
	if base == "/" {
		base = ""
	}

	r := mux.NewRouter()
	r.Use(requestLogger)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})
	if opts.Metrics {
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix(base).Subrouter()
	api.Use(identify(opts.GatewayToken))

	api.HandleFunc("/activity-codes", h.activityCodes).Methods(http.MethodGet)

	requests := api.PathPrefix("/company-request").Subrouter()
	requests.HandleFunc("", h.create).Methods(http.MethodPost)
	requests.HandleFunc("", h.listOwn).Methods(http.MethodGet)
	requests.HandleFunc("/{id:[0-9]+}", h.detail).Methods(http.MethodGet)
	requests.HandleFunc("/{id:[0-9]+}/confirm-payment", h.confirmPayment).Methods(http.MethodPost)
	requests.HandleFunc("/{id:[0-9]+}/generate-documents", h.generate).Methods(http.MethodPost)
	requests.HandleFunc("/{id:[0-9]+}/preview", h.preview).Methods(http.MethodGet)
	requests.HandleFunc("/{id:[0-9]+}/download/{filename}", h.download).Methods(http.MethodGet)

	adminRoutes := api.PathPrefix("/admin").Subrouter()
	adminRoutes.HandleFunc("/company-request/{id:[0-9]+}/status", h.updateStatus).Methods(http.MethodPatch)
	adminRoutes.HandleFunc("/company-request/{id:[0-9]+}/regenerate-documents", h.regenerate).Methods(http.MethodPost)
	adminRoutes.HandleFunc("/company-requests", h.listAll).Methods(http.MethodGet)
	adminRoutes.HandleFunc("/company-requests/export", h.export).Methods(http.MethodGet)

	return r
}
