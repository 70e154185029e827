package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

// requestID reads the {id} path variable. The route pattern guarantees
// digits, so only overflow can fail.
func requestID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, models.NewValidationError("id", "must be a positive integer")
	}
	return id, nil
}

// authenticated returns the caller or writes 401.
func authenticated(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor := actorFrom(r.Context())
	if actor.UserID == 0 {
		writeError(w, r, models.ErrUnauthorized)
		return actor, false
	}
	return actor, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return models.NewValidationError("body", "must be a valid JSON document")
	}
	return nil
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := authenticated(w, r)
	if !ok {
		return
	}
	var payload models.CreateRequestPayload
	if err := decodeBody(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := h.formation.Create(r.Context(), actor, &payload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *handlers) listOwn(w http.ResponseWriter, r *http.Request) {
	actor, ok := authenticated(w, r)
	if !ok {
		return
	}
	list, err := h.formation.ListOwn(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) detail(w http.ResponseWriter, r *http.Request) {
	actor, ok := authenticated(w, r)
	if !ok {
		return
	}
	id, err := requestID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	detail, err := h.formation.Detail(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *handlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := authenticated(w, r)
	if !ok {
		return
	}
	id, err := requestID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.formation.ConfirmPayment(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	actor, ok := authenticated(w, r)
	if !ok {
		return
	}
	id, err := requestID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.documents.Generate(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

func (h *handlers) preview(w http.ResponseWriter, r *http.Request) {
	actor, ok := authenticated(w, r)
	if !ok {
		return
	}
	id, err := requestID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.documents.Preview(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writePDF(w, "inline", out.FileName, out.Data)
}

func (h *handlers) download(w http.ResponseWriter, r *http.Request) {
	actor, ok := authenticated(w, r)
	if !ok {
		return
	}
	id, err := requestID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.documents.Download(r.Context(), actor, id, mux.Vars(r)["filename"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePDF(w, "attachment", out.FileName, out.Data)
}

func (h *handlers) activityCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := h.formation.ActivityCodes(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, codes)
}

func (h *handlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := authenticated(w, r)
	if !ok {
		return
	}
	id, err := requestID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var payload models.StatusUpdatePayload
	if err := decodeBody(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.status.Transition(r.Context(), actor, id, payload.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) regenerate(w http.ResponseWriter, r *http.Request) {
	actor, ok := authenticated(w, r)
	if !ok {
		return
	}
	id, err := requestID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.documents.Regenerate(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) listAll(w http.ResponseWriter, r *http.Request) {
	actor, ok := authenticated(w, r)
	if !ok {
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.formation.ListAll(r.Context(), actor, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func parseFilter(r *http.Request) (models.RequestFilter, error) {
	q := r.URL.Query()
	filter := models.RequestFilter{Status: models.Status(strings.ToUpper(strings.TrimSpace(q.Get("status"))))}
	verr := &models.ValidationError{}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			verr.Add(name, "must be a non-negative integer")
			continue
		}
		*dst = n
	}
	if raw := strings.TrimSpace(q.Get("userId")); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			verr.Add("userId", "must be a positive integer")
		}
		filter.UserID = n
	}
	if verr.HasErrors() {
		return filter, verr
	}
	return filter, nil
}
