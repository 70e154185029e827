package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/Lllllllleong/formationflow/internal/outbox"
)

// Memory implements Requests, Activities and Documents in process. Outbox
// messages from Transition go to the given Enqueuer under the same lock as
// the status change.
type Memory struct {
	mu         sync.Mutex
	outbox     outbox.Enqueuer
	requests   map[int64]*models.FormationRequest
	activities map[string]models.ActivityCode
	documents  []models.GeneratedDocument
	// per-table sequences, as with serial columns
	seq map[string]int64
}

func NewMemory(ob outbox.Enqueuer) *Memory {
	return &Memory{
		outbox:     ob,
		requests:   make(map[int64]*models.FormationRequest),
		activities: make(map[string]models.ActivityCode),
		seq:        make(map[string]int64),
	}
}

func (m *Memory) next(table string) int64 {
	m.seq[table]++
	return m.seq[table]
}

func (m *Memory) Create(_ context.Context, req *models.FormationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	req.ID = m.next("formation_requests")
	req.CreatedAt, req.UpdatedAt = now, now
	if req.Status == "" {
		req.Status = models.StatusDraft
	}
	for i := range req.Founders {
		req.Founders[i].ID = m.next("founders")
		req.Founders[i].RequestID = req.ID
	}
	if a, ok := m.activityByID(req.ActivityCodeID); ok {
		req.Activity = &a
	}
	m.requests[req.ID] = cloneRequest(req)
	return nil
}

func (m *Memory) Get(_ context.Context, id int64) (*models.FormationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: formation request %d", models.ErrNotFound, id)
	}
	return cloneRequest(req), nil
}

func (m *Memory) ListByUser(ctx context.Context, userID int64) ([]models.FormationRequest, error) {
	return m.List(ctx, models.RequestFilter{UserID: userID})
}

func (m *Memory) List(_ context.Context, filter models.RequestFilter) ([]models.FormationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.FormationRequest
	for _, req := range m.requests {
		if filter.UserID != 0 && req.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, *cloneRequest(req))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) Transition(ctx context.Context, id int64, fn TransitionFunc) (*StatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: formation request %d", models.ErrNotFound, id)
	}
	from := req.Status
	next, msg, err := fn(&models.FormationRequest{ID: id, UserID: req.UserID, Status: from})
	if err != nil {
		return nil, err
	}
	if msg != nil {
		if m.outbox == nil {
			return nil, fmt.Errorf("no outbox configured for %s", msg.Topic)
		}
		if err := m.outbox.Enqueue(ctx, *msg); err != nil {
			return nil, err
		}
	}
	req.Status = next
	req.UpdatedAt = time.Now().UTC()
	return &StatusChange{RequestID: id, From: from, To: next, Enqueued: msg}, nil
}

func (m *Memory) FindByCode(_ context.Context, code string) (*models.ActivityCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.activities[code]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) ListActive(context.Context) ([]models.ActivityCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ActivityCode
	for _, a := range m.activities {
		if a.IsActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Memory) Upsert(_ context.Context, codes []models.ActivityCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range codes {
		if existing, ok := m.activities[c.Code]; ok {
			c.ID = existing.ID
		} else {
			c.ID = m.next("activity_codes")
		}
		m.activities[c.Code] = c
	}
	return nil
}

func (m *Memory) FindByTemplate(_ context.Context, requestID int64, slug string) (*models.GeneratedDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.documentIndex(requestID, slug); i >= 0 {
		doc := m.documents[i]
		return &doc, nil
	}
	return nil, nil
}

func (m *Memory) FindByFileName(_ context.Context, requestID int64, fileName string) (*models.GeneratedDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range m.documents {
		if doc.RequestID == requestID && doc.FileName == fileName {
			return &doc, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, fileName)
}

func (m *Memory) ListByRequest(_ context.Context, requestID int64) ([]models.GeneratedDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := []models.GeneratedDocument{}
	for _, doc := range m.documents {
		if doc.RequestID == requestID {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (m *Memory) Register(_ context.Context, doc *models.GeneratedDocument) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.documentIndex(doc.RequestID, doc.TemplateSlug) >= 0 {
		return false, models.ErrDocumentExists
	}
	doc.CreatedAt = time.Now().UTC()
	m.documents = append(m.documents, *doc)
	return m.complete(doc.RequestID), nil
}

func (m *Memory) Replace(_ context.Context, doc *models.GeneratedDocument) (*models.GeneratedDocument, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var previous *models.GeneratedDocument
	if i := m.documentIndex(doc.RequestID, doc.TemplateSlug); i >= 0 {
		prev := m.documents[i]
		previous = &prev
		m.documents = append(m.documents[:i], m.documents[i+1:]...)
	}
	doc.CreatedAt = time.Now().UTC()
	m.documents = append(m.documents, *doc)
	return previous, m.complete(doc.RequestID), nil
}

func (m *Memory) complete(requestID int64) bool {
	req, ok := m.requests[requestID]
	if !ok || req.Status != models.StatusProcessing {
		return false
	}
	req.Status = models.StatusCompleted
	req.UpdatedAt = time.Now().UTC()
	return true
}

func (m *Memory) documentIndex(requestID int64, slug string) int {
	for i, doc := range m.documents {
		if doc.RequestID == requestID && doc.TemplateSlug == slug {
			return i
		}
	}
	return -1
}

func (m *Memory) activityByID(id int64) (models.ActivityCode, bool) {
	for _, a := range m.activities {
		if a.ID == id {
			return a, true
		}
	}
	return models.ActivityCode{}, false
}

func cloneRequest(req *models.FormationRequest) *models.FormationRequest {
	c := *req
	c.Founders = append([]models.Founder(nil), req.Founders...)
	if req.Activity != nil {
		a := *req.Activity
		c.Activity = &a
	}
	if req.Payment != nil {
		p := *req.Payment
		c.Payment = &p
	}
	return &c
}
