package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/google/uuid"
)

type memoryRow struct {
	Claimed
	availableAt time.Time
	lockedAt    time.Time
	publishedAt time.Time
	deadAt      time.Time
	lastError   string
}

// MemoryStore is an in-process outbox for tests and single-binary runs.
type MemoryStore struct {
	mu   sync.Mutex
	rows []*memoryRow
	next int64
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) Enqueue(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.EventID == uuid.Nil {
		msg.EventID = uuid.New()
	}
	s.next++
	s.rows = append(s.rows, &memoryRow{
		Claimed: Claimed{
			ID:        s.next,
			EventID:   msg.EventID,
			RequestID: msg.RequestID,
			Topic:     msg.Topic,
			Payload:   append([]byte(nil), msg.Payload...),
		},
		availableAt: s.now(),
	})
	metricsInstance().enqueueTotal.WithLabelValues(msg.Topic).Inc()
	return nil
}

func (s *MemoryStore) Claim(_ context.Context, now, staleBefore time.Time, limit int) ([]Claimed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Claimed
	for _, r := range s.rows {
		if len(out) >= limit {
			break
		}
		if !r.publishedAt.IsZero() || !r.deadAt.IsZero() || r.availableAt.After(now) {
			continue
		}
		if !r.lockedAt.IsZero() && !r.lockedAt.Before(staleBefore) {
			continue
		}
		r.lockedAt = now
		r.Attempts++
		out = append(out, r.Claimed)
	}
	return out, nil
}

func (s *MemoryStore) Ack(_ context.Context, id int64) error {
	return s.update(id, func(r *memoryRow) {
		r.publishedAt = s.now()
		r.lockedAt = time.Time{}
		r.lastError = ""
	})
}

func (s *MemoryStore) Nack(_ context.Context, id int64, lastError string, next time.Time) error {
	return s.update(id, func(r *memoryRow) {
		r.lockedAt = time.Time{}
		r.lastError = lastError
		r.availableAt = next
	})
}

func (s *MemoryStore) Dead(_ context.Context, id int64, lastError string) error {
	return s.update(id, func(r *memoryRow) {
		r.deadAt = s.now()
		r.lockedAt = time.Time{}
		r.lastError = lastError
	})
}

func (s *MemoryStore) Depth(context.Context) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending, locked int64
	for _, r := range s.rows {
		if !r.publishedAt.IsZero() || !r.deadAt.IsZero() {
			continue
		}
		if r.lockedAt.IsZero() {
			pending++
		} else {
			locked++
		}
	}
	return pending, locked, nil
}

func (s *MemoryStore) LatestForRequest(_ context.Context, requestID int64) (*models.GenerationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.rows) - 1; i >= 0; i-- {
		r := s.rows[i]
		if r.RequestID != requestID {
			continue
		}
		state := &models.GenerationState{
			EventID:   r.EventID.String(),
			Attempts:  r.Attempts,
			LastError: r.lastError,
			State:     models.GenerationPending,
			UpdatedAt: r.availableAt,
		}
		switch {
		case !r.publishedAt.IsZero():
			state.State, state.UpdatedAt = models.GenerationDelivered, r.publishedAt
		case !r.deadAt.IsZero():
			state.State, state.UpdatedAt = models.GenerationFailed, r.deadAt
		}
		return state, nil
	}
	return nil, nil
}

// Messages returns a snapshot of every stored message for a topic.
func (s *MemoryStore) Messages(topic string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, r := range s.rows {
		if r.Topic == topic {
			out = append(out, Message{EventID: r.EventID, RequestID: r.RequestID, Topic: r.Topic, Payload: r.Payload})
		}
	}
	return out
}

func (s *MemoryStore) update(id int64, fn func(*memoryRow)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ID == id {
			fn(r)
			return nil
		}
	}
	return nil
}
