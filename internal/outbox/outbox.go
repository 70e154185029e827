package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/google/uuid"
)

// TopicGenerationRequested is written in the same transaction that marks a
// request PAID.
const TopicGenerationRequested = "documents.generation_requested"

// Message is the unit stored in generation_outbox.
type Message struct {
	EventID   uuid.UUID
	RequestID int64
	Topic     string
	Payload   json.RawMessage
}

// Claimed is a message handed to a Dispatcher by the Relay. Attempts
// already counts the delivery in progress.
type Claimed struct {
	ID        int64
	EventID   uuid.UUID
	RequestID int64
	Topic     string
	Payload   json.RawMessage
	Attempts  int
}

// Dispatcher delivers one claimed message. A nil error acknowledges it.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Claimed) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, msg Claimed) error

func (f DispatcherFunc) Dispatch(ctx context.Context, msg Claimed) error {
	return f(ctx, msg)
}

// Store is the persistence the Relay works against.
type Store interface {
	Claim(ctx context.Context, now, staleBefore time.Time, limit int) ([]Claimed, error)
	Ack(ctx context.Context, id int64) error
	Nack(ctx context.Context, id int64, lastError string, next time.Time) error
	Dead(ctx context.Context, id int64, lastError string) error
	Depth(ctx context.Context) (pending, locked int64, err error)
	LatestForRequest(ctx context.Context, requestID int64) (*models.GenerationState, error)
}

// Enqueuer persists a message. Implemented by MemoryStore; the Postgres
// path uses EnqueueTx inside the caller's transaction.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg Message) error
}

// NewGenerationRequested builds the marker written when a request is PAID.
func NewGenerationRequested(requestID int64, requestedBy string) (*Message, error) {
	payload, err := json.Marshal(models.GenerationRequestedEvent{
		RequestID:   requestID,
		RequestedBy: requestedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generation event: %w", err)
	}
	return &Message{
		EventID:   uuid.New(),
		RequestID: requestID,
		Topic:     TopicGenerationRequested,
		Payload:   payload,
	}, nil
}

// DecodeGenerationRequested parses the payload of a generation marker.
func DecodeGenerationRequested(payload []byte) (models.GenerationRequestedEvent, error) {
	var event models.GenerationRequestedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return event, fmt.Errorf("failed to decode generation event: %w", err)
	}
	if event.RequestID <= 0 {
		return event, fmt.Errorf("generation event has no request id")
	}
	return event, nil
}

// EnqueueTx inserts msg using the caller's transaction, so the marker
// commits or rolls back together with the state change that produced it.
func EnqueueTx(ctx context.Context, tx *sql.Tx, msg Message) error {
	if msg.Topic == "" {
		return fmt.Errorf("outbox topic is required")
	}
	if msg.EventID == uuid.Nil {
		msg.EventID = uuid.New()
	}
	if len(msg.Payload) == 0 {
		msg.Payload = json.RawMessage(`{}`)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO generation_outbox (event_id, request_id, topic, payload) VALUES ($1, $2, $3, $4)`,
		msg.EventID.String(), msg.RequestID, msg.Topic, []byte(msg.Payload),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", msg.Topic, err)
	}
	metricsInstance().enqueueTotal.WithLabelValues(msg.Topic).Inc()
	return nil
}
