package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/google/uuid"
)

// PostgresStore is the generation_outbox table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Claim locks up to limit due messages in one statement. Rows locked by a
// relay that stopped before staleBefore are reclaimed.
func (s *PostgresStore) Claim(ctx context.Context, now, staleBefore time.Time, limit int) ([]Claimed, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE generation_outbox
		SET locked_at = $1, attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM generation_outbox
			WHERE published_at IS NULL
			  AND dead_at IS NULL
			  AND available_at <= $1
			  AND (locked_at IS NULL OR locked_at < $2)
			ORDER BY available_at, id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, event_id, request_id, topic, payload, attempts`,
		now, staleBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox messages: %w", err)
	}
	defer rows.Close()

	var claimed []Claimed
	for rows.Next() {
		var (
			c       Claimed
			eventID string
			payload []byte
		)
		if err := rows.Scan(&c.ID, &eventID, &c.RequestID, &c.Topic, &payload, &c.Attempts); err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		if c.EventID, err = uuid.Parse(eventID); err != nil {
			return nil, fmt.Errorf("outbox message %d has invalid event id: %w", c.ID, err)
		}
		c.Payload = payload
		claimed = append(claimed, c)
	}
	return claimed, rows.Err()
}

func (s *PostgresStore) Ack(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE generation_outbox SET published_at = now(), locked_at = NULL, last_error = '' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to ack outbox message %d: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) Nack(ctx context.Context, id int64, lastError string, next time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE generation_outbox SET locked_at = NULL, last_error = $2, available_at = $3 WHERE id = $1`,
		id, lastError, next)
	if err != nil {
		return fmt.Errorf("failed to nack outbox message %d: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) Dead(ctx context.Context, id int64, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE generation_outbox SET dead_at = now(), locked_at = NULL, last_error = $2 WHERE id = $1`,
		id, lastError)
	if err != nil {
		return fmt.Errorf("failed to mark outbox message %d dead: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) Depth(ctx context.Context) (int64, int64, error) {
	var pending, locked int64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			count(*) FILTER (WHERE locked_at IS NULL),
			count(*) FILTER (WHERE locked_at IS NOT NULL)
		FROM generation_outbox
		WHERE published_at IS NULL AND dead_at IS NULL`,
	).Scan(&pending, &locked)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read outbox depth: %w", err)
	}
	return pending, locked, nil
}

// LatestForRequest reports the newest marker for a request, or nil when
// none was ever written.
func (s *PostgresStore) LatestForRequest(ctx context.Context, requestID int64) (*models.GenerationState, error) {
	var (
		state       models.GenerationState
		publishedAt sql.NullTime
		deadAt      sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT event_id, attempts, last_error, published_at, dead_at,
			COALESCE(published_at, dead_at, locked_at, available_at)
		FROM generation_outbox
		WHERE request_id = $1
		ORDER BY id DESC
		LIMIT 1`, requestID,
	).Scan(&state.EventID, &state.Attempts, &state.LastError, &publishedAt, &deadAt, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read generation state for request %d: %w", requestID, err)
	}
	switch {
	case publishedAt.Valid:
		state.State = models.GenerationDelivered
	case deadAt.Valid:
		state.State = models.GenerationFailed
	default:
		state.State = models.GenerationPending
	}
	return &state, nil
}

// TryLeader takes a session advisory lock on a dedicated connection. The
// returned release func unlocks and returns the connection to the pool.
func (s *PostgresStore) TryLeader(ctx context.Context, name string) (func(), bool, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to reserve connection for relay lock: %w", err)
	}
	key := advisoryKey(name)
	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1::bigint)`, key).Scan(&ok); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("failed to take relay lock: %w", err)
	}
	if !ok {
		_ = conn.Close()
		return nil, false, nil
	}
	release := func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1::bigint)`, key)
		_ = conn.Close()
	}
	return release, true, nil
}

func advisoryKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("formationflow/outbox/" + name))
	return int64(h.Sum64())
}
