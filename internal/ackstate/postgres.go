package ackstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"recibos/internal/platform/postgres"
)

// PostgresStore persists states in document_ack_states. Pure I/O.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) Get(ctx context.Context, key Key) (State, error) {
	var state State
	err := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT state FROM document_ack_states WHERE document_id = $1 AND period = $2`,
		key.DocumentID, key.Period,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return StateAvailable, nil
	}
	if err != nil {
		return "", fmt.Errorf("get ack state: %w", err)
	}
	return state, nil
}

func (s *PostgresStore) Set(ctx context.Context, key Key, state State) error {
	query := `
		INSERT INTO document_ack_states (document_id, period, state, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (document_id, period) DO UPDATE SET
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := postgres.Conn(ctx, s.db).ExecContext(ctx, query, key.DocumentID, key.Period, state, s.now()); err != nil {
		return fmt.Errorf("set ack state: %w", err)
	}
	return nil
}

// CompareAndSet treats a missing row as StateAvailable, so the first
// transition of a document inserts its row.
func (s *PostgresStore) CompareAndSet(ctx context.Context, key Key, expected, next State) (bool, error) {
	var (
		res sql.Result
		err error
	)
	conn := postgres.Conn(ctx, s.db)
	if expected == StateAvailable {
		res, err = conn.ExecContext(ctx, `
			INSERT INTO document_ack_states (document_id, period, state, updated_at)
			VALUES ($1, $2, $4, $5)
			ON CONFLICT (document_id, period) DO UPDATE SET
				state = EXCLUDED.state,
				updated_at = EXCLUDED.updated_at
			WHERE document_ack_states.state = $3
		`, key.DocumentID, key.Period, expected, next, s.now())
	} else {
		res, err = conn.ExecContext(ctx, `
			UPDATE document_ack_states
			SET state = $4, updated_at = $5
			WHERE document_id = $1 AND period = $2 AND state = $3
		`, key.DocumentID, key.Period, expected, next, s.now())
	}
	if err != nil {
		return false, fmt.Errorf("compare and set ack state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("compare and set ack state: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) GetMany(ctx context.Context, keys []Key) (map[Key]State, error) {
	out := make(map[Key]State, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	docs := make([]string, len(keys))
	periods := make([]string, len(keys))
	for i, k := range keys {
		docs[i], periods[i] = k.DocumentID, k.Period
		out[k] = StateAvailable
	}
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT s.document_id, s.period, s.state
		FROM document_ack_states s
		JOIN unnest($1::text[], $2::text[]) AS k(document_id, period)
			ON s.document_id = k.document_id AND s.period = k.period
	`, pq.Array(docs), pq.Array(periods))
	if err != nil {
		return nil, fmt.Errorf("get ack states: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			k     Key
			state State
		)
		if err := rows.Scan(&k.DocumentID, &k.Period, &state); err != nil {
			return nil, fmt.Errorf("scan ack state: %w", err)
		}
		out[k] = state
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ack states: %w", err)
	}
	return out, nil
}
