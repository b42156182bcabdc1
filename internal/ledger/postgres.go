package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"recibos/internal/platform/postgres"
	"recibos/pkg/platform/sentinel"
)

// PostgresStore persists the ledger. Pure I/O; aggregation lives in Service.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InsertSent(ctx context.Context, rec DeliveryRecord) error {
	query := `
		INSERT INTO delivery_records (message_id, recipient, document_id, period, kind, display_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (message_id) DO UPDATE SET
			recipient    = CASE WHEN delivery_records.recipient = '' THEN EXCLUDED.recipient ELSE delivery_records.recipient END,
			document_id  = CASE WHEN delivery_records.document_id = '' THEN EXCLUDED.document_id ELSE delivery_records.document_id END,
			period       = CASE WHEN delivery_records.period = '' THEN EXCLUDED.period ELSE delivery_records.period END,
			kind         = CASE WHEN delivery_records.kind = '' THEN EXCLUDED.kind ELSE delivery_records.kind END,
			display_name = CASE WHEN delivery_records.display_name = '' THEN EXCLUDED.display_name ELSE delivery_records.display_name END,
			created_at   = LEAST(delivery_records.created_at, EXCLUDED.created_at)
	`
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, query,
		rec.MessageID, rec.Recipient, rec.DocumentID, rec.Period, rec.Kind, rec.DisplayName, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert delivery record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ApplyStatus(ctx context.Context, u StatusUpdate) error {
	var delivered, read, failed *time.Time
	switch u.Status {
	case StatusDelivered:
		delivered = &u.At
	case StatusRead:
		read = &u.At
	case StatusFailed, StatusUndelivered:
		failed = &u.At
	}
	query := `
		INSERT INTO delivery_records (message_id, created_at, last_status, error_code, error_message, delivered_at, read_at, failed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $2)
		ON CONFLICT (message_id) DO UPDATE SET
			last_status   = EXCLUDED.last_status,
			error_code    = CASE WHEN EXCLUDED.error_code <> '' THEN EXCLUDED.error_code ELSE delivery_records.error_code END,
			error_message = CASE WHEN EXCLUDED.error_message <> '' THEN EXCLUDED.error_message ELSE delivery_records.error_message END,
			delivered_at  = COALESCE(delivery_records.delivered_at, EXCLUDED.delivered_at),
			read_at       = COALESCE(delivery_records.read_at, EXCLUDED.read_at),
			failed_at     = COALESCE(delivery_records.failed_at, EXCLUDED.failed_at),
			updated_at    = EXCLUDED.updated_at
	`
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, query,
		u.MessageID, u.At, u.Status, u.ErrorCode, u.ErrorMessage, delivered, read, failed)
	if err != nil {
		return fmt.Errorf("apply delivery status: %w", err)
	}
	return nil
}

const deliveryColumns = `message_id, recipient, document_id, period, kind, display_name, created_at,
	last_status, error_code, error_message, delivered_at, read_at, failed_at, updated_at`

func (s *PostgresStore) Get(ctx context.Context, messageID string) (DeliveryRecord, error) {
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+deliveryColumns+` FROM delivery_records WHERE message_id = $1`, messageID)
	rec, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DeliveryRecord{}, sentinel.ErrNotFound
	}
	if err != nil {
		return DeliveryRecord{}, fmt.Errorf("get delivery record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListDeliveries(ctx context.Context, periods []string) ([]DeliveryRecord, error) {
	query := `SELECT ` + deliveryColumns + ` FROM delivery_records
		WHERE cardinality($1::text[]) = 0 OR period = ANY($1)
		ORDER BY created_at, message_id`
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, query, pq.Array(periods))
	if err != nil {
		return nil, fmt.Errorf("list delivery records: %w", err)
	}
	defer rows.Close()

	var out []DeliveryRecord
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) AppendConfirmation(ctx context.Context, rec ConfirmationRecord) error {
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO confirmations (id, recipient, document_id, period, response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.ID, rec.Recipient, rec.DocumentID, rec.Period, rec.Response, rec.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("append confirmation %s: %w", rec.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("append confirmation: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListConfirmations(ctx context.Context, periods []string) ([]ConfirmationRecord, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT id, recipient, document_id, period, response, created_at
		FROM confirmations
		WHERE cardinality($1::text[]) = 0 OR period = ANY($1)
		ORDER BY created_at, id
	`, pq.Array(periods))
	if err != nil {
		return nil, fmt.Errorf("list confirmations: %w", err)
	}
	defer rows.Close()

	var out []ConfirmationRecord
	for rows.Next() {
		var c ConfirmationRecord
		if err := rows.Scan(&c.ID, &c.Recipient, &c.DocumentID, &c.Period, &c.Response, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan confirmation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate confirmations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpsertPending(ctx context.Context, v PendingView) error {
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO pending_views (phone, document_id, period, linked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (phone) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			period = EXCLUDED.period,
			linked_at = EXCLUDED.linked_at
	`, v.Phone, v.DocumentID, v.Period, v.LinkedAt)
	if err != nil {
		return fmt.Errorf("upsert pending view: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPending(ctx context.Context, phone string) (PendingView, error) {
	var v PendingView
	err := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT phone, document_id, period, linked_at FROM pending_views WHERE phone = $1`, phone,
	).Scan(&v.Phone, &v.DocumentID, &v.Period, &v.LinkedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return PendingView{}, sentinel.ErrNotFound
	}
	if err != nil {
		return PendingView{}, fmt.Errorf("get pending view: %w", err)
	}
	return v, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDelivery(row scanner) (DeliveryRecord, error) {
	var (
		rec                     DeliveryRecord
		delivered, read, failed sql.NullTime
	)
	err := row.Scan(&rec.MessageID, &rec.Recipient, &rec.DocumentID, &rec.Period, &rec.Kind, &rec.DisplayName,
		&rec.CreatedAt, &rec.LastStatus, &rec.ErrorCode, &rec.ErrorMessage, &delivered, &read, &failed, &rec.UpdatedAt)
	if err != nil {
		return DeliveryRecord{}, err
	}
	rec.DeliveredAt = nullTime(delivered)
	rec.ReadAt = nullTime(read)
	rec.FailedAt = nullTime(failed)
	return rec, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
