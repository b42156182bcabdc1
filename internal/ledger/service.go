package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"recibos/internal/platform/metrics"
	dErrors "recibos/pkg/domain-errors"
	"recibos/pkg/requestcontext"
)

// Service records deliveries, callbacks and confirmations and folds them
// into the reconciliation report.
type Service struct {
	store   Store
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// clock prefers an explicit WithClock, then the request-scoped time.
func (s *Service) clock(ctx context.Context) time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return requestcontext.Now(ctx).UTC()
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sent describes an outbound message to record.
type Sent struct {
	MessageID   string
	Recipient   string
	DocumentID  string
	Period      string
	Kind        Kind
	DisplayName string
}

// RecordSent is idempotent per MessageID.
func (s *Service) RecordSent(ctx context.Context, in Sent) error {
	if in.MessageID == "" {
		return dErrors.New(dErrors.CodeValidation, "message id is required")
	}
	rec := DeliveryRecord{
		MessageID:   in.MessageID,
		Recipient:   in.Recipient,
		DocumentID:  in.DocumentID,
		Period:      in.Period,
		Kind:        in.Kind,
		DisplayName: in.DisplayName,
		CreatedAt:   s.clock(ctx),
	}
	if err := s.store.InsertSent(ctx, rec); err != nil {
		return fmt.Errorf("record sent %s: %w", in.MessageID, err)
	}
	return nil
}

// ApplyStatus records a transport callback. Statuses are compared
// case-insensitively.
func (s *Service) ApplyStatus(ctx context.Context, messageID, status, errorCode, errorMessage string) error {
	if messageID == "" {
		return dErrors.New(dErrors.CodeValidation, "message id is required")
	}
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return dErrors.New(dErrors.CodeValidation, "message status is required")
	}
	update := StatusUpdate{
		MessageID:    messageID,
		Status:       status,
		ErrorCode:    errorCode,
		ErrorMessage: errorMessage,
		At:           s.clock(ctx),
	}
	if err := s.store.ApplyStatus(ctx, update); err != nil {
		return fmt.Errorf("apply status %s: %w", messageID, err)
	}
	s.metrics.IncStatus(status)
	if errorCode != "" {
		s.logger.WarnContext(ctx, "delivery failed",
			"message_id", messageID,
			"status", status,
			"error_code", errorCode,
			"error_message", errorMessage,
		)
	}
	return nil
}

func (s *Service) LogConfirmation(ctx context.Context, recipient, documentID, period, response string) error {
	rec := ConfirmationRecord{
		ID:         uuid.New(),
		Recipient:  recipient,
		DocumentID: documentID,
		Period:     period,
		Response:   response,
		CreatedAt:  s.clock(ctx),
	}
	if err := s.store.AppendConfirmation(ctx, rec); err != nil {
		return fmt.Errorf("log confirmation: %w", err)
	}
	return nil
}

func (s *Service) Delivery(ctx context.Context, messageID string) (DeliveryRecord, error) {
	return s.store.Get(ctx, messageID)
}

// LinkPending remembers which document the last broadcast announced to phone.
func (s *Service) LinkPending(ctx context.Context, phone, documentID, period string) error {
	view := PendingView{Phone: phone, DocumentID: documentID, Period: period, LinkedAt: s.clock(ctx)}
	if err := s.store.UpsertPending(ctx, view); err != nil {
		return fmt.Errorf("link pending view: %w", err)
	}
	return nil
}

// PendingFor returns sentinel.ErrNotFound when no broadcast reached phone.
func (s *Service) PendingFor(ctx context.Context, phone string) (PendingView, error) {
	return s.store.GetPending(ctx, phone)
}

// BuildReport aggregates deliveries and confirmations per (recipient,
// document, period), optionally limited to periods. Rows keep the order in
// which their key first appeared.
//
// Per kind the earliest send time is kept, while delivered, read and failed
// follow "latest callback wins": records are folded in creation order and a
// later record's non-empty timestamp replaces the earlier one. The first
// non-empty display name wins and the latest confirmation is reported.
func (s *Service) BuildReport(ctx context.Context, periods ...string) ([]ReportRow, error) {
	deliveries, err := s.store.ListDeliveries(ctx, periods)
	if err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}
	confirmations, err := s.store.ListConfirmations(ctx, periods)
	if err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}

	var order []reportKey
	rows := make(map[reportKey]*ReportRow)
	rowFor := func(k reportKey) *ReportRow {
		if r, ok := rows[k]; ok {
			return r
		}
		r := &ReportRow{Recipient: k.recipient, DocumentID: k.documentID, Period: k.period}
		rows[k] = r
		order = append(order, k)
		return r
	}

	for _, d := range deliveries {
		if d.Recipient == "" {
			continue
		}
		row := rowFor(reportKey{d.Recipient, d.DocumentID, d.Period})
		if row.DisplayName == "" {
			row.DisplayName = d.DisplayName
		}
		var times *MessageTimes
		switch d.Kind {
		case KindTemplate:
			times = &row.Template
		case KindDocument:
			times = &row.Document
		default:
			continue
		}
		sent := d.CreatedAt
		if times.SentAt == nil || sent.Before(*times.SentAt) {
			times.SentAt = &sent
		}
		overwrite(&times.DeliveredAt, d.DeliveredAt)
		overwrite(&times.ReadAt, d.ReadAt)
		overwrite(&times.FailedAt, d.FailedAt)
	}

	for _, c := range confirmations {
		row := rowFor(reportKey{c.Recipient, c.DocumentID, c.Period})
		if row.RespondedAt == nil || !c.CreatedAt.Before(*row.RespondedAt) {
			at := c.CreatedAt
			row.Response = c.Response
			row.RespondedAt = &at
		}
	}

	out := make([]ReportRow, 0, len(order))
	for _, k := range order {
		out = append(out, *rows[k])
	}
	return out, nil
}

func overwrite(dst **time.Time, v *time.Time) {
	if v != nil {
		t := *v
		*dst = &t
	}
}
