// Package broadcast notifies every registered recipient that a period's
// receipt is available.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"recibos/internal/ackstate"
	"recibos/internal/catalog"
	"recibos/internal/ledger"
	"recibos/internal/phone"
	"recibos/internal/platform/logger"
	"recibos/internal/platform/metrics"
	"recibos/internal/registry"
	"recibos/internal/transport"
	dErrors "recibos/pkg/domain-errors"
	"recibos/pkg/platform/sentinel"
)

type Directory interface {
	Rows(ctx context.Context) ([]registry.Row, error)
}

type Catalog interface {
	FindDocument(ctx context.Context, documentID string, period catalog.Period) (string, error)
}

type Ledger interface {
	RecordSent(ctx context.Context, in ledger.Sent) error
	LinkPending(ctx context.Context, phone, documentID, period string) error
}

type Acks interface {
	GetMany(ctx context.Context, keys []ackstate.Key) (map[ackstate.Key]ackstate.State, error)
}

// Outcome classifies one registry row of a run.
type Outcome string

const (
	OutcomeSent          Outcome = "sent"
	OutcomeWouldSend     Outcome = "dry_run"
	OutcomeMissingFields Outcome = "missing_fields"
	OutcomeDuplicate     Outcome = "duplicate_phone"
	OutcomeNoDocument    Outcome = "no_document"
	OutcomeDocstoreError Outcome = "docstore_error"
	OutcomeSendError     Outcome = "send_error"
	OutcomeLimitReached  Outcome = "limit_reached"
)

// Options select what a run does.
type Options struct {
	Period string `json:"period"`
	DryRun bool   `json:"dry_run"`
	// Limit caps the number of sends (or would-be sends on a dry run). Zero
	// means no cap.
	Limit int `json:"limit"`
}

// Result is the outcome for one registry row.
type Result struct {
	Phone       string  `json:"phone"`
	DisplayName string  `json:"name"`
	DocumentID  string  `json:"document_id"`
	Outcome     Outcome `json:"outcome"`
	MessageID   string  `json:"message_id,omitempty"`
	State       string  `json:"state,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// Summary aggregates a run.
type Summary struct {
	Period   string          `json:"period"`
	DryRun   bool            `json:"dry_run"`
	Total    int             `json:"total"`
	Sent     int             `json:"sent"`
	Skipped  int             `json:"skipped"`
	Limited  bool            `json:"limited"`
	Outcomes map[Outcome]int `json:"outcomes"`
	Results  []Result        `json:"results"`
}

func (s *Summary) add(r Result) {
	s.Results = append(s.Results, r)
	s.Outcomes[r.Outcome]++
	switch r.Outcome {
	case OutcomeSent, OutcomeWouldSend:
		s.Sent++
	default:
		s.Skipped++
	}
}

// Dependencies are required; Acks may be nil, in which case dry runs leave
// Result.State empty.
type Dependencies struct {
	Directory Directory
	Catalog   Catalog
	Ledger    Ledger
	Sender    transport.Sender
	Acks      Acks
}

// Dispatcher sends the availability notification.
type Dispatcher struct {
	deps        Dependencies
	templateSID string
	body        string
	metrics     *metrics.Metrics
	logger      *slog.Logger
	tracer      trace.Tracer
}

type Option func(*Dispatcher)

// WithTemplate sends the approved template sid with variables "1" (name) and
// "2" (period).
func WithTemplate(sid string) Option {
	return func(d *Dispatcher) {
		d.templateSID = sid
	}
}

// WithBody sets the plain-text notification used without a template.
// Placeholders are {nombre} and {periodo}.
func WithBody(body string) Option {
	return func(d *Dispatcher) {
		if body != "" {
			d.body = body
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

const defaultBody = "Hola {nombre}, ya está disponible tu recibo de sueldo de {periodo}."

func New(deps Dependencies, opts ...Option) (*Dispatcher, error) {
	if deps.Directory == nil || deps.Catalog == nil || deps.Ledger == nil || deps.Sender == nil {
		return nil, errors.New("broadcast requires directory, catalog, ledger and sender")
	}
	d := &Dispatcher{
		deps:   deps,
		body:   defaultBody,
		logger: slog.Default(),
		tracer: otel.Tracer("recibos/broadcast"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// candidate is a row that passed validation and has a document on file.
type candidate struct {
	row    registry.Row
	result Result
}

// Run iterates the registry once. Per-row failures are recorded as skips;
// only an invalid period or an unreadable registry fail the run.
func (d *Dispatcher) Run(ctx context.Context, opts Options) (Summary, error) {
	period, err := catalog.ParseLabel(opts.Period)
	if err != nil {
		return Summary{}, err
	}
	if opts.Limit < 0 {
		return Summary{}, dErrors.New(dErrors.CodeValidation, "limit must not be negative")
	}
	label := period.String()

	ctx, span := d.tracer.Start(ctx, "broadcast.run", trace.WithAttributes(
		attribute.String("broadcast.period", label),
		attribute.Bool("broadcast.dry_run", opts.DryRun),
		attribute.Int("broadcast.limit", opts.Limit),
	))
	defer span.End()

	rows, err := d.deps.Directory.Rows(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Summary{}, fmt.Errorf("broadcast %s: %w", label, err)
	}

	summary := Summary{Period: label, DryRun: opts.DryRun, Outcomes: map[Outcome]int{}}
	seen := make(map[string]bool, len(rows))
	var ready []candidate
	for _, row := range rows {
		res := Result{Phone: logger.MaskPhone(row.Phone), DisplayName: row.DisplayName, DocumentID: row.DocumentID}
		switch {
		case !phone.Resolvable(row.Phone) || row.DocumentID == "":
			res.Outcome = OutcomeMissingFields
		case seen[row.Phone]:
			res.Outcome = OutcomeDuplicate
		}
		if res.Outcome != "" {
			d.skip(ctx, &summary, res)
			continue
		}
		seen[row.Phone] = true

		if _, err := d.deps.Catalog.FindDocument(ctx, row.DocumentID, period); err != nil {
			res.Outcome = OutcomeNoDocument
			if !errors.Is(err, sentinel.ErrNotFound) {
				res.Outcome = OutcomeDocstoreError
				res.Error = err.Error()
			}
			d.skip(ctx, &summary, res)
			continue
		}
		ready = append(ready, candidate{row: row, result: res})
	}

	if opts.DryRun {
		d.annotateStates(ctx, ready, label)
	}

	// Only successful sends count toward the limit; a failed send leaves
	// room for the next candidate.
	sent := 0
	for _, c := range ready {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("broadcast %s interrupted: %w", label, err)
		}
		if opts.Limit > 0 && sent >= opts.Limit {
			c.result.Outcome = OutcomeLimitReached
			d.skip(ctx, &summary, c.result)
			summary.Limited = true
			continue
		}
		if opts.DryRun {
			c.result.Outcome = OutcomeWouldSend
			summary.Total++
			summary.add(c.result)
			d.metrics.IncBroadcast(string(OutcomeWouldSend))
			sent++
			continue
		}
		if d.notify(ctx, &summary, c, label) {
			sent++
		}
	}

	span.SetAttributes(
		attribute.Int("broadcast.sent", summary.Sent),
		attribute.Int("broadcast.skipped", summary.Skipped),
	)
	d.logger.InfoContext(ctx, "broadcast finished",
		"period", label,
		"dry_run", opts.DryRun,
		"total", summary.Total,
		"sent", summary.Sent,
		"skipped", summary.Skipped,
		"limited", summary.Limited,
	)
	return summary, nil
}

func (d *Dispatcher) skip(ctx context.Context, s *Summary, res Result) {
	s.Total++
	s.add(res)
	d.metrics.IncBroadcast(string(res.Outcome))
	d.logger.DebugContext(ctx, "broadcast row skipped",
		"phone", res.Phone,
		"document_id", res.DocumentID,
		"outcome", res.Outcome,
	)
}

// notify reports whether the message was accepted by the sender.
func (d *Dispatcher) notify(ctx context.Context, s *Summary, c candidate, label string) bool {
	s.Total++
	res := c.result
	msg := d.message(c.row, label)

	sid, err := d.deps.Sender.Send(ctx, msg)
	if errors.Is(err, sentinel.ErrUnavailable) {
		sid, err = d.deps.Sender.Send(ctx, msg)
	}
	if err != nil {
		res.Outcome = OutcomeSendError
		res.Error = err.Error()
		s.add(res)
		d.metrics.IncBroadcast(string(OutcomeSendError))
		d.metrics.IncSend(string(ledger.KindTemplate), "error")
		d.logger.WarnContext(ctx, "send_failed",
			"phone", res.Phone,
			"kind", ledger.KindTemplate,
			"document_id", res.DocumentID,
			"period", label,
			"error", err,
		)
		return false
	}
	d.metrics.IncSend(string(ledger.KindTemplate), "ok")

	err = d.deps.Ledger.RecordSent(ctx, ledger.Sent{
		MessageID:   sid,
		Recipient:   c.row.Phone,
		DocumentID:  c.row.DocumentID,
		Period:      label,
		Kind:        ledger.KindTemplate,
		DisplayName: c.row.DisplayName,
	})
	if err != nil {
		d.logger.ErrorContext(ctx, "ledger_write_failed", "message_id", sid, "kind", ledger.KindTemplate, "error", err)
	}
	if err := d.deps.Ledger.LinkPending(ctx, c.row.Phone, c.row.DocumentID, label); err != nil {
		d.logger.ErrorContext(ctx, "pending_view_write_failed", "phone", res.Phone, "error", err)
	}

	res.Outcome = OutcomeSent
	res.MessageID = sid
	s.add(res)
	d.metrics.IncBroadcast(string(OutcomeSent))
	return true
}

func (d *Dispatcher) message(row registry.Row, label string) transport.Message {
	to := row.RawPhone
	if to == "" {
		to = row.Phone
	}
	if d.templateSID != "" {
		return transport.Message{
			To:          to,
			TemplateSID: d.templateSID,
			Variables:   map[string]string{"1": row.DisplayName, "2": label},
		}
	}
	return transport.Message{To: to, Body: render(d.body, row.DisplayName, label)}
}

// annotateStates fills the current acknowledgment state on dry-run results.
func (d *Dispatcher) annotateStates(ctx context.Context, ready []candidate, label string) {
	if d.deps.Acks == nil || len(ready) == 0 {
		return
	}
	keys := make([]ackstate.Key, len(ready))
	for i, c := range ready {
		keys[i] = ackstate.Key{DocumentID: c.row.DocumentID, Period: label}
	}
	states, err := d.deps.Acks.GetMany(ctx, keys)
	if err != nil {
		d.logger.WarnContext(ctx, "ack_state_unavailable", "period", label, "error", err)
		return
	}
	for i := range ready {
		st, ok := states[keys[i]]
		if !ok {
			st = ackstate.StateAvailable
		}
		ready[i].result.State = string(st)
	}
}

func render(text, name, period string) string {
	return strings.NewReplacer("{nombre}", name, "{periodo}", period).Replace(text)
}
