// Package workflow runs the receipt conversation: it resolves who is
// writing, offers the right document, and records their decision.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"recibos/internal/ackstate"
	"recibos/internal/catalog"
	"recibos/internal/events"
	"recibos/internal/ledger"
	"recibos/internal/phone"
	"recibos/internal/platform/logger"
	"recibos/internal/platform/metrics"
	"recibos/internal/registry"
	"recibos/internal/session"
	"recibos/internal/transport"
	dErrors "recibos/pkg/domain-errors"
	"recibos/pkg/platform/sentinel"
	"recibos/pkg/requestcontext"
)

// Directory resolves a phone to its registry row.
type Directory interface {
	Resolve(ctx context.Context, rawPhone string) (registry.Row, error)
}

type Catalog interface {
	ListPeriods(ctx context.Context, documentID string) ([]catalog.Period, error)
	FindDocument(ctx context.Context, documentID string, period catalog.Period) (string, error)
}

type Acks interface {
	Get(ctx context.Context, key ackstate.Key) (ackstate.State, error)
	Transition(ctx context.Context, key ackstate.Key, action ackstate.Action) (ackstate.State, error)
}

type Ledger interface {
	RecordSent(ctx context.Context, in ledger.Sent) error
	LogConfirmation(ctx context.Context, recipient, documentID, period, response string) error
	PendingFor(ctx context.Context, phone string) (ledger.PendingView, error)
}

// TxRunner scopes the ack transition and its confirmation log to one unit
// of work.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type noTx struct{}

func (noTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// MediaLinker builds the public URL the transport downloads a document from.
type MediaLinker interface {
	URL(ref, documentID, period string) (string, error)
}

// Dependencies are the collaborators every Engine needs.
type Dependencies struct {
	Directory Directory
	Catalog   Catalog
	Acks      Acks
	Sessions  session.Store
	Ledger    Ledger
	Sender    transport.Sender
	Links     MediaLinker
	// Tx is optional; without it each store call commits on its own.
	Tx TxRunner
}

// Reply is the synchronous answer to an inbound event. No messages means an
// empty response.
type Reply struct {
	Messages []string
}

func text(s string) Reply {
	return Reply{Messages: []string{s}}
}

// Engine handles inbound events one turn at a time per phone.
type Engine struct {
	deps        Dependencies
	events      events.Publisher
	messages    *Messages
	templateSID string
	locks       *turnLocks
	metrics     *metrics.Metrics
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithMessages(m *Messages) Option {
	return func(e *Engine) {
		if m != nil {
			e.messages = m
		}
	}
}

func WithEvents(p events.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.events = p
		}
	}
}

// WithPromptTemplate sends the view prompt as an approved template with a
// view button instead of a plain reply.
func WithPromptTemplate(sid string) Option {
	return func(e *Engine) {
		e.templateSID = sid
	}
}

func WithTurnTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.locks.timeout = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func (e *Engine) clock(ctx context.Context) time.Time {
	if e.now != nil {
		return e.now().UTC()
	}
	return requestcontext.Now(ctx).UTC()
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

func New(deps Dependencies, opts ...Option) (*Engine, error) {
	switch {
	case deps.Directory == nil:
		return nil, errors.New("directory is required")
	case deps.Catalog == nil:
		return nil, errors.New("catalog is required")
	case deps.Acks == nil:
		return nil, errors.New("ack service is required")
	case deps.Sessions == nil:
		return nil, errors.New("session store is required")
	case deps.Ledger == nil:
		return nil, errors.New("ledger is required")
	case deps.Sender == nil:
		return nil, errors.New("sender is required")
	case deps.Links == nil:
		return nil, errors.New("media linker is required")
	}
	if deps.Tx == nil {
		deps.Tx = noTx{}
	}
	e := &Engine{
		deps:     deps,
		events:   events.Nop{},
		messages: DefaultMessages(),
		locks:    &turnLocks{},
		logger:   slog.Default(),
		tracer:   otel.Tracer("recibos/workflow"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// turn is the working state of one inbound event.
type turn struct {
	ev          InboundEvent
	phone       string
	text        string
	sess        *session.Session
	displayName string
}

// HandleInbound always returns a usable Reply. A non-nil error is for the
// caller's logs only.
func (e *Engine) HandleInbound(ctx context.Context, ev InboundEvent) (Reply, error) {
	start := time.Now()
	defer e.metrics.ObserveTurn(start)
	kind := ev.kind()
	e.metrics.IncInbound(kind)

	ctx, span := e.tracer.Start(ctx, "workflow.turn", trace.WithAttributes(attribute.String("inbound.kind", kind)))
	defer span.End()

	if ev.IsEmpty() {
		return text(e.messages.EmptyMessage), nil
	}
	canonical := phone.Normalize(ev.From)
	if !phone.Resolvable(canonical) {
		e.logger.InfoContext(ctx, "recipient_unresolved", "phone", logger.MaskPhone(canonical), "reason", "short_number")
		return text(e.messages.NotRegistered), nil
	}

	var reply Reply
	err := e.locks.Run(ctx, canonical, func(ctx context.Context) error {
		sess, err := e.deps.Sessions.Load(ctx, canonical)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		t := &turn{ev: ev, phone: canonical, text: normalize(ev.Body), sess: sess}
		from := sess.State
		reply = e.step(ctx, t)

		span.SetAttributes(
			attribute.String("flow.from", string(from)),
			attribute.String("flow.to", string(sess.State)),
		)
		if err := e.deps.Sessions.Save(ctx, sess); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		e.logger.DebugContext(ctx, "turn handled",
			"phone", logger.MaskPhone(canonical),
			"from_state", from,
			"to_state", sess.State,
		)
		return nil
	})
	if err == nil {
		return reply, nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		// The turn's side effects already happened; only its session update
		// lost against another instance.
		e.metrics.IncSessionConflict()
		e.logger.WarnContext(ctx, "session_conflict", "phone", logger.MaskPhone(canonical))
		return reply, err
	case dErrors.HasCode(err, dErrors.CodeTimeout):
		e.logger.WarnContext(ctx, "turn_timeout", "phone", logger.MaskPhone(canonical), "error", err)
		return text(e.messages.Busy), err
	default:
		e.logger.ErrorContext(ctx, "turn_failed", "phone", logger.MaskPhone(canonical), "error", err)
		return text(e.messages.Unavailable), err
	}
}

func (e *Engine) step(ctx context.Context, t *turn) Reply {
	switch t.sess.State {
	case session.FlowAwaitingViewConfirm:
		return e.onViewConfirm(ctx, t)
	case session.FlowAwaitingSignOrObject:
		return e.onSignOrObject(ctx, t)
	case session.FlowAwaitingUndoObjection:
		return e.onUndoObjection(ctx, t)
	case session.FlowWaitingOption:
		return e.onOption(ctx, t)
	default:
		return e.onIdle(ctx, t)
	}
}
