package workflow

import (
	"context"
	"errors"
	"strings"

	"recibos/internal/ackstate"
	"recibos/internal/catalog"
	"recibos/internal/events"
	"recibos/internal/ledger"
	"recibos/internal/platform/logger"
	"recibos/internal/registry"
	"recibos/internal/session"
	"recibos/internal/transport"
	"recibos/pkg/platform/sentinel"
)

func (e *Engine) onIdle(ctx context.Context, t *turn) Reply {
	if t.ev.IsButton() {
		return e.viewFromButton(ctx, t)
	}
	row, periods, reply, ok := e.lookup(ctx, t)
	if !ok {
		return reply
	}
	if isMenuKeyword(t.text) {
		return e.showMenu(t, row, periods)
	}
	return e.promptView(ctx, t, row, periods[0])
}

func (e *Engine) onViewConfirm(ctx context.Context, t *turn) Reply {
	switch {
	case t.ev.IsButton() || isAffirmative(t.text):
		period, err := catalog.ParseLabel(t.sess.Period)
		if err != nil {
			t.sess.Reset()
			return e.onIdle(ctx, t)
		}
		return e.deliver(ctx, t, t.sess.DocumentID, period)
	case isNegative(t.text):
		t.sess.Reset()
		return text(e.messages.ViewDeclined)
	case isMenuKeyword(t.text):
		t.sess.Reset()
		return e.onIdle(ctx, t)
	default:
		return text(Render(e.messages.ViewRepeat, t.sess.Period, ""))
	}
}

func (e *Engine) onSignOrObject(ctx context.Context, t *turn) Reply {
	switch {
	case matchAny(t.text, signWords):
		return e.decide(ctx, t, ackstate.ActionSign)
	case matchAny(t.text, objectWords):
		return e.decide(ctx, t, ackstate.ActionObject)
	case t.ev.IsButton():
		return e.viewFromButton(ctx, t)
	default:
		return text(Render(e.messages.SignOrObjectAgain, t.sess.Period, ""))
	}
}

func (e *Engine) onUndoObjection(ctx context.Context, t *turn) Reply {
	switch {
	case matchAny(t.text, undoWords):
		return e.decide(ctx, t, ackstate.ActionUndo)
	case matchAny(t.text, keepWords):
		return e.decide(ctx, t, ackstate.ActionKeep)
	case t.ev.IsButton():
		return e.viewFromButton(ctx, t)
	default:
		return text(Render(e.messages.UndoAgain, t.sess.Period, ""))
	}
}

func (e *Engine) onOption(ctx context.Context, t *turn) Reply {
	menu := t.sess.Menu
	if menu == nil {
		t.sess.Reset()
		return e.onIdle(ctx, t)
	}
	if t.ev.IsButton() {
		return e.viewFromButton(ctx, t)
	}

	choice, selected := "", false
	if n, ok := optionNumber(t.text); ok {
		choice, selected = menu.Select(n)
	}
	switch {
	case selected && choice != session.MoreOption:
		period, err := catalog.ParseLabel(choice)
		if err != nil {
			return text(e.messages.MenuInvalid + "\n" + e.renderMenu(menu))
		}
		return e.deliver(ctx, t, t.sess.DocumentID, period)
	case selected || isMore(t.text):
		menu.Advance()
		return text(e.renderMenu(menu))
	default:
		return text(e.messages.MenuInvalid + "\n" + e.renderMenu(menu))
	}
}

// lookup resolves the registry row and its periods. When ok is false the
// returned reply explains why and the session is left as is.
func (e *Engine) lookup(ctx context.Context, t *turn) (registry.Row, []catalog.Period, Reply, bool) {
	row, err := e.deps.Directory.Resolve(ctx, t.ev.From)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			e.logger.InfoContext(ctx, "recipient_unresolved", "phone", logger.MaskPhone(t.phone))
			return row, nil, text(e.messages.NotRegistered), false
		}
		e.logger.ErrorContext(ctx, "registry_unavailable", "phone", logger.MaskPhone(t.phone), "error", err)
		return row, nil, text(e.messages.Unavailable), false
	}
	t.displayName = row.DisplayName

	periods, err := e.deps.Catalog.ListPeriods(ctx, row.DocumentID)
	if err != nil {
		e.logLookupFailure(ctx, t, row.DocumentID, "", err)
		return row, nil, text(e.messages.NoDocuments), false
	}
	if len(periods) == 0 {
		e.logger.InfoContext(ctx, "document_missing", "phone", logger.MaskPhone(t.phone), "document_id", row.DocumentID)
		return row, nil, text(e.messages.NoDocuments), false
	}
	return row, periods, Reply{}, true
}

func (e *Engine) promptView(ctx context.Context, t *turn, row registry.Row, period catalog.Period) Reply {
	label := period.String()
	t.sess.Track(session.FlowAwaitingViewConfirm, row.DocumentID, label, "")
	if e.templateSID == "" {
		return text(Render(e.messages.ViewPrompt, label, row.DisplayName))
	}

	sid, err := e.deps.Sender.Send(ctx, transport.Message{
		To:          t.ev.From,
		TemplateSID: e.templateSID,
		Variables:   map[string]string{"1": row.DisplayName, "2": label},
	})
	if err != nil {
		e.metrics.IncSend(string(ledger.KindTemplate), "error")
		e.logger.WarnContext(ctx, "send_failed", "phone", logger.MaskPhone(t.phone), "kind", ledger.KindTemplate, "error", err)
		return text(Render(e.messages.ViewPrompt, label, row.DisplayName))
	}
	e.metrics.IncSend(string(ledger.KindTemplate), "ok")
	e.recordSent(ctx, t, sid, ledger.KindTemplate, row.DocumentID, label)
	return Reply{}
}

func (e *Engine) showMenu(t *turn, row registry.Row, periods []catalog.Period) Reply {
	t.sess.Reset()
	t.sess.State = session.FlowWaitingOption
	t.sess.DocumentID = row.DocumentID
	t.sess.Menu = session.NewMenu(catalog.Labels(periods))
	return text(e.renderMenu(t.sess.Menu))
}

func (e *Engine) renderMenu(m *session.Menu) string {
	var b strings.Builder
	b.WriteString(e.messages.MenuHeader)
	for i := 1; i <= len(m.Options); i++ {
		choice, ok := m.Options[i]
		if !ok {
			continue
		}
		b.WriteByte('\n')
		if choice == session.MoreOption {
			b.WriteString(renderOption(e.messages.MenuMore, i, ""))
			continue
		}
		b.WriteString(renderOption(e.messages.MenuOption, i, choice))
	}
	return b.String()
}

// viewFromButton serves the template button: the document the last
// broadcast announced, or the newest one on file.
func (e *Engine) viewFromButton(ctx context.Context, t *turn) Reply {
	view, err := e.deps.Ledger.PendingFor(ctx, t.phone)
	switch {
	case err == nil:
		if period, perr := catalog.ParseLabel(view.Period); perr == nil && view.DocumentID != "" {
			return e.deliver(ctx, t, view.DocumentID, period)
		}
	case !errors.Is(err, sentinel.ErrNotFound):
		e.logger.WarnContext(ctx, "pending_view_lookup_failed", "phone", logger.MaskPhone(t.phone), "error", err)
	}

	row, periods, reply, ok := e.lookup(ctx, t)
	if !ok {
		t.sess.Reset()
		return reply
	}
	return e.deliver(ctx, t, row.DocumentID, periods[0])
}

// deliver sends the document for (documentID, period) and moves the
// session according to its acknowledgment state.
func (e *Engine) deliver(ctx context.Context, t *turn, documentID string, period catalog.Period) Reply {
	label := period.String()
	ref, err := e.deps.Catalog.FindDocument(ctx, documentID, period)
	if err != nil {
		e.logLookupFailure(ctx, t, documentID, label, err)
		t.sess.Reset()
		return text(Render(e.messages.DocumentMissing, label, ""))
	}

	key := ackstate.Key{DocumentID: documentID, Period: label}
	state, err := e.deps.Acks.Get(ctx, key)
	if err != nil {
		e.logger.ErrorContext(ctx, "ack_state_unavailable", "document_id", documentID, "period", label, "error", err)
		t.sess.Reset()
		return text(e.messages.Unavailable)
	}

	caption, next := e.messages.DocumentCaption, session.FlowAwaitingSignOrObject
	switch state {
	case ackstate.StateObjected:
		caption, next = e.messages.ObjectedCaption, session.FlowAwaitingUndoObjection
	case ackstate.StateSigned:
		caption, next = e.messages.AlreadySigned, session.FlowIdle
	}

	e.fillName(ctx, t)
	mediaURL, err := e.deps.Links.URL(ref, documentID, label)
	if err != nil {
		e.logger.ErrorContext(ctx, "media_link_failed", "document_id", documentID, "period", label, "error", err)
		t.sess.Reset()
		return text(e.messages.SendFailed)
	}
	sid, err := e.deps.Sender.Send(ctx, transport.Message{
		To:       t.ev.From,
		Body:     Render(caption, label, t.displayName),
		MediaURL: mediaURL,
	})
	if err != nil {
		e.metrics.IncSend(string(ledger.KindDocument), "error")
		e.logger.WarnContext(ctx, "send_failed",
			"phone", logger.MaskPhone(t.phone),
			"kind", ledger.KindDocument,
			"document_id", documentID,
			"period", label,
			"error", err,
		)
		t.sess.Reset()
		return text(e.messages.SendFailed)
	}
	e.metrics.IncSend(string(ledger.KindDocument), "ok")
	e.recordSent(ctx, t, sid, ledger.KindDocument, documentID, label)

	if next == session.FlowIdle {
		t.sess.Reset()
	} else {
		t.sess.Track(next, documentID, label, ref)
	}
	return Reply{}
}

// decide applies a sign/object/undo/keep answer to the in-flight document.
func (e *Engine) decide(ctx context.Context, t *turn, action ackstate.Action) Reply {
	documentID, label := t.sess.DocumentID, t.sess.Period
	key := ackstate.Key{DocumentID: documentID, Period: label}

	var state ackstate.State
	err := e.deps.Tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		state, err = e.deps.Acks.Transition(ctx, key, action)
		if err != nil {
			return err
		}
		response := ledger.ResponseObjected
		if state == ackstate.StateSigned {
			response = ledger.ResponseSigned
		}
		return e.deps.Ledger.LogConfirmation(ctx, t.phone, documentID, label, response)
	})
	if err != nil {
		if ackstate.IsInvalidTransition(err) {
			e.logger.InfoContext(ctx, "ack_transition_rejected",
				"document_id", documentID,
				"period", label,
				"action", action,
				"state", state,
			)
			t.sess.Reset()
			return text(Render(e.messages.AlreadyAnswered, label, ""))
		}
		e.logger.ErrorContext(ctx, "ack_transition_failed", "document_id", documentID, "period", label, "error", err)
		return text(e.messages.Unavailable)
	}
	e.publish(ctx, t, action, key, state)
	e.logger.InfoContext(ctx, "receipt acknowledged",
		"phone", logger.MaskPhone(t.phone),
		"document_id", documentID,
		"period", label,
		"action", action,
		"state", state,
	)
	t.sess.Reset()

	switch action {
	case ackstate.ActionObject:
		return text(Render(e.messages.Objected, label, ""))
	case ackstate.ActionKeep:
		return text(Render(e.messages.ObjectionKept, label, ""))
	default:
		return text(Render(e.messages.Signed, label, ""))
	}
}

// fillName looks up the display name on turns that continue a session
// without a registry lookup of their own.
func (e *Engine) fillName(ctx context.Context, t *turn) {
	if t.displayName != "" {
		return
	}
	if row, err := e.deps.Directory.Resolve(ctx, t.ev.From); err == nil {
		t.displayName = row.DisplayName
	}
}

func (e *Engine) publish(ctx context.Context, t *turn, action ackstate.Action, key ackstate.Key, state ackstate.State) {
	eventType := events.TypeSigned
	switch action {
	case ackstate.ActionObject:
		eventType = events.TypeObjected
	case ackstate.ActionKeep:
		eventType = events.TypeObjectionKept
	}
	err := e.events.Publish(ctx, events.AckEvent{
		Type:       eventType,
		Recipient:  t.phone,
		DocumentID: key.DocumentID,
		Period:     key.Period,
		State:      string(state),
		OccurredAt: e.clock(ctx),
	})
	if err != nil {
		e.logger.WarnContext(ctx, "event_publish_failed", "type", eventType, "document_id", key.DocumentID, "error", err)
	}
}

func (e *Engine) recordSent(ctx context.Context, t *turn, sid string, kind ledger.Kind, documentID, period string) {
	err := e.deps.Ledger.RecordSent(ctx, ledger.Sent{
		MessageID:   sid,
		Recipient:   t.phone,
		DocumentID:  documentID,
		Period:      period,
		Kind:        kind,
		DisplayName: t.displayName,
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "ledger_write_failed", "message_id", sid, "kind", kind, "error", err)
	}
}

// logLookupFailure separates a true absence from a store outage; the user
// sees the same reply for both.
func (e *Engine) logLookupFailure(ctx context.Context, t *turn, documentID, period string, err error) {
	if errors.Is(err, sentinel.ErrNotFound) {
		e.logger.InfoContext(ctx, "document_missing",
			"phone", logger.MaskPhone(t.phone),
			"document_id", documentID,
			"period", period,
		)
		return
	}
	e.logger.WarnContext(ctx, "docstore_unavailable",
		"phone", logger.MaskPhone(t.phone),
		"document_id", documentID,
		"period", period,
		"error", err,
	)
}
