package webhook

import (
	"net/http"

	"github.com/twilio/twilio-go/twiml"

	"recibos/internal/phone"
	"recibos/internal/platform/logger"
	"recibos/internal/workflow"
	request "recibos/pkg/platform/middleware/request"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// writeTwiML always answers 200 so Twilio never retries a turn.
func (h *Handler) writeTwiML(w http.ResponseWriter, r *http.Request, reply workflow.Reply) {
	verbs := make([]twiml.Element, 0, len(reply.Messages))
	for _, m := range reply.Messages {
		verbs = append(verbs, &twiml.MessagingMessage{Body: m})
	}
	doc, err := twiml.Messages(verbs)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "render twiml",
			"request_id", request.GetRequestID(r.Context()),
			"error", err,
		)
		doc = emptyTwiML
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

func (h *Handler) handleInbound(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		h.logger.WarnContext(ctx, "invalid inbound form",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		h.writeTwiML(w, r, workflow.Reply{})
		return
	}
	ev := workflow.InboundEvent{
		From:          r.PostForm.Get("From"),
		Body:          r.PostForm.Get("Body"),
		ButtonText:    r.PostForm.Get("ButtonText"),
		ButtonPayload: r.PostForm.Get("ButtonPayload"),
	}
	reply, err := h.deps.Engine.HandleInbound(ctx, ev)
	if err != nil {
		h.logger.DebugContext(ctx, "inbound turn ended with error",
			"request_id", request.GetRequestID(ctx),
			"phone", logger.MaskPhone(phone.Normalize(ev.From)),
			"error", err,
		)
	}
	h.writeTwiML(w, r, reply)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		h.logger.WarnContext(ctx, "invalid status callback form", "request_id", request.GetRequestID(ctx), "error", err)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	messageID := r.PostForm.Get("MessageSid")
	status := r.PostForm.Get("MessageStatus")
	err := h.deps.Ledger.ApplyStatus(ctx, messageID, status, r.PostForm.Get("ErrorCode"), r.PostForm.Get("ErrorMessage"))
	if err != nil {
		h.logger.WarnContext(ctx, "status callback not recorded",
			"request_id", request.GetRequestID(ctx),
			"message_id", messageID,
			"status", status,
			"error", err,
		)
	}
	w.WriteHeader(http.StatusNoContent)
}
