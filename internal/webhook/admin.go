package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzip"

	"recibos/internal/broadcast"
	"recibos/internal/catalog"
	"recibos/internal/ledger"
	dErrors "recibos/pkg/domain-errors"
	"recibos/pkg/platform/httputil"
	request "recibos/pkg/platform/middleware/request"
	"recibos/pkg/platform/sentinel"
)

func (h *Handler) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	var opts broadcast.Options
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		h.logger.WarnContext(ctx, "invalid broadcast request", "request_id", requestID, "error", err)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	summary, err := h.deps.Broadcaster.Run(ctx, opts)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeValidation) {
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "broadcast failed", "request_id", requestID, "period", opts.Period, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "broadcast failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

// handleReport streams the reconciliation CSV. Repeat ?period= or pass a
// comma separated list to filter.
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	periods, err := catalog.ParseLabels(r.URL.Query()["period"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rows, err := h.deps.Ledger.BuildReport(ctx, periods...)
	if err != nil {
		h.logger.ErrorContext(ctx, "report failed", "request_id", request.GetRequestID(ctx), "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "report unavailable"))
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="reporte_recibos.csv"`)
	w.Header().Add("Vary", "Accept-Encoding")
	if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.WriteHeader(http.StatusOK)
		if err := ledger.WriteCSV(w, rows); err != nil {
			h.logger.WarnContext(ctx, "report write interrupted", "request_id", request.GetRequestID(ctx), "error", err)
		}
		return
	}

	w.Header().Set("Content-Encoding", "gzip")
	w.WriteHeader(http.StatusOK)
	gz := gzip.NewWriter(w)
	err = ledger.WriteCSV(gz, rows)
	if closeErr := gz.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		h.logger.WarnContext(ctx, "report write interrupted", "request_id", request.GetRequestID(ctx), "error", err)
	}
}

// handleMedia serves the document behind a signed media link. The route
// token carries a ".pdf" suffix so the transport sees a file name.
func (h *Handler) handleMedia(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, err := h.deps.Links.Verify(chi.URLParam(r, "token"))
	if err != nil {
		h.logger.InfoContext(ctx, "media link rejected", "request_id", request.GetRequestID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}
	data, err := h.deps.Documents.Open(ctx, claims.Ref)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "document not found"))
			return
		}
		h.logger.WarnContext(ctx, "docstore_unavailable",
			"request_id", request.GetRequestID(ctx),
			"document_id", claims.DocumentID,
			"period", claims.Period,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "document store unavailable"))
		return
	}
	name := fmt.Sprintf("recibo_%s_%s.pdf", claims.DocumentID, strings.ReplaceAll(claims.Period, "/", "-"))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
