package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// ReportHeader is the fixed column order of the exported report.
var ReportHeader = []string{
	"telefono",
	"nombre",
	"documento",
	"periodo",
	"plantilla_enviada",
	"plantilla_entregada",
	"plantilla_leida",
	"plantilla_fallida",
	"documento_enviado",
	"documento_entregado",
	"documento_leido",
	"documento_fallido",
	"respuesta",
	"respuesta_fecha",
}

// WriteCSV writes rows with ReportHeader. Timestamps are RFC 3339 in UTC;
// missing ones are empty cells.
func WriteCSV(w io.Writer, rows []ReportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ReportHeader); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.Recipient,
			r.DisplayName,
			r.DocumentID,
			r.Period,
			stamp(r.Template.SentAt),
			stamp(r.Template.DeliveredAt),
			stamp(r.Template.ReadAt),
			stamp(r.Template.FailedAt),
			stamp(r.Document.SentAt),
			stamp(r.Document.DeliveredAt),
			stamp(r.Document.ReadAt),
			stamp(r.Document.FailedAt),
			r.Response,
			stamp(r.RespondedAt),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write report row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func stamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
