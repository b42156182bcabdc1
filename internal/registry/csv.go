package registry

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"recibos/internal/phone"
	"recibos/pkg/platform/sentinel"
	"recibos/pkg/platform/textnorm"
)

// ErrMissingColumns fails the whole import; no partial registry is returned.
var ErrMissingColumns = errors.New("registry is missing required columns")

// Header aliases, matched after textnorm.Fold.
var (
	phoneAliases    = []string{"telefono", "celular", "whatsapp", "phone", "movil", "numero"}
	documentAliases = []string{"documento", "dni", "cuil", "legajo", "archivo", "recibo", "document_id", "documento_id"}
	nameAliases     = []string{"nombre", "apellido y nombre", "nombre y apellido", "empleado", "name", "display_name"}
)

// CSVSource reads the registry from a CSV export each time Load is called.
type CSVSource struct {
	path string
}

func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

func (s *CSVSource) Load(ctx context.Context) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open registry %s: %w: %w", s.path, sentinel.ErrUnavailable, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a registry export. The delimiter is sniffed from the header
// line: spreadsheet exports in es-AR use ";".
func Parse(r io.Reader) ([]Row, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("read registry header: %w", err)
	}

	reader := csv.NewReader(br)
	reader.Comma = sniffDelimiter(string(head))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrMissingColumns)
		}
		return nil, fmt.Errorf("read registry header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read registry row %d: %w", len(rows)+2, err)
		}
		row := Row{
			RawPhone:   strings.TrimSpace(cell(record, cols.phone)),
			DocumentID: CanonicalDocumentID(cell(record, cols.document)),
		}
		if cols.name >= 0 {
			row.DisplayName = strings.TrimSpace(cell(record, cols.name))
		}
		row.Phone = phone.Normalize(row.RawPhone)
		rows = append(rows, row)
	}
	return rows, nil
}

type columns struct {
	phone, document, name int
}

func mapColumns(header []string) (columns, error) {
	cols := columns{phone: -1, document: -1, name: -1}
	for i, h := range header {
		key := textnorm.Fold(strings.TrimPrefix(h, "\ufeff"))
		switch {
		case cols.phone < 0 && matches(key, phoneAliases):
			cols.phone = i
		case cols.document < 0 && matches(key, documentAliases):
			cols.document = i
		case cols.name < 0 && matches(key, nameAliases):
			cols.name = i
		}
	}
	var missing []string
	if cols.phone < 0 {
		missing = append(missing, "telefono")
	}
	if cols.document < 0 {
		missing = append(missing, "documento")
	}
	if len(missing) > 0 {
		return cols, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return cols, nil
}

func matches(key string, aliases []string) bool {
	for _, a := range aliases {
		if key == a {
			return true
		}
	}
	return false
}

func cell(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}

func sniffDelimiter(head string) rune {
	line, _, _ := strings.Cut(head, "\n")
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';'
	}
	return ','
}
