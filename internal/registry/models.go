package registry

import (
	"path/filepath"
	"strings"
)

// Row is one imported registry line.
type Row struct {
	DisplayName string
	RawPhone    string
	// Phone is the canonical form of RawPhone.
	Phone      string
	DocumentID string
}

// CanonicalDocumentID trims the cell and strips a file extension, so
// "30111222.pdf" and spreadsheet artifacts like "30111222.0" both become
// "30111222".
func CanonicalDocumentID(raw string) string {
	id := strings.TrimSpace(raw)
	if ext := filepath.Ext(id); ext != "" {
		id = strings.TrimSuffix(id, ext)
	}
	return strings.TrimSpace(id)
}
