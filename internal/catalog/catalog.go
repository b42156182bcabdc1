package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"recibos/internal/platform/metrics"
	"recibos/pkg/platform/sentinel"
)

// File is one entry returned by a document store search.
type File struct {
	// Ref is opaque to the catalog and only meaningful to DocumentStore.Open.
	Ref    string
	Folder string
}

// DocumentStore is the storage backend holding one folder per period.
type DocumentStore interface {
	// Find returns every file named exactly name, in any folder.
	Find(ctx context.Context, name string) ([]File, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

const defaultTimeout = 10 * time.Second

// Catalog derives periods and documents from the store on every call.
type Catalog struct {
	store   DocumentStore
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Catalog)

func WithTimeout(d time.Duration) Option {
	return func(c *Catalog) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Catalog) {
		c.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		c.logger = logger
	}
}

func New(store DocumentStore, opts ...Option) *Catalog {
	c := &Catalog{store: store, timeout: defaultTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FileName is the store name of a document.
func FileName(documentID string) string {
	return documentID + ".pdf"
}

// ListPeriods returns the periods holding documentID, newest first.
// Folders that are not "mm-yyyy" are skipped.
func (c *Catalog) ListPeriods(ctx context.Context, documentID string) ([]Period, error) {
	files, err := c.find(ctx, documentID)
	if err != nil {
		return nil, err
	}
	periods := make([]Period, 0, len(files))
	for _, f := range files {
		if p, ok := ParseFolder(f.Folder); ok {
			periods = append(periods, p)
		}
	}
	return SortNewestFirst(periods), nil
}

// FindDocument returns the ref for documentID in period, or
// sentinel.ErrNotFound. With duplicates the first store hit wins.
func (c *Catalog) FindDocument(ctx context.Context, documentID string, period Period) (string, error) {
	files, err := c.find(ctx, documentID)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		if p, ok := ParseFolder(f.Folder); ok && p == period {
			return f.Ref, nil
		}
	}
	return "", sentinel.ErrNotFound
}

// Open reads a whole document by ref under the catalog timeout.
func (c *Catalog) Open(ctx context.Context, ref string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rc, err := c.store.Open(ctx, ref)
	if err != nil {
		return nil, classify("open document", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, classify("read document", err)
	}
	return data, nil
}

func (c *Catalog) find(ctx context.Context, documentID string) ([]File, error) {
	if documentID == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	files, err := c.store.Find(ctx, FileName(documentID))
	c.metrics.ObserveDocstore(start)
	if err != nil {
		return nil, classify("find documents", err)
	}
	return files, nil
}

// classify keeps not-found distinct and files every other store failure,
// timeouts included, under sentinel.ErrUnavailable.
func classify(op string, err error) error {
	if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
}
