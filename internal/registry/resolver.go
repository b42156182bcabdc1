package registry

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"recibos/internal/phone"
	"recibos/pkg/platform/sentinel"
)

// Source loads every registry row. Implementations perform I/O on each call;
// nothing is cached between requests.
type Source interface {
	Load(ctx context.Context) ([]Row, error)
}

// Resolver maps a phone to its registry row.
type Resolver struct {
	source Source
	logger *slog.Logger
	loads  singleflight.Group
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func NewResolver(source Source, opts ...Option) *Resolver {
	r := &Resolver{source: source, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rows loads the current registry snapshot. Concurrent callers share one
// in-flight load; the result is not kept once it returns.
func (r *Resolver) Rows(ctx context.Context) ([]Row, error) {
	v, err, _ := r.loads.Do("registry", func() (any, error) {
		return r.source.Load(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	return v.([]Row), nil
}

// Resolve returns the first row whose canonical phone matches rawPhone.
// Duplicate rows for one phone resolve to the earliest in import order.
func (r *Resolver) Resolve(ctx context.Context, rawPhone string) (Row, error) {
	canonical := phone.Normalize(rawPhone)
	if !phone.Resolvable(canonical) {
		return Row{}, sentinel.ErrNotFound
	}
	rows, err := r.Rows(ctx)
	if err != nil {
		return Row{}, err
	}
	for _, row := range rows {
		if row.Phone != canonical {
			continue
		}
		// The earliest row decides even when its document cell is empty.
		if row.DocumentID == "" {
			return Row{}, sentinel.ErrNotFound
		}
		return row, nil
	}
	return Row{}, sentinel.ErrNotFound
}

// ResolveDocumentID is Resolve narrowed to the document identifier.
func (r *Resolver) ResolveDocumentID(ctx context.Context, rawPhone string) (string, error) {
	row, err := r.Resolve(ctx, rawPhone)
	if err != nil {
		return "", err
	}
	return row.DocumentID, nil
}
