package ackstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"recibos/internal/platform/metrics"
	"recibos/pkg/platform/sentinel"
)

// maxCASAttempts bounds retries when concurrent writers keep winning.
const maxCASAttempts = 5

// Service applies recipient actions through compare-and-set.
type Service struct {
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Get(ctx context.Context, key Key) (State, error) {
	return s.store.Get(ctx, key)
}

func (s *Service) GetMany(ctx context.Context, keys []Key) (map[Key]State, error) {
	return s.store.GetMany(ctx, keys)
}

// Transition reads the current state, computes the next one and swaps it in.
// A lost swap re-reads and re-validates, so an action that became invalid in
// the meantime fails with ErrInvalidTransition instead of overwriting.
func (s *Service) Transition(ctx context.Context, key Key, action Action) (State, error) {
	for range maxCASAttempts {
		current, err := s.store.Get(ctx, key)
		if err != nil {
			return "", fmt.Errorf("read ack state: %w", err)
		}
		next, err := Next(current, action)
		if err != nil {
			return current, err
		}
		swapped, err := s.store.CompareAndSet(ctx, key, current, next)
		if err != nil {
			return "", fmt.Errorf("write ack state: %w", err)
		}
		if swapped {
			s.metrics.IncTransition(string(action), string(next))
			if current == next {
				s.logger.InfoContext(ctx, "objection kept",
					"document_id", key.DocumentID,
					"period", key.Period,
				)
			}
			return next, nil
		}
	}
	return "", fmt.Errorf("transition %s on %s: %w", action, key, sentinel.ErrConflict)
}

// IsInvalidTransition reports whether err came from a rejected action.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
