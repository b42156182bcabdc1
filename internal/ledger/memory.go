package ledger

import (
	"context"
	"slices"
	"sync"
	"time"

	"recibos/pkg/platform/sentinel"
)

// InMemory is a process-local Store.
type InMemory struct {
	mu            sync.RWMutex
	deliveries    map[string]*DeliveryRecord
	order         []string
	confirmations []ConfirmationRecord
	pending       map[string]PendingView
}

func NewInMemory() *InMemory {
	return &InMemory{
		deliveries: make(map[string]*DeliveryRecord),
		pending:    make(map[string]PendingView),
	}
}

func (s *InMemory) InsertSent(_ context.Context, rec DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.deliveries[rec.MessageID]
	if !ok {
		cp := rec
		s.deliveries[rec.MessageID] = &cp
		s.order = append(s.order, rec.MessageID)
		return nil
	}
	fill(&existing.Recipient, rec.Recipient)
	fill(&existing.DocumentID, rec.DocumentID)
	fill(&existing.Period, rec.Period)
	fill(&existing.DisplayName, rec.DisplayName)
	if existing.Kind == "" {
		existing.Kind = rec.Kind
	}
	if rec.CreatedAt.Before(existing.CreatedAt) {
		existing.CreatedAt = rec.CreatedAt
	}
	return nil
}

func (s *InMemory) ApplyStatus(_ context.Context, u StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.deliveries[u.MessageID]
	if !ok {
		rec = &DeliveryRecord{MessageID: u.MessageID, CreatedAt: u.At}
		s.deliveries[u.MessageID] = rec
		s.order = append(s.order, u.MessageID)
	}
	rec.LastStatus = u.Status
	if u.ErrorCode != "" {
		rec.ErrorCode = u.ErrorCode
	}
	if u.ErrorMessage != "" {
		rec.ErrorMessage = u.ErrorMessage
	}
	if col := timestampColumn(rec, u.Status); col != nil && *col == nil {
		at := u.At
		*col = &at
	}
	rec.UpdatedAt = u.At
	return nil
}

func (s *InMemory) Get(_ context.Context, messageID string) (DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.deliveries[messageID]
	if !ok {
		return DeliveryRecord{}, sentinel.ErrNotFound
	}
	return *rec, nil
}

func (s *InMemory) ListDeliveries(_ context.Context, periods []string) ([]DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DeliveryRecord, 0, len(s.order))
	for _, id := range s.order {
		rec := s.deliveries[id]
		if inPeriods(rec.Period, periods) {
			out = append(out, *rec)
		}
	}
	slices.SortStableFunc(out, func(a, b DeliveryRecord) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *InMemory) AppendConfirmation(_ context.Context, rec ConfirmationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmations = append(s.confirmations, rec)
	return nil
}

func (s *InMemory) ListConfirmations(_ context.Context, periods []string) ([]ConfirmationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ConfirmationRecord, 0, len(s.confirmations))
	for _, c := range s.confirmations {
		if inPeriods(c.Period, periods) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *InMemory) UpsertPending(_ context.Context, view PendingView) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[view.Phone] = view
	return nil
}

func (s *InMemory) GetPending(_ context.Context, phone string) (PendingView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.pending[phone]
	if !ok {
		return PendingView{}, sentinel.ErrNotFound
	}
	return v, nil
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func inPeriods(period string, periods []string) bool {
	return len(periods) == 0 || slices.Contains(periods, period)
}

// timestampColumn maps a status to the lifecycle column it sets, if any.
func timestampColumn(rec *DeliveryRecord, status string) **time.Time {
	switch status {
	case StatusDelivered:
		return &rec.DeliveredAt
	case StatusRead:
		return &rec.ReadAt
	case StatusFailed, StatusUndelivered:
		return &rec.FailedAt
	}
	return nil
}
