// Package events publishes acknowledgment decisions for downstream HR
// systems.
package events

import (
	"context"
	"sync"
	"time"
)

const (
	TypeSigned        = "receipt.signed"
	TypeObjected      = "receipt.objected"
	TypeObjectionKept = "receipt.objection_kept"
)

// AckEvent is emitted after a successful acknowledgment transition.
type AckEvent struct {
	Type       string    `json:"type"`
	Recipient  string    `json:"recipient"`
	DocumentID string    `json:"document_id"`
	Period     string    `json:"period"`
	State      string    `json:"state"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Key partitions events so one document's decisions stay ordered.
func (e AckEvent) Key() string {
	return e.DocumentID + "|" + e.Period
}

type Publisher interface {
	Publish(ctx context.Context, event AckEvent) error
}

// Nop discards events; used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, AckEvent) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []AckEvent
}

func (r *Recorder) Publish(_ context.Context, event AckEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Events() []AckEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AckEvent, len(r.events))
	copy(out, r.events)
	return out
}
