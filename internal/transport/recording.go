package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// RecordingSender keeps messages in memory instead of sending them. It backs
// dry runs and local development without Twilio credentials.
type RecordingSender struct {
	mu   sync.Mutex
	sent []Message
}

func NewRecording() *RecordingSender {
	return &RecordingSender{}
}

func (r *RecordingSender) Send(_ context.Context, msg Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return "DRY" + uuid.NewString(), nil
}

// Sent returns a copy of every recorded message.
func (r *RecordingSender) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.sent))
	copy(out, r.sent)
	return out
}
