package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"recibos/pkg/platform/sentinel"
)

type entry struct {
	data      []byte
	version   int64
	expiresAt time.Time
}

// InMemory is an expiring Store. Entries idle longer than the TTL read as
// absent and are dropped by Sweep.
type InMemory struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

type MemoryOption func(*InMemory)

func WithClock(now func() time.Time) MemoryOption {
	return func(s *InMemory) {
		if now != nil {
			s.now = now
		}
	}
}

func NewInMemory(ttl time.Duration, opts ...MemoryOption) *InMemory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &InMemory{entries: make(map[string]entry), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) Load(_ context.Context, phone string) (*Session, error) {
	s.mu.Lock()
	e, ok := s.live(phone)
	s.mu.Unlock()
	if !ok {
		return New(phone), nil
	}
	var sess Session
	if err := json.Unmarshal(e.data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *InMemory) Save(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if e, ok := s.live(sess.Phone); ok {
		current = e.version
	}
	if current != sess.Version {
		return sentinel.ErrConflict
	}

	now := s.now()
	saved := *sess
	saved.Version = current + 1
	saved.UpdatedAt = now
	data, err := json.Marshal(saved)
	if err != nil {
		return err
	}
	s.entries[sess.Phone] = entry{data: data, version: saved.Version, expiresAt: now.Add(s.ttl)}
	sess.Version = saved.Version
	sess.UpdatedAt = now
	return nil
}

// Sweep drops expired entries and returns how many it removed.
func (s *InMemory) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for phone, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, phone)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *InMemory) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Len counts stored entries, expired or not.
func (s *InMemory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *InMemory) live(phone string) (entry, bool) {
	e, ok := s.entries[phone]
	if !ok || !s.now().Before(e.expiresAt) {
		return entry{}, false
	}
	return e, true
}
