package session

import (
	"context"
	"time"
)

// Store loads and saves sessions. Load never fails for a missing or expired
// phone; it returns New(phone). Save is a compare-and-swap on Version and
// returns sentinel.ErrConflict when another writer saved first.
type Store interface {
	Load(ctx context.Context, phone string) (*Session, error)
	Save(ctx context.Context, sess *Session) error
}

const DefaultTTL = 30 * time.Minute
