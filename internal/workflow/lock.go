package workflow

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	dErrors "recibos/pkg/domain-errors"
)

const (
	numTurnShards      = 128
	defaultTurnTimeout = 30 * time.Second
)

// turnLocks serializes turns per phone. Phones hash onto a fixed set of
// slots, so unrelated phones rarely contend and memory stays bounded.
type turnLocks struct {
	once    sync.Once
	shards  [numTurnShards]chan struct{}
	timeout time.Duration
}

// Run holds the shard for phone while fn runs. Waiting for the shard and fn
// itself share one context bounded by the turn timeout.
func (l *turnLocks) Run(ctx context.Context, phone string, fn func(ctx context.Context) error) error {
	l.once.Do(func() {
		for i := range l.shards {
			l.shards[i] = make(chan struct{}, 1)
		}
	})
	timeout := l.timeout
	if timeout == 0 {
		timeout = defaultTurnTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	slot := l.shards[shardFor(phone)]
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "turn aborted waiting for previous turn")
	}
	defer func() { <-slot }()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "turn aborted: context cancelled")
	}
	return fn(ctx)
}

func shardFor(phone string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(phone))
	return h.Sum32() % numTurnShards
}
