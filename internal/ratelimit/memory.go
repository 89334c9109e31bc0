package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	defaultShards        = 16
	defaultPruneInterval = time.Minute
	shardQueueSize       = 64
)

var _ RateLimiter = (*MemoryLimiter)(nil)

type window struct {
	start    time.Time
	duration time.Duration
	count    int
}

func (w window) expired(now time.Time) bool {
	return !now.Before(w.start.Add(w.duration))
}

type incrementRequest struct {
	key    string
	limit  int
	window time.Duration
	reply  chan Decision
}

// owner is the single goroutine allowed to touch the windows of the keys
// routed to it.
type owner struct {
	requests chan incrementRequest
	windows  map[string]window
}

// MemoryLimiter is an in-process RateLimiter. Each key hashes to exactly one
// owner goroutine, so all updates for a key are strictly ordered.
type MemoryLimiter struct {
	owners        []*owner
	now           func() time.Time
	pruneInterval time.Duration
	done          chan struct{}
	closeOnce     sync.Once
	wg            sync.WaitGroup
}

func NewMemoryLimiter(shards int) *MemoryLimiter {
	return newMemoryLimiter(shards, time.Now, defaultPruneInterval)
}

func newMemoryLimiter(shards int, nowFn func() time.Time, pruneInterval time.Duration) *MemoryLimiter {
	if shards <= 0 {
		shards = defaultShards
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if pruneInterval <= 0 {
		pruneInterval = defaultPruneInterval
	}

	l := &MemoryLimiter{
		owners:        make([]*owner, shards),
		now:           nowFn,
		pruneInterval: pruneInterval,
		done:          make(chan struct{}),
	}
	for i := range l.owners {
		o := &owner{
			requests: make(chan incrementRequest, shardQueueSize),
			windows:  make(map[string]window),
		}
		l.owners[i] = o
		l.wg.Add(1)
		go l.run(o)
	}

	return l
}

func (l *MemoryLimiter) CheckAndIncrement(ctx context.Context, key Key, limit int, windowSize time.Duration) (Decision, error) {
	if err := validateArgs(key, limit, windowSize); err != nil {
		return Decision{}, err
	}

	return l.submit(ctx, incrementRequest{
		key:    key.String(),
		limit:  limit,
		window: windowSize,
	})
}

func (l *MemoryLimiter) submit(ctx context.Context, req incrementRequest) (Decision, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	o := l.owners[xxhash.Sum64String(req.key)%uint64(len(l.owners))]
	req.reply = make(chan Decision, 1)

	select {
	case <-l.done:
		return Decision{}, ErrClosed
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	case o.requests <- req:
	}

	select {
	case <-l.done:
		return Decision{}, ErrClosed
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	case decision := <-req.reply:
		return decision, nil
	}
}

// Close stops every owner goroutine. Pending callers receive ErrClosed.
func (l *MemoryLimiter) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
}

func (l *MemoryLimiter) run(o *owner) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case req := <-o.requests:
			req.reply <- l.increment(o, req)
		case <-ticker.C:
			now := l.now()
			for key, w := range o.windows {
				if w.expired(now) {
					delete(o.windows, key)
				}
			}
		}
	}
}

func (l *MemoryLimiter) increment(o *owner, req incrementRequest) Decision {
	now := l.now()

	w, ok := o.windows[req.key]
	if !ok || w.expired(now) {
		w = window{start: now, duration: req.window}
	}
	w.count++
	o.windows[req.key] = w

	return NewDecision(w.count, req.limit, w.start, w.duration)
}
