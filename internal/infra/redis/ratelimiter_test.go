package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kursadbilgin/concur-gateway/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

func TestRedisRateLimiterCheckAndIncrement(t *testing.T) {
	t.Parallel()

	rdb, _ := newTestRedisClient(t)

	now := time.Unix(1_700_000_000, 0)
	limiter, err := newRedisRateLimiter(rdb, func() time.Time { return now })
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	key := ratelimit.Key{Prefix: "ingest", RepositoryID: "repo-1"}

	for i := 1; i <= 2; i++ {
		decision, err := limiter.CheckAndIncrement(context.Background(), key, 2, time.Minute)
		if err != nil {
			t.Fatalf("CheckAndIncrement() error = %v", err)
		}
		if !decision.Allowed {
			t.Fatalf("call %d should be allowed", i)
		}
		if decision.Remaining != 2-i {
			t.Fatalf("call %d remaining = %d, want %d", i, decision.Remaining, 2-i)
		}
		if !decision.ResetAt.Equal(now.Add(time.Minute)) {
			t.Fatalf("resetAt = %v, want %v", decision.ResetAt, now.Add(time.Minute))
		}
	}

	decision, err := limiter.CheckAndIncrement(context.Background(), key, 2, time.Minute)
	if err != nil {
		t.Fatalf("CheckAndIncrement() error = %v", err)
	}
	if decision.Allowed {
		t.Fatal("third call should be rejected by rate limit")
	}
	if decision.Count != 3 || decision.Remaining != 0 {
		t.Fatalf("count = %d remaining = %d, want 3 and 0", decision.Count, decision.Remaining)
	}
}

func TestRedisRateLimiterWindowRollover(t *testing.T) {
	t.Parallel()

	rdb, _ := newTestRedisClient(t)

	now := time.Unix(1_700_000_100, 0)
	limiter, err := newRedisRateLimiter(rdb, func() time.Time { return now })
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	key := ratelimit.Key{Prefix: "ingest", RepositoryID: "repo-1"}
	for i := 0; i < 4; i++ {
		if _, err := limiter.CheckAndIncrement(context.Background(), key, 1, 30*time.Second); err != nil {
			t.Fatalf("CheckAndIncrement() error = %v", err)
		}
	}

	now = now.Add(30 * time.Second)
	decision, err := limiter.CheckAndIncrement(context.Background(), key, 1, 30*time.Second)
	if err != nil {
		t.Fatalf("CheckAndIncrement() error = %v", err)
	}
	if decision.Count != 1 {
		t.Fatalf("count after rollover = %d, want 1", decision.Count)
	}
	if !decision.Allowed {
		t.Fatal("first call of the new window should be allowed")
	}
	if !decision.ResetAt.Equal(now.Add(30 * time.Second)) {
		t.Fatalf("resetAt = %v, want %v", decision.ResetAt, now.Add(30*time.Second))
	}
}

func TestRedisRateLimiterPerRepository(t *testing.T) {
	t.Parallel()

	rdb, _ := newTestRedisClient(t)

	now := time.Unix(1_700_000_200, 0)
	limiter, err := newRedisRateLimiter(rdb, func() time.Time { return now })
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	a := ratelimit.Key{Prefix: "ingest", RepositoryID: "a"}
	b := ratelimit.Key{Prefix: "ingest", RepositoryID: "b"}

	if d, err := limiter.CheckAndIncrement(context.Background(), a, 1, time.Minute); err != nil || !d.Allowed {
		t.Fatalf("a first call: allowed=%v err=%v", d.Allowed, err)
	}
	if d, err := limiter.CheckAndIncrement(context.Background(), b, 1, time.Minute); err != nil || !d.Allowed {
		t.Fatalf("b first call: allowed=%v err=%v", d.Allowed, err)
	}
	if d, err := limiter.CheckAndIncrement(context.Background(), a, 1, time.Minute); err != nil || d.Allowed {
		t.Fatalf("a second call: allowed=%v err=%v", d.Allowed, err)
	}
}

func TestRedisRateLimiterConcurrentBudget(t *testing.T) {
	t.Parallel()

	rdb, _ := newTestRedisClient(t)

	limiter, err := NewRedisRateLimiter(rdb)
	if err != nil {
		t.Fatalf("NewRedisRateLimiter() error = %v", err)
	}

	const (
		limit   = 10
		callers = 60
	)

	key := ratelimit.Key{Prefix: "ingest", RepositoryID: "burst"}
	var allowed atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			decision, err := limiter.CheckAndIncrement(context.Background(), key, limit, time.Hour)
			if err != nil {
				t.Errorf("CheckAndIncrement() error = %v", err)
				return
			}
			if decision.Allowed {
				allowed.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := allowed.Load(); got != limit {
		t.Fatalf("allowed = %d, want exactly %d", got, limit)
	}
}

func TestRedisRateLimiterSetsExpiry(t *testing.T) {
	t.Parallel()

	rdb, mr := newTestRedisClient(t)

	limiter, err := NewRedisRateLimiter(rdb)
	if err != nil {
		t.Fatalf("NewRedisRateLimiter() error = %v", err)
	}

	key := ratelimit.Key{Prefix: "ingest", RepositoryID: "ttl"}
	if _, err := limiter.CheckAndIncrement(context.Background(), key, 5, 45*time.Second); err != nil {
		t.Fatalf("CheckAndIncrement() error = %v", err)
	}

	ttl := mr.TTL("ratelimit:ingest:ttl")
	if ttl <= 0 || ttl > 45*time.Second {
		t.Fatalf("ttl = %v, want (0, 45s]", ttl)
	}
}

func TestRedisRateLimiterUnavailable(t *testing.T) {
	t.Parallel()

	rdb, mr := newTestRedisClient(t)
	mr.Close()

	limiter, err := NewRedisRateLimiter(rdb)
	if err != nil {
		t.Fatalf("NewRedisRateLimiter() error = %v", err)
	}

	_, err = limiter.CheckAndIncrement(context.Background(), ratelimit.Key{Prefix: "ingest", RepositoryID: "r"}, 1, time.Second)
	if err == nil {
		t.Fatal("expected error when redis is unavailable")
	}
}

func TestNewRedisRateLimiterRequiresClient(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisRateLimiter(nil); err == nil {
		t.Fatal("expected error for nil client")
	}
}

func newTestRedisClient(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return rdb, mr
}
