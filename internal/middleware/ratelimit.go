package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	gwerrors "github.com/lanonasis/onasis-gateway/internal/errors"
	"github.com/lanonasis/onasis-gateway/internal/logging"
	"github.com/lanonasis/onasis-gateway/internal/metrics"
	"github.com/lanonasis/onasis-gateway/internal/reqctx"
)

// Store counts requests per bucket within a fixed window.
type Store interface {
	// Incr increments the bucket and returns the new count and when the
	// window resets.
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// RateLimitConfig is one scope of the gateway rate limiter.
type RateLimitConfig struct {
	Scope  string // metrics/logging label, e.g. "api", "mcp"
	Max    int
	Window time.Duration
	Store  Store
}

// RateLimit enforces a fixed window per caller bucket. Store errors fail
// open: an unreachable backend must not take the gateway down with it.
func RateLimit(cfg RateLimitConfig, m *metrics.Collector) Middleware {
	log := logging.Global().Named("ratelimit").With(zap.String("scope", cfg.Scope))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := reqctx.FromRequest(r)
			key := cfg.Scope + ":" + BucketKey(rc)

			count, resetAt, err := cfg.Store.Incr(r.Context(), key, cfg.Window)
			if err != nil {
				log.Warn("rate limit store unavailable, failing open", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			remaining := int64(cfg.Max) - count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if count > int64(cfg.Max) {
				retryAfter := int64(time.Until(resetAt).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				if m != nil {
					m.RateLimitDropped.WithLabelValues(cfg.Scope).Inc()
				}
				gwerrors.ErrRateLimited.
					WithMessagef("rate limit exceeded for %s", cfg.Scope).
					WithMeta("retry_after_seconds", retryAfter).
					WithRequestID(rc.RequestID).
					WriteJSON(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// BucketKey derives the caller bucket from session, credentials and the
// forwarded ip. Only a truncated hash leaves this function so credentials
// never appear in stores or logs.
func BucketKey(rc *reqctx.Context) string {
	sum := sha256.Sum256([]byte(rc.SessionID + "|" + rc.BearerToken() + "|" + rc.APIKey + "|" + rc.ForwardedIP))
	return hex.EncodeToString(sum[:])[:16]
}

const memoryStoreShards = 16

type memoryEntry struct {
	count   int64
	resetAt time.Time
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// MemoryStore is the default in-process fixed-window store, sharded to
// keep bucket contention off the hot path.
type MemoryStore struct {
	shards [memoryStoreShards]*memoryShard
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i] = &memoryShard{entries: map[string]*memoryEntry{}}
	}
	return s
}

func (s *MemoryStore) shard(key string) *memoryShard {
	var h uint32
	for i := 0; i < len(key); i++ {
		h = h*31 + uint32(key[i])
	}
	return s.shards[h%memoryStoreShards]
}

// Incr implements Store. Expired windows reset atomically under the
// shard lock.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	now := time.Now()
	sh := s.shard(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok || now.After(e.resetAt) {
		e = &memoryEntry{resetAt: now.Add(window)}
		sh.entries[key] = e
		// Opportunistic sweep: drop other expired buckets in this shard
		// when it grows past a few thousand entries.
		if len(sh.entries) > 4096 {
			for k, v := range sh.entries {
				if now.After(v.resetAt) {
					delete(sh.entries, k)
				}
			}
		}
	}
	e.count++
	return e.count, e.resetAt, nil
}
