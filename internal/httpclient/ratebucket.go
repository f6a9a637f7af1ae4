package httpclient

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// defaultBucketWindow applies when the upstream reports a remaining count
// without a reset timestamp.
const defaultBucketWindow = time.Hour

// rateBucket tracks the upstream's advertised rate-limit budget from
// x-ratelimit-remaining / x-ratelimit-reset response headers. Until the
// upstream has advertised anything, the bucket imposes no limit.
type rateBucket struct {
	mu        sync.Mutex
	tracking  bool
	remaining int
	resetAt   time.Time
}

// check reports whether a request may be sent. When the budget is exhausted
// it returns the wait until the window resets and false.
func (b *rateBucket) check(now time.Time) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.tracking {
		return 0, true
	}
	if now.After(b.resetAt) {
		b.tracking = false // window rolled over; wait for fresh headers
		return 0, true
	}
	if b.remaining <= 0 {
		return b.resetAt.Sub(now), false
	}
	return 0, true
}

// update records the upstream's advertised budget from response headers.
// Headers are optional; nothing changes when the remaining count is absent.
func (b *rateBucket) update(h http.Header, now time.Time) {
	rem := h.Get("x-ratelimit-remaining")
	if rem == "" {
		return
	}
	remaining, err := strconv.Atoi(rem)
	if err != nil {
		return
	}

	resetAt := now.Add(defaultBucketWindow)
	if rst := h.Get("x-ratelimit-reset"); rst != "" {
		if unix, err := strconv.ParseInt(rst, 10, 64); err == nil && unix > 0 {
			resetAt = time.Unix(unix, 0)
		}
	}

	b.mu.Lock()
	b.tracking = true
	b.remaining = remaining
	b.resetAt = resetAt
	b.mu.Unlock()
}

// snapshot returns the current budget for health reporting.
func (b *rateBucket) snapshot(now time.Time) (remaining int, resetAt time.Time, tracking bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.tracking || now.After(b.resetAt) {
		return 0, time.Time{}, false
	}
	return b.remaining, b.resetAt, true
}
