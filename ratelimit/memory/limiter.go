package memorylimiter

import (
	"errors"
	"sync"
	"time"
)

// Limit defines window and max count for a bucket.
type Limit struct {
	Limit  int
	Window time.Duration
}

// DefaultLimit applies to buckets with no entry and no "default" entry.
var DefaultLimit = Limit{Limit: 30, Window: time.Minute}

// Limiter is an in-memory sliding-window rate limiter keyed by bucket and
// caller, e.g. ("callback", client IP).
type Limiter struct {
	mu        sync.Mutex
	limits    map[string]Limit
	hits      map[string]*callerHits
	now       func() time.Time
	lastSweep time.Time
}

type callerHits struct {
	window time.Duration
	ts     []time.Time
}

// sweepInterval bounds how often idle callers are dropped.
const sweepInterval = time.Minute

// New constructs a limiter with the provided per-bucket limits.
func New(limits map[string]Limit) *Limiter {
	if limits == nil {
		limits = map[string]Limit{}
	}
	return &Limiter{
		limits: limits,
		hits:   make(map[string]*callerHits),
		now:    time.Now,
	}
}

// WithClock replaces time.Now, for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

func (l *Limiter) get(bucket string) Limit {
	if v, ok := l.limits[bucket]; ok {
		return v
	}
	if v, ok := l.limits["default"]; ok {
		return v
	}
	return DefaultLimit
}

// AllowNamed records an attempt and reports whether it is within the limit.
// Denied attempts are not recorded. A nil limiter allows everything.
func (l *Limiter) AllowNamed(bucket, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, errors.New("bucket and key required")
	}
	lim := l.get(bucket)
	now := l.now()
	windowStart := now.Add(-lim.Window)
	k := bucket + ":" + key

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)

	h, ok := l.hits[k]
	if !ok {
		h = &callerHits{window: lim.Window}
		l.hits[k] = h
	}
	ts := h.ts
	i := 0
	for i < len(ts) && !ts[i].After(windowStart) {
		i++
	}
	ts = ts[i:]

	if len(ts) >= lim.Limit {
		// Deny without recording this attempt.
		h.ts = ts
		if len(ts) == 0 {
			delete(l.hits, k)
		}
		return false, nil
	}
	h.ts = append(ts, now)
	return true, nil
}

// sweep drops callers whose newest hit has left their window.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < sweepInterval {
		return
	}
	l.lastSweep = now
	for k, h := range l.hits {
		if len(h.ts) == 0 || !h.ts[len(h.ts)-1].After(now.Add(-h.window)) {
			delete(l.hits, k)
		}
	}
}
