// Package ratelimit provides per-key token buckets for the mutation routes.
package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/scoreboard/pkg/metrics"
)

// Store keeps one limiter per key and forgets keys idle for longer than
// idleTTL.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	sweep   time.Duration
	now     func() time.Time
}

type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithIdleTTL sets how long an unused key is kept.
func WithIdleTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.idleTTL = d
		}
	}
}

// WithSweepEvery sets the janitor interval.
func WithSweepEvery(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.sweep = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a Store allowing rps sustained requests with bursts of
// burst per key. rps <= 0 disables limiting.
func NewStore(rps float64, burst int, opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*entry),
		rps:     rate.Limit(rps),
		burst:   max(burst, 1),
		idleTTL: 15 * time.Minute,
		sweep:   2 * time.Minute,
		now:     time.Now,
	}
	if rps <= 0 {
		s.rps = rate.Inf
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow consumes one token for key. When denied it returns how long until a
// token is available.
func (s *Store) Allow(key string) (bool, time.Duration) {
	now := s.now()
	lim := s.limiter(key, now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	r.CancelAt(now)
	return false, delay
}

func (s *Store) limiter(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		e.lastSeen = now
		return e.lim
	}
	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &entry{lim: lim, lastSeen: now}
	return lim
}

// Len returns the number of tracked keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup drops keys idle for longer than idleTTL.
func (s *Store) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if e.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor runs Cleanup periodically until ctx is done.
func (s *Store) StartJanitor(ctx context.Context) {
	t := time.NewTicker(s.sweep)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// KeyFunc picks the bucket for a request.
type KeyFunc func(r *http.Request) string

// Middleware rejects requests over the limit by calling reject after setting
// Retry-After.
func Middleware(s *Store, key KeyFunc, reject http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := s.Allow(key(r))
			if !ok {
				metrics.RecordRateLimited(r.URL.Path)
				secs := int(math.Ceil(wait.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
				reject(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
