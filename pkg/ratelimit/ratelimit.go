// Package ratelimit implements a per-key token bucket with pluggable bucket
// storage and an injectable clock.
package ratelimit

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"sync"
	"time"
)

// Defaults matching the public API admission policy.
const (
	DefaultCapacity   = 5.0
	DefaultRefillRate = 5.0
	stripes           = 64
)

// Bucket is the persisted state for one client key.
type Bucket struct {
	Tokens     float64   `json:"tokens"`
	LastRefill time.Time `json:"last_refill"`
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Store persists buckets. Get reports false when key has no bucket yet.
type Store interface {
	Get(ctx context.Context, key string) (Bucket, bool, error)
	Put(ctx context.Context, key string, b Bucket) error
}

// AtomicStore performs refill-and-take in a single atomic step on the
// backing store. The limiter prefers it over Get/Put when available.
type AtomicStore interface {
	Take(ctx context.Context, key string, now time.Time, capacity, rate float64) (bool, error)
}

// Sizer is implemented by stores that can count their buckets.
type Sizer interface {
	Len(ctx context.Context) (int, error)
}

// Stats summarises limiter configuration and load.
type Stats struct {
	Capacity   float64 `json:"capacity"`
	RefillRate float64 `json:"refill_rate"`
	ActiveKeys int     `json:"active_keys"`
	Allowed    uint64  `json:"allowed"`
	Rejected   uint64  `json:"rejected"`
}

// Limiter admits or rejects requests per key.
type Limiter struct {
	capacity float64
	rate     float64
	store    Store
	clock    Clock

	locks [stripes]sync.Mutex

	mu       sync.Mutex
	allowed  uint64
	rejected uint64
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(l *Limiter) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithStore overrides the bucket store.
func WithStore(s Store) Option {
	return func(l *Limiter) {
		if s != nil {
			l.store = s
		}
	}
}

// New returns a limiter with the given capacity and refill rate (tokens per
// second). Non-positive values fall back to the defaults.
func New(capacity, rate float64, opts ...Option) *Limiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if rate <= 0 {
		rate = DefaultRefillRate
	}
	l := &Limiter{capacity: capacity, rate: rate, store: NewMemoryStore(), clock: SystemClock}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ErrNilLimiter is returned by Allow on a nil receiver.
var ErrNilLimiter = errors.New("ratelimit: nil limiter")

// Allow refills the key's bucket for the elapsed time and takes one token.
// It returns false without an error when the bucket is empty.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil {
		return false, ErrNilLimiter
	}
	now := l.clock.Now()

	if atomic, ok := l.store.(AtomicStore); ok {
		allowed, err := atomic.Take(ctx, key, now, l.capacity, l.rate)
		if err != nil {
			return false, err
		}
		l.record(allowed)
		return allowed, nil
	}

	lock := &l.locks[stripe(key)]
	lock.Lock()
	defer lock.Unlock()

	b, found, err := l.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		b = Bucket{Tokens: l.capacity, LastRefill: now}
	}

	b = refill(b, now, l.capacity, l.rate)
	allowed := b.Tokens >= 1
	if allowed {
		b.Tokens--
	}
	if err := l.store.Put(ctx, key, b); err != nil {
		return false, err
	}

	l.record(allowed)
	return allowed, nil
}

// Stats reports configuration, active key count and decision counters.
func (l *Limiter) Stats(ctx context.Context) (Stats, error) {
	l.mu.Lock()
	s := Stats{Capacity: l.capacity, RefillRate: l.rate, Allowed: l.allowed, Rejected: l.rejected}
	l.mu.Unlock()

	if sizer, ok := l.store.(Sizer); ok {
		n, err := sizer.Len(ctx)
		if err != nil {
			return s, err
		}
		s.ActiveKeys = n
	}
	return s, nil
}

func (l *Limiter) record(allowed bool) {
	l.mu.Lock()
	if allowed {
		l.allowed++
	} else {
		l.rejected++
	}
	l.mu.Unlock()
}

// refill adds elapsed*rate tokens, capped at capacity. A clock that moves
// backwards adds nothing and leaves LastRefill untouched.
func refill(b Bucket, now time.Time, capacity, rate float64) Bucket {
	if elapsed := now.Sub(b.LastRefill).Seconds(); elapsed > 0 {
		b.Tokens = math.Min(capacity, b.Tokens+elapsed*rate)
		b.LastRefill = now
	}
	if b.Tokens > capacity {
		b.Tokens = capacity
	}
	return b
}

func stripe(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % stripes
}
