// Package ratelimit admits or rejects requests per client key using a fixed
// counting window that starts at the first request seen for the key.
package ratelimit

import (
	"strings"
	"sync"
	"time"
)

const (
	DefaultWindow = 60 * time.Second
	DefaultMax    = 20

	UnknownClientKey = "unknown"
)

type window struct {
	count   int
	resetAt time.Time
}

type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	max     int
	size    time.Duration
	now     func() time.Time
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

func New(max int, size time.Duration, opts ...Option) *Limiter {
	if max <= 0 {
		max = DefaultMax
	}
	if size <= 0 {
		size = DefaultWindow
	}
	l := &Limiter{
		windows: make(map[string]*window),
		max:     max,
		size:    size,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit counts a request for clientKey and reports whether it fits in the
// current window. Rejected requests are not counted.
func (l *Limiter) Admit(clientKey string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[clientKey]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(l.size)}
		l.windows[clientKey] = w
	}
	if w.count >= l.max {
		return false
	}
	w.count++
	return true
}

func (l *Limiter) Window() time.Duration {
	return l.size
}

// Sweep drops windows that have already reset and returns how many were
// removed.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// ClientKey picks the first X-Forwarded-For entry. Without one it falls back
// to remoteIP when useRemote is set, else to the shared "unknown" bucket.
func ClientKey(forwardedFor string, remoteIP string, useRemote bool) string {
	if first, _, _ := strings.Cut(forwardedFor, ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if useRemote && strings.TrimSpace(remoteIP) != "" {
		return strings.TrimSpace(remoteIP)
	}
	return UnknownClientKey
}
