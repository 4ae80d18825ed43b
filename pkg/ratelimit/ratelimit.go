// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-capsule.
//
// go-capsule is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package ratelimit provides a per-client token bucket limiter for the
// unauthenticated capsule endpoints. Share deposits and recipient secret
// retrieval accept anonymous traffic, so each client IP gets its own
// bucket to slow down share and password guessing.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRequestsPerMinute is the sustained per-client rate when the
	// configuration leaves it unset.
	DefaultRequestsPerMinute = 30

	// DefaultCleanupInterval controls how often idle client buckets are
	// reaped.
	DefaultCleanupInterval = 10 * time.Minute

	// DefaultMaxIdle is how long a client may stay quiet before its
	// bucket is discarded.
	DefaultMaxIdle = 30 * time.Minute
)

// Config holds limiter settings.
type Config struct {
	// Enabled controls whether limiting is active. A disabled limiter
	// admits everything.
	Enabled bool

	// RequestsPerMinute sets the sustained per-client rate.
	RequestsPerMinute int

	// Burst allows short bursts above the sustained rate. Defaults to
	// RequestsPerMinute.
	Burst int

	// CleanupInterval controls how often idle clients are removed.
	CleanupInterval time.Duration

	// MaxIdle is how long a client can be idle before cleanup.
	MaxIdle time.Duration
}

// Limiter tracks one token bucket per client identifier.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	lastSeen map[string]time.Time
	rate     rate.Limit
	burst    int
	enabled  bool

	cleanupInterval time.Duration
	maxIdle         time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// New creates a limiter from config. A nil config yields a disabled
// limiter.
func New(config *Config) *Limiter {
	if config == nil {
		config = &Config{}
	}

	perMinute := config.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = DefaultRequestsPerMinute
	}

	burst := config.Burst
	if burst <= 0 {
		burst = perMinute
	}

	cleanupInterval := config.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	maxIdle := config.MaxIdle
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdle
	}

	l := &Limiter{
		buckets:         make(map[string]*rate.Limiter),
		lastSeen:        make(map[string]time.Time),
		rate:            rate.Limit(float64(perMinute) / 60.0),
		burst:           burst,
		enabled:         config.Enabled,
		cleanupInterval: cleanupInterval,
		maxIdle:         maxIdle,
		stopCleanup:     make(chan struct{}),
	}

	if config.Enabled {
		go l.cleanupWorker()
	}

	return l
}

// Allow reports whether a request from the given client fits within its
// bucket. A disabled limiter always allows.
func (l *Limiter) Allow(clientID string) bool {
	if !l.enabled {
		return true
	}
	return l.bucket(clientID).Allow()
}

// Enabled reports whether limiting is active.
func (l *Limiter) Enabled() bool {
	return l.enabled
}

// ActiveClients returns the number of clients currently holding a bucket.
func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Stop terminates the cleanup worker. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCleanup)
	})
}

func (l *Limiter) bucket(clientID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[clientID]
	if !ok {
		b = rate.NewLimiter(l.rate, l.burst)
		l.buckets[clientID] = b
	}
	l.lastSeen[clientID] = time.Now()
	return b
}

func (l *Limiter) cleanupWorker() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for clientID, seen := range l.lastSeen {
		if now.Sub(seen) > l.maxIdle {
			delete(l.buckets, clientID)
			delete(l.lastSeen, clientID)
		}
	}
}

// ClientIP extracts the originating client address from a request,
// preferring proxy headers over the socket peer.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
