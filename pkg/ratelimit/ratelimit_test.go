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

package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestBurstThenDeny(t *testing.T) {
	l := New(&Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             5,
	})
	defer l.Stop()

	for i := 0; i < 5; i++ {
		if !l.Allow("depositor") {
			t.Fatalf("request %d should fit within the burst", i+1)
		}
	}

	if l.Allow("depositor") {
		t.Fatal("request beyond the burst should be denied")
	}
}

func TestDisabledAdmitsEverything(t *testing.T) {
	l := New(&Config{Enabled: false, RequestsPerMinute: 1, Burst: 1})
	defer l.Stop()

	for i := 0; i < 100; i++ {
		if !l.Allow("depositor") {
			t.Fatal("disabled limiter should admit all requests")
		}
	}

	if l.Enabled() {
		t.Fatal("limiter should report disabled")
	}
}

func TestNilConfigDisables(t *testing.T) {
	l := New(nil)
	defer l.Stop()

	if l.Enabled() {
		t.Fatal("nil config should yield a disabled limiter")
	}
}

func TestBucketsAreIndependent(t *testing.T) {
	l := New(&Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             1,
	})
	defer l.Stop()

	if !l.Allow("first") {
		t.Fatal("first client's opening request should be allowed")
	}
	if l.Allow("first") {
		t.Fatal("first client's second request should be denied")
	}
	if !l.Allow("second") {
		t.Fatal("second client should still have budget")
	}

	if got := l.ActiveClients(); got != 2 {
		t.Fatalf("expected 2 active clients, got %d", got)
	}
}

func TestCleanupReapsIdleClients(t *testing.T) {
	l := New(&Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		MaxIdle:           10 * time.Millisecond,
	})
	defer l.Stop()

	l.Allow("ephemeral")
	time.Sleep(20 * time.Millisecond)
	l.cleanup()

	if got := l.ActiveClients(); got != 0 {
		t.Fatalf("expected idle client to be reaped, got %d active", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	l := New(&Config{Enabled: true, RequestsPerMinute: 60})
	l.Stop()
	l.Stop()
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		realIP     string
		expected   string
	}{
		{
			name:       "remote addr with port",
			remoteAddr: "192.0.2.10:4431",
			expected:   "192.0.2.10",
		},
		{
			name:       "forwarded for wins",
			remoteAddr: "10.0.0.1:80",
			forwarded:  "203.0.113.7, 10.0.0.1",
			expected:   "203.0.113.7",
		},
		{
			name:       "real ip fallback",
			remoteAddr: "10.0.0.1:80",
			realIP:     "203.0.113.9",
			expected:   "203.0.113.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/capsules", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}

			if got := ClientIP(r); got != tt.expected {
				t.Fatalf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
