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

// Package metrics provides Prometheus instrumentation for capsule
// operations: deposit and release counters, release duration histograms and
// HTTP request metrics.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all capsule metrics.
	Namespace = "capsule"

	// Label names
	LabelStatus     = "status"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Status values
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusInvalid   = "invalid"
	StatusDuplicate = "duplicate"
	StatusReleased  = "released"
	StatusRetryable = "retryable"
	StatusIntegrity = "integrity_fault"
	StatusNoop      = "noop"
)

var (
	// DepositsTotal counts trustee share deposits by outcome.
	DepositsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "deposits_total",
			Help:      "Total number of trustee share deposits by outcome",
		},
		[]string{LabelStatus},
	)

	// ReleasesTotal counts release attempts by outcome.
	ReleasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "releases_total",
			Help:      "Total number of capsule release attempts by outcome",
		},
		[]string{LabelStatus},
	)

	// ReleaseDuration observes the duration of successful release
	// transactions in seconds.
	ReleaseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "release_duration_seconds",
			Help:      "Duration of successful capsule release transactions",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// TokenVerificationsTotal counts scoped token verifications by
	// outcome.
	TokenVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "token_verifications_total",
			Help:      "Total number of scoped access token verifications",
		},
		[]string{LabelStatus},
	)

	// NotificationsTotal counts dispatched notification events by kind.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "notifications_total",
			Help:      "Total number of dispatched notification events by kind",
		},
		[]string{"kind"},
	)

	// HTTPRequestsTotal counts HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration observes HTTP request durations in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)
)

// enabled gates metric recording globally.
var enabled atomic.Bool

func init() {
	enabled.Store(true)
}

// SetEnabled toggles metric recording at runtime.
func SetEnabled(on bool) {
	enabled.Store(on)
}

// IsEnabled reports whether metric recording is on.
func IsEnabled() bool {
	return enabled.Load()
}

// RecordDeposit records a deposit outcome.
func RecordDeposit(status string) {
	if IsEnabled() {
		DepositsTotal.WithLabelValues(status).Inc()
	}
}

// RecordRelease records a release attempt outcome.
func RecordRelease(status string, durationSeconds float64) {
	if !IsEnabled() {
		return
	}
	ReleasesTotal.WithLabelValues(status).Inc()
	if status == StatusSuccess {
		ReleaseDuration.Observe(durationSeconds)
	}
}

// RecordTokenVerification records a token verification outcome.
func RecordTokenVerification(ok bool) {
	if !IsEnabled() {
		return
	}
	status := StatusError
	if ok {
		status = StatusSuccess
	}
	TokenVerificationsTotal.WithLabelValues(status).Inc()
}

// RecordNotification records a dispatched notification event.
func RecordNotification(kind string) {
	if IsEnabled() {
		NotificationsTotal.WithLabelValues(kind).Inc()
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, statusCode string, durationSeconds float64) {
	if !IsEnabled() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(durationSeconds)
}
