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

// Package health implements liveness and readiness probes for the capsule
// service, following Kubernetes probe semantics. Liveness reports that the
// process runs; readiness runs the registered dependency checks, chiefly a
// ping against the capsule store.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/jeremyhahn/go-capsule/pkg/capsule"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusHealthy indicates the component is operating normally.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the component is not functioning.
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of a single readiness check.
type CheckResult struct {
	Name    string        `json:"name"`
	Status  Status        `json:"status"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// CheckFunc performs one readiness check. It should return quickly and
// honor ctx cancellation.
type CheckFunc func(ctx context.Context) error

// Checker runs registered readiness checks.
type Checker struct {
	mu        sync.RWMutex
	checks    map[string]CheckFunc
	startTime time.Time
}

// NewChecker creates an empty checker.
func NewChecker() *Checker {
	return &Checker{
		checks:    make(map[string]CheckFunc),
		startTime: time.Now(),
	}
}

// Register adds a readiness check under the given name, replacing any
// existing check with that name. Nil checks are ignored.
func (c *Checker) Register(name string, check CheckFunc) {
	if check == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Ready runs every registered check and returns their results. With no
// checks registered the service is considered ready.
func (c *Checker) Ready(ctx context.Context) []CheckResult {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make([]CheckResult, 0, len(checks))
	for name, check := range checks {
		start := time.Now()
		result := CheckResult{Name: name, Status: StatusHealthy}
		if err := check(ctx); err != nil {
			result.Status = StatusUnhealthy
			result.Error = err.Error()
		}
		result.Latency = time.Since(start)
		results = append(results, result)
	}
	return results
}

// IsReady reports whether every readiness check passes.
func (c *Checker) IsReady(ctx context.Context) bool {
	for _, result := range c.Ready(ctx) {
		if result.Status != StatusHealthy {
			return false
		}
	}
	return true
}

// Uptime returns how long the service has been running.
func (c *Checker) Uptime() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.startTime)
}

// AggregateStatus folds check results into an overall status.
func AggregateStatus(results []CheckResult) Status {
	for _, result := range results {
		if result.Status == StatusUnhealthy {
			return StatusUnhealthy
		}
	}
	return StatusHealthy
}

// StoreCheck returns a readiness check that pings the capsule store with a
// cheap listing. A closed or unreachable backend fails the check.
func StoreCheck(store capsule.Store) CheckFunc {
	return func(ctx context.Context) error {
		_, err := store.ListCapsules(ctx)
		return err
	}
}
