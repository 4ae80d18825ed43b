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

// Package notifytest provides a notify.Notifier that records events for
// assertions in tests.
package notifytest

import (
	"context"
	"sync"

	"github.com/jeremyhahn/go-capsule/pkg/capsule"
)

// Recorder collects every notified event. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []capsule.Event

	// Err, when set, is returned by every Notify call.
	Err error
}

// Notify records the event.
func (r *Recorder) Notify(ctx context.Context, event capsule.Event) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []capsule.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]capsule.Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfKind returns the recorded events of the given kind.
func (r *Recorder) OfKind(kind capsule.EventKind) []capsule.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []capsule.Event
	for _, event := range r.events {
		if event.Kind == kind {
			out = append(out, event)
		}
	}
	return out
}

// Reset discards all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
