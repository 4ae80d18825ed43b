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

// Package notify is the notification boundary. The release core returns
// events; implementations of Notifier turn them into deliveries. Message
// rendering and transport (mail relay, SMS gateway) live behind this
// interface, outside the module.
package notify

import (
	"context"

	"github.com/jeremyhahn/go-capsule/pkg/capsule"
	"github.com/jeremyhahn/go-capsule/pkg/logging"
	"github.com/jeremyhahn/go-capsule/pkg/metrics"
)

// Notifier delivers a single notification event.
type Notifier interface {
	Notify(ctx context.Context, event capsule.Event) error
}

// Dispatch delivers each event through the notifier and records the
// dispatch metric. Delivery failures are returned after attempting every
// remaining event, so one broken contact does not starve the rest.
func Dispatch(ctx context.Context, n Notifier, events []capsule.Event) error {
	var firstErr error
	for _, event := range events {
		if err := n.Notify(ctx, event); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.RecordNotification(string(event.Kind))
	}
	return firstErr
}

// LogNotifier writes notifications to the log instead of delivering them.
// The default for deployments without a configured delivery channel.
// Passwords and tokens are never logged.
type LogNotifier struct {
	log *logging.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log *logging.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify logs the event metadata.
func (n *LogNotifier) Notify(ctx context.Context, event capsule.Event) error {
	n.log.Info("notification",
		"kind", event.Kind,
		"capsule", event.CapsuleID,
		"subject", event.Subject,
		"detail", event.Detail)
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
