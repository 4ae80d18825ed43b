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

// Package tasks implements the scheduled entry points of the release core.
// Each pass is idempotent: running it twice against the same state produces
// no additional side effects beyond what its guard permits. Scheduling
// itself (cron, systemd timers) lives outside the module; these are the
// bodies the scheduler invokes.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-capsule/internal/notify"
	"github.com/jeremyhahn/go-capsule/pkg/capsule"
	"github.com/jeremyhahn/go-capsule/pkg/logging"
)

const (
	// DefaultReleaseGrace is how long after the first deposited share a
	// capsule must wait before a release attempt may run. The window
	// gives owners a chance to abort an accidental collection.
	DefaultReleaseGrace = 3 * 24 * time.Hour

	// DefaultInvitationGrace is the delay between the first deposited
	// share and the trustee invitation round.
	DefaultInvitationGrace = 24 * time.Hour

	// DefaultHintInactivity is how long a recipient may remain
	// unconfirmed before the owner is hinted.
	DefaultHintInactivity = 14 * 24 * time.Hour

	// DefaultRemindInterval is the owner liveness reminder interval used
	// when an owner has no stored preference.
	DefaultRemindInterval = 30 * 24 * time.Hour
)

// Config wires a Runner.
type Config struct {
	Store    capsule.Store
	Service  *capsule.Service
	Notifier notify.Notifier
	Logger   *logging.Logger

	// ReleaseGrace, InvitationGrace, HintInactivity and RemindInterval
	// override the package defaults when positive.
	ReleaseGrace    time.Duration
	InvitationGrace time.Duration
	HintInactivity  time.Duration
	RemindInterval  time.Duration

	// Clock overrides time.Now. Useful in tests.
	Clock func() time.Time
}

// Runner executes the scheduled passes.
type Runner struct {
	store           capsule.Store
	service         *capsule.Service
	notifier        notify.Notifier
	log             *logging.Logger
	releaseGrace    time.Duration
	invitationGrace time.Duration
	hintInactivity  time.Duration
	remindInterval  time.Duration
	now             func() time.Time
}

// NewRunner creates a Runner from the given configuration.
func NewRunner(cfg *Config) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("tasks: config cannot be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("tasks: store is required")
	}
	if cfg.Service == nil {
		return nil, errors.New("tasks: service is required")
	}
	if cfg.Notifier == nil {
		return nil, errors.New("tasks: notifier is required")
	}

	log := cfg.Logger
	if log == nil {
		log = logging.NewLogger(false)
	}
	r := &Runner{
		store:           cfg.Store,
		service:         cfg.Service,
		notifier:        cfg.Notifier,
		log:             log,
		releaseGrace:    cfg.ReleaseGrace,
		invitationGrace: cfg.InvitationGrace,
		hintInactivity:  cfg.HintInactivity,
		remindInterval:  cfg.RemindInterval,
		now:             cfg.Clock,
	}
	if r.releaseGrace <= 0 {
		r.releaseGrace = DefaultReleaseGrace
	}
	if r.invitationGrace <= 0 {
		r.invitationGrace = DefaultInvitationGrace
	}
	if r.hintInactivity <= 0 {
		r.hintInactivity = DefaultHintInactivity
	}
	if r.remindInterval <= 0 {
		r.remindInterval = DefaultRemindInterval
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// ReleasePass attempts release for every capsule holding at least one share
// whose grace period has elapsed since the first deposit. Capsules still
// inside the grace window or waiting for more shares are skipped silently;
// faults that retrying cannot repair are logged at error level so operators
// can intervene. The pass never stops at a failing capsule.
func (r *Runner) ReleasePass(ctx context.Context) error {
	ids, err := r.store.ListReleasable(ctx)
	if err != nil {
		return fmt.Errorf("tasks: release pass: %w", err)
	}

	cutoff := r.now().Add(-r.releaseGrace)
	for _, id := range ids {
		shares, err := r.store.ListShares(ctx, id)
		if err != nil {
			return fmt.Errorf("tasks: release pass: %w", err)
		}
		if len(shares) == 0 || shares[0].CreatedAt.After(cutoff) {
			r.log.Debug("release grace period not elapsed", "capsule", id)
			continue
		}

		result, err := r.service.AttemptRelease(ctx, id)
		if err != nil {
			if errors.Is(err, capsule.ErrDataIntegrity) {
				r.log.Error("release blocked by data integrity fault",
					"capsule", id, "error", err)
			} else {
				r.log.Debug("release not yet possible", "capsule", id, "error", err)
			}
			continue
		}
		if result == nil {
			continue
		}
		if err := notify.Dispatch(ctx, r.notifier, result.Events); err != nil {
			r.log.Error("release notification dispatch failed",
				"capsule", id, "error", err)
		}
	}
	return nil
}

// InvitationPass emits one invitation per trustee with a contact for every
// capsule whose collection started longer than the grace period ago. The
// InvitationsSent flag is the one-time guard; an abort resets it.
func (r *Runner) InvitationPass(ctx context.Context) error {
	capsules, err := r.store.ListCapsules(ctx)
	if err != nil {
		return fmt.Errorf("tasks: invitation pass: %w", err)
	}

	cutoff := r.now().Add(-r.invitationGrace)
	for _, c := range capsules {
		if c.Released || c.InvitationsSent {
			continue
		}
		shares, err := r.store.ListShares(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("tasks: invitation pass: %w", err)
		}
		if len(shares) == 0 || shares[0].CreatedAt.After(cutoff) {
			continue
		}

		trustees, err := r.store.ListTrustees(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("tasks: invitation pass: %w", err)
		}
		var events []capsule.Event
		for _, trustee := range trustees {
			if trustee.Contact == "" {
				continue
			}
			events = append(events, capsule.Event{
				Kind:      capsule.EventTrusteeInvitation,
				CapsuleID: c.ID,
				Subject:   trustee.Contact,
			})
		}
		if err := notify.Dispatch(ctx, r.notifier, events); err != nil {
			// Leave the guard unset so the next pass retries.
			r.log.Error("trustee invitation dispatch failed",
				"capsule", c.ID, "error", err)
			continue
		}
		if err := r.store.SetInvitationsSent(ctx, c.ID, true); err != nil {
			return fmt.Errorf("tasks: invitation pass: %w", err)
		}
		r.log.Info("trustee invitations sent",
			"capsule", c.ID, "trustees", len(events))
	}
	return nil
}

// HintPass tells owners about recipients that have stayed unconfirmed past
// the inactivity threshold. One hint per affected capsule per pass.
func (r *Runner) HintPass(ctx context.Context) error {
	capsules, err := r.store.ListCapsules(ctx)
	if err != nil {
		return fmt.Errorf("tasks: hint pass: %w", err)
	}

	cutoff := r.now().Add(-r.hintInactivity)
	for _, c := range capsules {
		if c.Released {
			continue
		}
		recipients, err := r.store.ListRecipients(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("tasks: hint pass: %w", err)
		}
		stale := 0
		for _, recipient := range recipients {
			if !recipient.Confirmed && recipient.CreatedAt.Before(cutoff) {
				stale++
			}
		}
		if stale == 0 {
			continue
		}
		event := capsule.Event{
			Kind:      capsule.EventOwnerHint,
			CapsuleID: c.ID,
			Subject:   c.OwnerID,
			Detail:    fmt.Sprintf("%d recipient(s) unconfirmed", stale),
		}
		if err := notify.Dispatch(ctx, r.notifier, []capsule.Event{event}); err != nil {
			r.log.Error("owner hint dispatch failed", "capsule", c.ID, "error", err)
		}
	}
	return nil
}

// ReminderPass sends the periodic liveness reminder to every owner whose
// interval has elapsed. LastReminderAt in the owner state is the idempotency
// guard; owners without stored state are seeded from their oldest capsule so
// the first reminder arrives one full interval after they signed up.
func (r *Runner) ReminderPass(ctx context.Context) error {
	capsules, err := r.store.ListCapsules(ctx)
	if err != nil {
		return fmt.Errorf("tasks: reminder pass: %w", err)
	}

	oldest := make(map[string]time.Time)
	for _, c := range capsules {
		if c.Released {
			continue
		}
		if first, ok := oldest[c.OwnerID]; !ok || c.CreatedAt.Before(first) {
			oldest[c.OwnerID] = c.CreatedAt
		}
	}

	now := r.now()
	for ownerID, first := range oldest {
		state, err := r.store.OwnerState(ctx, ownerID)
		if errors.Is(err, capsule.ErrNotFound) {
			state = &capsule.OwnerState{
				OwnerID:        ownerID,
				RemindInterval: r.remindInterval,
				LastReminderAt: first,
			}
			if err := r.store.PutOwnerState(ctx, state); err != nil {
				return fmt.Errorf("tasks: reminder pass: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("tasks: reminder pass: %w", err)
		}

		interval := state.RemindInterval
		if interval <= 0 {
			interval = r.remindInterval
		}
		if now.Sub(state.LastReminderAt) < interval {
			continue
		}

		event := capsule.Event{
			Kind:    capsule.EventOwnerReminder,
			Subject: ownerID,
		}
		if err := notify.Dispatch(ctx, r.notifier, []capsule.Event{event}); err != nil {
			r.log.Error("owner reminder dispatch failed",
				"owner", ownerID, "error", err)
			continue
		}
		state.LastReminderAt = now
		if err := r.store.PutOwnerState(ctx, state); err != nil {
			return fmt.Errorf("tasks: reminder pass: %w", err)
		}
	}
	return nil
}
