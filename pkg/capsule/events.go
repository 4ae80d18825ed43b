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

package capsule

import "github.com/google/uuid"

// EventKind identifies a notification event type.
type EventKind string

const (
	// EventReleaseInitiated is emitted to the owner when the first share
	// is deposited for a capsule. Emitted at most once per collection
	// attempt.
	EventReleaseInitiated EventKind = "release_initiated"

	// EventReleaseNotification is emitted to a recipient when a capsule is
	// released, carrying the recipient's fresh password and access token.
	EventReleaseNotification EventKind = "release_notification"

	// EventTrusteeInvitation is emitted to a trustee asking for their
	// share once the invitation grace period has elapsed.
	EventTrusteeInvitation EventKind = "trustee_invitation"

	// EventRecipientConfirmation is emitted to a recipient asking them to
	// confirm their contact address.
	EventRecipientConfirmation EventKind = "recipient_confirmation"

	// EventOwnerHint is emitted to the owner for notable capsule facts,
	// e.g. long-inactive recipients.
	EventOwnerHint EventKind = "owner_hint"

	// EventOwnerReminder is the periodic owner liveness reminder.
	EventOwnerReminder EventKind = "owner_reminder"
)

// Event is a notification side effect returned by a state-changing
// operation. State machines return events instead of dispatching them, so
// side effects stay visible and testable.
type Event struct {
	Kind      EventKind
	CapsuleID uuid.UUID

	// Recipient of the notification: an owner id, a trustee contact or a
	// recipient contact depending on Kind.
	Subject string

	// Password carries the freshly issued recipient password for
	// EventReleaseNotification. Never persisted.
	Password string

	// Token carries a scoped access token where the notification embeds
	// one (release notifications, recipient confirmations).
	Token string

	// Detail carries free-form context for hint events.
	Detail string
}
