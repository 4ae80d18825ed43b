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

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence contract for the release core. All
// implementations must be safe for concurrent use.
//
// Fingerprint discipline: mutations of the recipient set, the confirmation
// state, capsule content or capsule attributes advance the capsule's
// UpdatedAt. Share deposits and the release transaction must NOT advance it.
type Store interface {
	// CreateCapsule stores a new capsule. Returns ErrAlreadyExists if the
	// id is taken.
	CreateCapsule(ctx context.Context, c *Capsule) error

	// GetCapsule returns the capsule or ErrNotFound.
	GetCapsule(ctx context.Context, id uuid.UUID) (*Capsule, error)

	// UpdateCapsule persists the capsule's user-editable attributes and
	// advances its fingerprint.
	UpdateCapsule(ctx context.Context, c *Capsule) error

	// DeleteCapsule removes the capsule and cascades to its trustees,
	// shares, keyslots, recipients and content.
	DeleteCapsule(ctx context.Context, id uuid.UUID) error

	// ListCapsules returns all capsules ordered by id.
	ListCapsules(ctx context.Context) ([]*Capsule, error)

	// ListReleasable returns ids of capsules with at least one deposited
	// share that are not yet released.
	ListReleasable(ctx context.Context) ([]uuid.UUID, error)

	// SetInvitationsSent flips the one-time trustee invitation guard
	// without advancing the fingerprint.
	SetInvitationsSent(ctx context.Context, id uuid.UUID, sent bool) error

	// AddTrustee registers a share commitment. Returns ErrAlreadyExists if
	// the (capsule, share hash) pair is already registered.
	AddTrustee(ctx context.Context, t *Trustee) error

	// TrusteeByShareHash returns the trustee holding the given commitment
	// for the capsule, or ErrNotFound.
	TrusteeByShareHash(ctx context.Context, capsuleID uuid.UUID, hash []byte) (*Trustee, error)

	// ListTrustees returns the capsule's trustees.
	ListTrustees(ctx context.Context, capsuleID uuid.UUID) ([]*Trustee, error)

	// DeleteTrustees removes all trustee registrations for the capsule.
	DeleteTrustees(ctx context.Context, capsuleID uuid.UUID) error

	// AddShare stores a deposited share and returns the post-insert share
	// count for the capsule. Returns ErrDuplicateShare if byte-identical
	// share data is already stored; under concurrent identical deposits
	// exactly one caller wins and the others observe ErrDuplicateShare.
	AddShare(ctx context.Context, s *Share) (int, error)

	// ListShares returns the capsule's deposited shares ordered by deposit
	// time.
	ListShares(ctx context.Context, capsuleID uuid.UUID) ([]*Share, error)

	// DeleteShares removes all deposited shares for the capsule.
	DeleteShares(ctx context.Context, capsuleID uuid.UUID) error

	// AddKeyslot stores a keyslot.
	AddKeyslot(ctx context.Context, k *Keyslot) error

	// SSSKeyslot returns the capsule's single SSS keyslot. Returns
	// ErrKeyslotNotFound or ErrKeyslotAmbiguous when the invariant of
	// exactly one does not hold.
	SSSKeyslot(ctx context.Context, capsuleID uuid.UUID) (*Keyslot, error)

	// ListKeyslots returns the capsule's keyslots.
	ListKeyslots(ctx context.Context, capsuleID uuid.UUID) ([]*Keyslot, error)

	// DeleteKeyslots removes the capsule's keyslots with the given
	// purpose.
	DeleteKeyslots(ctx context.Context, capsuleID uuid.UUID, purpose Purpose) error

	// AddRecipient stores a recipient and advances the capsule
	// fingerprint. Returns ErrAlreadyExists for a duplicate (capsule,
	// contact) pair.
	AddRecipient(ctx context.Context, r *Recipient) error

	// ConfirmRecipient marks the recipient confirmed and advances the
	// capsule fingerprint.
	ConfirmRecipient(ctx context.Context, capsuleID, recipientID uuid.UUID) error

	// ListRecipients returns the capsule's recipients ordered by creation
	// time.
	ListRecipients(ctx context.Context, capsuleID uuid.UUID) ([]*Recipient, error)

	// DeleteRecipient removes a recipient and advances the capsule
	// fingerprint. The recipient's PASSWORD keyslot, if any, is removed
	// with it.
	DeleteRecipient(ctx context.Context, capsuleID, recipientID uuid.UUID) error

	// SetContent stores or replaces the capsule content and advances the
	// capsule fingerprint.
	SetContent(ctx context.Context, c *Content) error

	// GetContent returns the capsule content or ErrNotFound.
	GetContent(ctx context.Context, capsuleID uuid.UUID) (*Content, error)

	// DeleteContent removes the capsule content and advances the capsule
	// fingerprint.
	DeleteContent(ctx context.Context, capsuleID uuid.UUID) error

	// PutOwnerState stores per-owner reminder bookkeeping.
	PutOwnerState(ctx context.Context, s *OwnerState) error

	// OwnerState returns the bookkeeping for an owner, or ErrNotFound.
	OwnerState(ctx context.Context, ownerID string) (*OwnerState, error)

	// ListOwnerStates returns all owner bookkeeping records.
	ListOwnerStates(ctx context.Context) ([]*OwnerState, error)

	// CompleteRelease commits the release transaction atomically: the
	// given PASSWORD keyslots are inserted, all deposited shares are
	// deleted and Released flips to true, all without advancing the
	// capsule fingerprint. Either everything commits or nothing does.
	// Returns ErrAlreadyReleased if the capsule is already released.
	CompleteRelease(ctx context.Context, capsuleID uuid.UUID, slots []*Keyslot) error

	// Close releases resources held by the store.
	Close() error
}

// Touch returns now if it advances past the capsule's current UpdatedAt,
// guarding against clock retreat collapsing the fingerprint.
func Touch(current time.Time, now time.Time) time.Time {
	if now.After(current) {
		return now
	}
	return current.Add(time.Nanosecond)
}
