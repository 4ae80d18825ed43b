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

// Package capsule implements the dead-man's-switch release core: sealed,
// owner-controlled containers whose secret is recombined from trustee-held
// shares and re-encrypted for each recipient once the owner goes silent.
//
// The package defines the entity model, the persistence contract (Store),
// and the release service (Service) that orchestrates trustee deposits and
// the one-time release transaction.
package capsule

import (
	"crypto/sha256"
	"time"

	"github.com/google/uuid"
)

// Purpose tags a keyslot by what its payload is encrypted under.
type Purpose string

const (
	// PurposeSSS marks the capsule's own secret, encrypted under the
	// password that threshold recombination reconstructs. At most one per
	// capsule.
	PurposeSSS Purpose = "sss"

	// PurposePassword marks a per-recipient slot holding the capsule
	// secret encrypted under a freshly generated recipient password. At
	// most one per recipient.
	PurposePassword Purpose = "pwd"
)

// Capsule is an owner's sealed container. Released is monotonic: once true
// no further shares are accepted and no further release attempt executes.
//
// UpdatedAt doubles as the capsule's state fingerprint for scoped access
// tokens. It advances on every user-visible edit and deliberately does NOT
// advance when Released flips, so tokens issued to recipients at release
// time stay valid.
type Capsule struct {
	ID              uuid.UUID
	OwnerID         string
	Name            string
	Description     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Released        bool
	InvitationsSent bool
}

// Fingerprint returns the token-scoping fingerprint for the capsule's
// current state.
func (c *Capsule) Fingerprint() string {
	return c.UpdatedAt.UTC().Format(time.RFC3339Nano)
}

// Trustee is a party expected to deposit exactly one pre-committed share.
// ShareHash is the SHA-256 commitment to that share; (CapsuleID, ShareHash)
// is unique.
type Trustee struct {
	ID        uuid.UUID
	CapsuleID uuid.UUID
	Contact   string
	ShareHash []byte
}

// Share is a deposited partial key. (CapsuleID, Data) is unique: a trustee
// may not deposit the identical share twice.
type Share struct {
	ID        uuid.UUID
	CapsuleID uuid.UUID
	Data      []byte
	CreatedAt time.Time
}

// Keyslot is an encrypted-at-rest credential record. RecipientID is set only
// for PurposePassword slots.
type Keyslot struct {
	ID          uuid.UUID
	CapsuleID   uuid.UUID
	Purpose     Purpose
	Data        []byte
	RecipientID uuid.UUID
}

// Recipient is the eventual beneficiary who receives a freshly issued
// password upon release. Confirmation happens asynchronously out of band.
type Recipient struct {
	ID        uuid.UUID
	CapsuleID uuid.UUID
	Contact   string
	Confirmed bool
	CreatedAt time.Time
}

// Content is the capsule payload reference: envelope-encrypted metadata plus
// an opaque reference to the stored blob. Not part of the release core, the
// release machinery only ever touches keyslots.
type Content struct {
	CapsuleID uuid.UUID
	Metadata  []byte
	DataRef   string
}

// OwnerState carries the per-owner bookkeeping for the periodic reminder
// pass. Accounts themselves live outside this module.
type OwnerState struct {
	OwnerID        string
	RemindInterval time.Duration
	LastReminderAt time.Time
}

// HashShare computes the commitment for a raw share. Trustee registrations
// store this value and deposits are checked against it.
func HashShare(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}
