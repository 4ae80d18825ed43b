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

import "errors"

// Deposit validation errors. These are user-input-class failures reported
// synchronously to the depositing trustee and never retried automatically.
var (
	// ErrAlreadyReleased indicates the capsule is released; no further
	// shares are accepted and abort is no longer possible.
	ErrAlreadyReleased = errors.New("capsule: already released")

	// ErrInvalidShare indicates the deposited share matches no registered
	// trustee commitment for the capsule.
	ErrInvalidShare = errors.New("capsule: share matches no trustee commitment")

	// ErrDuplicateShare indicates byte-identical share data was already
	// deposited for the capsule.
	ErrDuplicateShare = errors.New("capsule: share already deposited")
)

// Release errors.
var (
	// ErrRecrypt indicates a failed release attempt: share recombination
	// failed, the reconstructed password did not decrypt the SSS keyslot,
	// or the keyslot state is invalid. Expected to be retried by the next
	// scheduled pass unless it also wraps ErrDataIntegrity.
	ErrRecrypt = errors.New("capsule: recrypt failed")

	// ErrDataIntegrity indicates a fault in stored state (zero or multiple
	// SSS keyslots, or a corrupted slot) that no amount of retrying can
	// repair. Callers should escalate rather than retry.
	ErrDataIntegrity = errors.New("capsule: data integrity fault")
)

// Storage errors.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("capsule: not found")

	// ErrAlreadyExists is returned when a uniqueness invariant would be
	// violated by an insert.
	ErrAlreadyExists = errors.New("capsule: already exists")

	// ErrKeyslotNotFound is returned when a capsule has no SSS keyslot.
	ErrKeyslotNotFound = errors.New("capsule: no SSS keyslot")

	// ErrKeyslotAmbiguous is returned when a capsule has more than one SSS
	// keyslot.
	ErrKeyslotAmbiguous = errors.New("capsule: more than one SSS keyslot")

	// ErrClosed is returned when using a store after Close.
	ErrClosed = errors.New("capsule: store closed")
)
