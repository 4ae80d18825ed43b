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

// Package memory provides an in-memory implementation of capsule.Store.
// It uses maps guarded by a single RWMutex and makes defensive copies of all
// entities and byte slices to prevent external modification. The single
// mutex is also what makes CompleteRelease atomic.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-capsule/pkg/capsule"
)

// Store is an in-memory implementation of capsule.Store.
type Store struct {
	mu     sync.RWMutex
	closed bool
	now    func() time.Time

	capsules   map[uuid.UUID]*capsule.Capsule
	trustees   map[uuid.UUID][]*capsule.Trustee
	shares     map[uuid.UUID][]*capsule.Share
	keyslots   map[uuid.UUID][]*capsule.Keyslot
	recipients map[uuid.UUID][]*capsule.Recipient
	contents   map[uuid.UUID]*capsule.Content
	owners     map[string]*capsule.OwnerState
}

// New creates a new in-memory store.
func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock creates a store using the given clock for fingerprint
// advancement. Useful in tests.
func NewWithClock(now func() time.Time) *Store {
	return &Store{
		now:        now,
		capsules:   make(map[uuid.UUID]*capsule.Capsule),
		trustees:   make(map[uuid.UUID][]*capsule.Trustee),
		shares:     make(map[uuid.UUID][]*capsule.Share),
		keyslots:   make(map[uuid.UUID][]*capsule.Keyslot),
		recipients: make(map[uuid.UUID][]*capsule.Recipient),
		contents:   make(map[uuid.UUID]*capsule.Content),
		owners:     make(map[string]*capsule.OwnerState),
	}
}

// CreateCapsule stores a new capsule.
func (s *Store) CreateCapsule(ctx context.Context, c *capsule.Capsule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	if _, exists := s.capsules[c.ID]; exists {
		return capsule.ErrAlreadyExists
	}
	s.capsules[c.ID] = cloneCapsule(c)
	return nil
}

// GetCapsule returns the capsule or capsule.ErrNotFound.
func (s *Store) GetCapsule(ctx context.Context, id uuid.UUID) (*capsule.Capsule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, capsule.ErrClosed
	}
	c, exists := s.capsules[id]
	if !exists {
		return nil, capsule.ErrNotFound
	}
	return cloneCapsule(c), nil
}

// UpdateCapsule persists user-editable attributes and advances the
// fingerprint.
func (s *Store) UpdateCapsule(ctx context.Context, c *capsule.Capsule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	stored, exists := s.capsules[c.ID]
	if !exists {
		return capsule.ErrNotFound
	}
	stored.Name = c.Name
	stored.Description = c.Description
	stored.UpdatedAt = capsule.Touch(stored.UpdatedAt, s.now())
	return nil
}

// DeleteCapsule removes the capsule and all dependents.
func (s *Store) DeleteCapsule(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	if _, exists := s.capsules[id]; !exists {
		return capsule.ErrNotFound
	}
	delete(s.capsules, id)
	delete(s.trustees, id)
	delete(s.shares, id)
	delete(s.keyslots, id)
	delete(s.recipients, id)
	delete(s.contents, id)
	return nil
}

// ListCapsules returns all capsules ordered by id.
func (s *Store) ListCapsules(ctx context.Context) ([]*capsule.Capsule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, capsule.ErrClosed
	}
	out := make([]*capsule.Capsule, 0, len(s.capsules))
	for _, c := range s.capsules {
		out = append(out, cloneCapsule(c))
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, nil
}

// ListReleasable returns ids of unreleased capsules holding at least one
// share.
func (s *Store) ListReleasable(ctx context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, capsule.ErrClosed
	}
	var out []uuid.UUID
	for id, c := range s.capsules {
		if !c.Released && len(s.shares[id]) > 0 {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out, nil
}

// SetInvitationsSent flips the invitation guard without touching the
// fingerprint.
func (s *Store) SetInvitationsSent(ctx context.Context, id uuid.UUID, sent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	c, exists := s.capsules[id]
	if !exists {
		return capsule.ErrNotFound
	}
	c.InvitationsSent = sent
	return nil
}

// AddTrustee registers a share commitment.
func (s *Store) AddTrustee(ctx context.Context, t *capsule.Trustee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	if _, exists := s.capsules[t.CapsuleID]; !exists {
		return capsule.ErrNotFound
	}
	for _, existing := range s.trustees[t.CapsuleID] {
		if bytes.Equal(existing.ShareHash, t.ShareHash) {
			return capsule.ErrAlreadyExists
		}
	}
	s.trustees[t.CapsuleID] = append(s.trustees[t.CapsuleID], cloneTrustee(t))
	return nil
}

// TrusteeByShareHash returns the trustee registered with the given
// commitment.
func (s *Store) TrusteeByShareHash(ctx context.Context, capsuleID uuid.UUID, hash []byte) (*capsule.Trustee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, capsule.ErrClosed
	}
	for _, t := range s.trustees[capsuleID] {
		if bytes.Equal(t.ShareHash, hash) {
			return cloneTrustee(t), nil
		}
	}
	return nil, capsule.ErrNotFound
}

// ListTrustees returns the capsule's trustees.
func (s *Store) ListTrustees(ctx context.Context, capsuleID uuid.UUID) ([]*capsule.Trustee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, capsule.ErrClosed
	}
	out := make([]*capsule.Trustee, 0, len(s.trustees[capsuleID]))
	for _, t := range s.trustees[capsuleID] {
		out = append(out, cloneTrustee(t))
	}
	return out, nil
}

// DeleteTrustees removes all trustee registrations for the capsule.
func (s *Store) DeleteTrustees(ctx context.Context, capsuleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	delete(s.trustees, capsuleID)
	return nil
}

// AddShare stores a deposited share, enforcing (capsule, data) uniqueness
// under the store lock so exactly one of two concurrent identical deposits
// wins.
func (s *Store) AddShare(ctx context.Context, sh *capsule.Share) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, capsule.ErrClosed
	}
	if _, exists := s.capsules[sh.CapsuleID]; !exists {
		return 0, capsule.ErrNotFound
	}
	for _, existing := range s.shares[sh.CapsuleID] {
		if bytes.Equal(existing.Data, sh.Data) {
			return 0, capsule.ErrDuplicateShare
		}
	}
	s.shares[sh.CapsuleID] = append(s.shares[sh.CapsuleID], cloneShare(sh))
	return len(s.shares[sh.CapsuleID]), nil
}

// ListShares returns deposited shares ordered by deposit time.
func (s *Store) ListShares(ctx context.Context, capsuleID uuid.UUID) ([]*capsule.Share, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, capsule.ErrClosed
	}
	out := make([]*capsule.Share, 0, len(s.shares[capsuleID]))
	for _, sh := range s.shares[capsuleID] {
		out = append(out, cloneShare(sh))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteShares removes all deposited shares for the capsule.
func (s *Store) DeleteShares(ctx context.Context, capsuleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	delete(s.shares, capsuleID)
	return nil
}

// AddKeyslot stores a keyslot.
func (s *Store) AddKeyslot(ctx context.Context, k *capsule.Keyslot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	if _, exists := s.capsules[k.CapsuleID]; !exists {
		return capsule.ErrNotFound
	}
	s.keyslots[k.CapsuleID] = append(s.keyslots[k.CapsuleID], cloneKeyslot(k))
	return nil
}

// SSSKeyslot returns the single SSS keyslot for the capsule.
func (s *Store) SSSKeyslot(ctx context.Context, capsuleID uuid.UUID) (*capsule.Keyslot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, capsule.ErrClosed
	}
	var found *capsule.Keyslot
	for _, k := range s.keyslots[capsuleID] {
		if k.Purpose != capsule.PurposeSSS {
			continue
		}
		if found != nil {
			return nil, capsule.ErrKeyslotAmbiguous
		}
		found = k
	}
	if found == nil {
		return nil, capsule.ErrKeyslotNotFound
	}
	return cloneKeyslot(found), nil
}

// ListKeyslots returns the capsule's keyslots.
func (s *Store) ListKeyslots(ctx context.Context, capsuleID uuid.UUID) ([]*capsule.Keyslot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, capsule.ErrClosed
	}
	out := make([]*capsule.Keyslot, 0, len(s.keyslots[capsuleID]))
	for _, k := range s.keyslots[capsuleID] {
		out = append(out, cloneKeyslot(k))
	}
	return out, nil
}

// DeleteKeyslots removes the capsule's keyslots with the given purpose.
func (s *Store) DeleteKeyslots(ctx context.Context, capsuleID uuid.UUID, purpose capsule.Purpose) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	kept := s.keyslots[capsuleID][:0]
	for _, k := range s.keyslots[capsuleID] {
		if k.Purpose != purpose {
			kept = append(kept, k)
		}
	}
	if len(kept) == 0 {
		delete(s.keyslots, capsuleID)
	} else {
		s.keyslots[capsuleID] = kept
	}
	return nil
}

// AddRecipient stores a recipient and advances the capsule fingerprint.
func (s *Store) AddRecipient(ctx context.Context, r *capsule.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	c, exists := s.capsules[r.CapsuleID]
	if !exists {
		return capsule.ErrNotFound
	}
	for _, existing := range s.recipients[r.CapsuleID] {
		if existing.Contact == r.Contact {
			return capsule.ErrAlreadyExists
		}
	}
	s.recipients[r.CapsuleID] = append(s.recipients[r.CapsuleID], cloneRecipient(r))
	c.UpdatedAt = capsule.Touch(c.UpdatedAt, s.now())
	return nil
}

// ConfirmRecipient marks the recipient confirmed and advances the capsule
// fingerprint.
func (s *Store) ConfirmRecipient(ctx context.Context, capsuleID, recipientID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	c, exists := s.capsules[capsuleID]
	if !exists {
		return capsule.ErrNotFound
	}
	for _, r := range s.recipients[capsuleID] {
		if r.ID == recipientID {
			r.Confirmed = true
			c.UpdatedAt = capsule.Touch(c.UpdatedAt, s.now())
			return nil
		}
	}
	return capsule.ErrNotFound
}

// ListRecipients returns recipients ordered by creation time.
func (s *Store) ListRecipients(ctx context.Context, capsuleID uuid.UUID) ([]*capsule.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, capsule.ErrClosed
	}
	out := make([]*capsule.Recipient, 0, len(s.recipients[capsuleID]))
	for _, r := range s.recipients[capsuleID] {
		out = append(out, cloneRecipient(r))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteRecipient removes a recipient together with its PASSWORD keyslot and
// advances the capsule fingerprint.
func (s *Store) DeleteRecipient(ctx context.Context, capsuleID, recipientID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	c, exists := s.capsules[capsuleID]
	if !exists {
		return capsule.ErrNotFound
	}
	recipients := s.recipients[capsuleID]
	for i, r := range recipients {
		if r.ID != recipientID {
			continue
		}
		s.recipients[capsuleID] = append(recipients[:i], recipients[i+1:]...)

		kept := s.keyslots[capsuleID][:0]
		for _, k := range s.keyslots[capsuleID] {
			if !(k.Purpose == capsule.PurposePassword && k.RecipientID == recipientID) {
				kept = append(kept, k)
			}
		}
		s.keyslots[capsuleID] = kept

		c.UpdatedAt = capsule.Touch(c.UpdatedAt, s.now())
		return nil
	}
	return capsule.ErrNotFound
}

// SetContent stores or replaces capsule content and advances the capsule
// fingerprint.
func (s *Store) SetContent(ctx context.Context, content *capsule.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	c, exists := s.capsules[content.CapsuleID]
	if !exists {
		return capsule.ErrNotFound
	}
	s.contents[content.CapsuleID] = cloneContent(content)
	c.UpdatedAt = capsule.Touch(c.UpdatedAt, s.now())
	return nil
}

// GetContent returns the capsule content or capsule.ErrNotFound.
func (s *Store) GetContent(ctx context.Context, capsuleID uuid.UUID) (*capsule.Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, capsule.ErrClosed
	}
	content, exists := s.contents[capsuleID]
	if !exists {
		return nil, capsule.ErrNotFound
	}
	return cloneContent(content), nil
}

// DeleteContent removes capsule content and advances the capsule
// fingerprint.
func (s *Store) DeleteContent(ctx context.Context, capsuleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	c, exists := s.capsules[capsuleID]
	if !exists {
		return capsule.ErrNotFound
	}
	if _, exists := s.contents[capsuleID]; !exists {
		return capsule.ErrNotFound
	}
	delete(s.contents, capsuleID)
	c.UpdatedAt = capsule.Touch(c.UpdatedAt, s.now())
	return nil
}

// PutOwnerState stores per-owner reminder bookkeeping.
func (s *Store) PutOwnerState(ctx context.Context, state *capsule.OwnerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	clone := *state
	s.owners[state.OwnerID] = &clone
	return nil
}

// OwnerState returns the bookkeeping for an owner.
func (s *Store) OwnerState(ctx context.Context, ownerID string) (*capsule.OwnerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, capsule.ErrClosed
	}
	state, exists := s.owners[ownerID]
	if !exists {
		return nil, capsule.ErrNotFound
	}
	clone := *state
	return &clone, nil
}

// ListOwnerStates returns all owner bookkeeping records ordered by owner id.
func (s *Store) ListOwnerStates(ctx context.Context) ([]*capsule.OwnerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, capsule.ErrClosed
	}
	out := make([]*capsule.OwnerState, 0, len(s.owners))
	for _, state := range s.owners {
		clone := *state
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OwnerID < out[j].OwnerID
	})
	return out, nil
}

// CompleteRelease commits the release transaction under the store lock:
// PASSWORD keyslots in, shares out, Released true, fingerprint untouched.
func (s *Store) CompleteRelease(ctx context.Context, capsuleID uuid.UUID, slots []*capsule.Keyslot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	c, exists := s.capsules[capsuleID]
	if !exists {
		return capsule.ErrNotFound
	}
	if c.Released {
		return capsule.ErrAlreadyReleased
	}
	for _, k := range slots {
		s.keyslots[capsuleID] = append(s.keyslots[capsuleID], cloneKeyslot(k))
	}
	delete(s.shares, capsuleID)
	c.Released = true
	return nil
}

// Close releases the store. Subsequent calls return capsule.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.capsules = nil
	s.trustees = nil
	s.shares = nil
	s.keyslots = nil
	s.recipients = nil
	s.contents = nil
	s.owners = nil
	return nil
}

func cloneCapsule(c *capsule.Capsule) *capsule.Capsule {
	clone := *c
	return &clone
}

func cloneTrustee(t *capsule.Trustee) *capsule.Trustee {
	clone := *t
	clone.ShareHash = cloneBytes(t.ShareHash)
	return &clone
}

func cloneShare(sh *capsule.Share) *capsule.Share {
	clone := *sh
	clone.Data = cloneBytes(sh.Data)
	return &clone
}

func cloneKeyslot(k *capsule.Keyslot) *capsule.Keyslot {
	clone := *k
	clone.Data = cloneBytes(k.Data)
	return &clone
}

func cloneRecipient(r *capsule.Recipient) *capsule.Recipient {
	clone := *r
	return &clone
}

func cloneContent(c *capsule.Content) *capsule.Content {
	clone := *c
	clone.Metadata = cloneBytes(c.Metadata)
	return &clone
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ capsule.Store = (*Store)(nil)
