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

// Package file provides a file-backed implementation of capsule.Store. Each
// capsule is persisted as one JSON record holding the capsule and all of its
// dependents, so every mutation commits atomically by rewriting a single
// file. Records are loaded into memory at open; reads never touch the disk.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-capsule/pkg/capsule"
)

const (
	dirPerms  = 0700
	filePerms = 0600

	capsuleDir = "capsules"
	ownersFile = "owners.json"
)

// record is the on-disk unit: one capsule with all dependents.
type record struct {
	Capsule    *capsule.Capsule     `json:"capsule"`
	Trustees   []*capsule.Trustee   `json:"trustees,omitempty"`
	Shares     []*capsule.Share     `json:"shares,omitempty"`
	Keyslots   []*capsule.Keyslot   `json:"keyslots,omitempty"`
	Recipients []*capsule.Recipient `json:"recipients,omitempty"`
	Content    *capsule.Content     `json:"content,omitempty"`
}

// Store is a file-backed implementation of capsule.Store.
type Store struct {
	mu      sync.RWMutex
	closed  bool
	now     func() time.Time
	rootDir string

	records map[uuid.UUID]*record
	owners  map[string]*capsule.OwnerState
}

// New opens (or creates) a file store rooted at the given directory.
func New(rootDir string) (*Store, error) {
	return NewWithClock(rootDir, time.Now)
}

// NewWithClock opens a store using the given clock for fingerprint
// advancement. Useful in tests.
func NewWithClock(rootDir string, now func() time.Time) (*Store, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("file store: root directory cannot be empty")
	}
	if err := os.MkdirAll(filepath.Join(rootDir, capsuleDir), dirPerms); err != nil {
		return nil, fmt.Errorf("file store: failed to create root directory: %w", err)
	}

	s := &Store{
		now:     now,
		rootDir: rootDir,
		records: make(map[uuid.UUID]*record),
		owners:  make(map[string]*capsule.OwnerState),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads every persisted record into memory.
func (s *Store) load() error {
	entries, err := os.ReadDir(filepath.Join(s.rootDir, capsuleDir))
	if err != nil {
		return fmt.Errorf("file store: failed to read capsule directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.rootDir, capsuleDir, entry.Name())
		data, err := os.ReadFile(path) // #nosec G304 - paths come from our own directory listing
		if err != nil {
			return fmt.Errorf("file store: failed to read %s: %w", entry.Name(), err)
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("file store: corrupt record %s: %w", entry.Name(), err)
		}
		if rec.Capsule == nil {
			return fmt.Errorf("file store: corrupt record %s: missing capsule", entry.Name())
		}
		s.records[rec.Capsule.ID] = &rec
	}

	ownersPath := filepath.Join(s.rootDir, ownersFile)
	data, err := os.ReadFile(ownersPath) // #nosec G304 - path is under our root
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("file store: failed to read owner states: %w", err)
	}
	var owners []*capsule.OwnerState
	if err := json.Unmarshal(data, &owners); err != nil {
		return fmt.Errorf("file store: corrupt owner states: %w", err)
	}
	for _, state := range owners {
		s.owners[state.OwnerID] = state
	}
	return nil
}

// recordPath returns the file path for a capsule record.
func (s *Store) recordPath(id uuid.UUID) string {
	return filepath.Join(s.rootDir, capsuleDir, id.String()+".json")
}

// stage returns a working copy of rec: a cloned capsule plus fresh slice
// headers for every dependent list. Mutations on the copy leave the committed
// record untouched until commit persists it, so a failed write never leaks
// partial state into memory. Staged mutations must replace list elements, not
// modify them in place, because the elements are still shared with rec.
func stage(rec *record) *record {
	c := *rec.Capsule
	return &record{
		Capsule:    &c,
		Trustees:   append([]*capsule.Trustee(nil), rec.Trustees...),
		Shares:     append([]*capsule.Share(nil), rec.Shares...),
		Keyslots:   append([]*capsule.Keyslot(nil), rec.Keyslots...),
		Recipients: append([]*capsule.Recipient(nil), rec.Recipients...),
		Content:    rec.Content,
	}
}

// commit persists the staged record and swaps it in as the committed state
// only when the write succeeds. Callers hold the write lock.
func (s *Store) commit(staged *record) error {
	if err := s.saveRecord(staged); err != nil {
		return err
	}
	s.records[staged.Capsule.ID] = staged
	return nil
}

// saveRecord persists one capsule record. Callers hold the write lock.
func (s *Store) saveRecord(rec *record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("file store: failed to encode record: %w", err)
	}
	if err := os.WriteFile(s.recordPath(rec.Capsule.ID), data, filePerms); err != nil {
		return fmt.Errorf("file store: failed to write record: %w", err)
	}
	return nil
}

// saveOwners persists the owner state list. Callers hold the write lock.
func (s *Store) saveOwners() error {
	owners := make([]*capsule.OwnerState, 0, len(s.owners))
	for _, state := range s.owners {
		owners = append(owners, state)
	}
	sort.Slice(owners, func(i, j int) bool {
		return owners[i].OwnerID < owners[j].OwnerID
	})
	data, err := json.MarshalIndent(owners, "", "  ")
	if err != nil {
		return fmt.Errorf("file store: failed to encode owner states: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.rootDir, ownersFile), data, filePerms); err != nil {
		return fmt.Errorf("file store: failed to write owner states: %w", err)
	}
	return nil
}

// CreateCapsule stores a new capsule.
func (s *Store) CreateCapsule(ctx context.Context, c *capsule.Capsule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	if _, exists := s.records[c.ID]; exists {
		return capsule.ErrAlreadyExists
	}
	clone := *c
	rec := &record{Capsule: &clone}
	if err := s.saveRecord(rec); err != nil {
		return err
	}
	s.records[c.ID] = rec
	return nil
}

// GetCapsule returns the capsule or capsule.ErrNotFound.
func (s *Store) GetCapsule(ctx context.Context, id uuid.UUID) (*capsule.Capsule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, capsule.ErrClosed
	}
	rec, exists := s.records[id]
	if !exists {
		return nil, capsule.ErrNotFound
	}
	clone := *rec.Capsule
	return &clone, nil
}

// UpdateCapsule persists user-editable attributes and advances the
// fingerprint.
func (s *Store) UpdateCapsule(ctx context.Context, c *capsule.Capsule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	rec, exists := s.records[c.ID]
	if !exists {
		return capsule.ErrNotFound
	}
	staged := stage(rec)
	staged.Capsule.Name = c.Name
	staged.Capsule.Description = c.Description
	staged.Capsule.UpdatedAt = capsule.Touch(staged.Capsule.UpdatedAt, s.now())
	return s.commit(staged)
}

// DeleteCapsule removes the capsule and all dependents.
func (s *Store) DeleteCapsule(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	if _, exists := s.records[id]; !exists {
		return capsule.ErrNotFound
	}
	if err := os.Remove(s.recordPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("file store: failed to delete record: %w", err)
	}
	delete(s.records, id)
	return nil
}

// ListCapsules returns all capsules ordered by id.
func (s *Store) ListCapsules(ctx context.Context) ([]*capsule.Capsule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, capsule.ErrClosed
	}
	out := make([]*capsule.Capsule, 0, len(s.records))
	for _, rec := range s.records {
		clone := *rec.Capsule
		out = append(out, &clone)
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
	for id, rec := range s.records {
		if !rec.Capsule.Released && len(rec.Shares) > 0 {
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
	rec, exists := s.records[id]
	if !exists {
		return capsule.ErrNotFound
	}
	staged := stage(rec)
	staged.Capsule.InvitationsSent = sent
	return s.commit(staged)
}

// AddTrustee registers a share commitment.
func (s *Store) AddTrustee(ctx context.Context, t *capsule.Trustee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	rec, exists := s.records[t.CapsuleID]
	if !exists {
		return capsule.ErrNotFound
	}
	for _, existing := range rec.Trustees {
		if bytes.Equal(existing.ShareHash, t.ShareHash) {
			return capsule.ErrAlreadyExists
		}
	}
	clone := *t
	clone.ShareHash = append([]byte(nil), t.ShareHash...)
	staged := stage(rec)
	staged.Trustees = append(staged.Trustees, &clone)
	return s.commit(staged)
}

// TrusteeByShareHash returns the trustee registered with the given
// commitment.
func (s *Store) TrusteeByShareHash(ctx context.Context, capsuleID uuid.UUID, hash []byte) (*capsule.Trustee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, capsule.ErrClosed
	}
	rec, exists := s.records[capsuleID]
	if !exists {
		return nil, capsule.ErrNotFound
	}
	for _, t := range rec.Trustees {
		if bytes.Equal(t.ShareHash, hash) {
			clone := *t
			return &clone, nil
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
	rec, exists := s.records[capsuleID]
	if !exists {
		return nil, nil
	}
	out := make([]*capsule.Trustee, 0, len(rec.Trustees))
	for _, t := range rec.Trustees {
		clone := *t
		out = append(out, &clone)
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
	rec, exists := s.records[capsuleID]
	if !exists {
		return nil
	}
	staged := stage(rec)
	staged.Trustees = nil
	return s.commit(staged)
}

// AddShare stores a deposited share, enforcing (capsule, data) uniqueness.
func (s *Store) AddShare(ctx context.Context, sh *capsule.Share) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, capsule.ErrClosed
	}
	rec, exists := s.records[sh.CapsuleID]
	if !exists {
		return 0, capsule.ErrNotFound
	}
	for _, existing := range rec.Shares {
		if bytes.Equal(existing.Data, sh.Data) {
			return 0, capsule.ErrDuplicateShare
		}
	}
	clone := *sh
	clone.Data = append([]byte(nil), sh.Data...)
	staged := stage(rec)
	staged.Shares = append(staged.Shares, &clone)
	if err := s.commit(staged); err != nil {
		return 0, err
	}
	return len(staged.Shares), nil
}

// ListShares returns deposited shares ordered by deposit time.
func (s *Store) ListShares(ctx context.Context, capsuleID uuid.UUID) ([]*capsule.Share, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, capsule.ErrClosed
	}
	rec, exists := s.records[capsuleID]
	if !exists {
		return nil, nil
	}
	out := make([]*capsule.Share, 0, len(rec.Shares))
	for _, sh := range rec.Shares {
		clone := *sh
		clone.Data = append([]byte(nil), sh.Data...)
		out = append(out, &clone)
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
	rec, exists := s.records[capsuleID]
	if !exists {
		return nil
	}
	staged := stage(rec)
	staged.Shares = nil
	return s.commit(staged)
}

// AddKeyslot stores a keyslot.
func (s *Store) AddKeyslot(ctx context.Context, k *capsule.Keyslot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	rec, exists := s.records[k.CapsuleID]
	if !exists {
		return capsule.ErrNotFound
	}
	clone := *k
	clone.Data = append([]byte(nil), k.Data...)
	staged := stage(rec)
	staged.Keyslots = append(staged.Keyslots, &clone)
	return s.commit(staged)
}

// SSSKeyslot returns the single SSS keyslot for the capsule.
func (s *Store) SSSKeyslot(ctx context.Context, capsuleID uuid.UUID) (*capsule.Keyslot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, capsule.ErrClosed
	}
	rec, exists := s.records[capsuleID]
	if !exists {
		return nil, capsule.ErrKeyslotNotFound
	}
	var found *capsule.Keyslot
	for _, k := range rec.Keyslots {
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
	clone := *found
	clone.Data = append([]byte(nil), found.Data...)
	return &clone, nil
}

// ListKeyslots returns the capsule's keyslots.
func (s *Store) ListKeyslots(ctx context.Context, capsuleID uuid.UUID) ([]*capsule.Keyslot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, capsule.ErrClosed
	}
	rec, exists := s.records[capsuleID]
	if !exists {
		return nil, nil
	}
	out := make([]*capsule.Keyslot, 0, len(rec.Keyslots))
	for _, k := range rec.Keyslots {
		clone := *k
		clone.Data = append([]byte(nil), k.Data...)
		out = append(out, &clone)
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
	rec, exists := s.records[capsuleID]
	if !exists {
		return nil
	}
	var kept []*capsule.Keyslot
	for _, k := range rec.Keyslots {
		if k.Purpose != purpose {
			kept = append(kept, k)
		}
	}
	staged := stage(rec)
	staged.Keyslots = kept
	return s.commit(staged)
}

// AddRecipient stores a recipient and advances the capsule fingerprint.
func (s *Store) AddRecipient(ctx context.Context, r *capsule.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	rec, exists := s.records[r.CapsuleID]
	if !exists {
		return capsule.ErrNotFound
	}
	for _, existing := range rec.Recipients {
		if existing.Contact == r.Contact {
			return capsule.ErrAlreadyExists
		}
	}
	clone := *r
	staged := stage(rec)
	staged.Recipients = append(staged.Recipients, &clone)
	staged.Capsule.UpdatedAt = capsule.Touch(staged.Capsule.UpdatedAt, s.now())
	return s.commit(staged)
}

// ConfirmRecipient marks the recipient confirmed and advances the capsule
// fingerprint.
func (s *Store) ConfirmRecipient(ctx context.Context, capsuleID, recipientID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	rec, exists := s.records[capsuleID]
	if !exists {
		return capsule.ErrNotFound
	}
	for i, r := range rec.Recipients {
		if r.ID == recipientID {
			confirmed := *r
			confirmed.Confirmed = true
			staged := stage(rec)
			staged.Recipients[i] = &confirmed
			staged.Capsule.UpdatedAt = capsule.Touch(staged.Capsule.UpdatedAt, s.now())
			return s.commit(staged)
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
	rec, exists := s.records[capsuleID]
	if !exists {
		return nil, nil
	}
	out := make([]*capsule.Recipient, 0, len(rec.Recipients))
	for _, r := range rec.Recipients {
		clone := *r
		out = append(out, &clone)
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
	rec, exists := s.records[capsuleID]
	if !exists {
		return capsule.ErrNotFound
	}
	for i, r := range rec.Recipients {
		if r.ID != recipientID {
			continue
		}
		staged := stage(rec)
		staged.Recipients = append(staged.Recipients[:i], staged.Recipients[i+1:]...)

		var kept []*capsule.Keyslot
		for _, k := range rec.Keyslots {
			if !(k.Purpose == capsule.PurposePassword && k.RecipientID == recipientID) {
				kept = append(kept, k)
			}
		}
		staged.Keyslots = kept

		staged.Capsule.UpdatedAt = capsule.Touch(staged.Capsule.UpdatedAt, s.now())
		return s.commit(staged)
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
	rec, exists := s.records[content.CapsuleID]
	if !exists {
		return capsule.ErrNotFound
	}
	clone := *content
	clone.Metadata = append([]byte(nil), content.Metadata...)
	staged := stage(rec)
	staged.Content = &clone
	staged.Capsule.UpdatedAt = capsule.Touch(staged.Capsule.UpdatedAt, s.now())
	return s.commit(staged)
}

// GetContent returns the capsule content or capsule.ErrNotFound.
func (s *Store) GetContent(ctx context.Context, capsuleID uuid.UUID) (*capsule.Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, capsule.ErrClosed
	}
	rec, exists := s.records[capsuleID]
	if !exists || rec.Content == nil {
		return nil, capsule.ErrNotFound
	}
	clone := *rec.Content
	clone.Metadata = append([]byte(nil), rec.Content.Metadata...)
	return &clone, nil
}

// DeleteContent removes capsule content and advances the capsule
// fingerprint.
func (s *Store) DeleteContent(ctx context.Context, capsuleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	rec, exists := s.records[capsuleID]
	if !exists || rec.Content == nil {
		return capsule.ErrNotFound
	}
	staged := stage(rec)
	staged.Content = nil
	staged.Capsule.UpdatedAt = capsule.Touch(staged.Capsule.UpdatedAt, s.now())
	return s.commit(staged)
}

// PutOwnerState stores per-owner reminder bookkeeping.
func (s *Store) PutOwnerState(ctx context.Context, state *capsule.OwnerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	clone := *state
	prev, existed := s.owners[state.OwnerID]
	s.owners[state.OwnerID] = &clone
	if err := s.saveOwners(); err != nil {
		if existed {
			s.owners[state.OwnerID] = prev
		} else {
			delete(s.owners, state.OwnerID)
		}
		return err
	}
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

// CompleteRelease commits the release transaction as one record write:
// PASSWORD keyslots in, shares out, Released true, fingerprint untouched.
func (s *Store) CompleteRelease(ctx context.Context, capsuleID uuid.UUID, slots []*capsule.Keyslot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return capsule.ErrClosed
	}
	rec, exists := s.records[capsuleID]
	if !exists {
		return capsule.ErrNotFound
	}
	if rec.Capsule.Released {
		return capsule.ErrAlreadyReleased
	}

	staged := stage(rec)
	for _, k := range slots {
		clone := *k
		clone.Data = append([]byte(nil), k.Data...)
		staged.Keyslots = append(staged.Keyslots, &clone)
	}
	staged.Shares = nil
	staged.Capsule.Released = true
	return s.commit(staged)
}

// Close releases the store. Subsequent calls return capsule.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.records = nil
	s.owners = nil
	return nil
}

var _ capsule.Store = (*Store)(nil)
