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

package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-capsule/pkg/capsule"
)

func newCapsule(t *testing.T, s *Store) *capsule.Capsule {
	t.Helper()
	c := &capsule.Capsule{
		ID:        uuid.New(),
		OwnerID:   "owner-1",
		Name:      "test",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, s.CreateCapsule(context.Background(), c))
	return c
}

func TestCapsuleLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := newCapsule(t, s)

	got, err := s.GetCapsule(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	// Duplicate ids are rejected.
	assert.ErrorIs(t, s.CreateCapsule(ctx, c), capsule.ErrAlreadyExists)

	// Attribute updates advance the fingerprint.
	got.Name = "renamed"
	require.NoError(t, s.UpdateCapsule(ctx, got))
	updated, err := s.GetCapsule(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.True(t, updated.UpdatedAt.After(c.UpdatedAt))

	require.NoError(t, s.DeleteCapsule(ctx, c.ID))
	_, err = s.GetCapsule(ctx, c.ID)
	assert.ErrorIs(t, err, capsule.ErrNotFound)
}

func TestTrusteeUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := newCapsule(t, s)

	hash := capsule.HashShare([]byte("share"))
	trustee := &capsule.Trustee{ID: uuid.New(), CapsuleID: c.ID, ShareHash: hash}
	require.NoError(t, s.AddTrustee(ctx, trustee))

	// The same commitment may only be registered once per capsule.
	dup := &capsule.Trustee{ID: uuid.New(), CapsuleID: c.ID, ShareHash: hash}
	assert.ErrorIs(t, s.AddTrustee(ctx, dup), capsule.ErrAlreadyExists)

	got, err := s.TrusteeByShareHash(ctx, c.ID, hash)
	require.NoError(t, err)
	assert.Equal(t, trustee.ID, got.ID)

	_, err = s.TrusteeByShareHash(ctx, c.ID, capsule.HashShare([]byte("other")))
	assert.ErrorIs(t, err, capsule.ErrNotFound)
}

func TestShareUniquenessUnderConcurrency(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := newCapsule(t, s)

	data := []byte("the share")
	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.AddShare(ctx, &capsule.Share{
				ID:        uuid.New(),
				CapsuleID: c.ID,
				Data:      data,
				CreatedAt: time.Now(),
			})
		}(i)
	}
	wg.Wait()

	var wins, duplicates int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		default:
			assert.ErrorIs(t, err, capsule.ErrDuplicateShare)
			duplicates++
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent identical deposit wins")
	assert.Equal(t, len(errs)-1, duplicates)
}

func TestSSSKeyslotInvariant(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := newCapsule(t, s)

	_, err := s.SSSKeyslot(ctx, c.ID)
	assert.ErrorIs(t, err, capsule.ErrKeyslotNotFound)

	slot := &capsule.Keyslot{ID: uuid.New(), CapsuleID: c.ID, Purpose: capsule.PurposeSSS, Data: []byte("sealed")}
	require.NoError(t, s.AddKeyslot(ctx, slot))

	got, err := s.SSSKeyslot(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, slot.ID, got.ID)

	require.NoError(t, s.AddKeyslot(ctx, &capsule.Keyslot{
		ID: uuid.New(), CapsuleID: c.ID, Purpose: capsule.PurposeSSS, Data: []byte("second"),
	}))
	_, err = s.SSSKeyslot(ctx, c.ID)
	assert.ErrorIs(t, err, capsule.ErrKeyslotAmbiguous)
}

func TestRecipientMutationsTouchFingerprint(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := newCapsule(t, s)

	r := &capsule.Recipient{ID: uuid.New(), CapsuleID: c.ID, Contact: "a@example.org", CreatedAt: time.Now()}
	require.NoError(t, s.AddRecipient(ctx, r))
	afterAdd, err := s.GetCapsule(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, afterAdd.UpdatedAt.After(c.UpdatedAt))

	// Duplicate contact per capsule is rejected.
	assert.ErrorIs(t, s.AddRecipient(ctx, &capsule.Recipient{
		ID: uuid.New(), CapsuleID: c.ID, Contact: "a@example.org",
	}), capsule.ErrAlreadyExists)

	require.NoError(t, s.ConfirmRecipient(ctx, c.ID, r.ID))
	afterConfirm, err := s.GetCapsule(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, afterConfirm.UpdatedAt.After(afterAdd.UpdatedAt))

	recipients, err := s.ListRecipients(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, recipients, 1)
	assert.True(t, recipients[0].Confirmed)

	require.NoError(t, s.DeleteRecipient(ctx, c.ID, r.ID))
	afterDelete, err := s.GetCapsule(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, afterDelete.UpdatedAt.After(afterConfirm.UpdatedAt))
}

func TestDeleteRecipientRemovesPasswordKeyslot(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := newCapsule(t, s)

	r := &capsule.Recipient{ID: uuid.New(), CapsuleID: c.ID, Contact: "a@example.org"}
	require.NoError(t, s.AddRecipient(ctx, r))
	require.NoError(t, s.AddKeyslot(ctx, &capsule.Keyslot{
		ID: uuid.New(), CapsuleID: c.ID, Purpose: capsule.PurposePassword,
		Data: []byte("sealed"), RecipientID: r.ID,
	}))

	require.NoError(t, s.DeleteRecipient(ctx, c.ID, r.ID))
	slots, err := s.ListKeyslots(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestContentTouchesFingerprint(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := newCapsule(t, s)

	require.NoError(t, s.SetContent(ctx, &capsule.Content{
		CapsuleID: c.ID, Metadata: []byte("meta"), DataRef: "blob-1",
	}))
	afterSet, err := s.GetCapsule(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, afterSet.UpdatedAt.After(c.UpdatedAt))

	content, err := s.GetContent(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "blob-1", content.DataRef)

	require.NoError(t, s.DeleteContent(ctx, c.ID))
	_, err = s.GetContent(ctx, c.ID)
	assert.ErrorIs(t, err, capsule.ErrNotFound)
	afterDelete, err := s.GetCapsule(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, afterDelete.UpdatedAt.After(afterSet.UpdatedAt))
}

func TestCompleteRelease(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := newCapsule(t, s)

	_, err := s.AddShare(ctx, &capsule.Share{
		ID: uuid.New(), CapsuleID: c.ID, Data: []byte("share"), CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	slot := &capsule.Keyslot{
		ID: uuid.New(), CapsuleID: c.ID, Purpose: capsule.PurposePassword,
		Data: []byte("sealed"), RecipientID: uuid.New(),
	}
	require.NoError(t, s.CompleteRelease(ctx, c.ID, []*capsule.Keyslot{slot}))

	got, err := s.GetCapsule(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.Released)
	assert.True(t, got.UpdatedAt.Equal(c.UpdatedAt),
		"CompleteRelease must not advance the fingerprint")

	shares, err := s.ListShares(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, shares)

	slots, err := s.ListKeyslots(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, slots, 1)

	// Releasing twice is a conflict at the store level.
	assert.ErrorIs(t, s.CompleteRelease(ctx, c.ID, nil), capsule.ErrAlreadyReleased)
}

func TestListReleasable(t *testing.T) {
	s := New()
	ctx := context.Background()

	empty := newCapsule(t, s)
	collecting := newCapsule(t, s)
	released := newCapsule(t, s)

	for _, id := range []uuid.UUID{collecting.ID, released.ID} {
		_, err := s.AddShare(ctx, &capsule.Share{
			ID: uuid.New(), CapsuleID: id, Data: []byte("share"), CreatedAt: time.Now(),
		})
		require.NoError(t, err)
	}
	require.NoError(t, s.CompleteRelease(ctx, released.ID, nil))

	ids, err := s.ListReleasable(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{collecting.ID}, ids)
	assert.NotContains(t, ids, empty.ID)
	assert.NotContains(t, ids, released.ID)
}

func TestOwnerState(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.OwnerState(ctx, "owner-1")
	assert.ErrorIs(t, err, capsule.ErrNotFound)

	state := &capsule.OwnerState{
		OwnerID:        "owner-1",
		RemindInterval: 30 * 24 * time.Hour,
		LastReminderAt: time.Now(),
	}
	require.NoError(t, s.PutOwnerState(ctx, state))

	got, err := s.OwnerState(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, state.RemindInterval, got.RemindInterval)

	all, err := s.ListOwnerStates(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCascadeDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := newCapsule(t, s)

	require.NoError(t, s.AddTrustee(ctx, &capsule.Trustee{
		ID: uuid.New(), CapsuleID: c.ID, ShareHash: capsule.HashShare([]byte("x")),
	}))
	_, err := s.AddShare(ctx, &capsule.Share{
		ID: uuid.New(), CapsuleID: c.ID, Data: []byte("x"), CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteCapsule(ctx, c.ID))

	trustees, err := s.ListTrustees(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, trustees)
	shares, err := s.ListShares(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, shares)
}

func TestClosedStore(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())

	_, err := s.GetCapsule(context.Background(), uuid.New())
	assert.ErrorIs(t, err, capsule.ErrClosed)
	assert.ErrorIs(t, s.CreateCapsule(context.Background(), &capsule.Capsule{ID: uuid.New()}), capsule.ErrClosed)
}

func TestDefensiveCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := newCapsule(t, s)

	data := []byte("mutable")
	_, err := s.AddShare(ctx, &capsule.Share{
		ID: uuid.New(), CapsuleID: c.ID, Data: data, CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	data[0] = 'X'

	shares, err := s.ListShares(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.Equal(t, []byte("mutable"), shares[0].Data)
}
