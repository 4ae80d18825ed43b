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
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-capsule/internal/password"
	"github.com/jeremyhahn/go-capsule/pkg/envelope"
	"github.com/jeremyhahn/go-capsule/pkg/logging"
	"github.com/jeremyhahn/go-capsule/pkg/metrics"
	"github.com/jeremyhahn/go-capsule/pkg/recombine"
	"github.com/jeremyhahn/go-capsule/pkg/tokens"
)

// DefaultPasswordLength is the length of generated recipient passwords when
// none is configured.
const DefaultPasswordLength = 16

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// Store is the persistence backend. Required.
	Store Store

	// Combiner reconstructs the capsule password from deposited shares.
	// Required.
	Combiner recombine.Combiner

	// Tokens issues scoped access tokens embedded in release
	// notifications. Required.
	Tokens *tokens.Issuer

	// Envelopes selects the encryption envelope formats. Nil means
	// envelope.Default().
	Envelopes *envelope.Registry

	// PasswordLength is the length of generated recipient passwords.
	// Zero means DefaultPasswordLength.
	PasswordLength int

	// Logger receives operational logging. Nil means a fresh non-debug
	// logger.
	Logger *logging.Logger

	// Clock overrides time.Now. Useful in tests.
	Clock func() time.Time
}

// Service orchestrates the capsule release core: trustee deposits, the
// release state machine and the abort path. All state-changing operations
// return their notification side effects as explicit events; nothing is
// dispatched implicitly.
type Service struct {
	store          Store
	combiner       recombine.Combiner
	tokens         *tokens.Issuer
	envelopes      *envelope.Registry
	passwordLength int
	log            *logging.Logger
	now            func() time.Time
}

// NewService creates a Service from the given configuration.
func NewService(cfg *ServiceConfig) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("capsule: config cannot be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("capsule: store is required")
	}
	if cfg.Combiner == nil {
		return nil, errors.New("capsule: combiner is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("capsule: token issuer is required")
	}

	envelopes := cfg.Envelopes
	if envelopes == nil {
		envelopes = envelope.Default()
	}
	length := cfg.PasswordLength
	if length == 0 {
		length = DefaultPasswordLength
	}
	if length < 0 {
		return nil, password.ErrInvalidLength
	}
	log := cfg.Logger
	if log == nil {
		log = logging.NewLogger(false)
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Service{
		store:          cfg.Store,
		combiner:       cfg.Combiner,
		tokens:         cfg.Tokens,
		envelopes:      envelopes,
		passwordLength: length,
		log:            log,
		now:            now,
	}, nil
}

// Deposit validates and stores a trustee's share. Checks run in order:
// released capsules accept nothing (ErrAlreadyReleased); the share's hash
// must match a registered trustee commitment (ErrInvalidShare); identical
// share data may not be deposited twice (ErrDuplicateShare).
//
// The first accepted share for a capsule yields a one-time ReleaseInitiated
// event for the owner; the post-insert share count guards against duplicate
// notifications under concurrent deposits.
func (s *Service) Deposit(ctx context.Context, capsuleID uuid.UUID, raw []byte) (*Share, []Event, error) {
	c, err := s.store.GetCapsule(ctx, capsuleID)
	if err != nil {
		metrics.RecordDeposit(metrics.StatusError)
		return nil, nil, err
	}
	if c.Released {
		metrics.RecordDeposit(metrics.StatusReleased)
		return nil, nil, ErrAlreadyReleased
	}

	hash := HashShare(raw)
	if _, err := s.store.TrusteeByShareHash(ctx, capsuleID, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.RecordDeposit(metrics.StatusInvalid)
			return nil, nil, ErrInvalidShare
		}
		metrics.RecordDeposit(metrics.StatusError)
		return nil, nil, err
	}

	share := &Share{
		ID:        uuid.New(),
		CapsuleID: capsuleID,
		Data:      raw,
		CreatedAt: s.now(),
	}
	count, err := s.store.AddShare(ctx, share)
	if err != nil {
		if errors.Is(err, ErrDuplicateShare) {
			metrics.RecordDeposit(metrics.StatusDuplicate)
		} else {
			metrics.RecordDeposit(metrics.StatusError)
		}
		return nil, nil, err
	}
	metrics.RecordDeposit(metrics.StatusSuccess)
	s.log.Info("share deposited", "capsule", capsuleID, "count", count)

	var events []Event
	if count == 1 {
		events = append(events, Event{
			Kind:      EventReleaseInitiated,
			CapsuleID: capsuleID,
			Subject:   c.OwnerID,
		})
	}
	return share, events, nil
}

// ReleaseResult is the outcome of a successful release: one freshly
// generated password per confirmed recipient, plus the notification events
// to dispatch exactly once.
type ReleaseResult struct {
	Passwords map[uuid.UUID]string
	Events    []Event
}

// AttemptRelease runs the release state machine for one capsule.
//
// It is a guaranteed no-op (nil result, nil error) when the capsule is
// already released or holds no deposited shares. Otherwise it recombines the
// shares, decrypts the capsule secret, re-encrypts it under a fresh password
// per confirmed recipient and commits keyslots, released flag and share
// deletion as one atomic store transaction. The capsule fingerprint is not
// advanced: release is internal bookkeeping, not a user-visible edit.
//
// Failures before the commit leave no observable trace and wrap ErrRecrypt;
// faults that retrying cannot repair additionally wrap ErrDataIntegrity.
func (s *Service) AttemptRelease(ctx context.Context, capsuleID uuid.UUID) (*ReleaseResult, error) {
	start := s.now()

	c, err := s.store.GetCapsule(ctx, capsuleID)
	if err != nil {
		metrics.RecordRelease(metrics.StatusError, 0)
		return nil, err
	}
	if c.Released {
		metrics.RecordRelease(metrics.StatusNoop, 0)
		return nil, nil
	}

	shares, err := s.store.ListShares(ctx, capsuleID)
	if err != nil {
		metrics.RecordRelease(metrics.StatusError, 0)
		return nil, err
	}
	if len(shares) == 0 {
		metrics.RecordRelease(metrics.StatusNoop, 0)
		return nil, nil
	}

	shareData := make([][]byte, len(shares))
	for i, share := range shares {
		shareData[i] = share.Data
	}
	combined, err := s.combiner.Combine(ctx, shareData)
	if err != nil {
		metrics.RecordRelease(metrics.StatusRetryable, 0)
		return nil, fmt.Errorf("capsule %s: %w: %w", capsuleID, ErrRecrypt, err)
	}

	secret, err := s.decryptSecret(ctx, capsuleID, combined)
	if err != nil {
		if errors.Is(err, ErrDataIntegrity) {
			metrics.RecordRelease(metrics.StatusIntegrity, 0)
		} else {
			metrics.RecordRelease(metrics.StatusRetryable, 0)
		}
		return nil, err
	}

	recipients, err := s.store.ListRecipients(ctx, capsuleID)
	if err != nil {
		metrics.RecordRelease(metrics.StatusError, 0)
		return nil, err
	}

	result := &ReleaseResult{Passwords: make(map[uuid.UUID]string)}
	var slots []*Keyslot
	fingerprint := c.Fingerprint()
	for _, r := range recipients {
		if !r.Confirmed {
			continue
		}
		pw, err := password.Generate(s.passwordLength)
		if err != nil {
			metrics.RecordRelease(metrics.StatusError, 0)
			return nil, err
		}
		sealed, err := s.envelopes.Encrypt([]byte(pw), secret)
		if err != nil {
			metrics.RecordRelease(metrics.StatusError, 0)
			return nil, err
		}
		slots = append(slots, &Keyslot{
			ID:          uuid.New(),
			CapsuleID:   capsuleID,
			Purpose:     PurposePassword,
			Data:        sealed,
			RecipientID: r.ID,
		})
		result.Passwords[r.ID] = pw
		result.Events = append(result.Events, Event{
			Kind:      EventReleaseNotification,
			CapsuleID: capsuleID,
			Subject:   r.Contact,
			Password:  pw,
			Token:     s.tokens.Issue(r.ID.String(), fingerprint),
		})
	}

	if err := s.store.CompleteRelease(ctx, capsuleID, slots); err != nil {
		if errors.Is(err, ErrAlreadyReleased) {
			// Lost the race against a concurrent pass; the winner
			// already dispatched the notifications.
			metrics.RecordRelease(metrics.StatusNoop, 0)
			return nil, nil
		}
		metrics.RecordRelease(metrics.StatusError, 0)
		return nil, err
	}

	metrics.RecordRelease(metrics.StatusSuccess, s.now().Sub(start).Seconds())
	s.log.Info("capsule released",
		"capsule", capsuleID, "recipients", len(result.Passwords))
	return result, nil
}

// AbortRelease cancels an in-progress collection, discarding all deposited
// shares. A non-accidental abort additionally discards the SSS keyslot and
// all trustee registrations, so the owner can restart the trust setup from
// scratch. Either way the one-time invitation guard is reset.
func (s *Service) AbortRelease(ctx context.Context, capsuleID uuid.UUID, accidental bool) error {
	c, err := s.store.GetCapsule(ctx, capsuleID)
	if err != nil {
		return err
	}
	if c.Released {
		return ErrAlreadyReleased
	}

	if err := s.store.DeleteShares(ctx, capsuleID); err != nil {
		return err
	}
	if !accidental {
		if err := s.store.DeleteKeyslots(ctx, capsuleID, PurposeSSS); err != nil {
			return err
		}
		if err := s.store.DeleteTrustees(ctx, capsuleID); err != nil {
			return err
		}
	}
	if err := s.store.SetInvitationsSent(ctx, capsuleID, false); err != nil {
		return err
	}
	s.log.Info("release aborted", "capsule", capsuleID, "accidental", accidental)
	return nil
}

// VerifyRecipientToken checks a recipient's scoped access token against the
// capsule's current fingerprint. The recipient must belong to the capsule.
func (s *Service) VerifyRecipientToken(ctx context.Context, capsuleID uuid.UUID, token string) (*Recipient, error) {
	c, err := s.store.GetCapsule(ctx, capsuleID)
	if err != nil {
		return nil, err
	}
	recipients, err := s.store.ListRecipients(ctx, capsuleID)
	if err != nil {
		return nil, err
	}
	fingerprint := c.Fingerprint()
	for _, r := range recipients {
		if s.tokens.Verify(token, r.ID.String(), fingerprint) {
			metrics.RecordTokenVerification(true)
			return r, nil
		}
	}
	metrics.RecordTokenVerification(false)
	return nil, ErrNotFound
}

// AddRecipient registers a recipient and returns the confirmation event to
// dispatch. The registration advances the capsule fingerprint, so the
// confirmation token is issued against the post-registration state.
func (s *Service) AddRecipient(ctx context.Context, capsuleID uuid.UUID, contact string) (*Recipient, []Event, error) {
	r := &Recipient{
		ID:        uuid.New(),
		CapsuleID: capsuleID,
		Contact:   contact,
		CreatedAt: s.now(),
	}
	if err := s.store.AddRecipient(ctx, r); err != nil {
		return nil, nil, err
	}
	c, err := s.store.GetCapsule(ctx, capsuleID)
	if err != nil {
		return nil, nil, err
	}
	events := []Event{{
		Kind:      EventRecipientConfirmation,
		CapsuleID: capsuleID,
		Subject:   contact,
		Token:     s.tokens.Issue(r.ID.String(), c.Fingerprint()),
	}}
	return r, events, nil
}

// ConfirmRecipient marks the recipient identified by the confirmation token
// as confirmed. Any capsule edit since the token was issued invalidates it.
func (s *Service) ConfirmRecipient(ctx context.Context, capsuleID uuid.UUID, token string) (*Recipient, error) {
	r, err := s.VerifyRecipientToken(ctx, capsuleID, token)
	if err != nil {
		return nil, err
	}
	if err := s.store.ConfirmRecipient(ctx, capsuleID, r.ID); err != nil {
		return nil, err
	}
	r.Confirmed = true
	return r, nil
}

// RecipientSecret opens a released capsule for a recipient. The token proves
// the caller is the recipient; the password, delivered out of band in the
// release notification, opens the recipient's keyslot.
func (s *Service) RecipientSecret(ctx context.Context, capsuleID uuid.UUID, token string, pw []byte) ([]byte, error) {
	r, err := s.VerifyRecipientToken(ctx, capsuleID, token)
	if err != nil {
		return nil, err
	}
	slots, err := s.store.ListKeyslots(ctx, capsuleID)
	if err != nil {
		return nil, err
	}
	for _, slot := range slots {
		if slot.Purpose == PurposePassword && slot.RecipientID == r.ID {
			return s.envelopes.Decrypt(pw, slot.Data)
		}
	}
	return nil, ErrKeyslotNotFound
}

// decryptSecret opens the capsule's single SSS keyslot with the recombined
// password. Slot-count violations and unrecognized envelope formats are
// faults that retrying cannot repair and wrap ErrDataIntegrity; a failed
// decrypt wraps only ErrRecrypt, since a garbage password recombined from a
// below-threshold share set looks exactly the same and more shares may still
// arrive.
func (s *Service) decryptSecret(ctx context.Context, capsuleID uuid.UUID, combined []byte) ([]byte, error) {
	slot, err := s.store.SSSKeyslot(ctx, capsuleID)
	if err != nil {
		if errors.Is(err, ErrKeyslotNotFound) || errors.Is(err, ErrKeyslotAmbiguous) {
			return nil, fmt.Errorf("capsule %s: %w: %w: %w",
				capsuleID, ErrRecrypt, ErrDataIntegrity, err)
		}
		return nil, err
	}

	secret, err := s.envelopes.Decrypt(combined, slot.Data)
	if err != nil {
		if errors.Is(err, envelope.ErrUnknownFormat) {
			return nil, fmt.Errorf("capsule %s: %w: %w: %w",
				capsuleID, ErrRecrypt, ErrDataIntegrity, err)
		}
		return nil, fmt.Errorf("capsule %s: %w: %w", capsuleID, ErrRecrypt, err)
	}
	return secret, nil
}
