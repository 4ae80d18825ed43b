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

// Package tokens issues and verifies scoped bearer tokens for recipients and
// trustees. A token binds an identity to a capsule state fingerprint: when
// the capsule changes, its fingerprint advances and every outstanding token
// becomes invalid without any revocation bookkeeping.
//
// Token format: "{subjectID}-{derived}", where derived is a keyed,
// time-windowed HMAC over {subjectID, fingerprint, window}. A token only
// ever authorizes its own holder: verification rejects tokens whose embedded
// subject does not match the presented identity before looking at the HMAC.
package tokens

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// DefaultWindow is the validity window granularity. A token stays valid for
// the window it was issued in plus the following one.
const DefaultWindow = time.Hour

// derivedSize is the truncated HMAC length in bytes.
const derivedSize = 16

// ErrEmptyKey is returned when an issuer is created without key material.
var ErrEmptyKey = errors.New("tokens: signing key cannot be empty")

// Issuer issues and verifies scoped access tokens.
type Issuer struct {
	key    []byte
	window time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer with the given signing key and the default
// hour-granularity window.
func NewIssuer(key []byte) (*Issuer, error) {
	return NewIssuerWithClock(key, DefaultWindow, time.Now)
}

// NewIssuerWithClock creates an Issuer with an explicit window and clock.
// Useful in tests.
func NewIssuerWithClock(key []byte, window time.Duration, now func() time.Time) (*Issuer, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	if window <= 0 {
		window = DefaultWindow
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Issuer{key: k, window: window, now: now}, nil
}

// Issue returns a token authorizing subjectID against the given capsule
// fingerprint.
func (i *Issuer) Issue(subjectID, fingerprint string) string {
	return subjectID + "-" + i.derive(subjectID, fingerprint, i.windowIndex())
}

// Verify reports whether token authorizes subjectID against fingerprint.
// Tokens from the current and the immediately preceding window are accepted.
func (i *Issuer) Verify(token, subjectID, fingerprint string) bool {
	// The derived part contains no dash, so the last dash separates it
	// from the embedded subject (which may itself contain dashes).
	sep := strings.LastIndexByte(token, '-')
	if sep <= 0 || sep == len(token)-1 {
		return false
	}
	embedded, derived := token[:sep], token[sep+1:]

	// Reject foreign subjects regardless of the inner token's validity.
	if subtle.ConstantTimeCompare([]byte(embedded), []byte(subjectID)) != 1 {
		return false
	}

	window := i.windowIndex()
	for _, w := range []int64{window, window - 1} {
		expected := i.derive(subjectID, fingerprint, w)
		if hmac.Equal([]byte(derived), []byte(expected)) {
			return true
		}
	}
	return false
}

func (i *Issuer) windowIndex() int64 {
	return i.now().Unix() / int64(i.window/time.Second)
}

func (i *Issuer) derive(subjectID, fingerprint string, window int64) string {
	mac := hmac.New(sha256.New, i.key)
	mac.Write([]byte(subjectID))
	mac.Write([]byte{0})
	mac.Write([]byte(fingerprint))
	mac.Write([]byte{0})
	mac.Write(binary.BigEndian.AppendUint64(nil, uint64(window)))
	return hex.EncodeToString(mac.Sum(nil)[:derivedSize])
}
