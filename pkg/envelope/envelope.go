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

// Package envelope provides versioned, password-authenticated symmetric
// encryption for secrets at rest. Every encrypted blob is self-describing:
// the format version and all key-derivation parameters are embedded in the
// envelope itself, so decryption needs nothing beyond the password.
//
// Multiple format versions may coexist in storage. A Registry selects the
// correct format for a given blob via a cheap header check, without
// attempting decryption.
package envelope

import "errors"

var (
	// ErrDecrypt is returned for any failed decryption: a malformed or
	// truncated envelope, corrupted ciphertext, or a wrong password. These
	// cases are deliberately indistinguishable to the caller.
	ErrDecrypt = errors.New("envelope: decryption failed")

	// ErrEmptyPassword is returned when an empty password is provided.
	ErrEmptyPassword = errors.New("envelope: password cannot be empty")

	// ErrUnknownFormat is returned when no registered format handles the
	// provided envelope data.
	ErrUnknownFormat = errors.New("envelope: unknown format")
)

// Format is a single envelope format version.
type Format interface {
	// Version returns the format's version number as embedded in the
	// envelope header.
	Version() uint16

	// Handles reports whether data looks like an envelope produced by this
	// format. It only inspects the header and never attempts decryption.
	Handles(data []byte) bool

	// Encrypt seals plaintext under password.
	Encrypt(password, plaintext []byte) ([]byte, error)

	// Decrypt opens an envelope previously produced by Encrypt. It returns
	// ErrDecrypt unless the envelope is well-formed and authenticates under
	// the given password.
	Decrypt(password, data []byte) ([]byte, error)
}

// Registry holds the known envelope formats. New data is encrypted with the
// first registered format; decryption dispatches on the envelope header so
// older formats keep working.
type Registry struct {
	formats []Format
}

// NewRegistry creates a registry from the given formats. The first format is
// the one used for encryption.
func NewRegistry(formats ...Format) *Registry {
	return &Registry{formats: formats}
}

// Default returns a registry with all current formats registered.
func Default() *Registry {
	return NewRegistry(NewFormatV1())
}

// Handles reports whether any registered format recognizes data.
func (r *Registry) Handles(data []byte) bool {
	for _, f := range r.formats {
		if f.Handles(data) {
			return true
		}
	}
	return false
}

// Encrypt seals plaintext with the current (first registered) format.
func (r *Registry) Encrypt(password, plaintext []byte) ([]byte, error) {
	if len(r.formats) == 0 {
		return nil, ErrUnknownFormat
	}
	return r.formats[0].Encrypt(password, plaintext)
}

// Decrypt dispatches to the format whose header matches data. Returns
// ErrUnknownFormat if no format recognizes it.
func (r *Registry) Decrypt(password, data []byte) ([]byte, error) {
	for _, f := range r.formats {
		if f.Handles(data) {
			return f.Decrypt(password, data)
		}
	}
	return nil, ErrUnknownFormat
}
