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

package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// VersionV1 is the header version number of FormatV1 envelopes.
	VersionV1 uint16 = 1

	// DefaultIterations is the PBKDF2 iteration count used when sealing
	// new envelopes.
	DefaultIterations = 210000

	// maxIterations bounds the embedded iteration count accepted on
	// decrypt so a crafted envelope cannot pin the CPU.
	maxIterations = 10000000

	v1SaltSize = 16
	v1KeySize  = 32 // AES-256

	// header: version(2) + iterations(4) + saltLen(2) + nonceLen(2)
	v1MinHeader = 10
)

// FormatV1 seals secrets with AES-256-GCM under a PBKDF2-SHA256 derived key.
//
// Layout (big endian):
//
//	version   uint16
//	iterations uint32
//	saltLen   uint16  followed by salt
//	nonceLen  uint16  followed by nonce
//	ciphertext (GCM output, tag appended)
type FormatV1 struct {
	iterations int
	random     io.Reader
}

// NewFormatV1 creates a FormatV1 with the default PBKDF2 iteration count.
func NewFormatV1() *FormatV1 {
	return &FormatV1{iterations: DefaultIterations, random: rand.Reader}
}

// Version returns VersionV1.
func (f *FormatV1) Version() uint16 {
	return VersionV1
}

// Handles reports whether data carries a FormatV1 header.
func (f *FormatV1) Handles(data []byte) bool {
	return len(data) >= 2 && binary.BigEndian.Uint16(data) == VersionV1
}

// Encrypt seals plaintext under password.
func (f *FormatV1) Encrypt(password, plaintext []byte) ([]byte, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}

	salt := make([]byte, v1SaltSize)
	if _, err := io.ReadFull(f.random, salt); err != nil {
		return nil, err
	}

	key := pbkdf2.Key(password, salt, f.iterations, v1KeySize, sha256.New)
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(f.random, nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, v1MinHeader+len(salt)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = binary.BigEndian.AppendUint16(out, VersionV1)
	out = binary.BigEndian.AppendUint32(out, uint32(f.iterations))
	out = binary.BigEndian.AppendUint16(out, uint16(len(salt)))
	out = append(out, salt...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(nonce)))
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, nil)
	return out, nil
}

// Decrypt opens a FormatV1 envelope. Any failure, whether a malformed
// envelope or a wrong password, is reported as ErrDecrypt with no further
// detail.
func (f *FormatV1) Decrypt(password, data []byte) ([]byte, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	if !f.Handles(data) || len(data) < v1MinHeader {
		return nil, ErrDecrypt
	}

	iterations := int(binary.BigEndian.Uint32(data[2:6]))
	if iterations <= 0 || iterations > maxIterations {
		return nil, ErrDecrypt
	}

	rest := data[6:]
	salt, rest, ok := readChunk(rest)
	if !ok {
		return nil, ErrDecrypt
	}
	nonce, rest, ok := readChunk(rest)
	if !ok {
		return nil, ErrDecrypt
	}

	key := pbkdf2.Key(password, salt, iterations, v1KeySize, sha256.New)
	gcm, err := newGCM(key)
	if err != nil {
		return nil, ErrDecrypt
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, ErrDecrypt
	}

	plaintext, err := gcm.Open(nil, nonce, rest, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// readChunk reads a uint16 length-prefixed chunk, returning the chunk, the
// remainder, and whether the read stayed in bounds.
func readChunk(data []byte) ([]byte, []byte, bool) {
	if len(data) < 2 {
		return nil, nil, false
	}
	n := int(binary.BigEndian.Uint16(data))
	data = data[2:]
	if n == 0 || len(data) < n {
		return nil, nil, false
	}
	return data[:n], data[n:], true
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

var _ Format = (*FormatV1)(nil)
