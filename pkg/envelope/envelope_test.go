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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatV1RoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		password  []byte
		plaintext []byte
	}{
		{
			name:      "short secret",
			password:  []byte("abc123"),
			plaintext: []byte("my encrypted data"),
		},
		{
			name:      "empty plaintext",
			password:  []byte("abc123"),
			plaintext: []byte{},
		},
		{
			name:      "binary plaintext",
			password:  []byte("p@$$w0rd!#%&*()"),
			plaintext: bytes.Repeat([]byte{0x00, 0xff, 0x10}, 512),
		},
		{
			name:      "unicode password",
			password:  []byte("пароль密码"),
			plaintext: []byte("secret"),
		},
	}

	f := NewFormatV1()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := f.Encrypt(tt.password, tt.plaintext)
			require.NoError(t, err)
			assert.True(t, f.Handles(sealed), "format must handle its own output")

			opened, err := f.Decrypt(tt.password, sealed)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, opened)
		})
	}
}

func TestFormatV1WrongPassword(t *testing.T) {
	f := NewFormatV1()
	sealed, err := f.Encrypt([]byte("correct"), []byte("secret"))
	require.NoError(t, err)

	_, err = f.Decrypt([]byte("incorrect"), sealed)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestFormatV1EmptyPassword(t *testing.T) {
	f := NewFormatV1()

	_, err := f.Encrypt(nil, []byte("secret"))
	assert.ErrorIs(t, err, ErrEmptyPassword)

	_, err = f.Decrypt(nil, []byte{0x00, 0x01})
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestFormatV1Malformed(t *testing.T) {
	f := NewFormatV1()
	sealed, err := f.Encrypt([]byte("pw"), []byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: []byte{}},
		{name: "version only", data: sealed[:2]},
		{name: "truncated header", data: sealed[:8]},
		{name: "truncated salt", data: sealed[:12]},
		{name: "truncated ciphertext", data: sealed[:len(sealed)-1]},
		{name: "flipped ciphertext byte", data: flipLastByte(sealed)},
		{name: "flipped salt byte", data: flipByte(sealed, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Decrypt([]byte("pw"), tt.data)
			assert.ErrorIs(t, err, ErrDecrypt)
		})
	}
}

func TestFormatV1RejectsExcessiveIterations(t *testing.T) {
	f := NewFormatV1()
	sealed, err := f.Encrypt([]byte("pw"), []byte("secret"))
	require.NoError(t, err)

	// Patch the embedded iteration count far beyond the accepted bound.
	sealed[2], sealed[3], sealed[4], sealed[5] = 0xff, 0xff, 0xff, 0xff
	_, err = f.Decrypt([]byte("pw"), sealed)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestFormatV1HandlesForeignData(t *testing.T) {
	f := NewFormatV1()
	assert.False(t, f.Handles(nil))
	assert.False(t, f.Handles([]byte{0x01}))
	assert.False(t, f.Handles([]byte{0x00, 0x02, 0xaa}), "future version is not v1")
}

func TestRegistryDispatch(t *testing.T) {
	r := Default()

	sealed, err := r.Encrypt([]byte("pw"), []byte("secret"))
	require.NoError(t, err)
	assert.True(t, r.Handles(sealed))

	opened, err := r.Decrypt([]byte("pw"), sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), opened)

	_, err = r.Decrypt([]byte("pw"), []byte{0x00, 0x99, 0x01})
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func flipLastByte(data []byte) []byte {
	return flipByte(data, len(data)-1)
}

func flipByte(data []byte, i int) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	out[i] ^= 0xff
	return out
}
