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

package password

import (
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	for _, length := range []int{1, 12, 16, 64} {
		pw, err := Generate(length)
		if err != nil {
			t.Fatalf("Generate(%d): %v", length, err)
		}
		if len(pw) != length {
			t.Errorf("Generate(%d) returned %d characters", length, len(pw))
		}
		for _, c := range pw {
			if !strings.ContainsRune(Alphabet, c) {
				t.Errorf("Generate(%d) produced %q outside the alphabet", length, c)
			}
		}
	}
}

func TestGenerateInvalidLength(t *testing.T) {
	for _, length := range []int{0, -1} {
		if _, err := Generate(length); err != ErrInvalidLength {
			t.Errorf("Generate(%d) error = %v, want ErrInvalidLength", length, err)
		}
	}
}

func TestGenerateUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		pw, err := Generate(16)
		if err != nil {
			t.Fatal(err)
		}
		if seen[pw] {
			t.Fatalf("duplicate password generated: %q", pw)
		}
		seen[pw] = true
	}
}

func TestEqual(t *testing.T) {
	if !Equal("secret", "secret") {
		t.Error("Equal rejected identical passwords")
	}
	if Equal("secret", "Secret") {
		t.Error("Equal accepted different passwords")
	}
	if Equal("secret", "secret ") {
		t.Error("Equal accepted different lengths")
	}
}
