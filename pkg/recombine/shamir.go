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

package recombine

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/SSSaaS/sssa-golang"
)

// ShamirCombiner recombines shares in-process using Shamir's Secret Sharing
// as implemented by sssa-golang. Shares are the sssa share strings, handed
// over as raw bytes.
//
// Shamir recombination below the threshold yields garbage rather than an
// error, so the expected threshold must be configured and is enforced before
// combining.
type ShamirCombiner struct {
	threshold int
}

// NewShamirCombiner creates a ShamirCombiner that requires at least
// threshold shares.
func NewShamirCombiner(threshold int) (*ShamirCombiner, error) {
	if threshold < 2 {
		return nil, fmt.Errorf("threshold must be at least 2, got %d", threshold)
	}
	return &ShamirCombiner{threshold: threshold}, nil
}

// Combine reconstructs the secret from the given shares. The reconstructed
// sssa secret is hex-encoded; the decoded bytes are returned.
func (c *ShamirCombiner) Combine(ctx context.Context, shares [][]byte) ([]byte, error) {
	if len(shares) == 0 {
		return nil, ErrNoShares
	}
	if len(shares) < c.threshold {
		return nil, fmt.Errorf("%w: need at least %d shares, got %d",
			ErrCombine, c.threshold, len(shares))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shareStrings := make([]string, len(shares))
	for i, share := range shares {
		shareStrings[i] = string(share)
		if !sssa.IsValidShare(shareStrings[i]) {
			return nil, fmt.Errorf("%w: share %d is malformed", ErrCombine, i)
		}
	}

	secretHex, err := sssa.Combine(shareStrings)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCombine, err)
	}

	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("%w: combined secret is not hex", ErrCombine)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: combined secret is empty", ErrCombine)
	}
	return secret, nil
}

var _ Combiner = (*ShamirCombiner)(nil)
