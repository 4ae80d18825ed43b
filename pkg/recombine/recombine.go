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

// Package recombine reconstructs a threshold-shared secret from deposited
// shares. Share generation is out of scope; trustees receive pre-computed
// shares out of band and this package only recombines them.
//
// Two combiners are provided: ExecCombiner delegates to an external
// combiner binary over a stdin/stdout protocol, and ShamirCombiner
// recombines in-process using Shamir's Secret Sharing.
package recombine

import (
	"context"
	"errors"
)

var (
	// ErrCombine is returned when the threshold scheme rejects the input:
	// too few shares, inconsistent or malformed shares, or a combiner
	// process reporting failure. Absence of a clean success signal is
	// always ErrCombine, never an empty result.
	ErrCombine = errors.New("recombine: combining shares failed")

	// ErrNoShares is returned when Combine is called without any shares.
	ErrNoShares = errors.New("recombine: no shares provided")
)

// Combiner reconstructs a secret from a set of shares.
type Combiner interface {
	// Combine returns the reconstructed secret. It never returns an empty
	// secret together with a nil error.
	Combine(ctx context.Context, shares [][]byte) ([]byte, error)
}
