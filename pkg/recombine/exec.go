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
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultExecTimeout bounds a combiner invocation when the caller's context
// carries no deadline. The boundary protocol itself defines no timeout, so
// we impose one defensively.
const DefaultExecTimeout = 30 * time.Second

// ExecCombiner hands shares to an external combiner binary.
//
// Protocol: one hex-encoded share per line on stdin; the reconstructed
// password as raw bytes on stdout; success is exit code 0 with non-empty
// output. Any other outcome is ErrCombine.
type ExecCombiner struct {
	// Path is the combiner executable.
	Path string

	// Timeout applies when the context has no deadline. Zero means
	// DefaultExecTimeout.
	Timeout time.Duration
}

// NewExecCombiner creates an ExecCombiner for the given binary path.
func NewExecCombiner(path string) *ExecCombiner {
	return &ExecCombiner{Path: path}
}

// Combine runs the external combiner over the given shares.
func (c *ExecCombiner) Combine(ctx context.Context, shares [][]byte) ([]byte, error) {
	if len(shares) == 0 {
		return nil, ErrNoShares
	}

	if _, ok := ctx.Deadline(); !ok {
		timeout := c.Timeout
		if timeout <= 0 {
			timeout = DefaultExecTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	lines := make([]string, len(shares))
	for i, share := range shares {
		lines[i] = hex.EncodeToString(share)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Path)
	cmd.Stdin = strings.NewReader(strings.Join(lines, "\n"))
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCombine, c.Path, err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: %s produced no output", ErrCombine, c.Path)
	}
	return stdout.Bytes(), nil
}

var _ Combiner = (*ExecCombiner)(nil)
