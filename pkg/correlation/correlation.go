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

// Package correlation carries a per-request identifier through the context
// so that log lines and notification events from one deposit or release can
// be tied together.
package correlation

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is a private type so foreign packages cannot collide with the
// request id entry.
type contextKey string

const requestIDKey contextKey = "request-id"

// Header is the HTTP header the request id is read from and echoed to.
const Header = "X-Request-ID"

// WithRequestID returns a context carrying the given request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id carried by ctx, or "" when absent.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// NewID generates a fresh request id.
func NewID() string {
	return uuid.New().String()
}

// GetOrGenerate returns the context's request id, minting one when missing.
func GetOrGenerate(ctx context.Context) string {
	if id := RequestID(ctx); id != "" {
		return id
	}
	return NewID()
}
