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

package rest

import "github.com/jeremyhahn/go-capsule/pkg/health"

// TokenHeader carries the scoped recipient access token.
const TokenHeader = "X-Capsule-Token"

// DepositRequest is the body of a trustee share deposit.
type DepositRequest struct {
	// Share is the base64-encoded raw share data.
	Share string `json:"share"`
}

// DepositResponse acknowledges an accepted deposit.
type DepositResponse struct {
	ShareID   string `json:"share_id"`
	CapsuleID string `json:"capsule_id"`
}

// SecretRequest carries the recipient password for secret retrieval.
type SecretRequest struct {
	Password string `json:"password"`
}

// SecretResponse returns the decrypted capsule secret.
type SecretResponse struct {
	// Secret is the base64-encoded capsule secret.
	Secret string `json:"secret"`
}

// AbortRequest is the body of an owner abort.
type AbortRequest struct {
	Accidental bool `json:"accidental"`
}

// RecipientRequest registers a recipient.
type RecipientRequest struct {
	Contact string `json:"contact"`
}

// RecipientResponse describes a recipient.
type RecipientResponse struct {
	ID        string `json:"id"`
	CapsuleID string `json:"capsule_id"`
	Contact   string `json:"contact"`
	Confirmed bool   `json:"confirmed"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadinessResponse reports the readiness probe results.
type ReadinessResponse struct {
	Status string               `json:"status"`
	Uptime string               `json:"uptime"`
	Checks []health.CheckResult `json:"checks,omitempty"`
}
