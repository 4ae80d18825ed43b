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

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/jeremyhahn/go-capsule/pkg/capsule"
	"github.com/jeremyhahn/go-capsule/pkg/envelope"
)

// Common errors
var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInvalidCapsule  = errors.New("invalid capsule id")
	ErrMissingShare    = errors.New("missing share data")
	ErrMissingToken    = errors.New("missing access token")
	ErrMissingPassword = errors.New("missing password")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrRateLimited     = errors.New("rate limit exceeded")
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// writeError writes an error response to the client.
func writeError(w http.ResponseWriter, err error, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error: err.Error(),
		Code:  statusCode,
	}

	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		log.Printf("Failed to encode error response: %v", encErr)
	}
}

// mapErrorToStatusCode maps errors to HTTP status codes.
func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, capsule.ErrNotFound),
		errors.Is(err, capsule.ErrKeyslotNotFound):
		return http.StatusNotFound
	case errors.Is(err, capsule.ErrAlreadyReleased):
		return http.StatusConflict
	case errors.Is(err, capsule.ErrDuplicateShare),
		errors.Is(err, capsule.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, capsule.ErrInvalidShare):
		return http.StatusForbidden
	case errors.Is(err, envelope.ErrDecrypt):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidCapsule),
		errors.Is(err, ErrMissingShare),
		errors.Is(err, ErrMissingToken),
		errors.Is(err, ErrMissingPassword):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// handleError maps the error to a status code and writes the error response.
func handleError(w http.ResponseWriter, err error) {
	writeError(w, err, mapErrorToStatusCode(err))
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}
