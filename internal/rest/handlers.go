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
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jeremyhahn/go-capsule/internal/notify"
	"github.com/jeremyhahn/go-capsule/pkg/capsule"
	"github.com/jeremyhahn/go-capsule/pkg/logging"
)

// HandlerContext holds the dependencies shared by all handlers.
type HandlerContext struct {
	service  *capsule.Service
	notifier notify.Notifier
	log      *logging.Logger
	version  string
}

// NewHandlerContext creates a handler context.
func NewHandlerContext(service *capsule.Service, notifier notify.Notifier, log *logging.Logger, version string) *HandlerContext {
	return &HandlerContext{
		service:  service,
		notifier: notifier,
		log:      log,
		version:  version,
	}
}

// capsuleID extracts and parses the capsule id path parameter.
func capsuleID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, ErrInvalidCapsule
	}
	return id, nil
}

// DepositHandler accepts a trustee share deposit.
//
// POST /api/capsules/{id}/shares
func (h *HandlerContext) DepositHandler(w http.ResponseWriter, r *http.Request) {
	id, err := capsuleID(r)
	if err != nil {
		handleError(w, err)
		return
	}

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, ErrInvalidRequest)
		return
	}
	if req.Share == "" {
		handleError(w, ErrMissingShare)
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.Share)
	if err != nil {
		handleError(w, ErrMissingShare)
		return
	}

	share, events, err := h.service.Deposit(r.Context(), id, raw)
	if err != nil {
		handleError(w, err)
		return
	}
	if err := notify.Dispatch(r.Context(), h.notifier, events); err != nil {
		h.log.Error("deposit notification dispatch failed", "capsule", id, "error", err)
	}

	writeJSON(w, DepositResponse{
		ShareID:   share.ID.String(),
		CapsuleID: id.String(),
	}, http.StatusCreated)
}

// SecretHandler returns the capsule secret to an authenticated recipient.
// The scoped token arrives in the X-Capsule-Token header, the recipient
// password in the request body.
//
// POST /api/capsules/{id}/secret
func (h *HandlerContext) SecretHandler(w http.ResponseWriter, r *http.Request) {
	id, err := capsuleID(r)
	if err != nil {
		handleError(w, err)
		return
	}

	token := r.Header.Get(TokenHeader)
	if token == "" {
		handleError(w, ErrMissingToken)
		return
	}
	var req SecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, ErrInvalidRequest)
		return
	}
	if req.Password == "" {
		handleError(w, ErrMissingPassword)
		return
	}

	secret, err := h.service.RecipientSecret(r.Context(), id, token, []byte(req.Password))
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, SecretResponse{
		Secret: base64.StdEncoding.EncodeToString(secret),
	}, http.StatusOK)
}

// AbortHandler cancels an in-progress release collection.
//
// POST /api/capsules/{id}/abort
func (h *HandlerContext) AbortHandler(w http.ResponseWriter, r *http.Request) {
	id, err := capsuleID(r)
	if err != nil {
		handleError(w, err)
		return
	}

	var req AbortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, ErrInvalidRequest)
		return
	}

	if err := h.service.AbortRelease(r.Context(), id, req.Accidental); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddRecipientHandler registers a recipient and dispatches the confirmation
// request.
//
// POST /api/capsules/{id}/recipients
func (h *HandlerContext) AddRecipientHandler(w http.ResponseWriter, r *http.Request) {
	id, err := capsuleID(r)
	if err != nil {
		handleError(w, err)
		return
	}

	var req RecipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, ErrInvalidRequest)
		return
	}
	if req.Contact == "" {
		handleError(w, ErrInvalidRequest)
		return
	}

	recipient, events, err := h.service.AddRecipient(r.Context(), id, req.Contact)
	if err != nil {
		handleError(w, err)
		return
	}
	if err := notify.Dispatch(r.Context(), h.notifier, events); err != nil {
		h.log.Error("confirmation dispatch failed", "capsule", id, "error", err)
	}

	writeJSON(w, RecipientResponse{
		ID:        recipient.ID.String(),
		CapsuleID: id.String(),
		Contact:   recipient.Contact,
		Confirmed: recipient.Confirmed,
	}, http.StatusCreated)
}

// ConfirmRecipientHandler confirms a recipient via the token from the
// confirmation notification.
//
// POST /api/capsules/{id}/recipients/confirm
func (h *HandlerContext) ConfirmRecipientHandler(w http.ResponseWriter, r *http.Request) {
	id, err := capsuleID(r)
	if err != nil {
		handleError(w, err)
		return
	}

	token := r.Header.Get(TokenHeader)
	if token == "" {
		handleError(w, ErrMissingToken)
		return
	}

	recipient, err := h.service.ConfirmRecipient(r.Context(), id, token)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, RecipientResponse{
		ID:        recipient.ID.String(),
		CapsuleID: id.String(),
		Contact:   recipient.Contact,
		Confirmed: recipient.Confirmed,
	}, http.StatusOK)
}

// HealthHandler reports service liveness.
//
// GET /healthz
func (h *HandlerContext) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{
		Status:  "ok",
		Version: h.version,
	}, http.StatusOK)
}
