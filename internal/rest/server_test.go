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

package rest_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SSSaaS/sssa-golang"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-capsule/internal/notify/notifytest"
	"github.com/jeremyhahn/go-capsule/internal/rest"
	"github.com/jeremyhahn/go-capsule/pkg/capsule"
	"github.com/jeremyhahn/go-capsule/pkg/capsule/store/memory"
	"github.com/jeremyhahn/go-capsule/pkg/correlation"
	"github.com/jeremyhahn/go-capsule/pkg/envelope"
	"github.com/jeremyhahn/go-capsule/pkg/health"
	"github.com/jeremyhahn/go-capsule/pkg/ratelimit"
	"github.com/jeremyhahn/go-capsule/pkg/recombine"
	"github.com/jeremyhahn/go-capsule/pkg/tokens"
)

var jwtSecret = []byte("rest-test-jwt-secret")

const testSecret = "the capsule secret payload"

type fixture struct {
	handler  http.Handler
	store    *memory.Store
	svc      *capsule.Service
	recorder *notifytest.Recorder
	capsule  *capsule.Capsule
	shares   [][]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	sssPassword := []byte("recombined sss password")
	shareStrings, err := sssa.Create(2, 3, hex.EncodeToString(sssPassword))
	require.NoError(t, err)

	combiner, err := recombine.NewShamirCombiner(2)
	require.NoError(t, err)
	issuer, err := tokens.NewIssuer([]byte("rest-test-token-key"))
	require.NoError(t, err)

	svc, err := capsule.NewService(&capsule.ServiceConfig{
		Store:    store,
		Combiner: combiner,
		Tokens:   issuer,
	})
	require.NoError(t, err)

	recorder := &notifytest.Recorder{}
	server, err := rest.NewServer(&rest.Config{
		Service:  svc,
		Notifier: recorder,
		JWT:      &rest.JWTConfig{Secret: jwtSecret},
	})
	require.NoError(t, err)

	c := &capsule.Capsule{
		ID:        uuid.New(),
		OwnerID:   "owner-1",
		Name:      "legacy",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, store.CreateCapsule(context.Background(), c))

	sealed, err := envelope.Default().Encrypt(sssPassword, []byte(testSecret))
	require.NoError(t, err)
	require.NoError(t, store.AddKeyslot(context.Background(), &capsule.Keyslot{
		ID:        uuid.New(),
		CapsuleID: c.ID,
		Purpose:   capsule.PurposeSSS,
		Data:      sealed,
	}))

	shares := make([][]byte, len(shareStrings))
	for i, s := range shareStrings {
		shares[i] = []byte(s)
		require.NoError(t, store.AddTrustee(context.Background(), &capsule.Trustee{
			ID:        uuid.New(),
			CapsuleID: c.ID,
			Contact:   "trustee@example.org",
			ShareHash: capsule.HashShare(shares[i]),
		}))
	}

	return &fixture{
		handler:  server.Handler(),
		store:    store,
		svc:      svc,
		recorder: recorder,
		capsule:  c,
		shares:   shares,
	}
}

func (f *fixture) request(t *testing.T, method, path string, body interface{}, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func bearer(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "owner-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwtSecret)
	require.NoError(t, err)
	return "Bearer " + signed
}

func depositBody(share []byte) rest.DepositRequest {
	return rest.DepositRequest{Share: base64.StdEncoding.EncodeToString(share)}
}

func TestDepositEndpoint(t *testing.T) {
	f := newFixture(t)
	path := "/api/capsules/" + f.capsule.ID.String() + "/shares"

	w := f.request(t, http.MethodPost, path, depositBody(f.shares[0]), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp rest.DepositResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, f.capsule.ID.String(), resp.CapsuleID)
	assert.NotEmpty(t, resp.ShareID)

	// The first deposit dispatched the release-initiated notification.
	assert.Len(t, f.recorder.OfKind(capsule.EventReleaseInitiated), 1)

	// Same share again conflicts.
	w = f.request(t, http.MethodPost, path, depositBody(f.shares[0]), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Uncommitted share data is forbidden.
	w = f.request(t, http.MethodPost, path, depositBody([]byte("not committed")), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t)
	path := "/api/capsules/" + f.capsule.ID.String() + "/shares"

	w := f.request(t, http.MethodPost, "/api/capsules/not-a-uuid/shares", depositBody(f.shares[0]), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.request(t, http.MethodPost, path, rest.DepositRequest{}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.request(t, http.MethodPost, path, rest.DepositRequest{Share: "%%% not base64"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.request(t, http.MethodPost,
		"/api/capsules/"+uuid.NewString()+"/shares", depositBody(f.shares[0]), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSecretEndpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := &capsule.Recipient{
		ID:        uuid.New(),
		CapsuleID: f.capsule.ID,
		Contact:   "heir@example.org",
		Confirmed: true,
		CreatedAt: time.Now(),
	}
	require.NoError(t, f.store.AddRecipient(ctx, r))

	_, _, err := f.svc.Deposit(ctx, f.capsule.ID, f.shares[0])
	require.NoError(t, err)
	_, _, err = f.svc.Deposit(ctx, f.capsule.ID, f.shares[1])
	require.NoError(t, err)
	result, err := f.svc.AttemptRelease(ctx, f.capsule.ID)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	token := result.Events[0].Token
	pw := result.Passwords[r.ID]

	path := "/api/capsules/" + f.capsule.ID.String() + "/secret"

	w := f.request(t, http.MethodPost, path, rest.SecretRequest{Password: pw}, func(req *http.Request) {
		req.Header.Set(rest.TokenHeader, token)
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp rest.SecretResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	secret, err := base64.StdEncoding.DecodeString(resp.Secret)
	require.NoError(t, err)
	assert.Equal(t, []byte(testSecret), secret)

	// Wrong password cannot open the keyslot.
	w = f.request(t, http.MethodPost, path, rest.SecretRequest{Password: "wrong"}, func(req *http.Request) {
		req.Header.Set(rest.TokenHeader, token)
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Missing token is a validation error.
	w = f.request(t, http.MethodPost, path, rest.SecretRequest{Password: pw}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// A bogus token does not resolve to a recipient.
	w = f.request(t, http.MethodPost, path, rest.SecretRequest{Password: pw}, func(req *http.Request) {
		req.Header.Set(rest.TokenHeader, "bogus-token")
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAbortEndpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.Deposit(ctx, f.capsule.ID, f.shares[0])
	require.NoError(t, err)

	path := "/api/capsules/" + f.capsule.ID.String() + "/abort"

	// Owner endpoints require bearer auth.
	w := f.request(t, http.MethodPost, path, rest.AbortRequest{}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.request(t, http.MethodPost, path, rest.AbortRequest{Accidental: true}, func(req *http.Request) {
		req.Header.Set("Authorization", bearer(t))
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	shares, err := f.store.ListShares(ctx, f.capsule.ID)
	require.NoError(t, err)
	assert.Empty(t, shares)
}

func TestAbortRejectsForgedJWT(t *testing.T) {
	f := newFixture(t)
	path := "/api/capsules/" + f.capsule.ID.String() + "/abort"

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "owner-1"})
	signed, err := forged.SignedString([]byte("wrong secret"))
	require.NoError(t, err)

	w := f.request(t, http.MethodPost, path, rest.AbortRequest{}, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+signed)
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRecipientEndpoints(t *testing.T) {
	f := newFixture(t)
	base := "/api/capsules/" + f.capsule.ID.String() + "/recipients"

	w := f.request(t, http.MethodPost, base, rest.RecipientRequest{Contact: "heir@example.org"}, func(req *http.Request) {
		req.Header.Set("Authorization", bearer(t))
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created rest.RecipientResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.False(t, created.Confirmed)

	confirmations := f.recorder.OfKind(capsule.EventRecipientConfirmation)
	require.Len(t, confirmations, 1)
	require.NotEmpty(t, confirmations[0].Token)

	w = f.request(t, http.MethodPost, base+"/confirm", nil, func(req *http.Request) {
		req.Header.Set(rest.TokenHeader, confirmations[0].Token)
	})
	require.Equal(t, http.StatusOK, w.Code)
	var confirmed rest.RecipientResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&confirmed))
	assert.Equal(t, created.ID, confirmed.ID)
	assert.True(t, confirmed.Confirmed)
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp rest.HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestRateLimitOnAnonymousEndpoints(t *testing.T) {
	f := newFixture(t)

	limiter := ratelimit.New(&ratelimit.Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             2,
	})
	t.Cleanup(limiter.Stop)

	server, err := rest.NewServer(&rest.Config{
		Service:   f.svc,
		Notifier:  f.recorder,
		JWT:       &rest.JWTConfig{Secret: jwtSecret},
		RateLimit: limiter,
	})
	require.NoError(t, err)

	path := "/api/capsules/" + f.capsule.ID.String() + "/shares"
	send := func(body rest.DepositRequest) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		req := httptest.NewRequest(http.MethodPost, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "203.0.113.50:9000"
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, req)
		return w
	}

	w := send(depositBody(f.shares[0]))
	require.Equal(t, http.StatusCreated, w.Code)
	w = send(depositBody(f.shares[1]))
	require.Equal(t, http.StatusCreated, w.Code)

	w = send(depositBody(f.shares[2]))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	var resp rest.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)

	// Owner endpoints are not throttled.
	abortPath := "/api/capsules/" + f.capsule.ID.String() + "/abort"
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(rest.AbortRequest{}))
	req := httptest.NewRequest(http.MethodPost, abortPath, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t))
	req.RemoteAddr = "203.0.113.50:9000"
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestReadinessEndpoint(t *testing.T) {
	f := newFixture(t)

	checker := health.NewChecker()
	checker.Register("store", health.StoreCheck(f.store))

	server, err := rest.NewServer(&rest.Config{
		Service:  f.svc,
		Notifier: f.recorder,
		Health:   checker,
	})
	require.NoError(t, err)

	get := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, req)
		return w
	}

	w := get()
	require.Equal(t, http.StatusOK, w.Code)
	var resp rest.ReadinessResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, string(health.StatusHealthy), resp.Status)
	require.Len(t, resp.Checks, 1)
	assert.Equal(t, "store", resp.Checks[0].Name)

	// A closed store fails readiness.
	require.NoError(t, f.store.Close())
	w = get()
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp = rest.ReadinessResponse{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, string(health.StatusUnhealthy), resp.Status)
}

func TestRequestIDEcho(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(correlation.Header))

	w = f.request(t, http.MethodGet, "/healthz", nil, func(req *http.Request) {
		req.Header.Set(correlation.Header, "req-from-client")
	})
	assert.Equal(t, "req-from-client", w.Header().Get(correlation.Header))
}
