package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/clowdy-platform/engine/internal/logger"
)

func testLogger() *logger.Logger { return logger.Default() }

func newTestJWKSServer(t *testing.T) (*httptest.Server, *rsa.PrivateKey) {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	pubKey, err := jwk.FromRaw(priv.PublicKey)
	if err != nil {
		t.Fatalf("jwk.FromRaw: %v", err)
	}
	if err := pubKey.Set(jwk.KeyIDKey, "test-key"); err != nil {
		t.Fatalf("setting kid: %v", err)
	}
	if err := pubKey.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		t.Fatalf("setting alg: %v", err)
	}

	set := jwk.NewSet()
	if err := set.AddKey(pubKey); err != nil {
		t.Fatalf("adding key to set: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(srv.Close)

	return srv, priv
}

func signToken(t *testing.T, priv *rsa.PrivateKey, ownerID string) string {
	t.Helper()

	tok, err := jwt.NewBuilder().
		Claim(OwnerIDClaim, ownerID).
		Expiration(time.Now().Add(time.Hour)).
		Build()
	if err != nil {
		t.Fatalf("building token: %v", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, priv))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return string(signed)
}

func TestVerifierAcceptsValidTokenAndExposesOwnerID(t *testing.T) {
	srv, priv := newTestJWKSServer(t)

	v, err := NewVerifier(Config{JWKSURL: srv.URL, RefreshEvery: time.Hour}, testLogger())
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	defer v.Stop()

	var gotOwnerID string
	handler := v.Verifier()(v.Authenticator()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOwnerID, _ = OwnerIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, priv, "owner-42"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotOwnerID != "owner-42" {
		t.Errorf("expected owner id owner-42, got %q", gotOwnerID)
	}
}

func TestVerifierRejectsMissingToken(t *testing.T) {
	srv, _ := newTestJWKSServer(t)

	v, err := NewVerifier(Config{JWKSURL: srv.URL, RefreshEvery: time.Hour}, testLogger())
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	defer v.Stop()

	handler := v.Verifier()(v.Authenticator()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		t.Fatal("expected a request with no bearer token to be rejected")
	}
}
