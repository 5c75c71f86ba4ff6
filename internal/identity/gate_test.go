package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func newTestGate(t *testing.T, signer *testSigner, profile AdminProfile, token string) *Gate {
	t.Helper()
	provider := &jwksProvider{signers: []*testSigner{signer}}
	jwks := provider.server(t)
	profiles := profileServer(t, token, profile)

	validator := NewTokenValidator(NewKeyResolver(jwks.URL))
	client := NewClient(profiles.URL+"/login", profiles.URL)
	return NewGate(validator, client)
}

func TestGateNoCredential(t *testing.T) {
	signer := newTestSigner(t, "k1")
	gate := newTestGate(t, signer, AdminProfile{}, "unused")

	for _, token := range []string{"", "undefined"} {
		profile, outcome, err := gate.Authorize(context.Background(), token)
		if outcome != OutcomeNoCredential {
			t.Fatalf("token %q: expected OutcomeNoCredential, got %v", token, outcome)
		}
		if profile != nil || err != nil {
			t.Fatalf("token %q: expected nil profile and error, got %v / %v", token, profile, err)
		}
	}
}

func TestGateInvalidToken(t *testing.T) {
	signer := newTestSigner(t, "k1")
	gate := newTestGate(t, signer, AdminProfile{}, "unused")

	profile, outcome, err := gate.Authorize(context.Background(), "not.a.jwt")
	if outcome != OutcomeInvalidToken {
		t.Fatalf("expected OutcomeInvalidToken, got %v", outcome)
	}
	if profile != nil {
		t.Fatal("expected nil profile")
	}
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestGateNotAdmin(t *testing.T) {
	signer := newTestSigner(t, "k1")
	token := signer.token(t, jwt.MapClaims{"sub": "player-1"})
	gate := newTestGate(t, signer, AdminProfile{Username: "player", IsAdmin: false}, token)

	profile, outcome, err := gate.Authorize(context.Background(), token)
	if outcome != OutcomeNotAdmin {
		t.Fatalf("expected OutcomeNotAdmin, got %v", outcome)
	}
	if profile != nil || err != nil {
		t.Fatalf("expected nil profile and error, got %v / %v", profile, err)
	}
}

func TestGateAdmin(t *testing.T) {
	signer := newTestSigner(t, "k1")
	token := signer.token(t, jwt.MapClaims{"sub": "admin-1"})
	gate := newTestGate(t, signer, AdminProfile{Username: "operator", IsAdmin: true}, token)

	profile, outcome, err := gate.Authorize(context.Background(), token)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if outcome != OutcomeAdmin {
		t.Fatalf("expected OutcomeAdmin, got %v", outcome)
	}
	if profile == nil || profile.Username != "operator" {
		t.Fatalf("expected operator profile, got %+v", profile)
	}
}

func TestGateProfileUnavailable(t *testing.T) {
	signer := newTestSigner(t, "k1")
	token := signer.token(t, jwt.MapClaims{"sub": "admin-1"})

	provider := &jwksProvider{signers: []*testSigner{signer}}
	jwks := provider.server(t)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(down.Close)

	gate := NewGate(
		NewTokenValidator(NewKeyResolver(jwks.URL)),
		NewClient(down.URL+"/login", down.URL),
	)

	_, outcome, err := gate.Authorize(context.Background(), token)
	if outcome != OutcomeProfileUnavailable {
		t.Fatalf("expected OutcomeProfileUnavailable, got %v", outcome)
	}
	if !errors.Is(err, ErrProfileUnavailable) {
		t.Fatalf("expected ErrProfileUnavailable, got %v", err)
	}
}
