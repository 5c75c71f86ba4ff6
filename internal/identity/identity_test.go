package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// testSigner holds an RSA key pair for minting tokens in tests.
type testSigner struct {
	kid string
	key *rsa.PrivateKey
}

func newTestSigner(t *testing.T, kid string) *testSigner {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating RSA key: %v", err)
	}
	return &testSigner{kid: kid, key: key}
}

func (s *testSigner) jwk() map[string]string {
	return map[string]string{
		"kid": s.kid,
		"kty": "RSA",
		"n":   base64.RawURLEncoding.EncodeToString(s.key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(s.key.E)).Bytes()),
	}
}

func (s *testSigner) token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.kid
	signed, err := tok.SignedString(s.key)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

// jwksProvider is a swappable JWKS endpoint that counts fetches.
type jwksProvider struct {
	mu      sync.Mutex
	signers []*testSigner
	fetches int
}

func (p *jwksProvider) rotate(signers ...*testSigner) {
	p.mu.Lock()
	p.signers = signers
	p.mu.Unlock()
}

func (p *jwksProvider) fetchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches
}

func (p *jwksProvider) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.fetches++
		keys := make([]map[string]string, 0, len(p.signers))
		for _, s := range p.signers {
			keys = append(keys, s.jwk())
		}
		p.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"keys": keys})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// profileServer answers the game profile endpoint with a fixed profile when
// the expected bearer token is presented.
func profileServer(t *testing.T, expectToken string, profile AdminProfile) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+expectToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(profile)
	}))
	t.Cleanup(srv.Close)
	return srv
}
