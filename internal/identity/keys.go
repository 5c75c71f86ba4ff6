// Package identity delegates authentication to the external game identity
// provider: JWKS key resolution, access token verification, and the admin
// gate applied to every protected route.
package identity

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/gamepay/procadmin/internal/metrics"
	"github.com/gamepay/procadmin/internal/retry"
)

// KeyResolver fetches and caches the identity provider's RSA signing keys,
// indexed by kid. Keys are fetched lazily on first use and re-fetched when a
// token references a kid the cache has not seen.
type KeyResolver struct {
	jwksURL    string
	httpClient *http.Client

	mu       sync.RWMutex
	epoch    uint64
	keyByKID map[string]*rsa.PublicKey
}

// NewKeyResolver creates a resolver for the given JWKS endpoint.
func NewKeyResolver(jwksURL string) *KeyResolver {
	return &KeyResolver{
		jwksURL:    jwksURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		keyByKID:   map[string]*rsa.PublicKey{},
	}
}

// Resolve returns the public key for kid, fetching the key set when the kid
// is not cached. Returns ErrUnknownKey when the provider's current key set
// has no such kid, or ErrKeyRetrieval when the set cannot be fetched at all.
func (r *KeyResolver) Resolve(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	r.mu.RLock()
	key := r.keyByKID[kid]
	epoch := r.epoch
	r.mu.RUnlock()
	if key != nil {
		return key, nil
	}

	if err := r.RefreshIfSameEpoch(ctx, epoch); err != nil {
		return nil, err
	}

	r.mu.RLock()
	key = r.keyByKID[kid]
	r.mu.RUnlock()
	if key != nil {
		return key, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownKey, kid)
}

// Epoch returns the current key-set generation. Callers snapshot it before a
// verification attempt so a post-failure refresh happens at most once per
// rotation, no matter how many requests hit the stale cache concurrently.
func (r *KeyResolver) Epoch() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.epoch
}

// RefreshIfSameEpoch re-fetches the key set unless another goroutine already
// advanced past the observed epoch, in which case the fresh cache is kept.
func (r *KeyResolver) RefreshIfSameEpoch(ctx context.Context, observed uint64) error {
	r.mu.Lock()
	if r.epoch != observed {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	keys, err := r.fetch(ctx)
	if err != nil {
		metrics.KeyRefreshesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: %v", ErrKeyRetrieval, err)
	}
	metrics.KeyRefreshesTotal.WithLabelValues("ok").Inc()

	r.mu.Lock()
	if r.epoch == observed {
		r.keyByKID = keys
		r.epoch++
	}
	r.mu.Unlock()
	return nil
}

func (r *KeyResolver) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	var keys map[string]*rsa.PublicKey
	err := retry.Do(ctx, 3, 200*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.jwksURL, nil)
		if err != nil {
			return retry.Permanent(err)
		}

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
		}

		var payload struct {
			Keys []struct {
				Kid string `json:"kid"`
				Kty string `json:"kty"`
				N   string `json:"n"`
				E   string `json:"e"`
			} `json:"keys"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return err
		}

		parsed := map[string]*rsa.PublicKey{}
		for _, k := range payload.Keys {
			if k.Kid == "" || k.Kty != "RSA" || k.N == "" || k.E == "" {
				continue
			}
			pub, err := parseRSAPublicKey(k.N, k.E)
			if err != nil {
				continue
			}
			parsed[k.Kid] = pub
		}
		if len(parsed) == 0 {
			return retry.Permanent(errors.New("no usable RSA keys in JWKS"))
		}

		keys = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var exp uint64
	for _, b := range eb {
		exp = (exp << 8) | uint64(b)
	}
	if exp == 0 {
		return nil, errors.New("invalid exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(exp),
	}, nil
}
