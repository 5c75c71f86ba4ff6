package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the verified facts from a session token.
type Claims struct {
	Subject   string
	KeyID     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenValidator verifies game access tokens against the provider's signing
// keys. Verification itself never mutates the key cache; a failed signature
// triggers at most one key-set refresh before the token is declared invalid,
// so a provider key rotation costs one retry instead of locking admins out.
type TokenValidator struct {
	keys   *KeyResolver
	parser *jwt.Parser
}

// NewTokenValidator creates a validator backed by the given key resolver.
func NewTokenValidator(keys *KeyResolver) *TokenValidator {
	return &TokenValidator{
		keys: keys,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256"}),
			jwt.WithLeeway(30*time.Second),
		),
	}
}

// Verify checks the token's signature and temporal claims. All failures map
// to ErrInvalidToken; upstream key-set trouble surfaces as ErrKeyRetrieval.
func (v *TokenValidator) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	epoch := v.keys.Epoch()

	claims, err := v.parse(ctx, tokenString)
	if err == nil {
		return claims, nil
	}
	if errors.Is(err, ErrKeyRetrieval) {
		return nil, err
	}

	// A stale cached key produces a signature mismatch even though the kid
	// still exists. Re-consult the key set once, then give up.
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		if rerr := v.keys.RefreshIfSameEpoch(ctx, epoch); rerr == nil {
			if claims, err2 := v.parse(ctx, tokenString); err2 == nil {
				return claims, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
}

func (v *TokenValidator) parse(ctx context.Context, tokenString string) (*Claims, error) {
	var kid string
	mapClaims := jwt.MapClaims{}

	token, err := v.parser.ParseWithClaims(tokenString, mapClaims, func(t *jwt.Token) (any, error) {
		id, ok := t.Header["kid"].(string)
		if !ok || strings.TrimSpace(id) == "" {
			return nil, errors.New("missing kid in token header")
		}
		kid = id
		return v.keys.Resolve(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token not valid")
	}

	claims := &Claims{KeyID: kid}
	if sub, ok := mapClaims["sub"].(string); ok {
		claims.Subject = sub
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}
