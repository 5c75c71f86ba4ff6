package identity

import (
	"context"

	"github.com/gamepay/procadmin/internal/logging"
	"github.com/gamepay/procadmin/internal/metrics"
)

// Outcome is the verdict of evaluating a session against the admin gate.
type Outcome int

const (
	// OutcomeAdmin is the only outcome that reaches protected handlers.
	OutcomeAdmin Outcome = iota
	// OutcomeNoCredential means no token was presented. Normal for a fresh
	// visitor; routes to the login view with no error message.
	OutcomeNoCredential
	// OutcomeInvalidToken means the token failed verification.
	OutcomeInvalidToken
	// OutcomeNotAdmin means the token is valid but the user lacks standing.
	OutcomeNotAdmin
	// OutcomeProfileUnavailable means the provider could not confirm standing.
	OutcomeProfileUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdmin:
		return "admin"
	case OutcomeNoCredential:
		return "no_credential"
	case OutcomeInvalidToken:
		return "invalid_token"
	case OutcomeNotAdmin:
		return "not_admin"
	case OutcomeProfileUnavailable:
		return "profile_unavailable"
	default:
		return "unknown"
	}
}

// Authorizer decides whether a session token belongs to an administrator.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (*AdminProfile, Outcome, error)
}

// Gate is the production Authorizer: token verification followed by a
// profile lookup confirming admin standing. Admin standing lives on the
// provider, not in the token, so both steps are required on every request.
type Gate struct {
	validator *TokenValidator
	client    *Client
}

// NewGate creates an admin gate.
func NewGate(validator *TokenValidator, client *Client) *Gate {
	return &Gate{validator: validator, client: client}
}

// Authorize evaluates a session token. The profile is non-nil only for
// OutcomeAdmin. The error carries diagnostic detail for the non-admin
// outcomes and is nil for OutcomeNoCredential and OutcomeNotAdmin.
func (g *Gate) Authorize(ctx context.Context, token string) (*AdminProfile, Outcome, error) {
	outcome, profile, err := g.evaluate(ctx, token)
	metrics.AuthOutcomesTotal.WithLabelValues(outcome.String()).Inc()
	if outcome != OutcomeAdmin && outcome != OutcomeNoCredential {
		logging.L(ctx).Info("session rejected", "outcome", outcome.String(), "error", err)
	}
	return profile, outcome, err
}

func (g *Gate) evaluate(ctx context.Context, token string) (Outcome, *AdminProfile, error) {
	// Browsers that stored a stringified missing value send the literal
	// text "undefined"; treat it the same as no cookie at all.
	if token == "" || token == "undefined" {
		return OutcomeNoCredential, nil, nil
	}

	if _, err := g.validator.Verify(ctx, token); err != nil {
		return OutcomeInvalidToken, nil, err
	}

	profile, err := g.client.Profile(ctx, token)
	if err != nil {
		return OutcomeProfileUnavailable, nil, err
	}

	if !profile.IsAdmin {
		return OutcomeNotAdmin, nil, nil
	}

	return OutcomeAdmin, profile, nil
}
