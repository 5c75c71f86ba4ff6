package identity

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SessionCookie is the browser cookie carrying the game access token.
const SessionCookie = "gameToken"

// SessionCookieMaxAge is the cookie lifetime in seconds. Sessions expire on
// the provider side well before this; the cookie just needs to outlive them.
const SessionCookieMaxAge = 9000000

const sessionContextKey = "identity.session"

// Session is the authenticated admin session attached to gin's context.
type Session struct {
	Token   string
	Profile *AdminProfile
}

// SessionFrom returns the admin session set by RequireAdmin.
func SessionFrom(c *gin.Context) (*Session, bool) {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return nil, false
	}
	s, ok := v.(*Session)
	return s, ok
}

// RequireAdmin gates a route group behind admin standing. Every non-admin
// outcome answers 200 with a login-view envelope rather than an HTTP error:
// an unauthenticated visitor is a routing concern for the dashboard, not a
// protocol failure.
func RequireAdmin(gate Authorizer, applicationName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(SessionCookie)

		profile, outcome, _ := gate.Authorize(c.Request.Context(), token)
		if outcome != OutcomeAdmin {
			c.AbortWithStatusJSON(http.StatusOK, LoginView(outcome, applicationName))
			return
		}

		c.Set(sessionContextKey, &Session{Token: token, Profile: profile})
		c.Next()
	}
}

// LoginView builds the envelope that routes a visitor to the login view.
func LoginView(outcome Outcome, applicationName string) gin.H {
	return gin.H{
		"status":          "ERROR",
		"authenticated":   false,
		"view":            "login",
		"reason":          loginReason(outcome),
		"applicationName": applicationName,
	}
}

func loginReason(outcome Outcome) string {
	switch outcome {
	case OutcomeNoCredential:
		return ""
	case OutcomeInvalidToken:
		return "Your login could not be validated. Please log in again."
	case OutcomeNotAdmin:
		return "This console is restricted to game administrators."
	case OutcomeProfileUnavailable:
		return "Unable to retrieve your game profile. Please try again."
	default:
		return "Please log in."
	}
}
