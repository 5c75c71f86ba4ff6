package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gamepay/procadmin/internal/retry"
)

// AdminProfile is the slice of a game profile this console cares about.
type AdminProfile struct {
	Subject  string `json:"subject"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"isAdmin"`
}

// Client talks to the game identity provider's login and profile endpoints.
type Client struct {
	loginURL   string
	profileURL string
	httpClient *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates an identity provider client.
func NewClient(loginURL, profileURL string, opts ...ClientOption) *Client {
	c := &Client{
		loginURL:   loginURL,
		profileURL: profileURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login forwards credentials to the provider and returns the access token.
// Rejected credentials surface as ErrLoginRejected; transport trouble is
// returned as-is so callers can distinguish "wrong password" from "provider
// down".
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", ErrLoginRejected, resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decoding login response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrLoginRejected)
	}
	return payload.AccessToken, nil
}

// Profile fetches the profile behind the given access token. Transient
// transport failures are retried; HTTP-level rejections are not.
func (c *Client) Profile(ctx context.Context, token string) (*AdminProfile, error) {
	var profile AdminProfile

	err := retry.Do(ctx, 3, 200*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileURL, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return retry.Permanent(fmt.Errorf("profile endpoint returned %d", resp.StatusCode))
		}

		return json.NewDecoder(resp.Body).Decode(&profile)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
	}
	return &profile, nil
}
