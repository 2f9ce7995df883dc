// Package apiauth supplies bearer tokens for the segment repository API and
// renews them through the API's refresh endpoint.
package apiauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/ignite/segment-rules/internal/pkg/logger"
)

// RefreshPath is where refresh tokens are exchanged.
const RefreshPath = "/api/auth/refresh"

var (
	ErrNoToken        = errors.New("apiauth: no access token configured")
	ErrNoRefreshToken = errors.New("apiauth: access token rejected and no refresh token available")
	ErrRefreshFailed  = errors.New("apiauth: token refresh failed")
)

// TokenPair is the "tokens" object returned by the refresh endpoint.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
}

type refreshResponse struct {
	Data struct {
		Tokens TokenPair `json:"tokens"`
	} `json:"data"`
}

// TokenSource is an oauth2.TokenSource over the repository's own
// access/refresh scheme. The access token is reused until it expires or the
// caller reports it rejected with Invalidate.
type TokenSource struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	access  string
	refresh string
	expiry  time.Time // zero when the server gave no lifetime
	stale   bool

	// OnRefresh, when set, receives every renewed pair so callers can
	// persist it.
	OnRefresh func(TokenPair)
}

// NewTokenSource creates a source seeded with existing tokens. baseURL is
// the repository API root.
func NewTokenSource(baseURL, accessToken, refreshToken string) *TokenSource {
	return &TokenSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		access:     accessToken,
		refresh:    refreshToken,
	}
}

// Token returns the current access token, refreshing it first when it was
// invalidated or is about to expire.
func (s *TokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.TokenContext(ctx)
}

// TokenContext is Token with an explicit context for the refresh call.
func (s *TokenSource) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Renew ahead of expiry (with 60s buffer)
	expiring := !s.expiry.IsZero() && time.Now().After(s.expiry.Add(-60*time.Second))
	if s.stale || expiring || s.access == "" {
		if s.refresh == "" {
			if s.access == "" {
				return nil, ErrNoToken
			}
			if s.stale {
				return nil, ErrNoRefreshToken
			}
		} else if err := s.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}
	return &oauth2.Token{
		AccessToken:  s.access,
		TokenType:    "Bearer",
		RefreshToken: s.refresh,
		Expiry:       s.expiry,
	}, nil
}

// Invalidate marks the current access token as rejected. The next Token
// call refreshes it. Only the token that was rejected is invalidated, so
// concurrent 401s trigger a single refresh.
func (s *TokenSource) Invalidate(rejected string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rejected == "" || rejected == s.access {
		s.stale = true
	}
}

func (s *TokenSource) refreshLocked(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{"refresh_token": s.refresh})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+RefreshPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrRefreshFailed, resp.StatusCode)
	}

	var rr refreshResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrRefreshFailed, err)
	}
	pair := rr.Data.Tokens
	if pair.AccessToken == "" {
		return fmt.Errorf("%w: response carried no access token", ErrRefreshFailed)
	}

	s.access = pair.AccessToken
	if pair.RefreshToken != "" {
		s.refresh = pair.RefreshToken
	}
	s.expiry = time.Time{}
	if pair.ExpiresIn > 0 {
		s.expiry = time.Now().Add(time.Duration(pair.ExpiresIn) * time.Second)
	}
	s.stale = false
	logger.Info("[apiauth] access token refreshed", "expires_in", pair.ExpiresIn)

	if s.OnRefresh != nil {
		s.OnRefresh(TokenPair{AccessToken: s.access, RefreshToken: s.refresh, ExpiresIn: pair.ExpiresIn})
	}
	return nil
}

// Client returns an http.Client that signs every request with the current
// access token. base may be nil.
func (s *TokenSource) Client(base http.RoundTripper, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{Source: s, Base: base},
		Timeout:   timeout,
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
