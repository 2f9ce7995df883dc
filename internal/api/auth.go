package api

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ignite/segment-rules/internal/pkg/apiauth"
	"github.com/ignite/segment-rules/internal/pkg/httputil"
	"github.com/ignite/segment-rules/internal/pkg/logger"
)

// accessTokenTTL is the lifetime of access tokens issued by the refresh endpoint.
const accessTokenTTL = time.Hour

const tokenIssuer = "segments-stub"

var errTokenRevoked = errors.New("token revoked")

// TokenAuth is the stub's bearer scheme. The configured access token is
// accepted until the first refresh; after that only JWTs issued by the
// refresh endpoint are, and each refresh revokes the previous one.
// An empty configured access token disables the check.
type TokenAuth struct {
	mu      sync.RWMutex
	enabled bool
	static  string
	refresh string
	current string // jti of the newest issued token
	secret  []byte
	now     func() time.Time
}

// NewTokenAuth creates the token checker. Issued tokens are signed with a
// per-process secret, so they do not survive a restart.
func NewTokenAuth(accessToken, refreshToken string) *TokenAuth {
	return &TokenAuth{
		enabled: accessToken != "",
		static:  accessToken,
		refresh: refreshToken,
		secret:  []byte(uuid.NewString()),
		now:     time.Now,
	}
}

// Enabled reports whether requests must carry a bearer token.
func (a *TokenAuth) Enabled() bool {
	return a.enabled
}

func tokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// issue signs a new access token and makes it the only valid issued one.
// Caller holds a.mu.
func (a *TokenAuth) issue() (string, error) {
	now := a.now()
	jti := uuid.NewString()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        jti,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenTTL)),
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	a.current = jti
	a.static = ""
	return signed, nil
}

// verify accepts the configured token or the newest issued JWT.
func (a *TokenAuth) verify(raw string) error {
	a.mu.RLock()
	static, current := a.static, a.current
	a.mu.RUnlock()

	if static != "" && tokensEqual(raw, static) {
		return nil
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return err
	}
	if current == "" || !tokensEqual(claims.ID, current) {
		return errTokenRevoked
	}
	return nil
}

// Middleware rejects requests without a valid access token.
func (a *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled {
			next.ServeHTTP(w, r)
			return
		}
		if err := a.verify(apiauth.BearerToken(r.Header.Get("Authorization"))); err != nil {
			logger.Debug("[auth] rejected bearer token", "path", r.URL.Path, "error", err)
			httputil.Error(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HandleRefresh exchanges the refresh token for a new access token.
//
//	POST /api/auth/refresh
func (a *TokenAuth) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	a.mu.Lock()
	if a.refresh == "" || !tokensEqual(req.RefreshToken, a.refresh) {
		a.mu.Unlock()
		httputil.Error(w, http.StatusUnauthorized, "unauthorized", "invalid refresh token")
		return
	}
	access, err := a.issue()
	pair := apiauth.TokenPair{AccessToken: access, RefreshToken: a.refresh, ExpiresIn: int(accessTokenTTL.Seconds())}
	a.mu.Unlock()

	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	logger.Info("[auth] access token rotated")
	httputil.OK(w, map[string]apiauth.TokenPair{"tokens": pair})
}
