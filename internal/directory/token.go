package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"elevate.dev/elevate/internal/domain"
	"elevate.dev/elevate/internal/pkg/logger"
)

// ErrInteractionRequired means no token can be obtained without the user.
var ErrInteractionRequired = errors.New("interaction required")

// TokenSource yields bearer tokens for directory calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// AccountSource reports the signed-in account, if any. It never performs I/O.
type AccountSource interface {
	Account() (domain.Account, bool)
}

// AuthOptions configures the token endpoint shared by the token sources.
type AuthOptions struct {
	AuthorityHost string
	TenantID      string
	ClientID      string
	Scopes        []string
	// ExpirySkew treats tokens expiring within this window as stale.
	ExpirySkew time.Duration
	HTTPClient *http.Client
}

// oauthConfig describes the v2.0 endpoints of {authority}/{tenant} for a
// public client: client_id goes in the form body, there is no secret.
func oauthConfig(opts AuthOptions) *oauth2.Config {
	tenant := opts.TenantID
	if tenant == "" {
		tenant = "common"
	}
	base := strings.TrimRight(opts.AuthorityHost, "/") + "/" + url.PathEscape(tenant) + "/oauth2/v2.0/"
	return &oauth2.Config{
		ClientID: opts.ClientID,
		Scopes:   opts.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:       base + "authorize",
			TokenURL:      base + "token",
			DeviceAuthURL: base + "devicecode",
			AuthStyle:     oauth2.AuthStyleInParams,
		},
	}
}

// withHTTPClient makes x/oauth2 use client for its token requests.
func withHTTPClient(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

// SilentSource serves a cached access token and redeems the cached refresh
// token when it goes stale. It never prompts; without a usable token it
// returns ErrInteractionRequired.
type SilentSource struct {
	cfg        *oauth2.Config
	httpClient *http.Client
	skew       time.Duration
	now        func() time.Time

	mu        sync.Mutex
	token     oauth2.Token
	idToken   string
	expiresAt time.Time
}

var (
	_ TokenSource   = (*SilentSource)(nil)
	_ AccountSource = (*SilentSource)(nil)
)

// NewSilentSource creates a silent token cache, optionally seeded with tokens.
func NewSilentSource(opts AuthOptions, accessToken, refreshToken string) *SilentSource {
	s := &SilentSource{
		cfg:        oauthConfig(opts),
		httpClient: opts.HTTPClient,
		skew:       opts.ExpirySkew,
		now:        time.Now,
	}
	if accessToken != "" || refreshToken != "" {
		s.Store(accessToken, refreshToken, "", time.Time{})
	}
	return s
}

// Store replaces the cached tokens. A zero expiresAt is taken from the access
// token's exp claim when it is a JWT.
func (s *SilentSource) Store(accessToken, refreshToken, idToken string, expiresAt time.Time) {
	tok := (&oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Expiry:       expiresAt,
	}).WithExtra(map[string]interface{}{"id_token": idToken})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeLocked(tok)
}

// Token returns a valid cached token, refreshing it if possible.
func (s *SilentSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tok, ok := s.cachedLocked(); ok {
		return tok, nil
	}
	if s.token.RefreshToken == "" || s.cfg.ClientID == "" {
		return "", ErrInteractionRequired
	}

	// An empty access token forces the refresh_token grant.
	src := s.cfg.TokenSource(withHTTPClient(ctx, s.httpClient), &oauth2.Token{RefreshToken: s.token.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("%w: refresh token redemption failed: %v", ErrInteractionRequired, err)
	}

	s.storeLocked(tok)
	logger.Debug("Access token refreshed silently", zap.Time("expires_at", s.expiresAt))
	return s.token.AccessToken, nil
}

// cached reports the current token if it is still fresh.
func (s *SilentSource) cached() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cachedLocked()
}

func (s *SilentSource) cachedLocked() (string, bool) {
	if s.token.AccessToken == "" {
		return "", false
	}
	if s.expiresAt.IsZero() {
		// Opaque token without a known lifetime.
		return s.token.AccessToken, true
	}
	if s.now().Add(s.skew).Before(s.expiresAt) {
		return s.token.AccessToken, true
	}
	return "", false
}

// storeLocked caches tok. Refresh and id tokens absent from tok are kept.
// The expiry comes from the JWT exp claim, else from the token response.
func (s *SilentSource) storeLocked(tok *oauth2.Token) {
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = s.token.RefreshToken
	}
	s.token = oauth2.Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: refresh,
	}
	if id, _ := tok.Extra("id_token").(string); id != "" {
		s.idToken = id
	}
	s.expiresAt = tok.Expiry
	if exp, ok := tokenExpiry(tok.AccessToken); ok {
		s.expiresAt = exp
	}
}

// Account derives the signed-in account from the cached token claims
// (id token first, then access token). Claims are not verified locally;
// the directory verifies every token it receives.
func (s *SilentSource) Account() (domain.Account, bool) {
	s.mu.Lock()
	candidates := []string{s.idToken, s.token.AccessToken}
	s.mu.Unlock()

	for _, raw := range candidates {
		claims, ok := parseClaims(raw)
		if !ok {
			continue
		}
		acct := domain.Account{
			ObjectID: claimString(claims, "oid"),
			Name:     claimString(claims, "name"),
			Username: claimString(claims, "preferred_username"),
			TenantID: claimString(claims, "tid"),
		}
		if acct.Username == "" {
			acct.Username = claimString(claims, "upn")
		}
		if acct.ObjectID != "" {
			return acct, true
		}
	}
	return domain.Account{}, false
}

func parseClaims(raw string) (jwt.MapClaims, bool) {
	if raw == "" {
		return nil, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, false
	}
	return claims, true
}

func tokenExpiry(raw string) (time.Time, bool) {
	claims, ok := parseClaims(raw)
	if !ok {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func claimString(claims jwt.MapClaims, name string) string {
	v, _ := claims[name].(string)
	return v
}

// FallbackSource tries Silent first and falls back to Interactive on any
// silent failure.
type FallbackSource struct {
	Silent      TokenSource
	Interactive TokenSource
}

var _ TokenSource = (*FallbackSource)(nil)

// Token implements TokenSource.
func (f *FallbackSource) Token(ctx context.Context) (string, error) {
	tok, err := f.Silent.Token(ctx)
	if err == nil {
		return tok, nil
	}
	if f.Interactive == nil {
		return "", err
	}

	logger.Info("Silent token acquisition failed, falling back to interactive sign-in",
		zap.Error(err),
	)
	tok, ierr := f.Interactive.Token(ctx)
	if ierr != nil {
		return "", fmt.Errorf("interactive token acquisition: %w", ierr)
	}
	return tok, nil
}
