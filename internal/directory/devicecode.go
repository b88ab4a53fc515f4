package directory

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"elevate.dev/elevate/internal/pkg/logger"
)

// deviceCodeLifetime applies when the endpoint does not say how long a code lives.
const deviceCodeLifetime = 15 * time.Minute

// DeviceCode is the prompt a user completes on another device.
type DeviceCode struct {
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	Message                 string
	ExpiresAt               time.Time
}

// DeviceCodeSource runs the interactive device-code flow. Tokens it obtains
// are written back into the silent cache so later calls stay silent.
type DeviceCodeSource struct {
	cfg        *oauth2.Config
	httpClient *http.Client
	cache      *SilentSource
	prompt     func(DeviceCode)

	// one interactive flow at a time
	mu sync.Mutex
}

var _ TokenSource = (*DeviceCodeSource)(nil)

// NewDeviceCodeSource creates an interactive source. prompt receives the user
// instructions; nil logs them.
func NewDeviceCodeSource(opts AuthOptions, cache *SilentSource, prompt func(DeviceCode)) *DeviceCodeSource {
	if prompt == nil {
		prompt = func(dc DeviceCode) {
			logger.Warn("Directory sign-in required",
				zap.String("message", dc.Message),
				zap.String("verification_uri", dc.VerificationURI),
				zap.String("user_code", dc.UserCode),
			)
		}
	}
	return &DeviceCodeSource{
		cfg:        oauthConfig(opts),
		httpClient: opts.HTTPClient,
		cache:      cache,
		prompt:     prompt,
	}
}

// Token implements TokenSource. It blocks until the user completes sign-in,
// the code expires or ctx is done.
func (d *DeviceCodeSource) Token(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// A concurrent flow may have completed while we were queued.
	if d.cache != nil {
		if tok, ok := d.cache.cached(); ok {
			return tok, nil
		}
	}

	ctx = withHTTPClient(ctx, d.httpClient)
	da, err := d.cfg.DeviceAuth(ctx)
	if err != nil {
		return "", fmt.Errorf("request device code: %w", err)
	}
	if da.Expiry.IsZero() {
		da.Expiry = time.Now().Add(deviceCodeLifetime)
	}
	d.prompt(DeviceCode{
		UserCode:                da.UserCode,
		VerificationURI:         da.VerificationURI,
		VerificationURIComplete: da.VerificationURIComplete,
		Message:                 fmt.Sprintf("To sign in, open %s and enter the code %s", da.VerificationURI, da.UserCode),
		ExpiresAt:               da.Expiry,
	})

	// Polls until authorized, honouring authorization_pending and slow_down.
	tok, err := d.cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return "", fmt.Errorf("device code sign-in: %w", err)
	}
	if d.cache != nil {
		d.cache.mu.Lock()
		d.cache.storeLocked(tok)
		d.cache.mu.Unlock()
	}
	logger.Info("Directory sign-in completed")
	return tok.AccessToken, nil
}
