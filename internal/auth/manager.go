// ABOUTME: TokenManager obtains the node's access credential and refreshes it on expiry
// ABOUTME: Acquisition is single-flight so concurrent callers trigger one exchange

package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Defaults for the node authorization flow.
const (
	DefaultValidity    = time.Hour
	DefaultScope       = "read write full"
	DefaultRedirectURI = "http://localhost:8000/callback"
	acquireTimeout     = 30 * time.Second
)

// ErrNoCode indicates the authorize step redirected without a code.
var ErrNoCode = errors.New("no code")

// AuthError reports a failed credential acquisition.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Credential is a bearer token and the instant it stops being usable.
type Credential struct {
	Token  string
	Expiry time.Time
}

// ValidAt reports whether the credential can be used at now.
func (c Credential) ValidAt(now time.Time) bool {
	return c.Token != "" && now.Before(c.Expiry)
}

// Config configures a TokenManager.
type Config struct {
	AuthURL     string
	NodeID      string
	Scent       string
	RedirectURI string
	Scope       string
	Validity    time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// TokenManager owns the node's credential.
type TokenManager struct {
	authURL   string
	nodeID    string
	scent     string
	scope     string
	validity  time.Duration
	verifier  string
	challenge string
	oauth     *oauth2.Config
	client    *http.Client
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	cached Credential

	group        singleflight.Group
	acquisitions atomic.Int64
}

// NewTokenManager creates a TokenManager. The PKCE verifier is generated
// here and stays fixed for the life of the process.
func NewTokenManager(cfg Config) *TokenManager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	redirect := cfg.RedirectURI
	if redirect == "" {
		redirect = DefaultRedirectURI
	}
	scope := cfg.Scope
	if scope == "" {
		scope = DefaultScope
	}
	validity := cfg.Validity
	if validity <= 0 {
		validity = DefaultValidity
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 10 * time.Second}
	}
	// The authorize response is a redirect we must read, not follow.
	client := *base
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	authURL := strings.TrimRight(cfg.AuthURL, "/")
	clientID := "node-" + cfg.NodeID
	verifier := oauth2.GenerateVerifier()

	return &TokenManager{
		authURL:   authURL,
		nodeID:    cfg.NodeID,
		scent:     cfg.Scent,
		scope:     scope,
		validity:  validity,
		verifier:  verifier,
		challenge: oauth2.S256ChallengeFromVerifier(verifier),
		oauth: &oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirect,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL + "/authorize",
				TokenURL:  authURL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: &client,
		logger: logger.With("component", "auth"),
		now:    time.Now,
	}
}

// Credential returns a valid credential, acquiring one if none is cached or
// the cached one has expired.
func (m *TokenManager) Credential(ctx context.Context) (Credential, error) {
	if c, ok := m.cachedCredential(); ok {
		return c, nil
	}

	ch := m.group.DoChan("credential", func() (any, error) {
		if c, ok := m.cachedCredential(); ok {
			return c, nil
		}
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), acquireTimeout)
		defer cancel()

		c, err := m.acquire(actx)
		if err != nil {
			m.logger.Warn("credential acquisition failed", "error", err)
			return Credential{}, err
		}

		m.mu.Lock()
		m.cached = c
		m.mu.Unlock()

		m.logger.Info("credential acquired", "expires_at", c.Expiry)
		return c, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}
		return res.Val.(Credential), nil
	case <-ctx.Done():
		return Credential{}, &AuthError{Op: "wait", Err: ctx.Err()}
	}
}

// Token returns the bearer token of a valid credential.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	c, err := m.Credential(ctx)
	if err != nil {
		return "", err
	}
	return c.Token, nil
}

// Invalidate discards the cached credential so the next call reacquires.
// Called when the hive rejects a token before its computed expiry.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.cached = Credential{}
	m.mu.Unlock()
}

// Acquisitions returns how many authorize+exchange rounds have started.
func (m *TokenManager) Acquisitions() int64 {
	return m.acquisitions.Load()
}

func (m *TokenManager) cachedCredential() (Credential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached.ValidAt(m.now()) {
		return m.cached, true
	}
	return Credential{}, false
}

// acquire runs the authorize and token exchange steps.
func (m *TokenManager) acquire(ctx context.Context) (Credential, error) {
	m.acquisitions.Add(1)

	code, err := m.authorize(ctx)
	if err != nil {
		return Credential{}, err
	}

	issued := m.now()
	tok, err := m.oauth.Exchange(context.WithValue(ctx, oauth2.HTTPClient, m.client), code,
		oauth2.VerifierOption(m.verifier))
	if err != nil {
		return Credential{}, &AuthError{Op: "token exchange", Err: err}
	}

	return Credential{Token: tok.AccessToken, Expiry: m.expiryFor(tok, issued)}, nil
}

// authorize requests a grant and pulls the code out of the redirect.
func (m *TokenManager) authorize(ctx context.Context) (string, error) {
	form := url.Values{
		"client_id":             {m.oauth.ClientID},
		"redirect_uri":          {m.oauth.RedirectURL},
		"scope":                 {m.scope},
		"state":                 {m.nodeID},
		"code_challenge":        {m.challenge},
		"code_challenge_method": {"S256"},
		"scent":                 {m.scent},
		"action":                {"auth"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.oauth.Endpoint.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Op: "authorize", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", &AuthError{Op: "authorize", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	location := resp.Header.Get("Location")
	if location == "" {
		return "", &AuthError{Op: "authorize", Err: fmt.Errorf("%w (status %d)", ErrNoCode, resp.StatusCode)}
	}
	u, err := url.Parse(location)
	if err != nil {
		return "", &AuthError{Op: "authorize", Err: fmt.Errorf("%w: bad location: %v", ErrNoCode, err)}
	}
	code := u.Query().Get("code")
	if code == "" {
		return "", &AuthError{Op: "authorize", Err: ErrNoCode}
	}
	return code, nil
}

// expiryFor picks the credential expiry: reported TTL, then JWT exp, then
// the fixed validity window.
func (m *TokenManager) expiryFor(tok *oauth2.Token, issued time.Time) time.Time {
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	if exp, ok := jwtExpiry(tok.AccessToken); ok {
		return exp
	}
	return issued.Add(m.validity)
}
