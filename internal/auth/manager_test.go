// ABOUTME: Tests for the TokenManager authorize/exchange flow
// ABOUTME: Covers single-flight acquisition, expiry precedence, reuse and failure modes

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeAuthServer mimics the authorization service.
type fakeAuthServer struct {
	*httptest.Server

	authorizeHits atomic.Int32
	tokenHits     atomic.Int32

	mu            sync.Mutex
	authorizeForm url.Values
	tokenForm     url.Values

	omitCode    bool
	tokenStatus int
	tokenDelay  time.Duration
	accessToken string
	expiresIn   int
}

func newFakeAuthServer(t *testing.T) *fakeAuthServer {
	t.Helper()
	f := &fakeAuthServer{accessToken: "opaque-token", tokenStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("/authorize", func(w http.ResponseWriter, r *http.Request) {
		f.authorizeHits.Add(1)
		_ = r.ParseForm()
		f.mu.Lock()
		f.authorizeForm = r.PostForm
		f.mu.Unlock()

		location := r.PostForm.Get("redirect_uri") + "?state=" + r.PostForm.Get("state")
		if !f.omitCode {
			location += "&code=the-code"
		}
		w.Header().Set("Location", location)
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenHits.Add(1)
		_ = r.ParseForm()
		f.mu.Lock()
		f.tokenForm = r.PostForm
		f.mu.Unlock()

		if f.tokenDelay > 0 {
			time.Sleep(f.tokenDelay)
		}
		if f.tokenStatus != http.StatusOK {
			http.Error(w, `{"error":"invalid_grant"}`, f.tokenStatus)
			return
		}
		body := map[string]any{"access_token": f.accessToken, "token_type": "bearer"}
		if f.expiresIn > 0 {
			body["expires_in"] = f.expiresIn
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, srv *fakeAuthServer) (*TokenManager, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Now()}
	m := NewTokenManager(Config{
		AuthURL:    srv.URL,
		NodeID:     "wsl-local",
		Scent:      "awaken",
		HTTPClient: srv.Client(),
	})
	m.now = clock.Now
	return m, clock
}

func TestCredential_SendsNodeIdentity(t *testing.T) {
	srv := newFakeAuthServer(t)
	m, _ := newTestManager(t, srv)

	_, err := m.Credential(context.Background())
	require.NoError(t, err)

	srv.mu.Lock()
	defer srv.mu.Unlock()

	form := srv.authorizeForm
	assert.Equal(t, "node-wsl-local", form.Get("client_id"))
	assert.Equal(t, DefaultRedirectURI, form.Get("redirect_uri"))
	assert.Equal(t, DefaultScope, form.Get("scope"))
	assert.Equal(t, "wsl-local", form.Get("state"))
	assert.Equal(t, "awaken", form.Get("scent"))
	assert.Equal(t, "S256", form.Get("code_challenge_method"))
	assert.Equal(t, oauth2.S256ChallengeFromVerifier(m.verifier), form.Get("code_challenge"))

	tf := srv.tokenForm
	assert.Equal(t, "authorization_code", tf.Get("grant_type"))
	assert.Equal(t, "the-code", tf.Get("code"))
	assert.Equal(t, "node-wsl-local", tf.Get("client_id"))
	assert.Equal(t, DefaultRedirectURI, tf.Get("redirect_uri"))
	assert.Equal(t, m.verifier, tf.Get("code_verifier"))
}

func TestCredential_ReusesUnexpired(t *testing.T) {
	srv := newFakeAuthServer(t)
	m, clock := newTestManager(t, srv)

	first, err := m.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", first.Token)

	clock.Advance(59 * time.Minute)
	second, err := m.Credential(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), srv.authorizeHits.Load())
	assert.Equal(t, int32(1), srv.tokenHits.Load())
}

func TestCredential_RefetchesAfterExpiry(t *testing.T) {
	srv := newFakeAuthServer(t)
	m, clock := newTestManager(t, srv)

	_, err := m.Credential(context.Background())
	require.NoError(t, err)

	clock.Advance(DefaultValidity + time.Second)
	_, err = m.Credential(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), srv.authorizeHits.Load())
	assert.Equal(t, int64(2), m.Acquisitions())
}

func TestCredential_SingleFlight(t *testing.T) {
	srv := newFakeAuthServer(t)
	srv.tokenDelay = 100 * time.Millisecond
	m, _ := newTestManager(t, srv)

	const callers = 25
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)

	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			c, err := m.Credential(context.Background())
			tokens[i], errs[i] = c.Token, err
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "opaque-token", tokens[i])
	}
	assert.Equal(t, int32(1), srv.authorizeHits.Load())
	assert.Equal(t, int32(1), srv.tokenHits.Load())
}

func TestCredential_FixedValidityWindow(t *testing.T) {
	srv := newFakeAuthServer(t)
	m, clock := newTestManager(t, srv)
	issued := clock.Now()

	c, err := m.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, issued.Add(DefaultValidity), c.Expiry)
}

func TestCredential_ReportedTTLWins(t *testing.T) {
	srv := newFakeAuthServer(t)
	srv.expiresIn = 120
	m, _ := newTestManager(t, srv)

	c, err := m.Credential(context.Background())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(120*time.Second), c.Expiry, 5*time.Second)
}

func TestCredential_JWTExpiryUsed(t *testing.T) {
	exp := time.Now().Add(10 * time.Minute).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "node-wsl-local",
		"exp": exp.Unix(),
	}).SignedString([]byte("hive-secret"))
	require.NoError(t, err)

	srv := newFakeAuthServer(t)
	srv.accessToken = signed
	m, _ := newTestManager(t, srv)

	c, err := m.Credential(context.Background())
	require.NoError(t, err)
	assert.True(t, exp.Equal(c.Expiry), "expected %v, got %v", exp, c.Expiry)
}

func TestCredential_NoCode(t *testing.T) {
	srv := newFakeAuthServer(t)
	srv.omitCode = true
	m, _ := newTestManager(t, srv)

	_, err := m.Credential(context.Background())
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "authorize", authErr.Op)
	assert.ErrorIs(t, err, ErrNoCode)
	assert.Zero(t, srv.tokenHits.Load())
}

func TestCredential_TokenEndpointFailure(t *testing.T) {
	srv := newFakeAuthServer(t)
	srv.tokenStatus = http.StatusBadRequest
	m, _ := newTestManager(t, srv)

	_, err := m.Credential(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "token exchange", authErr.Op)

	// Failures are not cached; the next call tries again.
	srv.tokenStatus = http.StatusOK
	_, err = m.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), srv.authorizeHits.Load())
}

func TestCredential_UnreachableAuthService(t *testing.T) {
	m := NewTokenManager(Config{AuthURL: "http://127.0.0.1:1", NodeID: "n"})

	_, err := m.Credential(context.Background())
	var authErr *AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestCredential_CallerCancelDoesNotAbortAcquisition(t *testing.T) {
	srv := newFakeAuthServer(t)
	srv.tokenDelay = 200 * time.Millisecond
	m, _ := newTestManager(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Credential(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	// The in-flight acquisition finishes and is cached.
	c, err := m.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", c.Token)
	assert.Equal(t, int32(1), srv.authorizeHits.Load())
}

func TestInvalidate(t *testing.T) {
	srv := newFakeAuthServer(t)
	m, _ := newTestManager(t, srv)

	tok, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", tok)

	m.Invalidate()
	_, err = m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), srv.authorizeHits.Load())
}

func TestCredentialValidAt(t *testing.T) {
	now := time.Now()
	assert.False(t, Credential{}.ValidAt(now))
	assert.True(t, Credential{Token: "t", Expiry: now.Add(time.Second)}.ValidAt(now))
	assert.False(t, Credential{Token: "t", Expiry: now}.ValidAt(now))
}

func TestJWTExpiry(t *testing.T) {
	_, ok := jwtExpiry("not-a-jwt")
	assert.False(t, ok)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, ok = jwtExpiry(noExp)
	assert.False(t, ok)
}
