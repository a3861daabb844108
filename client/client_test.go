package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/deskhive/deskhive-go/client"
	"github.com/deskhive/deskhive-go/config"
	"github.com/deskhive/deskhive-go/keystore/storefakes"
	"github.com/deskhive/deskhive-go/session"
)

func signTestToken(t *testing.T, userID string) string {
	t.Helper()
	claims := jwtlib.MapClaims{
		"sub": userID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(15 * time.Minute).Unix(),
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

// echoServer records the headers of the last request it served.
type echoServer struct {
	server   *httptest.Server
	lastAuth string
	lastName string
}

func newEchoServer(t *testing.T) *echoServer {
	t.Helper()
	e := &echoServer{}
	e.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.lastAuth = r.Header.Get("Authorization")
		e.lastName = r.Header.Get("X-App-Name")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(e.server.Close)
	return e
}

func newTestClient(t *testing.T, baseURL string, store *storefakes.FakeStore, options ...client.Option) *client.Client {
	t.Helper()
	cfg := config.New(baseURL, "deskhive-test", "0.0.1")
	c, err := client.New(cfg, store, options...)
	require.NoError(t, err)
	return c
}

func seedPersistedSession(t *testing.T, store *storefakes.FakeStore, accessToken, refreshToken string) {
	t.Helper()
	raw, err := json.Marshal(map[string]string{
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
	})
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), session.StorageKey, string(raw)))
}

func TestColdStartWithPersistedSession(t *testing.T) {
	ctx := context.Background()
	echo := newEchoServer(t)

	store := storefakes.NewFakeStore()
	persistedAccess := signTestToken(t, "user-1")
	seedPersistedSession(t, store, persistedAccess, "refresh-1")

	c := newTestClient(t, echo.server.URL, store)
	require.False(t, c.Ready())

	// Hydration needs no network; with no deep-link parameters present the
	// client is ready as soon as it completes.
	require.NoError(t, c.Hydrate(ctx))
	require.True(t, c.Ready())

	snap := c.Session()
	require.True(t, snap.LoggedIn())
	require.Equal(t, "user-1", snap.Claims.UserID)

	// The first API call carries the persisted access token.
	req, err := c.NewRequest(ctx, http.MethodGet, "/api/users/me", nil)
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, "Bearer "+persistedAccess, echo.lastAuth)
	require.Equal(t, "deskhive-test", echo.lastName)
}

func TestColdStartLoggedOut(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, "https://api.deskhive.app", storefakes.NewFakeStore())

	require.NoError(t, c.Hydrate(ctx))
	require.True(t, c.Ready())
	require.False(t, c.Session().LoggedIn())
}

func TestHandleRedirectLogsIn(t *testing.T) {
	ctx := context.Background()
	invalidations := 0
	c := newTestClient(t, "https://api.deskhive.app", storefakes.NewFakeStore(),
		client.WithCacheInvalidator(func() { invalidations++ }))
	require.NoError(t, c.Hydrate(ctx))

	accessToken := signTestToken(t, "user-1")
	uri := "deskhive://auth/callback?accessToken=" + url.QueryEscape(accessToken) + "&refreshToken=refresh-1"

	applied, err := c.HandleRedirect(ctx, uri)
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, 1, invalidations)
	require.Equal(t, "user-1", c.Session().Claims.UserID)

	// Same redirect again: consumed without reapplying.
	applied, err = c.HandleRedirect(ctx, uri)
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, 1, invalidations)

	// A URI without tokens is ignored.
	applied, err = c.HandleRedirect(ctx, "deskhive://home")
	require.NoError(t, err)
	require.False(t, applied)
}

func TestRedirectBeforeHydrationAppliesAfterAwaitReady(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, "https://api.deskhive.app", storefakes.NewFakeStore())

	accessToken := signTestToken(t, "user-1")
	uri := "deskhive://auth/callback?accessToken=" + url.QueryEscape(accessToken) + "&refreshToken=refresh-1"

	applied, err := c.HandleRedirect(ctx, uri)
	require.NoError(t, err)
	require.False(t, applied)
	require.False(t, c.Ready())

	require.NoError(t, c.Hydrate(ctx))
	require.NoError(t, c.AwaitReady(ctx))
	require.True(t, c.Ready())
	require.Equal(t, "refresh-1", c.Session().RefreshToken)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	invalidations := 0
	store := storefakes.NewFakeStore()
	seedPersistedSession(t, store, signTestToken(t, "user-1"), "refresh-1")

	c := newTestClient(t, "https://api.deskhive.app", store,
		client.WithCacheInvalidator(func() { invalidations++ }))
	require.NoError(t, c.Hydrate(ctx))
	require.True(t, c.Session().LoggedIn())

	require.NoError(t, c.Logout(ctx))
	require.False(t, c.Session().LoggedIn())
	require.Equal(t, 1, invalidations)

	_, ok := store.Value(session.StorageKey)
	require.False(t, ok)
}

func TestLoginURLRequiresConfiguration(t *testing.T) {
	c := newTestClient(t, "https://api.deskhive.app", storefakes.NewFakeStore())
	_, err := c.LoginURL("state-1")
	require.Error(t, err)

	cfg := config.New("https://api.deskhive.app", "deskhive-test", "0.0.1")
	cfg.LoginURL = "https://login.deskhive.app/authorize"
	cfg.RedirectURL = "deskhive://auth/callback"
	cfg.ClientID = "deskhive-mobile"
	withLogin, err := client.New(cfg, storefakes.NewFakeStore())
	require.NoError(t, err)

	loginURL, err := withLogin.LoginURL("state-1")
	require.NoError(t, err)
	require.Contains(t, loginURL, "client_id=deskhive-mobile")
	require.Contains(t, loginURL, "state=state-1")
}

func TestNewValidatesInputs(t *testing.T) {
	_, err := client.New(config.Config{}, storefakes.NewFakeStore())
	require.Error(t, err)

	_, err = client.New(config.New("https://api.deskhive.app", "a", "1"), nil)
	require.Error(t, err)
}
