// Package deeplink ingests token pairs delivered by the post-login redirect
// URI. The web login runs out of process: the user authenticates in a
// browser, the server issues tokens and redirects back into the app with the
// pair as query parameters. The bridge reconciles those parameters against
// the current session exactly once, without ever clobbering a freshly
// hydrated session with stale parameters from a previous cold start.
package deeplink

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/deskhive/deskhive-go/session"
)

const (
	accessTokenParam  = "accessToken"
	refreshTokenParam = "refreshToken"
)

// pendingTokens is a redirect's token pair awaiting reconciliation.
type pendingTokens struct {
	accessToken  string
	refreshToken string
}

// Bridge reconciles externally issued tokens into the session store.
type Bridge struct {
	sessions     *session.Store
	logger       zerolog.Logger
	oauthConfig  *oauth2.Config
	invalidators []func()

	// lock guards pending; reconcileLock serializes the whole
	// check-and-apply in Reconcile so a redirect is consumed exactly once
	// even when Reconcile races with itself.
	lock          sync.Mutex
	reconcileLock sync.Mutex
	pending       *pendingTokens
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithInvalidator registers a hook fired when a new identity is installed.
// Everything fetched under the previous identity is suspect at that point.
func WithInvalidator(invalidate func()) Option {
	return func(b *Bridge) { b.invalidators = append(b.invalidators, invalidate) }
}

// WithOAuthConfig enables LoginURL for starting the out-of-process web login.
func WithOAuthConfig(config *oauth2.Config) Option {
	return func(b *Bridge) { b.oauthConfig = config }
}

// WithLogger sets the bridge's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// NewBridge creates a bridge over the given session store.
func NewBridge(sessions *session.Store, options ...Option) (*Bridge, error) {
	if sessions == nil {
		return nil, fmt.Errorf("[NewBridge] session store is required")
	}
	b := &Bridge{sessions: sessions, logger: log.Logger}
	for _, option := range options {
		option(b)
	}
	return b, nil
}

// ParseRedirect extracts the token pair from a redirect URI. ok is false when
// either parameter is absent.
func ParseRedirect(rawURL string) (accessToken, refreshToken string, ok bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", "", false
	}
	query := parsed.Query()
	accessToken = query.Get(accessTokenParam)
	refreshToken = query.Get(refreshTokenParam)
	return accessToken, refreshToken, accessToken != "" && refreshToken != ""
}

// HandleRedirect records a redirect's tokens as pending. While tokens are
// pending the bridge reports not Ready; Reconcile consumes them. Returns
// whether the URI carried a token pair at all.
func (b *Bridge) HandleRedirect(rawURL string) bool {
	accessToken, refreshToken, ok := ParseRedirect(rawURL)
	if !ok {
		return false
	}
	b.lock.Lock()
	b.pending = &pendingTokens{accessToken: accessToken, refreshToken: refreshToken}
	b.lock.Unlock()
	return true
}

// Reconcile applies any pending redirect tokens to the session.
//
// It is a no-op while the store has not hydrated: reconciling before the
// persisted session is restored could overwrite it with parameters left over
// from an earlier cold start, so the pending pair is kept for a later call.
//
// It consumes without applying when the incoming refresh token equals the
// session's current one: the same redirect re-delivered (a re-rendered route
// with identical parameters) must not retrigger cache invalidation in a loop.
//
// Otherwise it installs the pair, fires every cache invalidator, and consumes
// the parameters. applied reports whether a new identity was installed, which
// is the caller's cue to clear the route parameters.
func (b *Bridge) Reconcile(ctx context.Context) (applied bool, err error) {
	b.reconcileLock.Lock()
	defer b.reconcileLock.Unlock()

	b.lock.Lock()
	pending := b.pending
	b.lock.Unlock()

	if pending == nil {
		return false, nil
	}
	if !b.sessions.Hydrated() {
		return false, nil
	}

	if pending.refreshToken == b.sessions.Snapshot().RefreshToken {
		b.consume(pending)
		return false, nil
	}

	setErr := b.sessions.SetTokens(ctx, pending.accessToken, pending.refreshToken)
	for _, invalidate := range b.invalidators {
		invalidate()
	}
	b.consume(pending)
	b.logger.Info().Msg("deep link tokens reconciled, cached data invalidated")
	return true, setErr
}

// Ready reports whether the rest of the app may trust the session: hydration
// has finished and no unreconciled deep-link tokens remain.
func (b *Bridge) Ready() bool {
	b.lock.Lock()
	pending := b.pending
	b.lock.Unlock()
	return b.sessions.Hydrated() && pending == nil
}

// LoginURL builds the browser URL that starts the out-of-process web login.
// The server redirects back into the app with the issued tokens.
func (b *Bridge) LoginURL(state string) (string, error) {
	if b.oauthConfig == nil {
		return "", fmt.Errorf("[Bridge LoginURL] no oauth config set")
	}
	return b.oauthConfig.AuthCodeURL(state), nil
}

// consume clears pending only if it is still the same pair, so a redirect
// arriving mid-reconcile is not lost.
func (b *Bridge) consume(pending *pendingTokens) {
	b.lock.Lock()
	if b.pending == pending {
		b.pending = nil
	}
	b.lock.Unlock()
}
