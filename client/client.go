// Package client wires the DeskHive SDK together: keystore-backed session
// store, intercepting transport, and deep-link bridge, behind one facade the
// application layer talks to.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/deskhive/deskhive-go/config"
	"github.com/deskhive/deskhive-go/deeplink"
	"github.com/deskhive/deskhive-go/keystore"
	"github.com/deskhive/deskhive-go/session"
	"github.com/deskhive/deskhive-go/transport"
)

// Client is the authenticated HTTP client for the DeskHive API.
type Client struct {
	config       config.Config
	sessions     *session.Store
	bridge       *deeplink.Bridge
	httpClient   *http.Client
	logger       zerolog.Logger
	invalidators []func()
}

type clientOptions struct {
	logger       zerolog.Logger
	base         http.RoundTripper
	invalidators []func()
}

// Option configures a Client.
type Option func(*clientOptions)

// WithLogger sets the logger passed to every component.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// WithBaseTransport sets the RoundTripper under the intercepting transport.
func WithBaseTransport(base http.RoundTripper) Option {
	return func(o *clientOptions) { o.base = base }
}

// WithCacheInvalidator registers a hook fired whenever the client's identity
// changes: deep-link reconciliation and logout.
func WithCacheInvalidator(invalidate func()) Option {
	return func(o *clientOptions) { o.invalidators = append(o.invalidators, invalidate) }
}

// New builds a client. The caller supplies the keystore so tests can inject
// a fake and platforms can pick their secure backend.
func New(cfg config.Config, store keystore.Store, options ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("[client New] invalid config: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("[client New] keystore is required")
	}

	opts := clientOptions{logger: log.Logger, base: http.DefaultTransport}
	for _, option := range options {
		option(&opts)
	}

	sessions, err := session.NewStore(store, session.WithLogger(opts.logger))
	if err != nil {
		return nil, fmt.Errorf("[client New] session store: %w", err)
	}

	refresher, err := transport.NewRefresher(cfg.BaseURL, cfg.AppName, cfg.AppVersion, cfg.RefreshTimeout)
	if err != nil {
		return nil, fmt.Errorf("[client New] refresher: %w", err)
	}

	interceptor, err := transport.New(sessions, refresher,
		transport.WithBase(opts.base),
		transport.WithLogger(opts.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("[client New] transport: %w", err)
	}

	bridgeOptions := []deeplink.Option{deeplink.WithLogger(opts.logger)}
	for _, invalidate := range opts.invalidators {
		bridgeOptions = append(bridgeOptions, deeplink.WithInvalidator(invalidate))
	}
	if cfg.LoginURL != "" {
		bridgeOptions = append(bridgeOptions, deeplink.WithOAuthConfig(&oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURL,
			Endpoint:    oauth2.Endpoint{AuthURL: cfg.LoginURL},
		}))
	}
	bridge, err := deeplink.NewBridge(sessions, bridgeOptions...)
	if err != nil {
		return nil, fmt.Errorf("[client New] deep link bridge: %w", err)
	}

	return &Client{
		config:       cfg,
		sessions:     sessions,
		bridge:       bridge,
		httpClient:   &http.Client{Transport: interceptor},
		logger:       opts.logger,
		invalidators: opts.invalidators,
	}, nil
}

// Hydrate restores the persisted session and reconciles any redirect tokens
// that arrived before hydration finished. Call once at process start.
func (c *Client) Hydrate(ctx context.Context) error {
	hydrateErr := c.sessions.Hydrate(ctx)
	if _, err := c.bridge.Reconcile(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("deep link reconciliation after hydration failed to persist")
	}
	return hydrateErr
}

// HandleRedirect ingests a post-login redirect URI. applied reports whether a
// new identity was installed; the caller should then clear the route
// parameters so the redirect is not reprocessed.
func (c *Client) HandleRedirect(ctx context.Context, rawURL string) (applied bool, err error) {
	if !c.bridge.HandleRedirect(rawURL) {
		return false, nil
	}
	return c.bridge.Reconcile(ctx)
}

// Ready reports whether the session can be trusted: hydrated, with no
// pending unreconciled deep-link tokens.
func (c *Client) Ready() bool { return c.bridge.Ready() }

// AwaitReady blocks until hydration finishes, then reconciles anything
// pending.
func (c *Client) AwaitReady(ctx context.Context) error {
	if err := c.sessions.AwaitHydration(ctx); err != nil {
		return err
	}
	_, err := c.bridge.Reconcile(ctx)
	return err
}

// NewRequest builds an API request with the client identification headers and
// a correlation id. The bearer token is attached by the transport, not here.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	requestURL := strings.TrimSuffix(c.config.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("[Client NewRequest] %w", err)
	}
	req.Header.Set("X-App-Name", c.config.AppName)
	req.Header.Set("X-App-Version", c.config.AppVersion)
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

// Do executes a request through the intercepting transport.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// Session returns a consistent snapshot of the current session.
func (c *Client) Session() session.Session { return c.sessions.Snapshot() }

// LoginURL builds the browser URL for the out-of-process web login.
func (c *Client) LoginURL(state string) (string, error) {
	return c.bridge.LoginURL(state)
}

// Logout clears the session and invalidates cached application data.
func (c *Client) Logout(ctx context.Context) error {
	err := c.sessions.Clear(ctx)
	for _, invalidate := range c.invalidators {
		invalidate()
	}
	return err
}
