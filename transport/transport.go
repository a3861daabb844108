// Package transport implements the client's HTTP resilience layer: a
// RoundTripper that attaches the session's bearer token, detects the server's
// expired-token signal, refreshes the token pair at most once under
// concurrent load, and replays or fails the requests that were suspended
// while the refresh was in flight.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/deskhive/deskhive-go/apperr"
	"github.com/deskhive/deskhive-go/session"
)

// Transport intercepts every outgoing request. It must wrap the application's
// HTTP client only; the refresh call itself goes through the Refresher's own
// bypass client.
type Transport struct {
	base      http.RoundTripper
	sessions  *session.Store
	refresher *Refresher
	gate      *refreshGate
	logger    zerolog.Logger
}

var _ http.RoundTripper = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithBase sets the underlying RoundTripper. Defaults to
// http.DefaultTransport.
func WithBase(base http.RoundTripper) Option {
	return func(t *Transport) { t.base = base }
}

// WithLogger sets the transport's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// New creates the intercepting transport.
func New(sessions *session.Store, refresher *Refresher, options ...Option) (*Transport, error) {
	if sessions == nil {
		return nil, fmt.Errorf("[transport New] session store is required")
	}
	if refresher == nil {
		return nil, fmt.Errorf("[transport New] refresher is required")
	}
	t := &Transport{
		base:      http.DefaultTransport,
		sessions:  sessions,
		refresher: refresher,
		gate:      newRefreshGate(),
		logger:    log.Logger,
	}
	for _, option := range options {
		option(t)
	}
	return t, nil
}

// RoundTrip attaches the current access token when one is held, passes
// successful responses through unchanged, and on an expired-token response
// joins the single-flight refresh and replays the request exactly once with
// the new credential. A request whose context is canceled while queued is
// released with a Canceled error without disturbing the shared refresh.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	snap := t.sessions.Snapshot()

	attempt := req.Clone(req.Context())
	if snap.AccessToken != "" {
		attempt.Header.Set("Authorization", "Bearer "+snap.AccessToken)
	}

	resp, err := t.base.RoundTrip(attempt)
	if err != nil {
		return nil, err
	}
	if !expiredTokenResponse(resp) {
		return resp, nil
	}

	// Another request may have rotated the pair while this response was in
	// flight; the expiry was for the token this attempt carried, not the
	// current one, so replay with the fresh credential instead of rotating
	// again.
	if current := t.sessions.Snapshot().AccessToken; current != "" && current != snap.AccessToken {
		return t.replayWithToken(req, current)
	}

	outcome := t.awaitRefresh(req.Context())
	if outcome.err != nil {
		return nil, outcome.err
	}
	return t.replayWithToken(req, outcome.accessToken)
}

// replayWithToken re-issues the request exactly once with the given token.
func (t *Transport) replayWithToken(req *http.Request, accessToken string) (*http.Response, error) {
	replay, err := replayRequest(req)
	if err != nil {
		return nil, errors.Wrap(err, "[Transport RoundTrip] request not replayable")
	}
	replay.Header.Set("Authorization", "Bearer "+accessToken)
	return t.base.RoundTrip(replay)
}

// awaitRefresh joins the refresh gate. The first joiner while the gate is
// idle starts the refresh; everyone else queues on the same in-flight call.
func (t *Transport) awaitRefresh(ctx context.Context) refreshOutcome {
	id, ch, leader := t.gate.join()
	if leader {
		t.sessions.SetRefreshing(true)
		go t.runRefresh()
	}

	select {
	case outcome := <-ch:
		return outcome
	case <-ctx.Done():
		t.gate.leave(id)
		return refreshOutcome{err: apperr.Wrap(ctx.Err(), apperr.CodeCanceled, "request canceled while awaiting token refresh")}
	}
}

// runRefresh executes the single in-flight refresh. It deliberately uses a
// background context: the refresh outcome is shared by every queued request,
// so no single caller's cancellation may abort it. The Refresher's own
// timeout bounds the call.
func (t *Transport) runRefresh() {
	defer t.sessions.SetRefreshing(false)

	ctx := context.Background()
	snap := t.sessions.Snapshot()
	pair, err := t.refresher.Refresh(ctx, snap.RefreshToken)
	if err != nil {
		t.logger.Warn().Err(err).Msg("token refresh failed, ending session")
		if clearErr := t.sessions.Clear(ctx); clearErr != nil {
			t.logger.Warn().Err(clearErr).Msg("failed to clear persisted session")
		}
		t.gate.settle(refreshOutcome{err: apperr.Wrap(err, apperr.CodeSessionEnded, "session ended")})
		return
	}

	// Tokens must be installed before any waiter is released so every replay
	// reads the new pair.
	if err := t.sessions.SetTokens(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		t.logger.Warn().Err(err).Msg("refreshed session did not persist")
	}
	t.logger.Debug().Int("queued", t.gate.pending()).Msg("token refresh succeeded, replaying queued requests")
	t.gate.settle(refreshOutcome{accessToken: pair.AccessToken})
}

// expiredTokenResponse reports whether resp carries the server's
// expired-token code. A plain 401 without the code means "forbidden for other
// reasons" and must not trigger a refresh; its body is restored so the caller
// can still read it.
func expiredTokenResponse(resp *http.Response) bool {
	if resp.StatusCode != http.StatusUnauthorized {
		return false
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return false
	}
	return apperr.FromResponseBody(resp.StatusCode, raw).Code == apperr.CodeExpiredAccessToken
}

// replayRequest rebuilds a request for its single replay. Requests with a
// one-shot body that cannot be re-materialized via GetBody are not replayed.
func replayRequest(req *http.Request) (*http.Request, error) {
	replay := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return replay, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	replay.Body = body
	return replay, nil
}
