package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/deskhive/deskhive-go/apperr"
)

const (
	// RefreshPath is the token rotation endpoint, relative to the API base.
	RefreshPath = "/api/auth/tokens"

	// DefaultRefreshTimeout bounds the refresh call. It is distinct from
	// ordinary request timeouts; hitting it is treated exactly like a
	// server-side refresh rejection.
	DefaultRefreshTimeout = 30 * time.Second

	maxErrorBodyBytes = 64 * 1024
)

// TokenPair is the refresh endpoint's response body.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresher exchanges a refresh token for a new token pair. It owns a plain
// http.Client so the refresh call never routes through the intercepting
// transport it services; that bypass is what prevents infinite recursion.
type Refresher struct {
	endpoint   string
	appName    string
	appVersion string
	httpClient *http.Client
}

// NewRefresher builds a refresher for the given API base URL. The app name
// and version are sent on every refresh call as client identifiers.
func NewRefresher(baseURL, appName, appVersion string, timeout time.Duration) (*Refresher, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("[NewRefresher] baseURL is required")
	}
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	return &Refresher{
		endpoint:   baseURL + RefreshPath,
		appName:    appName,
		appVersion: appVersion,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Refresh performs the rotation call. Any failure, whether the server
// rejected the refresh token, the network was unreachable, or the bound
// timeout fired, is reported the same way; the caller ends the session.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, errors.New("[Refresher Refresh] no refresh token held")
	}

	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, errors.Wrap(err, "[Refresher Refresh] encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "[Refresher Refresh] build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-App-Name", r.appName)
	req.Header.Set("X-App-Version", r.appVersion)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[Refresher Refresh] call refresh endpoint")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, apperr.FromResponseBody(resp.StatusCode, raw)
	}

	var pair TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return nil, errors.Wrap(err, "[Refresher Refresh] decode response")
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return nil, errors.New("[Refresher Refresh] incomplete token pair in response")
	}
	return &pair, nil
}
