package apperr_test

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deskhive/deskhive-go/apperr"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Classification
	}{
		{"nil", nil, apperr.Silent},
		{"disconnected code", apperr.New(apperr.CodeDisconnected, "offline"), apperr.Silent},
		{"canceled code", apperr.New(apperr.CodeCanceled, "caller gave up"), apperr.Silent},
		{"expired access token code", apperr.New(apperr.CodeExpiredAccessToken, "token expired"), apperr.Silent},
		{"session ended", apperr.New(apperr.CodeSessionEnded, "session ended"), apperr.Surfaced},
		{"server error", apperr.New(apperr.CodeServerError, "boom"), apperr.Surfaced},
		{"context canceled", context.Canceled, apperr.Silent},
		{"wrapped context canceled", fmt.Errorf("call: %w", context.Canceled), apperr.Silent},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "api.deskhive.app"}, apperr.Silent},
		{"dial failure", &net.OpError{Op: "dial", Err: fmt.Errorf("connection refused")}, apperr.Silent},
		{"network unreachable", &net.OpError{Op: "write", Err: syscall.ENETUNREACH}, apperr.Silent},
		{"url error around dns failure", &url.Error{Op: "Get", URL: "https://x", Err: &net.DNSError{IsTimeout: true}}, apperr.Silent},
		// A connection that was established and then failed is not
		// "offline"; the caller hears about it.
		{"reset mid-response", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, apperr.Surfaced},
		{"url error around reset", &url.Error{Op: "Get", URL: "https://x", Err: &net.OpError{Op: "read", Err: syscall.ECONNRESET}}, apperr.Surfaced},
		{"plain error", fmt.Errorf("something odd"), apperr.Surfaced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, apperr.Classify(tt.err))
		})
	}
}

func TestClassifyUnwrapsThroughURLError(t *testing.T) {
	// The http.Client wraps RoundTripper errors; classification must see
	// through that wrapper.
	inner := apperr.New(apperr.CodeCanceled, "request canceled while awaiting token refresh")
	wrapped := &url.Error{Op: "Get", URL: "https://api.deskhive.app/x", Err: inner}
	require.Equal(t, apperr.Silent, apperr.Classify(wrapped))

	ended := &url.Error{Op: "Get", URL: "https://api.deskhive.app/x", Err: apperr.New(apperr.CodeSessionEnded, "session ended")}
	require.Equal(t, apperr.Surfaced, apperr.Classify(ended))
	require.True(t, apperr.IsSessionEnded(ended))
}

func TestFromResponseBody(t *testing.T) {
	t.Run("extracts code and message", func(t *testing.T) {
		apiErr := apperr.FromResponseBody(500, []byte(`{"code":"server_error","message":"Server error"}`))
		require.Equal(t, apperr.CodeServerError, apiErr.Code)
		require.Equal(t, "Server error", apiErr.Message)
		require.Equal(t, 500, apiErr.Status)
		require.Equal(t, apperr.Surfaced, apperr.Classify(apiErr))
		require.Equal(t, "Server error", apperr.Message(apiErr))
	})

	t.Run("message without code", func(t *testing.T) {
		apiErr := apperr.FromResponseBody(500, []byte(`{"message":"Server error"}`))
		require.Equal(t, apperr.CodeServerError, apiErr.Code)
		require.Equal(t, "Server error", apiErr.Message)
	})

	t.Run("expired token code", func(t *testing.T) {
		apiErr := apperr.FromResponseBody(401, []byte(`{"code":"expired_access_token","message":"token expired"}`))
		require.Equal(t, apperr.CodeExpiredAccessToken, apiErr.Code)
		require.Equal(t, apperr.Silent, apperr.Classify(apiErr))
	})

	t.Run("empty body falls back to generic message", func(t *testing.T) {
		apiErr := apperr.FromResponseBody(502, nil)
		require.Equal(t, apperr.CodeServerError, apiErr.Code)
		require.Equal(t, "request failed", apiErr.Message)
	})

	t.Run("non-JSON body falls back to generic message", func(t *testing.T) {
		apiErr := apperr.FromResponseBody(502, []byte("<html>Bad Gateway</html>"))
		require.Equal(t, "request failed", apiErr.Message)
	})
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	wrapped := apperr.Wrap(cause, apperr.CodeSessionEnded, "session ended")
	require.ErrorIs(t, wrapped, cause)
	require.Contains(t, wrapped.Error(), "session ended")
	require.Contains(t, wrapped.Error(), "underlying")
}
