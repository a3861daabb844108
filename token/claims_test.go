package token_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/deskhive/deskhive-go/token"
)

const (
	testUserID = "user-1"
	testName   = "John Doe"
	testEmail  = "john.doe@example.com"
	testSecret = "test-secret"
)

// signTestToken mints a real HS256 token; the decoder must ignore the
// signature entirely, so the signing key is irrelevant to the assertions.
func signTestToken(t *testing.T, issuedAt, expiresAt time.Time) string {
	t.Helper()
	claims := jwtlib.MapClaims{
		"sub":          testUserID,
		"name":         testName,
		"email":        testEmail,
		"roles":        []string{"member", "admin"},
		"capabilities": []string{"doors.unlock", "rooms.book"},
		"iat":          issuedAt.Unix(),
		"exp":          expiresAt.Unix(),
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func b64url(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestDecodeMalformedTokens(t *testing.T) {
	tests := []struct {
		name     string
		rawToken string
	}{
		{"empty string", ""},
		{"whitespace only", "   "},
		{"single segment", "not-a-jwt"},
		{"two segments", b64url(`{"alg":"HS256"}`) + "." + b64url(`{}`)},
		{"four segments", "a.b.c.d"},
		{"payload not base64", b64url(`{"alg":"HS256"}`) + ".!!!not-base64!!!.sig"},
		{"payload not JSON", b64url(`{"alg":"HS256","typ":"JWT"}`) + "." + b64url("not json") + ".sig"},
		{"header not JSON", b64url("not json") + "." + b64url(`{}`) + ".sig"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := token.Decode(tt.rawToken)
			require.Nil(t, claims)
			require.ErrorIs(t, err, token.ErrMalformedToken)
		})
	}
}

func TestDecodeWellFormedToken(t *testing.T) {
	issuedAt := time.Now().Truncate(time.Second)
	expiresAt := issuedAt.Add(15 * time.Minute)

	claims, err := token.Decode(signTestToken(t, issuedAt, expiresAt))
	require.NoError(t, err)
	require.NotNil(t, claims)

	require.Equal(t, testUserID, claims.UserID)
	require.Equal(t, testName, claims.Name)
	require.Equal(t, testEmail, claims.Email)
	require.Equal(t, []token.RoleType{token.RoleMember, token.RoleAdmin}, claims.Roles)
	require.Equal(t, []token.Capability{token.CapabilityUnlockDoors, token.CapabilityBookRooms}, claims.Capabilities)
	require.True(t, claims.IssuedAt.Equal(issuedAt))
	require.True(t, claims.ExpiresAt.Equal(expiresAt))
}

func TestDecodeIgnoresSignature(t *testing.T) {
	signed := signTestToken(t, time.Now(), time.Now().Add(time.Hour))
	parts := strings.Split(signed, ".")
	tampered := parts[0] + "." + parts[1] + ".completely-bogus-signature"

	claims, err := token.Decode(tampered)
	require.NoError(t, err)
	require.Equal(t, testUserID, claims.UserID)
}

func TestExpired(t *testing.T) {
	now := time.Now()
	token.NowTimeFunc = func() time.Time { return now }
	defer func() { token.NowTimeFunc = time.Now }()

	live, err := token.Decode(signTestToken(t, now.Add(-time.Minute), now.Add(time.Minute)))
	require.NoError(t, err)
	require.False(t, live.Expired())

	stale, err := token.Decode(signTestToken(t, now.Add(-2*time.Hour), now.Add(-time.Hour)))
	require.NoError(t, err)
	require.True(t, stale.Expired())

	var missing *token.Claims
	require.True(t, missing.Expired())
}

func TestRoleAndCapabilityChecks(t *testing.T) {
	claims, err := token.Decode(signTestToken(t, time.Now(), time.Now().Add(time.Hour)))
	require.NoError(t, err)

	require.True(t, claims.HasRole(token.RoleMember))
	require.False(t, claims.HasRole(token.RoleManager))
	require.True(t, claims.HasCapability(token.CapabilityUnlockDoors))
	require.False(t, claims.HasCapability(token.CapabilityManageMembers))

	var missing *token.Claims
	require.False(t, missing.HasRole(token.RoleMember))
	require.False(t, missing.HasCapability(token.CapabilityUnlockDoors))
}
