// Package token decodes DeskHive access tokens into typed claims.
//
// Decoding is deliberately unverified: the client never checks the JWT
// signature. Tokens are trusted only because they arrive over TLS from the
// platform's login and refresh endpoints, and the server re-authorizes every
// privileged action. Decoded roles and capabilities are display hints, never
// the sole authorization check for a sensitive operation.
package token

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/deskhive/deskhive-go/internal/utils"
)

// RoleType identifies a membership role within a workspace.
type RoleType string

const (
	RoleMember  RoleType = "member"
	RoleManager RoleType = "manager"
	RoleAdmin   RoleType = "admin"
)

// Capability gates a single client-side action.
type Capability string

const (
	CapabilityUnlockDoors   Capability = "doors.unlock"
	CapabilityBookRooms     Capability = "rooms.book"
	CapabilityManageMembers Capability = "members.manage"
)

// ErrMalformedToken is returned for any token that cannot be decoded:
// wrong segment count, invalid base64url, or a payload that is not JSON.
var ErrMalformedToken = errors.New("malformed token")

// Claims is the decoded payload of an access token.
type Claims struct {
	UserID       string
	Name         string
	Email        string
	Roles        []RoleType
	Capabilities []Capability
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Decode parses the payload of a three-segment JWT without verifying its
// signature. It is safe on attacker-controlled input: any malformed token
// yields (nil, ErrMalformedToken), never a panic. Callers must treat a nil
// result as "unusable token".
func Decode(rawToken string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, ErrMalformedToken
	}

	unverifiedToken, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, ErrMalformedToken
	}

	mapClaims, ok := unverifiedToken.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, ErrMalformedToken
	}

	claims := &Claims{
		UserID:    utils.String(mapClaims["sub"]),
		Name:      utils.String(mapClaims["name"]),
		Email:     utils.String(mapClaims["email"]),
		IssuedAt:  utils.UnixTime(mapClaims["iat"]),
		ExpiresAt: utils.UnixTime(mapClaims["exp"]),
	}
	for _, role := range utils.ToStringSlice(mapClaims["roles"]) {
		claims.Roles = append(claims.Roles, RoleType(role))
	}
	for _, capability := range utils.ToStringSlice(mapClaims["capabilities"]) {
		claims.Capabilities = append(claims.Capabilities, Capability(capability))
	}
	return claims, nil
}

// Expired reports logical expiry against the client clock, independent of any
// server-signaled expiry.
func (c *Claims) Expired() bool {
	if c == nil || c.ExpiresAt.IsZero() {
		return true
	}
	return !c.ExpiresAt.After(NowTimeFunc())
}

// HasRole reports whether the claims carry the given role.
func (c *Claims) HasRole(role RoleType) bool {
	if c == nil {
		return false
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasCapability reports whether the claims carry the given capability.
// Display hint only; the server is the authority.
func (c *Claims) HasCapability(capability Capability) bool {
	if c == nil {
		return false
	}
	for _, granted := range c.Capabilities {
		if granted == capability {
			return true
		}
	}
	return false
}
