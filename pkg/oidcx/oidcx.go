// Package oidcx verifies identity tokens minted by an external
// OpenID-Connect provider. The gateway never issues tokens of its own;
// every privileged request carries the provider's ID token and is
// re-verified here.
package oidcx

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityClaim is the verified identity handed to the rest of the
// service. Subject is the provider's stable subject identifier and is the
// only field used for account lookup.
type IdentityClaim struct {
	Subject string
	Email   string
	Name    string
}

// Verifier validates an identity token and returns the verified claim.
// Failures are classified with the sentinel errors below; callers treat
// every one of them as an authentication failure.
type Verifier interface {
	Verify(ctx context.Context, token string) (IdentityClaim, error)
}

var (
	ErrMalformed     = errors.New("oidcx: malformed token")
	ErrExpired       = errors.New("oidcx: token expired")
	ErrInvalidClaims = errors.New("oidcx: invalid claims")
	ErrKeyNotFound   = errors.New("oidcx: signing key not found")
)

// idTokenClaims are the provider claims we care about. Providers differ on
// which of name/nickname they populate, so both are parsed.
type idTokenClaims struct {
	jwt.RegisteredClaims

	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Nickname string `json:"nickname,omitempty"`
}

// toIdentityClaim flattens the raw token claims into an IdentityClaim,
// falling back from name to nickname to the email local part for the
// display name.
func (c *idTokenClaims) toIdentityClaim() IdentityClaim {
	name := c.Name
	if name == "" {
		name = c.Nickname
	}
	if name == "" && c.Email != "" {
		name = strings.SplitN(c.Email, "@", 2)[0]
	}

	return IdentityClaim{
		Subject: c.Subject,
		Email:   c.Email,
		Name:    name,
	}
}
