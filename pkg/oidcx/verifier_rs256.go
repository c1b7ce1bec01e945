package oidcx

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// RS256Verifier validates RS256-signed ID tokens against a remote JWKS.
type RS256Verifier struct {
	keys     *RemoteKeySet
	issuer   string
	audience []string
}

// NewRS256Verifier creates a verifier enforcing the given issuer and
// audience. Empty issuer or audience means "don't enforce", which should
// only happen in tests.
func NewRS256Verifier(keys *RemoteKeySet, issuer string, audience []string) *RS256Verifier {
	return &RS256Verifier{keys: keys, issuer: issuer, audience: audience}
}

// Verify validates the token and returns the identity claim. Every error
// returned wraps one of the package sentinels so callers can classify the
// failure without string matching.
func (v *RS256Verifier) Verify(ctx context.Context, tokenStr string) (IdentityClaim, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))

	var keyErr error
	token, err := parser.ParseWithClaims(tokenStr, &idTokenClaims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			keyErr = fmt.Errorf("%w: missing kid header", ErrKeyNotFound)
			return nil, keyErr
		}

		pub, err := v.keys.Get(ctx, kid)
		if err != nil {
			keyErr = fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
			return nil, keyErr
		}

		return pub, nil
	})
	if err != nil {
		if keyErr != nil {
			return IdentityClaim{}, keyErr
		}
		return IdentityClaim{}, classifyParseError(err)
	}

	claims, ok := token.Claims.(*idTokenClaims)
	if !ok || !token.Valid {
		return IdentityClaim{}, fmt.Errorf("%w: unexpected claims type", ErrMalformed)
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return IdentityClaim{}, fmt.Errorf("%w: issuer mismatch", ErrInvalidClaims)
	}
	if len(v.audience) > 0 && !hasAnyAudience(claims.Audience, v.audience) {
		return IdentityClaim{}, fmt.Errorf("%w: audience mismatch", ErrInvalidClaims)
	}
	if claims.Subject == "" {
		return IdentityClaim{}, fmt.Errorf("%w: missing subject", ErrInvalidClaims)
	}

	return claims.toIdentityClaim(), nil
}

// classifyParseError maps golang-jwt's errors onto the package sentinels.
// Signature failures count as malformed: from the caller's perspective the
// token is simply not a valid token from the provider.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenUsedBeforeIssued), errors.Is(err, jwt.ErrTokenNotValidYet):
		return fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

func hasAnyAudience(have jwt.ClaimStrings, want []string) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}
