package httpx

import (
	"context"

	"github.com/northplain/idgate/pkg/oidcx"
)

type ctxKey string

const (
	// CtxKeySubject holds the external subject identifier of the verified
	// identity, injected by AuthnMiddleware.
	CtxKeySubject ctxKey = "subject"

	// CtxKeyIdentity holds the full oidcx.IdentityClaim.
	CtxKeyIdentity ctxKey = "identity"
)

// SubjectFromContext returns the verified external subject, or "" when the
// request did not pass through AuthnMiddleware.
func SubjectFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeySubject).(string); ok {
		return v
	}
	return ""
}

// IdentityFromContext returns the verified identity claim, if any.
func IdentityFromContext(ctx context.Context) (oidcx.IdentityClaim, bool) {
	v, ok := ctx.Value(CtxKeyIdentity).(oidcx.IdentityClaim)
	return v, ok
}
