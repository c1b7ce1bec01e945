package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/northplain/idgate/internal/gateway/service"
	"github.com/northplain/idgate/internal/gateway/store"
	"github.com/northplain/idgate/pkg/httpx"
	"github.com/northplain/idgate/pkg/oidcx"
	"github.com/northplain/idgate/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     oidcx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store
	codes store.OneTimeCodes

	AuthorizeService *service.AuthorizeService
	MFAService       *service.MFAService
}

func NewRouter(
	verifier oidcx.Verifier,
	buildVersion string,
	st store.Store,
	codes store.OneTimeCodes,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		codes:        codes,
		logger:       logger,
	}

	// Default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerMFA()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	authorizeHandler := &AuthorizeHandler{AuthorizeService: r.AuthorizeService, Verifier: r.verifier}

	// POST /auth/authorize - moderate rate limit (token verification happens
	// in the handler, every request carries an id_token in the body)
	r.Mux.Handle("POST /auth/authorize",
		httpx.Chain(http.HandlerFunc(authorizeHandler.HandleAuthorize),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	meHandler := &MeHandler{AuthorizeService: r.AuthorizeService}
	r.Mux.Handle("GET /auth/me",
		httpx.Chain(http.HandlerFunc(meHandler.HandleMe),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerMFA() {
	mfaHandler := &MFAHandler{
		AuthorizeService: r.AuthorizeService,
		MFAService:       r.MFAService,
	}

	// POST /mfa/setup - moderate rate limit per subject (reissue is cheap
	// and self-invalidating, but secrets should not be mintable in bulk)
	r.Mux.Handle("POST /mfa/setup",
		httpx.Chain(http.HandlerFunc(mfaHandler.HandleSetup),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		),
	)

	// POST /mfa/verify - strict rate limit (code guessing attempts)
	r.Mux.Handle("POST /mfa/verify",
		httpx.Chain(http.HandlerFunc(mfaHandler.HandleVerify),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitMiddleware(httpx.StrictLimit,
				httpx.CompositeKeyExtractor("|", httpx.IPKeyExtractor, httpx.SubjectKeyExtractor)),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.codes))
}
