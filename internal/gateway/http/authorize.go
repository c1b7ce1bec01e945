package http

import (
	"encoding/json"
	"net/http"

	"github.com/northplain/idgate/internal/gateway/domain"
	"github.com/northplain/idgate/internal/gateway/service"
	"github.com/northplain/idgate/pkg/httpx"
	"github.com/northplain/idgate/pkg/oidcx"
	"github.com/northplain/idgate/pkg/slogx"
)

// AuthorizeHandler resolves provider identity tokens to local accounts.
type AuthorizeHandler struct {
	AuthorizeService *service.AuthorizeService
	Verifier         oidcx.Verifier
}

type authorizeRequest struct {
	IDToken string `json:"id_token"`
}

type authorizeResponse struct {
	Status           domain.AuthStatus `json:"status"`
	MFASetupRequired bool              `json:"mfa_setup_required,omitempty"`
	Method           domain.MFAMethod  `json:"method,omitempty"`
	AccountID        string            `json:"account_id"`
}

// HandleAuthorize handles POST /auth/authorize.
//
// The body carries the provider's ID token; any verification failure is a
// 401, never a 500. A verified first contact creates the account.
func (h *AuthorizeHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IDToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "id_token is required")
		return
	}

	claim, err := h.Verifier.Verify(ctx, req.IDToken)
	if err != nil {
		log.Warn("identity token rejected", "err", err)
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "token verification failed")
		return
	}

	result, err := h.AuthorizeService.Authorize(ctx, claim)
	if err != nil {
		log.Error("authorize failed", "subject", claim.Subject, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal server error")
		return
	}

	resp := authorizeResponse{
		Status:    result.Status,
		AccountID: result.Account.ID,
	}
	switch result.Status {
	case domain.StatusNeedsMFASetup:
		resp.MFASetupRequired = true
		resp.Method = result.Method
	case domain.StatusLoginChallenge:
		resp.Method = result.Method
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}
