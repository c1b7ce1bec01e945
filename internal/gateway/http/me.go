package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/northplain/idgate/internal/gateway/domain"
	"github.com/northplain/idgate/internal/gateway/service"
	"github.com/northplain/idgate/internal/gateway/store"
	"github.com/northplain/idgate/pkg/httpx"
	"github.com/northplain/idgate/pkg/slogx"
)

// MeHandler returns the profile of the account mapped to the bearer token.
type MeHandler struct {
	AuthorizeService *service.AuthorizeService
}

type meResponse struct {
	AccountID   string           `json:"account_id"`
	Subject     string           `json:"subject"`
	Email       string           `json:"email,omitempty"`
	DisplayName string           `json:"display_name,omitempty"`
	IsApproved  bool             `json:"is_approved"`
	MFAMethod   domain.MFAMethod `json:"mfa_method,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// HandleMe handles GET /auth/me. A token that verifies but maps to no
// account is treated as an invalid credential, not a missing resource.
func (h *MeHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subject := httpx.SubjectFromContext(ctx)
	if subject == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "missing identity")
		return
	}

	account, err := h.AuthorizeService.Account(ctx, subject)
	if errors.Is(err, store.ErrNotFound) {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "no account for this identity")
		return
	}
	if err != nil {
		slogx.FromContext(ctx).Error("account lookup failed", "subject", subject, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal server error")
		return
	}

	resp := meResponse{
		AccountID:   account.ID,
		Subject:     account.ExternalSubject,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		IsApproved:  account.IsApproved,
		CreatedAt:   account.CreatedAt,
	}
	if account.IsApproved {
		resp.MFAMethod = account.MFAMethod
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}
