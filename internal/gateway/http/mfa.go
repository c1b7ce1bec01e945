package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/northplain/idgate/internal/gateway/domain"
	"github.com/northplain/idgate/internal/gateway/service"
	"github.com/northplain/idgate/pkg/httpx"
	"github.com/northplain/idgate/pkg/slogx"
)

// MFAHandler handles MFA enrollment and verification.
type MFAHandler struct {
	AuthorizeService *service.AuthorizeService
	MFAService       *service.MFAService
}

type mfaSetupRequest struct {
	Method string `json:"method"`
}

type mfaSetupResponse struct {
	Method          domain.MFAMethod `json:"method"`
	Secret          string           `json:"secret,omitempty"`
	ProvisioningURI string           `json:"provisioning_uri,omitempty"`
	QRCode          string           `json:"qr_code,omitempty"`
	Message         string           `json:"message,omitempty"`
	ExpiresIn       int              `json:"expires_in,omitempty"`
}

type mfaVerifyRequest struct {
	Method string `json:"method"`
	Code   string `json:"code"`
}

type mfaVerifyResponse struct {
	Message  string `json:"message"`
	Approved bool   `json:"approved"`
}

// HandleSetup handles POST /mfa/setup.
//
// A bearer identity token is the only credential needed: the account is
// resolved (or created) from its subject, exactly as authorize does.
func (h *MFAHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	account, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}

	var req mfaSetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	method, ok := domain.ParseMFAMethod(req.Method)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_method", "method must be one of: totp, email")
		return
	}

	setup, err := h.MFAService.StartEnrollment(ctx, account, method)
	switch {
	case errors.Is(err, service.ErrInvalidMethod):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_method", "method must be one of: totp, email")
		return
	case errors.Is(err, service.ErrNoEmail):
		httpx.WriteError(w, http.StatusBadRequest, "no_email", "no email address on file for this account")
		return
	case err != nil:
		log.Error("enrollment start failed", "account_id", account.ID, "method", method, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal server error")
		return
	}

	resp := mfaSetupResponse{Method: setup.Method}
	switch {
	case setup.TOTP != nil:
		resp.Secret = setup.TOTP.Secret
		resp.ProvisioningURI = setup.TOTP.ProvisioningURI
		resp.QRCode = setup.TOTP.QRCode
	case setup.Email != nil:
		resp.Message = fmt.Sprintf("Code sent to %s", setup.Email.Email)
		resp.ExpiresIn = int(setup.Email.Expires.Seconds())
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleVerify handles POST /mfa/verify.
//
// This is the only path that activates an account. Every failure a client
// can trigger with a guessed code reads the same: 400 invalid_code.
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	account, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}

	var req mfaVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "method and code are required")
		return
	}
	method, ok := domain.ParseMFAMethod(req.Method)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_method", "method must be one of: totp, email")
		return
	}

	err := h.MFAService.Verify(ctx, account, method, req.Code)
	switch {
	case errors.Is(err, service.ErrNoEnrollment):
		httpx.WriteError(w, http.StatusBadRequest, "no_enrollment", "start enrollment before verifying")
		return
	case errors.Is(err, service.ErrInvalidCode):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_code", "verification code is invalid")
		return
	case errors.Is(err, service.ErrInvalidMethod):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_method", "method must be one of: totp, email")
		return
	case err != nil:
		log.Error("verification failed", "account_id", account.ID, "method", method, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal server error")
		return
	}

	log.Info("account approved", "account_id", account.ID, "method", method)
	httpx.WriteJSON(w, http.StatusOK, mfaVerifyResponse{
		Message:  "Account activated successfully!",
		Approved: true,
	})
}

func (h *MFAHandler) resolveAccount(w http.ResponseWriter, r *http.Request) (domain.Account, bool) {
	ctx := r.Context()

	claim, ok := httpx.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "missing identity")
		return domain.Account{}, false
	}

	result, err := h.AuthorizeService.Authorize(ctx, claim)
	if err != nil {
		slogx.FromContext(ctx).Error("account resolution failed", "subject", claim.Subject, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal server error")
		return domain.Account{}, false
	}
	return result.Account, true
}
