package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/northplain/idgate/internal/gateway/domain"
	"github.com/northplain/idgate/internal/gateway/store"
	"github.com/northplain/idgate/pkg/idx"
	"github.com/northplain/idgate/pkg/oidcx"
	"github.com/northplain/idgate/pkg/slogx"
)

// AuthorizeService resolves a verified identity claim to a local account
// and decides what the caller has to do next: enroll an MFA method, or
// answer a login challenge with the one already on file.
type AuthorizeService struct {
	Store store.Store

	// DefaultMethod is suggested to unapproved accounts that still have
	// to pick an enrollment method.
	DefaultMethod domain.MFAMethod
}

// Authorize maps the claim's subject to an account, creating one on first
// contact. Creation is race-safe: two concurrent first logins both try the
// insert and the loser re-fetches the winner's row.
func (s *AuthorizeService) Authorize(ctx context.Context, claim oidcx.IdentityClaim) (domain.AuthorizeResult, error) {
	account, err := s.getOrCreateAccount(ctx, claim)
	if err != nil {
		return domain.AuthorizeResult{}, err
	}

	if !account.IsApproved {
		return domain.AuthorizeResult{
			Status:        domain.StatusNeedsMFASetup,
			Account:       account,
			SetupRequired: true,
			Method:        s.DefaultMethod,
		}, nil
	}

	return domain.AuthorizeResult{
		Status:  domain.StatusLoginChallenge,
		Account: account,
		Method:  account.MFAMethod,
	}, nil
}

// Account returns the account mapped to the subject, or store.ErrNotFound
// when the identity has never authorized before.
func (s *AuthorizeService) Account(ctx context.Context, subject string) (domain.Account, error) {
	return s.Store.Accounts().GetAccountByExternalSubject(ctx, subject)
}

func (s *AuthorizeService) getOrCreateAccount(ctx context.Context, claim oidcx.IdentityClaim) (domain.Account, error) {
	accounts := s.Store.Accounts()

	account, err := accounts.GetAccountByExternalSubject(ctx, claim.Subject)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.Account{}, fmt.Errorf("failed to look up account: %w", err)
	}

	account = domain.Account{
		ID:              idx.New().String(),
		ExternalSubject: claim.Subject,
		Email:           claim.Email,
		DisplayName:     claim.Name,
	}
	err = accounts.CreateAccount(ctx, account)
	if err == nil {
		slogx.FromContext(ctx).Info("account created",
			"account_id", account.ID,
			"subject", claim.Subject,
		)
		return accounts.GetAccountByID(ctx, account.ID)
	}
	if !errors.Is(err, store.ErrAlreadyExists) {
		return domain.Account{}, fmt.Errorf("failed to create account: %w", err)
	}

	// Lost the insert race; the subject's row now exists.
	account, err = accounts.GetAccountByExternalSubject(ctx, claim.Subject)
	if err != nil {
		return domain.Account{}, fmt.Errorf("failed to re-fetch account after conflict: %w", err)
	}
	return account, nil
}
