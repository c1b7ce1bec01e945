package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/northplain/idgate/internal/gateway/domain"
	"github.com/northplain/idgate/internal/gateway/store"
	"github.com/northplain/idgate/pkg/oidcx"
)

func TestAuthorize_FirstContactCreatesAccount(t *testing.T) {
	ctx := context.Background()
	svc := &AuthorizeService{Store: newTestStore(t), DefaultMethod: domain.MethodTOTP}

	claim := oidcx.IdentityClaim{
		Subject: "oidc|first-contact",
		Email:   "first@example.com",
		Name:    "First Contact",
	}

	result, err := svc.Authorize(ctx, claim)
	require.NoError(t, err)
	require.Equal(t, domain.StatusNeedsMFASetup, result.Status)
	require.True(t, result.SetupRequired)
	require.Equal(t, domain.MethodTOTP, result.Method)

	require.NotEmpty(t, result.Account.ID)
	require.Equal(t, claim.Subject, result.Account.ExternalSubject)
	require.Equal(t, claim.Email, result.Account.Email)
	require.Equal(t, claim.Name, result.Account.DisplayName)
	require.False(t, result.Account.IsApproved)
}

func TestAuthorize_ReturningSubjectReusesAccount(t *testing.T) {
	ctx := context.Background()
	svc := &AuthorizeService{Store: newTestStore(t), DefaultMethod: domain.MethodEmail}

	claim := oidcx.IdentityClaim{Subject: "oidc|returning", Email: "r@example.com", Name: "R"}

	first, err := svc.Authorize(ctx, claim)
	require.NoError(t, err)

	// Changed profile fields must not overwrite the stored account.
	claim.Email = "changed@example.com"
	claim.Name = "Changed"

	second, err := svc.Authorize(ctx, claim)
	require.NoError(t, err)
	require.Equal(t, first.Account.ID, second.Account.ID)
	require.Equal(t, "r@example.com", second.Account.Email)
	require.Equal(t, "R", second.Account.DisplayName)
}

func TestAuthorize_ConcurrentFirstContactCreatesOneAccount(t *testing.T) {
	ctx := context.Background()
	svc := &AuthorizeService{Store: newTestStore(t), DefaultMethod: domain.MethodTOTP}

	claim := oidcx.IdentityClaim{Subject: "oidc|stampede", Email: "s@example.com", Name: "S"}

	const workers = 16
	ids := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.Authorize(ctx, claim)
			errs[i] = err
			if err == nil {
				ids[i] = result.Account.ID
			}
		}()
	}
	wg.Wait()

	for i := range workers {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], ids[i])
	}
}

func TestAuthorize_ApprovedAccountGetsLoginChallenge(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := &AuthorizeService{Store: s, DefaultMethod: domain.MethodTOTP}

	claim := oidcx.IdentityClaim{Subject: "oidc|approved", Email: "a@example.com", Name: "A"}

	result, err := svc.Authorize(ctx, claim)
	require.NoError(t, err)
	require.Equal(t, domain.StatusNeedsMFASetup, result.Status)

	require.NoError(t, s.Accounts().ApproveAccount(ctx, result.Account.ID, domain.MethodEmail))

	result, err = svc.Authorize(ctx, claim)
	require.NoError(t, err)
	require.Equal(t, domain.StatusLoginChallenge, result.Status)
	require.False(t, result.SetupRequired)
	require.Equal(t, domain.MethodEmail, result.Method)
	require.True(t, result.Account.IsApproved)
}

func TestAccount_UnknownSubject(t *testing.T) {
	svc := &AuthorizeService{Store: newTestStore(t), DefaultMethod: domain.MethodTOTP}

	_, err := svc.Account(context.Background(), "oidc|nobody")
	require.ErrorIs(t, err, store.ErrNotFound)
}
