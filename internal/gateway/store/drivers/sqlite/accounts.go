package sqlite

import (
	"context"
	"time"

	"github.com/northplain/idgate/internal/gateway/domain"
)

type accountsRepo struct {
	q dbtx
}

const accountColumns = `id, external_subject, email, display_name, is_approved, mfa_method, created_at, updated_at`

func (r *accountsRepo) GetAccountByID(ctx context.Context, id string) (domain.Account, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func (r *accountsRepo) GetAccountByExternalSubject(ctx context.Context, subject string) (domain.Account, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE external_subject = ?`, subject)
	return scanAccount(row)
}

func (r *accountsRepo) CreateAccount(ctx context.Context, a domain.Account) error {
	method := a.MFAMethod
	if method == "" {
		method = domain.MethodNone
	}
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO accounts (id, external_subject, email, display_name, is_approved, mfa_method, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ExternalSubject, a.Email, a.DisplayName, a.IsApproved, string(method), now, now)
	return mapConflict(err)
}

func (r *accountsRepo) ApproveAccount(ctx context.Context, accountID string, method domain.MFAMethod) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE accounts SET is_approved = 1, mfa_method = ?, updated_at = ? WHERE id = ?`,
		string(method), time.Now().UTC(), accountID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (domain.Account, error) {
	var a domain.Account
	var method string
	err := row.Scan(&a.ID, &a.ExternalSubject, &a.Email, &a.DisplayName,
		&a.IsApproved, &method, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	a.MFAMethod = domain.MFAMethod(method)
	return a, nil
}
