package sqlite

import (
	"context"
	"time"

	"github.com/northplain/idgate/internal/gateway/domain"
)

type enrollmentsRepo struct {
	q dbtx
}

const enrollmentColumns = `id, account_id, secret, confirmed, last_step, created_at, updated_at`

func (r *enrollmentsRepo) CreateEnrollment(ctx context.Context, e domain.Enrollment) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO totp_enrollments (id, account_id, secret, confirmed, last_step, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AccountID, e.Secret, e.Confirmed, e.LastStep, now, now)
	return mapConflict(err)
}

func (r *enrollmentsRepo) GetUnconfirmedEnrollment(ctx context.Context, accountID string) (domain.Enrollment, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM totp_enrollments WHERE account_id = ? AND confirmed = 0`,
		accountID)
	return scanEnrollment(row)
}

func (r *enrollmentsRepo) GetConfirmedEnrollment(ctx context.Context, accountID string) (domain.Enrollment, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM totp_enrollments WHERE account_id = ? AND confirmed = 1`,
		accountID)
	return scanEnrollment(row)
}

func (r *enrollmentsRepo) DeleteUnconfirmedEnrollments(ctx context.Context, accountID string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM totp_enrollments WHERE account_id = ? AND confirmed = 0`, accountID)
	return err
}

func (r *enrollmentsRepo) DeleteConfirmedEnrollments(ctx context.Context, accountID string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM totp_enrollments WHERE account_id = ? AND confirmed = 1`, accountID)
	return err
}

func (r *enrollmentsRepo) ConfirmEnrollment(ctx context.Context, enrollmentID string, step int64) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE totp_enrollments SET confirmed = 1, last_step = ?, updated_at = ? WHERE id = ?`,
		step, time.Now().UTC(), enrollmentID)
	return err
}

func (r *enrollmentsRepo) UpdateEnrollmentLastStep(ctx context.Context, enrollmentID string, step int64) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE totp_enrollments SET last_step = ?, updated_at = ? WHERE id = ?`,
		step, time.Now().UTC(), enrollmentID)
	return err
}

func (r *enrollmentsRepo) DeleteStaleUnconfirmedEnrollments(ctx context.Context, before time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM totp_enrollments WHERE confirmed = 0 AND created_at < ?`, before.UTC())
	return err
}

func scanEnrollment(row rowScanner) (domain.Enrollment, error) {
	var e domain.Enrollment
	err := row.Scan(&e.ID, &e.AccountID, &e.Secret, &e.Confirmed, &e.LastStep,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return domain.Enrollment{}, mapNotFound(err)
	}
	return e, nil
}
