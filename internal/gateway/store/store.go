package store

import (
	"context"
	"errors"
	"time"

	"github.com/northplain/idgate/internal/gateway/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrCodeMismatch reports a one-time code that exists but does not
	// match the presented value. Callers must collapse this and
	// ErrNotFound into one generic failure before it reaches a client.
	ErrCodeMismatch = errors.New("store: code mismatch")
)

// Store is the root data access interface over the relational state
// (accounts and TOTP enrollments). One-time codes live behind the
// separate OneTimeCodes interface because they are TTL'd key-value state,
// not rows that participate in transactions.
type Store interface {
	Accounts() Accounts
	Enrollments() Enrollments

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, rolling back when fn
	// returns an error and committing otherwise. Use it for every
	// read-then-write sequence on per-account MFA state.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Accounts interface {
	// GetAccountByID returns an account by its internal id.
	GetAccountByID(ctx context.Context, id string) (domain.Account, error)

	// GetAccountByExternalSubject is the lookup used for every verified
	// identity claim.
	GetAccountByExternalSubject(ctx context.Context, subject string) (domain.Account, error)

	// CreateAccount inserts a new account (id is provided by the app via
	// ULID). Returns ErrAlreadyExists when the external subject is taken;
	// callers resolve the race by re-fetching, never by check-then-insert.
	CreateAccount(ctx context.Context, a domain.Account) error

	// ApproveAccount sets is_approved and records the verified method.
	// Idempotent: approving an approved account just refreshes the method.
	ApproveAccount(ctx context.Context, accountID string, method domain.MFAMethod) error
}

type Enrollments interface {
	// CreateEnrollment inserts a new unconfirmed enrollment. The partial
	// unique index on (account_id) WHERE confirmed=0 makes a second live
	// unconfirmed row impossible; concurrent starts surface
	// ErrAlreadyExists instead.
	CreateEnrollment(ctx context.Context, e domain.Enrollment) error

	// GetUnconfirmedEnrollment returns the account's pending enrollment.
	GetUnconfirmedEnrollment(ctx context.Context, accountID string) (domain.Enrollment, error)

	// GetConfirmedEnrollment returns the account's active enrollment.
	GetConfirmedEnrollment(ctx context.Context, accountID string) (domain.Enrollment, error)

	// DeleteUnconfirmedEnrollments removes any pending enrollment so a
	// new one can supersede it.
	DeleteUnconfirmedEnrollments(ctx context.Context, accountID string) error

	// DeleteConfirmedEnrollments removes the account's active enrollment.
	// Used when a freshly re-enrolled device is confirmed in its place.
	DeleteConfirmedEnrollments(ctx context.Context, accountID string) error

	// ConfirmEnrollment flips confirmed false→true and records the
	// accepted time step. Never flips back.
	ConfirmEnrollment(ctx context.Context, enrollmentID string, step int64) error

	// UpdateEnrollmentLastStep records the accepted time step on an
	// already-confirmed enrollment (routine login challenge).
	UpdateEnrollmentLastStep(ctx context.Context, enrollmentID string, step int64) error

	// DeleteStaleUnconfirmedEnrollments is housekeeping; correctness does
	// not depend on it.
	DeleteStaleUnconfirmedEnrollments(ctx context.Context, before time.Time) error
}

// OneTimeCodes is the expiring key-value store for EMAIL verification
// codes: a single live code per account, overwritten on reissue, with
// expiry enforced by the store itself.
type OneTimeCodes interface {
	// IssueCode stores code for the account with the given TTL,
	// invalidating any previous live code.
	IssueCode(ctx context.Context, accountID, code string, ttl time.Duration) error

	// ConsumeCode deletes and returns success iff the live code matches.
	// ErrNotFound when absent or expired, ErrCodeMismatch when present
	// but different, in which case the code stays live. Concurrent
	// matching consumes resolve to exactly one winner.
	ConsumeCode(ctx context.Context, accountID, code string) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying client.
	Close() error
}
