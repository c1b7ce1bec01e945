package domain

import "time"

// Enrollment is a TOTP secret lineage for one account. At most one
// confirmed and one unconfirmed row exist per account; starting a new
// enrollment supersedes the previous unconfirmed one.
type Enrollment struct {
	ID        string
	AccountID string
	Secret    string // base32 TOTP secret
	Confirmed bool
	LastStep  int64 // last accepted TOTP time step, rejects same-step replay
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuthStatus is what the authorize operation tells the caller to do next.
type AuthStatus string

const (
	// StatusNeedsMFASetup means the account is not yet approved and must
	// complete MFA enrollment before it is usable.
	StatusNeedsMFASetup AuthStatus = "needs_mfa_setup"

	// StatusLoginChallenge means the account is approved but still has to
	// pass a fresh MFA verification for this login.
	StatusLoginChallenge AuthStatus = "login_challenge"
)

// AuthorizeResult is the outcome of resolving an identity token to an
// account.
type AuthorizeResult struct {
	Status        AuthStatus
	Account       Account
	SetupRequired bool      // only meaningful for StatusNeedsMFASetup
	Method        MFAMethod // only meaningful for StatusLoginChallenge
}

// TOTPSetup is returned by enrollment-start for the TOTP method.
type TOTPSetup struct {
	Secret          string // base32 secret for manual entry
	ProvisioningURI string // otpauth:// URL
	QRCode          string // base64 PNG data URI of the provisioning URI
}

// EmailSetup is returned by enrollment-start for the EMAIL method.
type EmailSetup struct {
	Email   string // destination the code was sent to
	Expires time.Duration
}

// EnrollmentSetup is the enrollment-start result. Exactly one of TOTP or
// Email is set, matching Method.
type EnrollmentSetup struct {
	Method MFAMethod
	TOTP   *TOTPSetup
	Email  *EmailSetup
}
