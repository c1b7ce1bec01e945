package domain

import (
	"strings"
	"time"
)

// MFAMethod identifies which second factor an account uses. The set is
// closed: anything not listed here is rejected at the request boundary.
type MFAMethod string

const (
	MethodTOTP  MFAMethod = "totp"
	MethodEmail MFAMethod = "email"

	// MethodNone means the account has never passed a verification.
	MethodNone MFAMethod = "none"
)

// ParseMFAMethod maps a request string onto an enrollable method.
// MethodNone is not enrollable and parses as invalid.
func ParseMFAMethod(s string) (MFAMethod, bool) {
	switch MFAMethod(strings.ToLower(s)) {
	case MethodTOTP:
		return MethodTOTP, true
	case MethodEmail:
		return MethodEmail, true
	default:
		return "", false
	}
}

// Account is the local record mapped 1:1 to an external identity subject.
// Email and DisplayName are snapshots taken from the identity claim at
// creation and never refreshed, so a compromised provider account cannot
// silently rename an approved local account.
type Account struct {
	ID              string
	ExternalSubject string // unique, immutable, the sole lookup key
	Email           string
	DisplayName     string
	IsApproved      bool      // flips true exactly once, via MFA verification
	MFAMethod       MFAMethod // method of the last successful verification
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
