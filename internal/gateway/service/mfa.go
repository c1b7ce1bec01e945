package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"math/big"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/northplain/idgate/internal/gateway/domain"
	"github.com/northplain/idgate/internal/gateway/notify"
	"github.com/northplain/idgate/internal/gateway/store"
	"github.com/northplain/idgate/pkg/idx"
	"github.com/northplain/idgate/pkg/slogx"
)

const (
	totpPeriod = 30 // seconds per TOTP time step
	totpSkew   = 1  // accepted steps either side of now

	emailCodeDigits = 6
	qrImageSize     = 200
)

var (
	// ErrInvalidCode covers every verification failure a client may learn
	// about: wrong code, expired code, no code issued, replayed code. One
	// error so responses cannot be used to probe which it was.
	ErrInvalidCode = errors.New("invalid verification code")

	// ErrNoEnrollment means TOTP verification was attempted before any
	// enrollment was started.
	ErrNoEnrollment = errors.New("no TOTP enrollment for this account")

	// ErrInvalidMethod rejects an unknown or unsupported MFA method.
	ErrInvalidMethod = errors.New("invalid MFA method")

	// ErrNoEmail means EMAIL enrollment was requested for an account whose
	// identity provider supplied no email address.
	ErrNoEmail = errors.New("account has no email address")
)

// MFAService runs the enrollment and verification flows. Verification
// is the only path that flips an account to approved.
type MFAService struct {
	Store    store.Store
	Codes    store.OneTimeCodes
	Notifier notify.Notifier

	Issuer  string        // issuer label baked into provisioning URIs
	CodeTTL time.Duration // lifetime of an emailed code
}

// StartEnrollment begins MFA setup for the given method. TOTP supersedes
// any pending enrollment with a fresh secret; EMAIL issues a one-time
// code that overwrites any live one.
func (s *MFAService) StartEnrollment(ctx context.Context, account domain.Account, method domain.MFAMethod) (domain.EnrollmentSetup, error) {
	switch method {
	case domain.MethodTOTP:
		setup, err := s.startTOTP(ctx, account)
		if err != nil {
			return domain.EnrollmentSetup{}, err
		}
		return domain.EnrollmentSetup{Method: method, TOTP: setup}, nil
	case domain.MethodEmail:
		setup, err := s.startEmail(ctx, account)
		if err != nil {
			return domain.EnrollmentSetup{}, err
		}
		return domain.EnrollmentSetup{Method: method, Email: setup}, nil
	default:
		return domain.EnrollmentSetup{}, ErrInvalidMethod
	}
}

// Verify checks the code for the given method and, on success, approves
// the account with that method. Failures leave account and enrollment
// state untouched.
func (s *MFAService) Verify(ctx context.Context, account domain.Account, method domain.MFAMethod, code string) error {
	switch method {
	case domain.MethodTOTP:
		return s.verifyTOTP(ctx, account, code)
	case domain.MethodEmail:
		return s.verifyEmail(ctx, account, code)
	default:
		return ErrInvalidMethod
	}
}

func (s *MFAService) startTOTP(ctx context.Context, account domain.Account) (*domain.TOTPSetup, error) {
	label := account.Email
	if label == "" {
		label = account.ExternalSubject
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: label,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	enrollment := domain.Enrollment{
		ID:        idx.New().String(),
		AccountID: account.ID,
		Secret:    key.Secret(),
	}
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Enrollments().DeleteUnconfirmedEnrollments(ctx, account.ID); err != nil {
			return fmt.Errorf("failed to supersede pending enrollment: %w", err)
		}
		if err := tx.Enrollments().CreateEnrollment(ctx, enrollment); err != nil {
			return fmt.Errorf("failed to create enrollment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	qr, err := qrDataURI(key)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR code: %w", err)
	}

	return &domain.TOTPSetup{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		QRCode:          qr,
	}, nil
}

func (s *MFAService) startEmail(ctx context.Context, account domain.Account) (*domain.EmailSetup, error) {
	if account.Email == "" {
		return nil, ErrNoEmail
	}

	code, err := generateNumericCode(emailCodeDigits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}

	if err := s.Codes.IssueCode(ctx, account.ID, code, s.CodeTTL); err != nil {
		return nil, fmt.Errorf("failed to store code: %w", err)
	}

	// Delivery trouble must not invalidate the issued code; the client
	// can retry setup and a fresh code simply overwrites this one.
	if err := s.Notifier.SendCode(ctx, account.Email, code); err != nil {
		slogx.FromContext(ctx).Warn("verification code delivery failed",
			"account_id", account.ID,
			"error", err,
		)
	}

	return &domain.EmailSetup{Email: account.Email, Expires: s.CodeTTL}, nil
}

func (s *MFAService) verifyTOTP(ctx context.Context, account domain.Account, code string) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		enrollments := tx.Enrollments()

		enrollment, err := enrollments.GetUnconfirmedEnrollment(ctx, account.ID)
		confirming := true
		if errors.Is(err, store.ErrNotFound) {
			enrollment, err = enrollments.GetConfirmedEnrollment(ctx, account.ID)
			confirming = false
		}
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoEnrollment
		}
		if err != nil {
			return fmt.Errorf("failed to load enrollment: %w", err)
		}

		step, ok := matchTOTPStep(code, enrollment.Secret, time.Now())
		if !ok {
			return ErrInvalidCode
		}
		if step <= enrollment.LastStep {
			// An accepted step is burned, even inside the skew window.
			return ErrInvalidCode
		}

		if confirming {
			if err := enrollments.DeleteConfirmedEnrollments(ctx, account.ID); err != nil {
				return fmt.Errorf("failed to retire previous enrollment: %w", err)
			}
			if err := enrollments.ConfirmEnrollment(ctx, enrollment.ID, step); err != nil {
				return fmt.Errorf("failed to confirm enrollment: %w", err)
			}
		} else {
			if err := enrollments.UpdateEnrollmentLastStep(ctx, enrollment.ID, step); err != nil {
				return fmt.Errorf("failed to record accepted step: %w", err)
			}
		}

		if err := tx.Accounts().ApproveAccount(ctx, account.ID, domain.MethodTOTP); err != nil {
			return fmt.Errorf("failed to approve account: %w", err)
		}
		return nil
	})
}

func (s *MFAService) verifyEmail(ctx context.Context, account domain.Account, code string) error {
	err := s.Codes.ConsumeCode(ctx, account.ID, code)
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrCodeMismatch):
		// Absent, expired and mismatched all read the same to the client.
		return ErrInvalidCode
	case err != nil:
		return fmt.Errorf("failed to consume code: %w", err)
	}

	if err := s.Store.Accounts().ApproveAccount(ctx, account.ID, domain.MethodEmail); err != nil {
		return fmt.Errorf("failed to approve account: %w", err)
	}
	return nil
}

// matchTOTPStep reports which time step within the skew window produced
// the code, comparing in constant time. Computing the expected code per
// step (rather than a bare valid/invalid answer) is what lets callers
// reject a replay of an already-accepted step.
func matchTOTPStep(code, secret string, now time.Time) (int64, bool) {
	current := now.Unix() / totpPeriod
	for offset := int64(-totpSkew); offset <= totpSkew; offset++ {
		step := current + offset
		at := time.Unix(step*totpPeriod, 0)
		expected, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
			Period:    totpPeriod,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return step, true
		}
	}
	return 0, false
}

func generateNumericCode(digits int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

func qrDataURI(key *otp.Key) (string, error) {
	img, err := key.Image(qrImageSize, qrImageSize)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
