package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/northplain/idgate/internal/gateway/domain"
	"github.com/northplain/idgate/internal/gateway/service"
	redisdriver "github.com/northplain/idgate/internal/gateway/store/drivers/redis"
	"github.com/northplain/idgate/internal/gateway/store/drivers/sqlite"
	"github.com/northplain/idgate/pkg/oidcx"
	"github.com/northplain/idgate/pkg/slogx"
)

// stubVerifier accepts exactly the tokens it was seeded with.
type stubVerifier struct {
	claims map[string]oidcx.IdentityClaim
}

func (v *stubVerifier) Verify(_ context.Context, token string) (oidcx.IdentityClaim, error) {
	claim, ok := v.claims[token]
	if !ok {
		return oidcx.IdentityClaim{}, oidcx.ErrMalformed
	}
	return claim, nil
}

// captureNotifier records emailed codes.
type captureNotifier struct {
	mu   sync.Mutex
	code string
}

func (n *captureNotifier) SendCode(_ context.Context, _, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.code = code
	return nil
}

func (n *captureNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.code
}

type testEnv struct {
	server   *httptest.Server
	notifier *captureNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore("file:" + filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	mr := miniredis.RunT(t)
	codes := redisdriver.NewCodeStoreWithClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = codes.Close() })

	notifier := &captureNotifier{}
	verifier := &stubVerifier{claims: map[string]oidcx.IdentityClaim{
		"token-alice": {Subject: "oidc|alice", Email: "alice@example.com", Name: "Alice"},
		"token-bob":   {Subject: "oidc|bob", Email: "bob@example.com", Name: "Bob"},
	}}

	logger := slogx.New(slogx.Config{Level: "error", Format: "text", Service: "idgate-test"})
	router := NewRouter(verifier, "test", st, codes, logger)
	router.AuthorizeService = &service.AuthorizeService{Store: st, DefaultMethod: domain.MethodTOTP}
	router.MFAService = &service.MFAService{
		Store:    st,
		Codes:    codes,
		Notifier: notifier,
		Issuer:   "idgate-test",
		CodeTTL:  5 * time.Minute,
	}
	router.ApplyRoutes()

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, notifier: notifier}
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func totpCode(t *testing.T, secret string) string {
	t.Helper()

	code, err := totp.GenerateCodeCustom(secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestAuthorize_RejectsBadToken(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/auth/authorize", "",
		map[string]string{"id_token": "garbage"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid_token", body["error"])
}

func TestAuthorize_RequiresIDToken(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/auth/authorize", "", map[string]string{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_request", body["error"])
}

func TestAuthorize_FirstContact(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/auth/authorize", "",
		map[string]string{"id_token": "token-alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "needs_mfa_setup", body["status"])
	require.Equal(t, true, body["mfa_setup_required"])
	require.NotEmpty(t, body["account_id"])
}

func TestMe_RequiresBearer(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid_token", body["error"])
}

func TestMe_UnmappedIdentity(t *testing.T) {
	env := newTestEnv(t)

	// Verifies fine, but never authorized: no account row exists.
	resp, body := env.do(t, http.MethodGet, "/auth/me", "token-bob", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid_token", body["error"])
}

func TestSetup_InvalidMethod(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/mfa/setup", "token-alice",
		map[string]string{"method": "sms"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_method", body["error"])
}

func TestVerify_WrongCode(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.do(t, http.MethodPost, "/mfa/setup", "token-alice",
		map[string]string{"method": "email"})
	require.Contains(t, body["message"], "alice@example.com")

	resp, body := env.do(t, http.MethodPost, "/mfa/verify", "token-alice",
		map[string]string{"method": "email", "code": "000000"})
	if env.notifier.last() == "000000" {
		t.Skip("guessed the one-in-a-million code")
	}
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_code", body["error"])
}

func TestVerify_TOTPWithoutEnrollment(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/mfa/verify", "token-alice",
		map[string]string{"method": "totp", "code": "123456"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "no_enrollment", body["error"])
}

func TestActivationFlow_Email(t *testing.T) {
	env := newTestEnv(t)

	// First contact: account exists but is not approved.
	resp, body := env.do(t, http.MethodPost, "/auth/authorize", "",
		map[string]string{"id_token": "token-alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "needs_mfa_setup", body["status"])

	// Request an emailed code.
	resp, body = env.do(t, http.MethodPost, "/mfa/setup", "token-alice",
		map[string]string{"method": "email"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "email", body["method"])
	require.EqualValues(t, 300, body["expires_in"])

	// Verify it.
	resp, body = env.do(t, http.MethodPost, "/mfa/verify", "token-alice",
		map[string]string{"method": "email", "code": env.notifier.last()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["approved"])
	require.Equal(t, "Account activated successfully!", body["message"])

	// Subsequent authorize is a login challenge with the method on file.
	resp, body = env.do(t, http.MethodPost, "/auth/authorize", "",
		map[string]string{"id_token": "token-alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "login_challenge", body["status"])
	require.Equal(t, "email", body["method"])
	require.Nil(t, body["mfa_setup_required"])

	// And the profile reflects approval.
	resp, body = env.do(t, http.MethodGet, "/auth/me", "token-alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["is_approved"])
	require.Equal(t, "email", body["mfa_method"])
}

func TestActivationFlow_TOTP(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/mfa/setup", "token-alice",
		map[string]string{"method": "totp"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "totp", body["method"])
	require.NotEmpty(t, body["secret"])
	require.Contains(t, body["provisioning_uri"], "otpauth://totp/")
	require.Contains(t, body["qr_code"], "data:image/png;base64,")

	secret := body["secret"].(string)
	resp, body = env.do(t, http.MethodPost, "/mfa/verify", "token-alice",
		map[string]string{"method": "totp", "code": totpCode(t, secret)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["approved"])

	resp, body = env.do(t, http.MethodPost, "/auth/authorize", "",
		map[string]string{"id_token": "token-alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "login_challenge", body["status"])
	require.Equal(t, "totp", body["method"])
}

func TestLivez(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])
}
