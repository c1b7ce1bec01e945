package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/northplain/idgate/internal/gateway/domain"
	"github.com/northplain/idgate/internal/gateway/store"
	redisdriver "github.com/northplain/idgate/internal/gateway/store/drivers/redis"
	"github.com/northplain/idgate/internal/gateway/store/drivers/sqlite"
	"github.com/northplain/idgate/pkg/idx"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "gateway.db")
	s, err := sqlite.NewStore(dsn)
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestCodes(t *testing.T) store.OneTimeCodes {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	codes := redisdriver.NewCodeStoreWithClient(client)
	t.Cleanup(func() { _ = codes.Close() })
	return codes
}

// recordingNotifier captures sent codes instead of touching SMTP.
type recordingNotifier struct {
	mu    sync.Mutex
	sent  []sentCode
	fail  bool
	errTo error
}

type sentCode struct {
	Email string
	Code  string
}

func (n *recordingNotifier) SendCode(_ context.Context, email, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return n.errTo
	}
	n.sent = append(n.sent, sentCode{Email: email, Code: code})
	return nil
}

func (n *recordingNotifier) last(t *testing.T) sentCode {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent)
	return n.sent[len(n.sent)-1]
}

func createTestAccount(t *testing.T, s store.Store, email string) domain.Account {
	t.Helper()

	ctx := context.Background()
	account := domain.Account{
		ID:              idx.New().String(),
		ExternalSubject: "oidc|" + idx.New().String(),
		Email:           email,
		DisplayName:     "Test User",
	}
	require.NoError(t, s.Accounts().CreateAccount(ctx, account))

	account, err := s.Accounts().GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	return account
}
