package redis_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/northplain/idgate/internal/gateway/store"
	redisdriver "github.com/northplain/idgate/internal/gateway/store/drivers/redis"
)

func newTestStore(t *testing.T) (*redisdriver.CodeStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return redisdriver.NewCodeStoreWithClient(client), mr
}

func TestIssueAndConsume(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.IssueCode(ctx, "acct1", "123456", 5*time.Minute))
	require.NoError(t, s.ConsumeCode(ctx, "acct1", "123456"))

	// Single use: the code is gone after a successful consume
	err := s.ConsumeCode(ctx, "acct1", "123456")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestConsumeWrongCodeLeavesCodeLive(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.IssueCode(ctx, "acct1", "123456", 5*time.Minute))

	err := s.ConsumeCode(ctx, "acct1", "654321")
	require.ErrorIs(t, err, store.ErrCodeMismatch)

	// The correct code still works afterwards
	require.NoError(t, s.ConsumeCode(ctx, "acct1", "123456"))
}

func TestReissueInvalidatesPreviousCode(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.IssueCode(ctx, "acct1", "111111", 5*time.Minute))
	require.NoError(t, s.IssueCode(ctx, "acct1", "222222", 5*time.Minute))

	err := s.ConsumeCode(ctx, "acct1", "111111")
	require.ErrorIs(t, err, store.ErrCodeMismatch)

	require.NoError(t, s.ConsumeCode(ctx, "acct1", "222222"))
}

func TestCodeExpires(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.IssueCode(ctx, "acct1", "123456", 300*time.Second))

	mr.FastForward(301 * time.Second)

	err := s.ConsumeCode(ctx, "acct1", "123456")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCodesAreScopedPerAccount(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.IssueCode(ctx, "acct1", "123456", 5*time.Minute))
	require.NoError(t, s.IssueCode(ctx, "acct2", "654321", 5*time.Minute))

	require.ErrorIs(t, s.ConsumeCode(ctx, "acct1", "654321"), store.ErrCodeMismatch)
	require.NoError(t, s.ConsumeCode(ctx, "acct2", "654321"))
	require.NoError(t, s.ConsumeCode(ctx, "acct1", "123456"))
}
