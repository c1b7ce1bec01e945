// Package redis implements the one-time code store on top of Redis.
// Redis owns the expiry: codes are SET with a TTL and simply vanish when
// it elapses, so no timestamp bookkeeping happens elsewhere.
package redis

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/northplain/idgate/internal/gateway/store"
	"github.com/redis/go-redis/v9"
)

const codeKeyPrefix = "mfa_email"

type CodeStore struct {
	client *redis.Client
}

// NewCodeStore creates a code store using the given Redis address.
func NewCodeStore(addr string) *CodeStore {
	return &CodeStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// NewCodeStoreWithClient wraps an existing client. Used by tests running
// against miniredis.
func NewCodeStoreWithClient(client *redis.Client) *CodeStore {
	return &CodeStore{client: client}
}

func (s *CodeStore) key(accountID string) string {
	return codeKeyPrefix + ":" + accountID
}

// IssueCode stores the code under the account's key with the given TTL.
// A plain SET overwrites any previous live code, which is exactly the
// single-entry-per-account semantics we want.
func (s *CodeStore) IssueCode(ctx context.Context, accountID, code string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(accountID), code, ttl).Err(); err != nil {
		return fmt.Errorf("redis: issue code: %w", err)
	}
	return nil
}

// ConsumeCode deletes the live code iff it matches the presented value.
// The WATCH/MULTI dance makes the read-compare-delete atomic: of two
// concurrent matching consumes, one commits the DEL and the other's
// transaction aborts, retries, and finds the key gone.
func (s *CodeStore) ConsumeCode(ctx context.Context, accountID, code string) error {
	const maxRetries = 4
	key := s.key(accountID)

	for range maxRetries {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			stored, err := tx.Get(ctx, key).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return store.ErrNotFound
				}
				return err
			}

			if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
				// Wrong code leaves the live code untouched
				return store.ErrCodeMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue // key changed under us, re-read
		}
		return err
	}

	return store.ErrNotFound
}

func (s *CodeStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *CodeStore) Close() error {
	return s.client.Close()
}
