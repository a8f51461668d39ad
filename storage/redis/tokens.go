// Package redis keeps single-use verification tokens in Redis, where key
// expiry replaces the periodic sweep.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/SametHaymana/merco-api/storage"
)

// ErrRedisUnavailable wraps Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

const consumeRetries = 4

// TokenStore implements storage.TokenStore.
//
// A token lives at <prefix><tenant>:<kind>[:<identifier>]:<secret hash>; the
// identifier segment is present only for kinds that are scoped to a target.
type TokenStore struct {
	redis  goredis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ storage.TokenStore = (*TokenStore)(nil)

// NewTokenStore returns a store namespaced under prefix.
func NewTokenStore(client goredis.UniversalClient, prefix string) *TokenStore {
	return &TokenStore{redis: client, prefix: prefix, now: time.Now}
}

func (s *TokenStore) key(tenantID string, kind storage.TokenKind, identifier, secretHash string) string {
	k := s.prefix + tenantID + ":" + string(kind) + ":"
	if kind.Scoped() {
		k += identifier + ":"
	}
	return k + secretHash
}

type record struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tid"`
	Kind       string    `json:"kind"`
	Identifier string    `json:"ident"`
	UserID     string    `json:"uid,omitempty"`
	SecretHash string    `json:"sh"`
	ExpiresAt  time.Time `json:"exp"`
	CreatedAt  time.Time `json:"ca"`
}

// PutToken stores t with a TTL matching its expiry. A token whose expiry has
// already passed is not written. Scoped tokens overwrite an equal secret for
// the same identifier; other kinds return storage.ErrConflict.
func (s *TokenStore) PutToken(ctx context.Context, t *storage.VerificationToken) error {
	ttl := t.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(record{
		ID:         t.ID,
		TenantID:   t.TenantID,
		Kind:       string(t.Kind),
		Identifier: t.Identifier,
		UserID:     t.UserID,
		SecretHash: t.SecretHash,
		ExpiresAt:  t.ExpiresAt,
		CreatedAt:  t.CreatedAt,
	})
	if err != nil {
		return err
	}

	key := s.key(t.TenantID, t.Kind, t.Identifier, t.SecretHash)
	if t.Kind.Scoped() {
		// A short code can repeat for the same identifier within its TTL;
		// the newer issue replaces the older one.
		if err := s.redis.Set(ctx, key, data, ttl).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return nil
	}
	ok, err := s.redis.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !ok {
		return storage.ErrConflict
	}
	return nil
}

// ConsumeToken reads and deletes the token under WATCH so that concurrent
// consumers of one secret see exactly one success.
func (s *TokenStore) ConsumeToken(ctx context.Context, l storage.TokenLookup, now time.Time) (*storage.VerificationToken, error) {
	if l.Kind.Scoped() && l.Identifier == "" {
		return nil, storage.ErrNotFound
	}
	key := s.key(l.TenantID, l.Kind, l.Identifier, l.SecretHash)

	for i := 0; i < consumeRetries; i++ {
		var matched *storage.VerificationToken

		err := s.redis.Watch(ctx, func(tx *goredis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			var rec record
			if err := json.Unmarshal(data, &rec); err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}
			if !now.Before(rec.ExpiresAt) {
				return storage.ErrNotFound
			}

			used := now
			matched = &storage.VerificationToken{
				ID:         rec.ID,
				TenantID:   rec.TenantID,
				Kind:       storage.TokenKind(rec.Kind),
				Identifier: rec.Identifier,
				UserID:     rec.UserID,
				SecretHash: rec.SecretHash,
				ExpiresAt:  rec.ExpiresAt,
				UsedAt:     &used,
				CreatedAt:  rec.CreatedAt,
			}
			return nil
		}, key)

		if err == goredis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, goredis.Nil), errors.Is(err, storage.ErrNotFound):
				return nil, storage.ErrNotFound
			default:
				return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
		}
		return matched, nil
	}

	return nil, storage.ErrNotFound
}

// DeleteExpiredTokens is a no-op: Redis expires token keys itself.
func (s *TokenStore) DeleteExpiredTokens(context.Context, time.Time) (int, error) {
	return 0, nil
}
