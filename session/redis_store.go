package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusMismatch int64 = 2
	rotateStatusRotated  int64 = 3

	revokeStatusNotFound int64 = 0
	revokeStatusRevoked  int64 = 1
	revokeStatusAlready  int64 = 2
)

// KEYS: session, old refresh index, new refresh index, expiry zset
// ARGV: current hash, next hash, expires ms, last active ms, session id, retention ms
const rotateRefreshScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local fields = redis.call("HMGET", KEYS[1], "rh", "rv")
if fields[1] ~= ARGV[1] or fields[2] == "1" then
  return 2
end
local expires = tonumber(ARGV[3])
redis.call("HSET", KEYS[1], "rh", ARGV[2], "ea", ARGV[3], "la", ARGV[4])
redis.call("DEL", KEYS[2])
redis.call("SET", KEYS[3], ARGV[5])
redis.call("PEXPIREAT", KEYS[3], expires + tonumber(ARGV[6]))
redis.call("ZADD", KEYS[4], expires, ARGV[5])
redis.call("PEXPIREAT", KEYS[1], expires + tonumber(ARGV[6]))
return 3
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// KEYS: session, expiry zset
// ARGV: session id
//
// The refresh index is left in place so a revoked session's token still
// resolves and is rejected as expired rather than unknown.
const revokeSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("ZREM", KEYS[2], ARGV[1])
if redis.call("HGET", KEYS[1], "rv") == "1" then
  return 2
end
redis.call("HSET", KEYS[1], "rv", "1")
return 1
`

var revokeSessionLua = redis.NewScript(revokeSessionScript)

// RedisStore keeps sessions in Redis.
//
// Layout under prefix:
//
//	s:<id>            HASH  session fields
//	r:<refresh hash>  STRING session id, same lifetime as the session hash
//	u:<tenant>:<uid>  SET   session ids of a user
//	exp               ZSET  session id scored by expiry (unix ms)
//
// Session hashes outlive their expiry by retention so revoked and expired
// sessions stay inspectable until Redis evicts them.
type RedisStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore returns a store namespaced under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string, retention time.Duration) *RedisStore {
	if retention < 0 {
		retention = 0
	}
	return &RedisStore{redis: client, prefix: prefix, retention: retention}
}

func (s *RedisStore) sessionKey(id string) string   { return s.prefix + "s:" + id }
func (s *RedisStore) refreshPrefix() string         { return s.prefix + "r:" }
func (s *RedisStore) refreshKey(hash string) string { return s.refreshPrefix() + hash }
func (s *RedisStore) expiryKey() string             { return s.prefix + "exp" }

func (s *RedisStore) userKey(tenantID, userID string) string {
	return s.prefix + "u:" + tenantID + ":" + userID
}

// CreateSession writes the session hash and its indexes in one transaction.
func (s *RedisStore) CreateSession(ctx context.Context, sess *Session) error {
	key := s.sessionKey(sess.ID)
	refreshKey := s.refreshKey(sess.RefreshHash)
	expires := sess.ExpiresAt.UnixMilli()

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encodeFields(sess))
		pipe.PExpireAt(ctx, key, sess.ExpiresAt.Add(s.retention))
		pipe.Set(ctx, refreshKey, sess.ID, 0)
		pipe.PExpireAt(ctx, refreshKey, sess.ExpiresAt.Add(s.retention))
		pipe.SAdd(ctx, s.userKey(sess.TenantID, sess.UserID), sess.ID)
		pipe.ZAdd(ctx, s.expiryKey(), redis.Z{Score: float64(expires), Member: sess.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Session loads a session by id.
func (s *RedisStore) Session(ctx context.Context, sessionID string) (*Session, error) {
	fields, err := s.redis.HGetAll(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeFields(sessionID, fields)
}

// SessionByRefreshHash resolves the refresh index, then loads the session.
func (s *RedisStore) SessionByRefreshHash(ctx context.Context, refreshHash string) (*Session, error) {
	id, err := s.redis.Get(ctx, s.refreshKey(refreshHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := s.Session(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.RefreshHash != refreshHash {
		return nil, ErrNotFound
	}
	return sess, nil
}

// RotateRefresh swaps the refresh hash atomically via a Lua script.
func (s *RedisStore) RotateRefresh(ctx context.Context, sessionID, currentHash string, next Rotation) error {
	keys := []string{
		s.sessionKey(sessionID),
		s.refreshKey(currentHash),
		s.refreshKey(next.RefreshHash),
		s.expiryKey(),
	}
	status, err := rotateRefreshLua.Run(ctx, s.redis, keys,
		currentHash,
		next.RefreshHash,
		next.ExpiresAt.UnixMilli(),
		next.LastActiveAt.UnixMilli(),
		sessionID,
		s.retention.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch status {
	case rotateStatusRotated:
		return nil
	case rotateStatusNotFound:
		return ErrNotFound
	case rotateStatusMismatch:
		return ErrRefreshMismatch
	default:
		return fmt.Errorf("unexpected rotate status %d", status)
	}
}

// RevokeSession marks one session revoked.
func (s *RedisStore) RevokeSession(ctx context.Context, sessionID string) error {
	status, err := s.revoke(ctx, sessionID)
	if err != nil {
		return err
	}
	if status == revokeStatusNotFound {
		return ErrNotFound
	}
	return nil
}

// RevokeUserSessions revokes every session in the user's index.
//
// The index is read then each member revoked individually, so a session
// created concurrently with this call may survive it.
func (s *RedisStore) RevokeUserSessions(ctx context.Context, tenantID, userID string) (int, error) {
	userKey := s.userKey(tenantID, userID)
	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	revoked := 0
	for _, id := range ids {
		status, err := s.revoke(ctx, id)
		if err != nil {
			return revoked, err
		}
		if status == revokeStatusRevoked {
			revoked++
		}
		if status == revokeStatusNotFound {
			_ = s.redis.SRem(ctx, userKey, id).Err()
		}
	}
	return revoked, nil
}

// RevokeExpiredSessions revokes sessions scored at or before now in the expiry index.
func (s *RedisStore) RevokeExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.redis.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	revoked := 0
	for _, id := range ids {
		status, err := s.revoke(ctx, id)
		if err != nil {
			return revoked, err
		}
		if status == revokeStatusRevoked {
			revoked++
		}
		if status == revokeStatusNotFound {
			_ = s.redis.ZRem(ctx, s.expiryKey(), id).Err()
		}
	}
	return revoked, nil
}

func (s *RedisStore) revoke(ctx context.Context, sessionID string) (int64, error) {
	status, err := revokeSessionLua.Run(ctx, s.redis,
		[]string{s.sessionKey(sessionID), s.expiryKey()},
		sessionID,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if status != revokeStatusNotFound && status != revokeStatusRevoked && status != revokeStatusAlready {
		return 0, fmt.Errorf("unexpected revoke status %d", status)
	}
	return status, nil
}

func encodeFields(sess *Session) map[string]any {
	revoked := "0"
	if sess.Revoked {
		revoked = "1"
	}
	return map[string]any{
		"uid": sess.UserID,
		"tid": sess.TenantID,
		"rh":  sess.RefreshHash,
		"ip":  sess.IP,
		"ua":  sess.UserAgent,
		"ca":  strconv.FormatInt(sess.CreatedAt.UnixMilli(), 10),
		"ea":  strconv.FormatInt(sess.ExpiresAt.UnixMilli(), 10),
		"la":  strconv.FormatInt(sess.LastActiveAt.UnixMilli(), 10),
		"rv":  revoked,
	}
}

func decodeFields(id string, f map[string]string) (*Session, error) {
	sess := &Session{
		ID:          id,
		UserID:      f["uid"],
		TenantID:    f["tid"],
		RefreshHash: f["rh"],
		IP:          f["ip"],
		UserAgent:   f["ua"],
		Revoked:     f["rv"] == "1",
	}
	if sess.UserID == "" || sess.TenantID == "" {
		return nil, fmt.Errorf("session %s: corrupt record", id)
	}

	var err error
	if sess.CreatedAt, err = parseMillis(f["ca"]); err != nil {
		return nil, fmt.Errorf("session %s: created_at: %w", id, err)
	}
	if sess.ExpiresAt, err = parseMillis(f["ea"]); err != nil {
		return nil, fmt.Errorf("session %s: expires_at: %w", id, err)
	}
	if sess.LastActiveAt, err = parseMillis(f["la"]); err != nil {
		return nil, fmt.Errorf("session %s: last_active_at: %w", id, err)
	}
	return sess, nil
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
