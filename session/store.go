package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound covers both a session that never existed and one whose
	// record already expired out of Redis.
	ErrNotFound = errors.New("session not found")

	// ErrInactive marks a session that was invalidated but not yet swept.
	ErrInactive = errors.New("session inactive")

	ErrRedisUnavailable = errors.New("session redis unavailable")
)

const (
	mutateStatusNotFound int64 = 0
	mutateStatusInactive int64 = 1
	mutateStatusOK       int64 = 2
)

// rotateTokenLua swaps the session's access token in place.
// KEYS[1] = session record key
// ARGV[1] = new access token
// ARGV[2] = unix seconds for updatedAt
//
// Returns {0} when missing or expired, {1} when inactive, {2, oldToken}
// on success. The record keeps its remaining TTL; rotation never extends
// the session's absolute lifetime.
var rotateTokenLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {0}
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
  return {0}
end
local sess = cjson.decode(data)
if not sess.isActive then
  return {1}
end
local old = sess.token
sess.token = ARGV[1]
sess.updatedAt = tonumber(ARGV[2])
redis.call('SET', KEYS[1], cjson.encode(sess), 'PX', ttl)
return {2, old}
`)

// invalidateLua flips isActive to false while preserving the record and
// its TTL. Returns {2, token, refreshToken} so the caller can drop the
// lookup indexes; {2, ...} is returned even when the session was already
// inactive, making invalidation idempotent.
var invalidateLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {0}
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
  return {0}
end
local sess = cjson.decode(data)
sess.isActive = false
sess.updatedAt = tonumber(ARGV[1])
redis.call('SET', KEYS[1], cjson.encode(sess), 'PX', ttl)
return {2, sess.token, sess.refreshToken}
`)

// heartbeatLua bumps updatedAt on an active session.
var heartbeatLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {0}
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
  return {0}
end
local sess = cjson.decode(data)
if not sess.isActive then
  return {1}
end
sess.updatedAt = tonumber(ARGV[1])
redis.call('SET', KEYS[1], cjson.encode(sess), 'PX', ttl)
return {2}
`)

// Store is the Redis-backed session registry. Records live under
// <prefix>:rec:<id>; access and refresh tokens resolve to session IDs
// through hashed lookup indexes, and a per-user set tracks which sessions
// belong to whom.
//
// The record is the source of truth. Index hits are always verified
// against the record's own token fields, so a stale index can cause a
// miss but never a wrong session.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "mu:sess"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":rec:" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":user:" + userID
}

// Tokens are JWTs and too long for key suffixes; index under a sha256.
func (s *Store) tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return s.prefix + ":tok:" + hex.EncodeToString(sum[:])
}

func (s *Store) refreshTokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return s.prefix + ":rtok:" + hex.EncodeToString(sum[:])
}

// Create persists a new session and its lookup indexes. The Redis TTL is
// the session's remaining absolute lifetime; Redis expiry is what finally
// removes records the sweeper never got to.
func (s *Store) Create(ctx context.Context, sess *Session) error {
	ttl := time.Until(time.Unix(sess.ExpiresAt, 0))
	if ttl <= 0 {
		return errors.New("session already expired")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.ID), data, ttl)
		pipe.Set(ctx, s.tokenKey(sess.Token), sess.ID, ttl)
		pipe.Set(ctx, s.refreshTokenKey(sess.RefreshToken), sess.ID, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.ID)
		pipe.Expire(ctx, s.userKey(sess.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// GetByID fetches a session record. Expired-but-present records read as
// not found.
func (s *Store) GetByID(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: corrupt session record: %v", ErrRedisUnavailable, err)
	}
	if sess.Expired(time.Now()) {
		return nil, ErrNotFound
	}
	return &sess, nil
}

// GetByToken resolves an access token to its session.
func (s *Store) GetByToken(ctx context.Context, token string) (*Session, error) {
	return s.getByIndex(ctx, s.tokenKey(token), func(sess *Session) bool {
		return sess.Token == token
	})
}

// GetByRefreshToken resolves a refresh token to its session.
func (s *Store) GetByRefreshToken(ctx context.Context, token string) (*Session, error) {
	return s.getByIndex(ctx, s.refreshTokenKey(token), func(sess *Session) bool {
		return sess.RefreshToken == token
	})
}

func (s *Store) getByIndex(ctx context.Context, indexKey string, matches func(*Session) bool) (*Session, error) {
	sessionID, err := s.redis.Get(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := s.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Index outlived its record; drop it so the miss is cheap
			// next time.
			s.redis.Del(ctx, indexKey)
		}
		return nil, err
	}

	if !matches(sess) {
		s.redis.Del(ctx, indexKey)
		return nil, ErrNotFound
	}
	return sess, nil
}

// RotateAccessToken replaces the session's access token under a Lua CAS
// and moves the token index. The refresh token and absolute expiry are
// untouched.
func (s *Store) RotateAccessToken(ctx context.Context, sessionID, newToken string, now time.Time) (*Session, error) {
	result, err := rotateTokenLua.Run(ctx, s.redis,
		[]string{s.key(sessionID)},
		newToken,
		now.Unix(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, code, err := mutateResult(result)
	if err != nil {
		return nil, err
	}
	switch code {
	case mutateStatusNotFound:
		return nil, ErrNotFound
	case mutateStatusInactive:
		return nil, ErrInactive
	}

	if oldToken, ok := parts[1].(string); ok {
		s.redis.Del(ctx, s.tokenKey(oldToken))
	}

	sess, err := s.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ttl := time.Until(time.Unix(sess.ExpiresAt, 0))
	if ttl > 0 {
		if err := s.redis.Set(ctx, s.tokenKey(newToken), sessionID, ttl).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return sess, nil
}

// Heartbeat bumps the session's updatedAt so activity monitoring can tell
// live sessions from abandoned ones.
func (s *Store) Heartbeat(ctx context.Context, sessionID string, now time.Time) error {
	result, err := heartbeatLua.Run(ctx, s.redis,
		[]string{s.key(sessionID)},
		now.Unix(),
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, code, err := mutateResult(result)
	if err != nil {
		return err
	}
	switch code {
	case mutateStatusNotFound:
		return ErrNotFound
	case mutateStatusInactive:
		return ErrInactive
	}
	return nil
}

// Invalidate marks the session inactive and removes its token indexes.
// The record stays until cleanup or TTL expiry. Invalidating an already
// inactive session is a no-op, not an error.
func (s *Store) Invalidate(ctx context.Context, sessionID string, now time.Time) error {
	result, err := invalidateLua.Run(ctx, s.redis,
		[]string{s.key(sessionID)},
		now.Unix(),
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, code, err := mutateResult(result)
	if err != nil {
		return err
	}
	if code == mutateStatusNotFound {
		return ErrNotFound
	}

	if len(parts) >= 3 {
		if token, ok := parts[1].(string); ok {
			s.redis.Del(ctx, s.tokenKey(token))
		}
		if refresh, ok := parts[2].(string); ok {
			s.redis.Del(ctx, s.refreshTokenKey(refresh))
		}
	}
	return nil
}

// InvalidateAllForUser ends every session the user index knows about and
// reports how many were still live.
func (s *Store) InvalidateAllForUser(ctx context.Context, userID string, now time.Time) (int, error) {
	sessionIDs, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var ended int
	for _, sessionID := range sessionIDs {
		switch err := s.Invalidate(ctx, sessionID, now); {
		case err == nil:
			ended++
		case errors.Is(err, ErrNotFound):
			s.redis.SRem(ctx, s.userKey(userID), sessionID)
		default:
			return ended, err
		}
	}
	return ended, nil
}

// ListForUser returns every surviving session record for the user,
// active or not. Vanished records are pruned from the user index as a
// side effect.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	sessionIDs, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Session{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(sessionIDs) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(sessionIDs))
	for i, sessionID := range sessionIDs {
		cmds[i] = pipe.Get(ctx, s.key(sessionID))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := time.Now()
	sessions := make([]*Session, 0, len(sessionIDs))
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				s.redis.SRem(ctx, s.userKey(userID), sessionIDs[i])
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}

		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		if sess.Expired(now) {
			continue
		}
		sessions = append(sessions, &sess)
	}
	return sessions, nil
}

// CountActive reports how many usable sessions the user currently has.
func (s *Store) CountActive(ctx context.Context, userID string) (int, error) {
	sessions, err := s.ListForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	var active int
	for _, sess := range sessions {
		if sess.Usable(now) {
			active++
		}
	}
	return active, nil
}

// Delete removes the record, its indexes, and its user-set entry.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	sess, err := s.rawGet(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionID))
		pipe.Del(ctx, s.tokenKey(sess.Token))
		pipe.Del(ctx, s.refreshTokenKey(sess.RefreshToken))
		pipe.SRem(ctx, s.userKey(sess.UserID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CleanupExpired sweeps all session records and deletes those that are
// expired or inactive, returning the number removed. O(n) over sessions;
// intended for the maintenance loop, never a request path.
func (s *Store) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	pattern := s.prefix + ":rec:*"
	var (
		cursor  uint64
		removed int
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		for _, key := range keys {
			sessionID := strings.TrimPrefix(key, s.prefix+":rec:")
			sess, err := s.rawGet(ctx, sessionID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return removed, err
			}
			if sess.IsActive && !sess.Expired(now) {
				continue
			}
			if err := s.Delete(ctx, sessionID); err != nil {
				return removed, err
			}
			removed++
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed, nil
}

// Ping reports Redis availability and round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

// rawGet fetches without the expiry filter; cleanup needs to see expired
// records.
func (s *Store) rawGet(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: corrupt session record: %v", ErrRedisUnavailable, err)
	}
	return &sess, nil
}

func mutateResult(result interface{}) ([]interface{}, int64, error) {
	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, 0, fmt.Errorf("%w: invalid script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, 0, fmt.Errorf("%w: invalid script status", ErrRedisUnavailable)
	}
	return parts, code, nil
}
