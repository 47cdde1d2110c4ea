package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCodeNotFound         = errors.New("verification code not found")
	ErrCodeMismatch         = errors.New("verification code mismatch")
	ErrCodeAttemptsExceeded = errors.New("verification code attempts exceeded")
	ErrCodeRedisUnavailable = errors.New("verification code redis unavailable")
)

// consumeCodeLua atomically performs the lookup→gate→count→compare cycle
// for one verification attempt.
// KEYS[1] = code record key
// ARGV[1] = provided code string
// ARGV[2] = max attempts (int string)
//
// The exhaustion gate runs BEFORE the increment: a guess that arrives with
// the budget already spent is rejected outright and removes the record,
// without comparing the code at all. Inside the budget the counter is
// incremented before the comparison, so a wrong guess always burns an
// attempt and the final in-budget guess can still succeed. The spent
// record survives its last mismatch; it dies on the attempt after, or on
// TTL, whichever comes first.
//
// Returns:
//
//	attempts used (number) on success
//	error string: "not_found", "mismatch", "attempts_exceeded"
var consumeCodeLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {err='not_found'}
end

local attempts = tonumber(redis.call('HGET', KEYS[1], 'attempts')) or 0
if attempts >= tonumber(ARGV[2]) then
  redis.call('DEL', KEYS[1])
  return {err='attempts_exceeded'}
end

attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
local code = redis.call('HGET', KEYS[1], 'code')

if code == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return attempts
end

return {err='mismatch'}
`)

// OTPStore holds at most one pending email verification code per user.
// Issuing a new code replaces whatever is pending, which is what keeps
// "the latest emailed code is the only valid one" true without any
// coordination in the callers.
type OTPStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewOTPStore(redisClient redis.UniversalClient, prefix string) *OTPStore {
	if prefix == "" {
		prefix = "mu:otp"
	}
	return &OTPStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *OTPStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// Issue stores a fresh code for the user, discarding any pending one and
// resetting its attempt counter. The record expires after ttl.
func (s *OTPStore) Issue(ctx context.Context, userID, code string, ttl time.Duration) error {
	key := s.key(userID)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "code", code, "attempts", 0)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	return nil
}

// Consume checks one guess against the pending code. On success the record
// is gone and the attempts used (including this one) are returned. A record
// missing from Redis reads as not found whether it expired or was never
// issued; callers cannot distinguish the two and must not try.
func (s *OTPStore) Consume(ctx context.Context, userID, code string, maxAttempts int) (int, error) {
	result, err := consumeCodeLua.Run(ctx, s.redis,
		[]string{s.key(userID)},
		code,
		maxAttempts,
	).Result()

	if err != nil {
		switch err.Error() {
		case "not_found":
			return 0, ErrCodeNotFound
		case "mismatch":
			return 0, ErrCodeMismatch
		case "attempts_exceeded":
			return 0, ErrCodeAttemptsExceeded
		default:
			return 0, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
		}
	}

	attempts, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected lua result type", ErrCodeRedisUnavailable)
	}
	return int(attempts), nil
}

// Delete discards the pending code, if any. Used as the compensating step
// when a code is stored but the email carrying it cannot be sent.
func (s *OTPStore) Delete(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	return nil
}

// Remaining reports whether a code is pending for the user and, if so, how
// long until it expires.
func (s *OTPStore) Remaining(ctx context.Context, userID string) (bool, time.Duration, error) {
	ttl, err := s.redis.PTTL(ctx, s.key(userID)).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	if ttl <= 0 {
		return false, 0, nil
	}
	return true, ttl, nil
}
