package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound         = errors.New("user not found")
	ErrEmailTaken       = errors.New("email already registered")
	ErrRedisUnavailable = errors.New("user redis unavailable")
)

// User is the persisted account record. PasswordHash is a PHC-encoded
// Argon2id string and never leaves the server boundary.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
	Name         string `json:"name,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
}

// updatePasswordLua swaps the stored password hash and bumps updatedAt.
// KEYS[1] = user record key
// ARGV[1] = new hash, ARGV[2] = unix seconds
var updatePasswordLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return 0
end
local user = cjson.decode(data)
user.passwordHash = ARGV[1]
user.updatedAt = tonumber(ARGV[2])
redis.call('SET', KEYS[1], cjson.encode(user))
return 1
`)

// Store persists accounts in Redis: the record at <prefix>:rec:<id> and a
// lowercase email index at <prefix>:email:<email> whose SETNX creation is
// what makes registration race-safe.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "mu:user"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(userID string) string {
	return s.prefix + ":rec:" + userID
}

func (s *Store) emailKey(email string) string {
	return s.prefix + ":email:" + NormalizeEmail(email)
}

// NormalizeEmail is the canonical form used for uniqueness and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create claims the email and persists the record. Two concurrent
// registrations for one address race on the index SETNX; the loser gets
// [ErrEmailTaken] and no record is written.
func (s *Store) Create(ctx context.Context, user *User) error {
	user.Email = NormalizeEmail(user.Email)

	claimed, err := s.redis.SetNX(ctx, s.emailKey(user.Email), user.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !claimed {
		return ErrEmailTaken
	}

	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(user.ID), data, 0).Err(); err != nil {
		// Release the claim so the address is not stranded.
		s.redis.Del(ctx, s.emailKey(user.Email))
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, userID string) (*User, error) {
	data, err := s.redis.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("%w: corrupt user record: %v", ErrRedisUnavailable, err)
	}
	return &user, nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	userID, err := s.redis.Get(ctx, s.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.GetByID(ctx, userID)
}

// UpdatePasswordHash replaces the stored hash atomically.
func (s *Store) UpdatePasswordHash(ctx context.Context, userID, newHash string, now time.Time) error {
	result, err := updatePasswordLua.Run(ctx, s.redis,
		[]string{s.key(userID)},
		newHash,
		now.Unix(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if result == 0 {
		return ErrNotFound
	}
	return nil
}
