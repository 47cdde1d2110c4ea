package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, redis.UniversalClient, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	store := NewStore(rdb, "mu:sess")
	return store, rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func testSession(id, userID string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		UserID:       userID,
		Token:        "access-" + id,
		RefreshToken: "refresh-" + id,
		IPHash:       "iphash",
		UserAgent:    "test-agent",
		IsActive:     true,
		CreatedAt:    now.Unix(),
		UpdatedAt:    now.Unix(),
		ExpiresAt:    now.Add(time.Hour).Unix(),
	}
}

func TestCreateAndLookup(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sess := testSession("sid-1", "u-1")
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	byID, err := store.GetByID(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if byID.UserID != "u-1" || byID.Token != sess.Token {
		t.Fatalf("unexpected record: %+v", byID)
	}

	byToken, err := store.GetByToken(ctx, sess.Token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if byToken.ID != "sid-1" {
		t.Fatalf("token resolved to wrong session: %s", byToken.ID)
	}

	byRefresh, err := store.GetByRefreshToken(ctx, sess.RefreshToken)
	if err != nil {
		t.Fatalf("get by refresh token: %v", err)
	}
	if byRefresh.ID != "sid-1" {
		t.Fatalf("refresh token resolved to wrong session: %s", byRefresh.ID)
	}

	if _, err := store.GetByToken(ctx, "unknown-token"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateRejectsExpiredSession(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()

	sess := testSession("sid-old", "u-1")
	sess.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	if err := store.Create(context.Background(), sess); err == nil {
		t.Fatal("expected already-expired session to be rejected")
	}
}

func TestRotateAccessTokenMovesIndex(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sess := testSession("sid-rot", "u-1")
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	rotated, err := store.RotateAccessToken(ctx, "sid-rot", "access-next", time.Now())
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.Token != "access-next" {
		t.Fatalf("record still carries old token: %s", rotated.Token)
	}

	if _, err := store.GetByToken(ctx, sess.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected old token index to be gone, got %v", err)
	}
	byNew, err := store.GetByToken(ctx, "access-next")
	if err != nil {
		t.Fatalf("get by new token: %v", err)
	}
	if byNew.ID != "sid-rot" {
		t.Fatalf("new token resolved to wrong session: %s", byNew.ID)
	}

	// The refresh token index is untouched by rotation.
	if _, err := store.GetByRefreshToken(ctx, sess.RefreshToken); err != nil {
		t.Fatalf("refresh token lookup after rotation: %v", err)
	}
}

func TestRotateAccessTokenSentinelErrors(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if _, err := store.RotateAccessToken(ctx, "missing", "tok", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	sess := testSession("sid-dead", "u-1")
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Invalidate(ctx, "sid-dead", time.Now()); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := store.RotateAccessToken(ctx, "sid-dead", "tok", time.Now()); !errors.Is(err, ErrInactive) {
		t.Fatalf("expected ErrInactive, got %v", err)
	}
}

func TestInvalidateKeepsRecordDropsIndexes(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sess := testSession("sid-inv", "u-1")
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.Invalidate(ctx, "sid-inv", time.Now()); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	// Record survives for listings, but neither token resolves anymore.
	record, err := store.GetByID(ctx, "sid-inv")
	if err != nil {
		t.Fatalf("get by id after invalidate: %v", err)
	}
	if record.IsActive {
		t.Fatal("expected record to be inactive")
	}
	if _, err := store.GetByToken(ctx, sess.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected token index to be gone, got %v", err)
	}
	if _, err := store.GetByRefreshToken(ctx, sess.RefreshToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected refresh index to be gone, got %v", err)
	}

	// Idempotent.
	if err := store.Invalidate(ctx, "sid-inv", time.Now()); err != nil {
		t.Fatalf("second invalidate: %v", err)
	}
	if err := store.Invalidate(ctx, "missing", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing session, got %v", err)
	}
}

func TestStaleIndexNeverResolvesWrongSession(t *testing.T) {
	store, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	victim := testSession("sid-victim", "u-1")
	if err := store.Create(ctx, victim); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Point a forged index at the victim's record. The lookup verifies
	// the record's own token field, so the hit must read as a miss.
	forged := store.tokenKey("forged-token")
	if err := rdb.Set(ctx, forged, "sid-victim", time.Hour).Err(); err != nil {
		t.Fatalf("seed forged index: %v", err)
	}

	if _, err := store.GetByToken(ctx, "forged-token"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected forged index to miss, got %v", err)
	}

	// The bad index is dropped on the way out.
	if exists, _ := rdb.Exists(ctx, forged).Result(); exists != 0 {
		t.Fatal("expected forged index to be deleted")
	}
}

func TestDeleteIdempotentAndCleansIndexes(t *testing.T) {
	store, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sess := testSession("sid-del", "u-1")
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.Delete(ctx, "sid-del"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, "sid-del"); err != nil {
		t.Fatalf("second delete: %v", err)
	}

	if _, err := store.GetByID(ctx, "sid-del"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	members, err := rdb.SMembers(ctx, store.userKey("u-1")).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected empty user index, got %v", members)
	}
}

func TestListForUserAndCountActive(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	for _, id := range []string{"sid-a", "sid-b", "sid-c"} {
		if err := store.Create(ctx, testSession(id, "u-list")); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if err := store.Invalidate(ctx, "sid-b", time.Now()); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	sessions, err := store.ListForUser(ctx, "u-list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 surviving records, got %d", len(sessions))
	}

	active, err := store.CountActive(ctx, "u-list")
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	if active != 2 {
		t.Fatalf("expected 2 active sessions, got %d", active)
	}
}

func TestCleanupExpiredSweepsInactiveRecords(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	live := testSession("sid-live", "u-sweep")
	dead := testSession("sid-dead", "u-sweep")
	if err := store.Create(ctx, live); err != nil {
		t.Fatalf("create live: %v", err)
	}
	if err := store.Create(ctx, dead); err != nil {
		t.Fatalf("create dead: %v", err)
	}
	if err := store.Invalidate(ctx, "sid-dead", time.Now()); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	removed, err := store.CleanupExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}

	if _, err := store.GetByID(ctx, "sid-dead"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected swept record gone, got %v", err)
	}
	if _, err := store.GetByID(ctx, "sid-live"); err != nil {
		t.Fatalf("live record must survive: %v", err)
	}
}

func TestCorruptRecordReadsAsUnavailable(t *testing.T) {
	store, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := rdb.Set(ctx, store.key("sid-corrupt"), "not-json", time.Hour).Err(); err != nil {
		t.Fatalf("seed corrupt blob: %v", err)
	}
	if _, err := store.GetByID(ctx, "sid-corrupt"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
