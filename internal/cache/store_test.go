package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// brokenKV simulates an unreachable cache backend.
type brokenKV struct{}

var errBackendDown = errors.New("connection refused")

func (brokenKV) Set(context.Context, string, string, time.Duration) error { return errBackendDown }
func (brokenKV) Get(context.Context, string) (string, error)              { return "", errBackendDown }
func (brokenKV) Del(context.Context, ...string) error                     { return errBackendDown }
func (brokenKV) Ping(context.Context) error                               { return errBackendDown }
func (brokenKV) Close() error                                             { return nil }

func newTestStore() (*Store, *Memory, *time.Time) {
	now := time.Now()
	mem := NewMemory()
	mem.Clock = func() time.Time { return now }
	return NewStore(mem), mem, &now
}

func testSession(userID string) *Session {
	return &Session{
		UserID:       userID,
		Email:        "a@b.com",
		Name:         "Test User",
		Role:         "user",
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		LoginAt:      time.Now(),
		LastActivity: time.Now(),
	}
}

func TestSessionTTL_ExtendedOnRead(t *testing.T) {
	t.Parallel()

	store, _, now := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.CreateSession(ctx, testSession("1")))

	// Just inside the window: the read succeeds and resets the TTL.
	*now = now.Add(6 * 24 * time.Hour)
	sess, err := store.GetSession(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "a@b.com", sess.Email)

	// Another 6 days would have exceeded the original TTL, but the
	// previous read extended it.
	*now = now.Add(6 * 24 * time.Hour)
	sess, err = store.GetSession(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "1", sess.UserID)

	// Past the extended window the session is gone.
	*now = now.Add(8 * 24 * time.Hour)
	_, err = store.GetSession(ctx, "1")
	require.ErrorIs(t, err, ErrMiss)
}

func TestGetSession_TouchesLastActivity(t *testing.T) {
	t.Parallel()

	store, _, _ := newTestStore()
	ctx := context.Background()

	sess := testSession("1")
	sess.LastActivity = time.Now().Add(-time.Hour)
	require.NoError(t, store.CreateSession(ctx, sess))

	got, err := store.GetSession(ctx, "1")
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), got.LastActivity, 5*time.Second)
}

func TestDeleteSession_Idempotent(t *testing.T) {
	t.Parallel()

	store, _, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.CreateSession(ctx, testSession("1")))
	require.NoError(t, store.DeleteSession(ctx, "1"))
	require.NoError(t, store.DeleteSession(ctx, "1"))

	_, err := store.GetSession(ctx, "1")
	require.ErrorIs(t, err, ErrMiss)
}

func TestRefreshToken_StoreThenCompare(t *testing.T) {
	t.Parallel()

	store, _, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.SaveRefreshToken(ctx, "1", "old-token"))

	ok, err := store.ValidateRefreshToken(ctx, "1", "old-token")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.ValidateRefreshToken(ctx, "1", "forged-token")
	require.NoError(t, err)
	require.False(t, ok)

	// Overwrite replaces the stored value entirely; the old token
	// stops validating only once the new write lands.
	require.NoError(t, store.SaveRefreshToken(ctx, "1", "new-token"))

	ok, err = store.ValidateRefreshToken(ctx, "1", "old-token")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = store.ValidateRefreshToken(ctx, "1", "new-token")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRefreshToken_AbsenceIsFailure(t *testing.T) {
	t.Parallel()

	store, _, now := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.SaveRefreshToken(ctx, "1", "token"))

	// Past the 7 day TTL the stored value is gone, so even a matching
	// token no longer validates.
	*now = now.Add(8 * 24 * time.Hour)
	ok, err := store.ValidateRefreshToken(ctx, "1", "token")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBlacklist_ExpiresAfterWindow(t *testing.T) {
	t.Parallel()

	store, _, now := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.BlacklistToken(ctx, "some-access-token"))
	require.True(t, store.IsTokenBlacklisted(ctx, "some-access-token"))
	require.False(t, store.IsTokenBlacklisted(ctx, "other-token"))

	*now = now.Add(901 * time.Second)
	require.False(t, store.IsTokenBlacklisted(ctx, "some-access-token"))
}

func TestBlacklistCheck_FailsOpen(t *testing.T) {
	t.Parallel()

	store := NewStore(brokenKV{})
	// Backend down: the check must report not-blacklisted, never error.
	require.False(t, store.IsTokenBlacklisted(context.Background(), "any-token"))
}

func TestCreateSession_ReportsBackendFailure(t *testing.T) {
	t.Parallel()

	store := NewStore(brokenKV{})
	err := store.CreateSession(context.Background(), testSession("1"))
	require.ErrorIs(t, err, errBackendDown)
}

func TestUserCache_TTL(t *testing.T) {
	t.Parallel()

	store, _, now := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.CacheUser(ctx, &CachedUser{UserID: "1", Email: "a@b.com", Role: "user"}))

	cached, err := store.GetCachedUser(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "a@b.com", cached.Email)

	*now = now.Add(61 * time.Minute)
	_, err = store.GetCachedUser(ctx, "1")
	require.ErrorIs(t, err, ErrMiss)
}

func TestResetCode_ValidateAndExpiry(t *testing.T) {
	t.Parallel()

	store, _, now := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.SaveResetCode(ctx, "a@b.com", "123456"))

	ok, err := store.ValidateResetCode(ctx, "a@b.com", "123456")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.ValidateResetCode(ctx, "a@b.com", "654321")
	require.NoError(t, err)
	require.False(t, ok)

	*now = now.Add(16 * time.Minute)
	ok, err = store.ValidateResetCode(ctx, "a@b.com", "123456")
	require.NoError(t, err)
	require.False(t, ok)
}
