package service

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/campusclub/shop/internal/cache"
	"github.com/campusclub/shop/internal/hash"
	"github.com/campusclub/shop/internal/models"
	"github.com/campusclub/shop/internal/repo"
	"github.com/campusclub/shop/internal/tokens"
)

// downKV simulates an unreachable cache backend.
type downKV struct{}

var errDown = errors.New("connection refused")

func (downKV) Set(context.Context, string, string, time.Duration) error { return errDown }
func (downKV) Get(context.Context, string) (string, error)              { return "", errDown }
func (downKV) Del(context.Context, ...string) error                     { return errDown }
func (downKV) Ping(context.Context) error                               { return errDown }
func (downKV) Close() error                                             { return nil }

func initTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*AuthService, *cache.Memory) {
	mem := cache.NewMemory()
	svc := &AuthService{
		Repo:          &repo.UserRepo{DB: initTestDB(t)},
		Cache:         cache.NewStore(mem),
		Issuer:        tokens.NewIssuer([]byte("test-jwt-secret"), []byte("test-refresh-secret")),
		AdminEmail:    "admin@club.org",
		AdminPassword: "admin-password",
	}
	return svc, mem
}

func seedUser(t *testing.T, svc *AuthService, email, password string) *models.User {
	pwHash, err := hash.HashPassword(password)
	require.NoError(t, err)
	user := &models.User{
		Name:         "Test User",
		Email:        email,
		PasswordHash: pwHash,
		Role:         "user",
		NPM:          "2106751234",
		Phone:        "081234567890",
	}
	require.NoError(t, svc.Repo.DB.Create(user).Error)
	return user
}

func TestLogin_Success(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	seedUser(t, svc, "a@b.com", "secret1")

	res, err := svc.Login(ctx, "a@b.com", "secret1")
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)
	require.Equal(t, "user", res.User.Role)
	require.Equal(t, "a@b.com", res.User.Email)

	// Session record exists and mirrors the issued tokens.
	sess, err := svc.Cache.GetSession(ctx, res.User.ID)
	require.NoError(t, err)
	require.Equal(t, res.AccessToken, sess.AccessToken)
	require.Equal(t, res.RefreshToken, sess.RefreshToken)
	require.WithinDuration(t, time.Now(), sess.LoginAt, 5*time.Second)

	ok, err := svc.Cache.ValidateRefreshToken(ctx, res.User.ID, res.RefreshToken)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLogin_WrongPassword(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	user := seedUser(t, svc, "a@b.com", "secret1")

	_, err := svc.Login(ctx, "a@b.com", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	// No session record is created on a failed login.
	_, err = svc.Cache.GetSession(ctx, strconv.FormatUint(uint64(user.ID), 10))
	require.ErrorIs(t, err, cache.ErrMiss)
}

func TestLogin_UnknownEmailSameDenial(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	seedUser(t, svc, "a@b.com", "secret1")

	_, wrongPass := svc.Login(context.Background(), "a@b.com", "nope")
	_, noEmail := svc.Login(context.Background(), "nobody@b.com", "nope")

	// Same generic denial either way.
	require.ErrorIs(t, wrongPass, ErrInvalidCredentials)
	require.ErrorIs(t, noEmail, ErrInvalidCredentials)
}

func TestLogin_SecondLoginReplacesSession(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	seedUser(t, svc, "a@b.com", "secret1")

	first, err := svc.Login(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	second, err := svc.Login(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	// One session key per user; the later login overwrote it.
	sess, err := svc.Cache.GetSession(ctx, second.User.ID)
	require.NoError(t, err)
	require.Equal(t, second.RefreshToken, sess.RefreshToken)
	require.NotEqual(t, first.RefreshToken, sess.RefreshToken)

	// The first refresh token was overwritten too.
	ok, err := svc.Cache.ValidateRefreshToken(ctx, first.User.ID, first.RefreshToken)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLogin_CacheDownStillLogsIn(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	svc.Cache = cache.NewStore(downKV{})
	seedUser(t, svc, "a@b.com", "secret1")

	// Session tracking degrades but authentication succeeds.
	res, err := svc.Login(context.Background(), "a@b.com", "secret1")
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
}

func TestRegister_AutoLogin(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, "New Member", "2106751111", "new@b.com", "0812000000", "password")
	require.NoError(t, err)
	require.Equal(t, "user", res.User.Role)
	require.NotEmpty(t, res.AccessToken)

	_, err = svc.Cache.GetSession(ctx, res.User.ID)
	require.NoError(t, err)

	_, err = svc.Register(ctx, "Other", "2106752222", "new@b.com", "0813000000", "password")
	require.ErrorIs(t, err, repo.ErrUserAlreadyExist)
}

func TestRegister_AlwaysMintsUserRole(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, "New Member", "2106751111", "new@b.com", "0812000000", "password")
	require.NoError(t, err)

	// The role claim in the minted token is what RequireAdmin trusts, so
	// registration must never produce anything but "user".
	claims, err := tokens.AccessClaimsFromToken(res.AccessToken, svc.Issuer.Secret)
	require.NoError(t, err)
	require.Equal(t, "user", claims.Role)

	user, err := svc.Repo.FindByEmail(ctx, "new@b.com")
	require.NoError(t, err)
	require.Equal(t, "user", user.Role)
}

func TestAdminLogin(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.AdminLogin(ctx, "admin@club.org", "admin-password")
	require.NoError(t, err)
	require.Equal(t, AdminUserID, res.User.ID)
	require.Equal(t, "admin", res.User.Role)

	claims, err := tokens.AccessClaimsFromToken(res.AccessToken, svc.Issuer.Secret)
	require.NoError(t, err)
	require.Equal(t, "admin", claims.Role)

	_, err = svc.AdminLogin(ctx, "admin@club.org", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.AdminLogin(ctx, "other@club.org", "admin-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefresh_RotatesPair(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	seedUser(t, svc, "a@b.com", "secret1")

	login, err := svc.Login(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, login.User.ID, login.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// Old refresh token no longer validates; the new one does.
	ok, err := svc.Cache.ValidateRefreshToken(ctx, login.User.ID, login.RefreshToken)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.Cache.ValidateRefreshToken(ctx, login.User.ID, refreshed.RefreshToken)
	require.NoError(t, err)
	require.True(t, ok)

	// Replaying the old token after rotation is denied.
	_, err = svc.Refresh(ctx, login.User.ID, login.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestRefresh_GarbageTokenDenied(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	seedUser(t, svc, "a@b.com", "secret1")

	login, err := svc.Login(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, login.User.ID, "not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestLogout_Idempotent(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	seedUser(t, svc, "a@b.com", "secret1")

	login, err := svc.Login(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	svc.Logout(ctx, login.User.ID, login.AccessToken)

	_, err = svc.Cache.GetSession(ctx, login.User.ID)
	require.ErrorIs(t, err, cache.ErrMiss)
	require.True(t, svc.Cache.IsTokenBlacklisted(ctx, login.AccessToken))

	ok, err := svc.Cache.ValidateRefreshToken(ctx, login.User.ID, login.RefreshToken)
	require.NoError(t, err)
	require.False(t, ok)

	// A second logout with nothing left to clean must not blow up.
	svc.Logout(ctx, login.User.ID, login.AccessToken)
}

func TestProfile_CacheFirstThenDB(t *testing.T) {
	t.Parallel()

	svc, mem := newTestService(t)
	ctx := context.Background()
	seedUser(t, svc, "a@b.com", "secret1")

	login, err := svc.Login(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	// Served from cache.
	p, err := svc.Profile(ctx, login.User.ID)
	require.NoError(t, err)
	require.Equal(t, "a@b.com", p.Email)

	// Drop the cache entry: the DB fallback repopulates it.
	require.NoError(t, mem.Del(ctx, "user:"+login.User.ID))
	p, err = svc.Profile(ctx, login.User.ID)
	require.NoError(t, err)
	require.Equal(t, "2106751234", p.NPM)

	_, err = svc.Cache.GetCachedUser(ctx, login.User.ID)
	require.NoError(t, err)
}

func TestForgotAndResetPassword(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	seedUser(t, svc, "a@b.com", "secret1")

	code, err := svc.ForgotPassword(ctx, "a@b.com")
	require.NoError(t, err)
	require.Len(t, code, 6)

	_, err = svc.ForgotPassword(ctx, "nobody@b.com")
	require.ErrorIs(t, err, repo.ErrUserNotFound)

	wrongCode := "000000"
	if code == wrongCode {
		wrongCode = "111111"
	}
	require.ErrorIs(t, svc.ResetPassword(ctx, "a@b.com", wrongCode, "irrelevant"), ErrInvalidResetCode)

	require.NoError(t, svc.ResetPassword(ctx, "a@b.com", code, "new-password"))

	// The code is single use.
	err = svc.ResetPassword(ctx, "a@b.com", code, "another-password")
	require.ErrorIs(t, err, ErrInvalidResetCode)

	_, err = svc.Login(ctx, "a@b.com", "secret1")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "a@b.com", "new-password")
	require.NoError(t, err)
}
