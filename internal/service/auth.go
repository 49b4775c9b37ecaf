package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/campusclub/shop/internal/cache"
	"github.com/campusclub/shop/internal/hash"
	"github.com/campusclub/shop/internal/logging"
	"github.com/campusclub/shop/internal/models"
	"github.com/campusclub/shop/internal/repo"
	"github.com/campusclub/shop/internal/tokens"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidRefresh     = errors.New("invalid refresh token")
	ErrInvalidResetCode   = errors.New("invalid or expired reset code")
)

// AdminUserID is the synthetic identity minted by the admin login,
// which authenticates against configured credentials instead of a
// stored user record.
const AdminUserID = "admin"

type AuthService struct {
	Repo   *repo.UserRepo
	Cache  *cache.Store
	Issuer *tokens.Issuer

	AdminEmail    string
	AdminPassword string
}

type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	NPM   string `json:"npm"`
	Phone string `json:"phone"`
}

type AuthResult struct {
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
	User         Profile
}

func profileFromUser(u *models.User) Profile {
	return Profile{
		ID:    strconv.FormatUint(uint64(u.ID), 10),
		Name:  u.Name,
		Email: u.Email,
		Role:  u.Role,
		NPM:   u.NPM,
		Phone: u.Phone,
	}
}

func (s *AuthService) adminProfile() Profile {
	return Profile{
		ID:    AdminUserID,
		Name:  "Administrator",
		Email: s.AdminEmail,
		Role:  "admin",
	}
}

// finishLogin mints a token pair and performs the three independent
// cache writes. None of the writes aborts the login; a dead cache
// degrades session tracking, not authentication.
func (s *AuthService) finishLogin(ctx context.Context, p Profile) (*AuthResult, error) {
	l := logging.FromContext(ctx)

	pair, err := s.Issuer.Issue(p.ID, p.Role)
	if err != nil {
		return nil, fmt.Errorf("token issue error: %w", err)
	}

	now := time.Now()
	sess := &cache.Session{
		UserID:       p.ID,
		Email:        p.Email,
		Name:         p.Name,
		Role:         p.Role,
		NPM:          p.NPM,
		Phone:        p.Phone,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		LoginAt:      now,
		LastActivity: now,
	}
	if err := s.Cache.CreateSession(ctx, sess); err != nil {
		l.Warn("login_degraded", "reason", "session write failed", "error", err)
	}
	if err := s.Cache.SaveRefreshToken(ctx, p.ID, pair.RefreshToken); err != nil {
		l.Warn("login_degraded", "reason", "refresh write failed", "error", err)
	}
	if err := s.Cache.CacheUser(ctx, &cache.CachedUser{
		UserID: p.ID,
		Email:  p.Email,
		Name:   p.Name,
		Role:   p.Role,
		NPM:    p.NPM,
		Phone:  p.Phone,
	}); err != nil {
		l.Warn("login_degraded", "reason", "user cache write failed", "error", err)
	}

	return &AuthResult{
		AccessToken:  pair.AccessToken,
		AccessExp:    pair.AccessExp,
		RefreshToken: pair.RefreshToken,
		RefreshExp:   pair.RefreshExp,
		User:         p,
	}, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	user, err := s.Repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			// Same denial as a wrong password; the distinction stays
			// in the server log.
			l.Warn("login_failed", "reason", "email not found")
			return nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "error", err)
		return nil, err
	}

	if !hash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "reason", "password mismatch", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	res, err := s.finishLogin(ctx, profileFromUser(user))
	if err != nil {
		return nil, err
	}
	l.Info("login_successful", "user_id", user.ID)
	return res, nil
}

func (s *AuthService) Register(ctx context.Context, name, npm, email, phone, password string) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		l.Error("register_failed", "reason", "cannot hash password", "error", err)
		return nil, err
	}

	// Self-registration always yields a regular user; the admin role is
	// only ever minted by the configured-credential admin login.
	user := &models.User{
		Name:         name,
		NPM:          npm,
		Email:        email,
		Phone:        phone,
		PasswordHash: pwHash,
		Role:         "user",
	}
	if err := s.Repo.CreateIfNotExists(ctx, user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			l.Warn("register_failed", "reason", "email taken")
			return nil, repo.ErrUserAlreadyExist
		}
		l.Error("register_failed", "error", err)
		return nil, err
	}

	res, err := s.finishLogin(ctx, profileFromUser(user))
	if err != nil {
		return nil, err
	}
	l.Info("register_successful", "user_id", user.ID)
	return res, nil
}

// AdminLogin authenticates against the configured admin credential
// pair and mints tokens for the synthetic admin identity.
func (s *AuthService) AdminLogin(ctx context.Context, email, password string) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.admin_login")

	if s.AdminEmail == "" || s.AdminPassword == "" {
		l.Error("admin_login_failed", "reason", "admin credentials not configured")
		return nil, ErrInvalidCredentials
	}

	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(s.AdminEmail)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.AdminPassword)) == 1
	if !emailOK || !passOK {
		l.Warn("admin_login_failed", "reason", "credential mismatch")
		return nil, ErrInvalidCredentials
	}

	res, err := s.finishLogin(ctx, s.adminProfile())
	if err != nil {
		return nil, err
	}
	l.Info("admin_login_successful")
	return res, nil
}

// Refresh validates the presented refresh token against the stored one
// and rotates the pair. Identity comes from the caller's access token,
// so userID is a parameter here, not a claim read off the refresh token.
func (s *AuthService) Refresh(ctx context.Context, userID, presented string) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh", "user_id", userID)

	if _, err := tokens.RefreshClaimsFromToken(presented, s.Issuer.RefreshSecret); err != nil {
		l.Warn("refresh_failed", "reason", "token invalid", "error", err)
		return nil, ErrInvalidRefresh
	}

	ok, err := s.Cache.ValidateRefreshToken(ctx, userID, presented)
	if err != nil {
		l.Error("refresh_failed", "error", err)
		return nil, ErrInvalidRefresh
	}
	if !ok {
		l.Warn("refresh_failed", "reason", "token mismatch or absent")
		return nil, ErrInvalidRefresh
	}

	profile, err := s.Profile(ctx, userID)
	if err != nil {
		l.Warn("refresh_failed", "reason", "unknown identity", "error", err)
		return nil, ErrInvalidRefresh
	}

	// Overwrites session and refresh records wholesale. The previous
	// refresh token stays valid only until this write lands; old access
	// tokens are left to expire naturally.
	res, err := s.finishLogin(ctx, *profile)
	if err != nil {
		return nil, err
	}
	l.Info("refresh_successful")
	return res, nil
}

// Logout is best effort: each cleanup step runs regardless of the
// others failing, and the caller always gets its cookies cleared.
func (s *AuthService) Logout(ctx context.Context, userID, accessToken string) {
	l := logging.FromContext(ctx).With("svc", "auth.logout", "user_id", userID)

	if err := s.Cache.DeleteSession(ctx, userID); err != nil {
		l.Warn("logout_partial", "step", "delete_session", "error", err)
	}
	if accessToken != "" {
		if err := s.Cache.BlacklistToken(ctx, accessToken); err != nil {
			l.Warn("logout_partial", "step", "blacklist_token", "error", err)
		}
	}
	if err := s.Cache.DeleteRefreshToken(ctx, userID); err != nil {
		l.Warn("logout_partial", "step", "delete_refresh", "error", err)
	}
	l.Info("logout_done")
}

// Profile serves the cached projection when present, falling through
// to the credential store and writing back on a miss.
func (s *AuthService) Profile(ctx context.Context, userID string) (*Profile, error) {
	if userID == AdminUserID {
		p := s.adminProfile()
		return &p, nil
	}

	if cached, err := s.Cache.GetCachedUser(ctx, userID); err == nil {
		return &Profile{
			ID:    cached.UserID,
			Name:  cached.Name,
			Email: cached.Email,
			Role:  cached.Role,
			NPM:   cached.NPM,
			Phone: cached.Phone,
		}, nil
	}

	id, err := strconv.ParseUint(userID, 10, 64)
	if err != nil {
		return nil, repo.ErrUserNotFound
	}
	user, err := s.Repo.FindByID(ctx, uint(id))
	if err != nil {
		return nil, err
	}

	p := profileFromUser(user)
	if err := s.Cache.CacheUser(ctx, &cache.CachedUser{
		UserID: p.ID,
		Email:  p.Email,
		Name:   p.Name,
		Role:   p.Role,
		NPM:    p.NPM,
		Phone:  p.Phone,
	}); err != nil {
		logging.FromContext(ctx).Warn("profile_cache_write_failed", "error", err)
	}
	return &p, nil
}

// ForgotPassword stores a short-lived 6-digit code for the account.
// Delivery is out of scope; the code is logged, and the handler decides
// whether to echo it outside production.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	l := logging.FromContext(ctx).With("svc", "auth.forgot_password")

	if _, err := s.Repo.FindByEmail(ctx, email); err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			l.Warn("forgot_password_failed", "reason", "email not found")
			return "", repo.ErrUserNotFound
		}
		return "", err
	}

	code, err := sixDigitCode()
	if err != nil {
		return "", err
	}
	if err := s.Cache.SaveResetCode(ctx, email, code); err != nil {
		l.Error("forgot_password_failed", "reason", "cannot store code", "error", err)
		return "", err
	}

	l.Info("reset_code_issued", "email", email, "code", code)
	return code, nil
}

func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	l := logging.FromContext(ctx).With("svc", "auth.reset_password")

	ok, err := s.Cache.ValidateResetCode(ctx, email, code)
	if err != nil {
		l.Error("reset_password_failed", "error", err)
		return ErrInvalidResetCode
	}
	if !ok {
		l.Warn("reset_password_failed", "reason", "code mismatch or expired")
		return ErrInvalidResetCode
	}

	user, err := s.Repo.FindByEmail(ctx, email)
	if err != nil {
		return ErrInvalidResetCode
	}

	pwHash, err := hash.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.Repo.UpdatePasswordHash(ctx, user.ID, pwHash); err != nil {
		l.Error("reset_password_failed", "error", err)
		return err
	}

	if err := s.Cache.DeleteResetCode(ctx, email); err != nil {
		l.Warn("reset_code_delete_failed", "error", err)
	}
	// The user:<id> projection is left to age out on its own TTL.

	l.Info("reset_password_successful", "user_id", user.ID)
	return nil
}

func sixDigitCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
