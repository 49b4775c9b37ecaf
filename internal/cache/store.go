package cache

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"time"

	"github.com/campusclub/shop/internal/logging"
)

const (
	SessionTTL   = 7 * 24 * time.Hour
	RefreshTTL   = 7 * 24 * time.Hour
	BlacklistTTL = 15 * time.Minute
	UserCacheTTL = time.Hour
	ResetCodeTTL = 15 * time.Minute
)

// FailPolicy states what a store operation does when the cache backend
// is unreachable.
type FailPolicy int

const (
	// FailClosed propagates the error; the caller must deny.
	FailClosed FailPolicy = iota
	// FailOpen swallows the error; the caller proceeds as if the key
	// were absent. Used where availability beats strictness.
	FailOpen
	// FailReported returns the error but the calling flow is expected
	// to log it and continue.
	FailReported
)

func (p FailPolicy) String() string {
	switch p {
	case FailOpen:
		return "fail-open"
	case FailReported:
		return "fail-reported"
	default:
		return "fail-closed"
	}
}

// Session is the cached snapshot of a user's current login state.
type Session struct {
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	NPM          string    `json:"npm"`
	Phone        string    `json:"phone"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	LoginAt      time.Time `json:"loginAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// CachedUser is the denormalized profile projection under user:<id>.
type CachedUser struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	NPM    string `json:"npm"`
	Phone  string `json:"phone"`
}

const blacklistSentinel = "revoked"

// Store implements the session/refresh/blacklist/user-cache key schema
// over a KV backend. Keys for independent concerns are independent; no
// multi-key transaction ties them together.
type Store struct {
	kv KV
}

func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

func sessionKey(userID string) string  { return "session:" + userID }
func refreshKey(userID string) string  { return "refresh:" + userID }
func blacklistKey(token string) string { return "blacklist:" + token }
func userKey(userID string) string     { return "user:" + userID }
func resetKey(email string) string     { return "reset:" + email }

func (s *Store) fail(ctx context.Context, op string, policy FailPolicy, err error) error {
	logging.FromContext(ctx).Warn("cache_error", "op", op, "policy", policy.String(), "error", err)
	if policy == FailOpen {
		return nil
	}
	return err
}

// CreateSession writes the session record. FailReported: login proceeds
// degraded when the cache is down.
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, sessionKey(sess.UserID), string(data), SessionTTL); err != nil {
		return s.fail(ctx, "create_session", FailReported, err)
	}
	return nil
}

// GetSession returns the live session, extending its TTL and touching
// lastActivity. The write-back is best effort; a lost race with logout
// only costs the activity timestamp.
func (s *Store) GetSession(ctx context.Context, userID string) (*Session, error) {
	raw, err := s.kv.Get(ctx, sessionKey(userID))
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return nil, ErrMiss
		}
		return nil, s.fail(ctx, "get_session", FailClosed, err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, err
	}

	sess.LastActivity = time.Now()
	if data, err := json.Marshal(&sess); err == nil {
		if err := s.kv.Set(ctx, sessionKey(userID), string(data), SessionTTL); err != nil {
			_ = s.fail(ctx, "touch_session", FailOpen, err)
		}
	}
	return &sess, nil
}

// DeleteSession is idempotent; deleting an absent session is a no-op.
func (s *Store) DeleteSession(ctx context.Context, userID string) error {
	if err := s.kv.Del(ctx, sessionKey(userID)); err != nil {
		return s.fail(ctx, "delete_session", FailReported, err)
	}
	return nil
}

func (s *Store) SaveRefreshToken(ctx context.Context, userID, token string) error {
	if err := s.kv.Set(ctx, refreshKey(userID), token, RefreshTTL); err != nil {
		return s.fail(ctx, "save_refresh", FailReported, err)
	}
	return nil
}

// ValidateRefreshToken succeeds iff a stored value exists and is
// byte-equal to the presented token. The stored value is the single
// source of truth; there is no rotation history.
func (s *Store) ValidateRefreshToken(ctx context.Context, userID, presented string) (bool, error) {
	stored, err := s.kv.Get(ctx, refreshKey(userID))
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return false, nil
		}
		return false, s.fail(ctx, "validate_refresh", FailClosed, err)
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1, nil
}

func (s *Store) DeleteRefreshToken(ctx context.Context, userID string) error {
	if err := s.kv.Del(ctx, refreshKey(userID)); err != nil {
		return s.fail(ctx, "delete_refresh", FailReported, err)
	}
	return nil
}

// BlacklistToken marks the exact presented access token as revoked for
// longer than the token's own lifetime, so a blacklisted token can
// never outlive its entry.
func (s *Store) BlacklistToken(ctx context.Context, token string) error {
	if err := s.kv.Set(ctx, blacklistKey(token), blacklistSentinel, BlacklistTTL); err != nil {
		return s.fail(ctx, "blacklist_token", FailReported, err)
	}
	return nil
}

// IsTokenBlacklisted fails open: when the cache is unreachable the
// token is treated as not blacklisted rather than rejecting everyone.
func (s *Store) IsTokenBlacklisted(ctx context.Context, token string) bool {
	_, err := s.kv.Get(ctx, blacklistKey(token))
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			_ = s.fail(ctx, "is_blacklisted", FailOpen, err)
		}
		return false
	}
	return true
}

func (s *Store) CacheUser(ctx context.Context, user *CachedUser) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, userKey(user.UserID), string(data), UserCacheTTL); err != nil {
		return s.fail(ctx, "cache_user", FailReported, err)
	}
	return nil
}

func (s *Store) GetCachedUser(ctx context.Context, userID string) (*CachedUser, error) {
	raw, err := s.kv.Get(ctx, userKey(userID))
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return nil, ErrMiss
		}
		// Profile reads fall through to the credential store on error.
		_ = s.fail(ctx, "get_cached_user", FailOpen, err)
		return nil, ErrMiss
	}
	var user CachedUser
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) SaveResetCode(ctx context.Context, email, code string) error {
	if err := s.kv.Set(ctx, resetKey(email), code, ResetCodeTTL); err != nil {
		return s.fail(ctx, "save_reset_code", FailClosed, err)
	}
	return nil
}

func (s *Store) ValidateResetCode(ctx context.Context, email, presented string) (bool, error) {
	stored, err := s.kv.Get(ctx, resetKey(email))
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return false, nil
		}
		return false, s.fail(ctx, "validate_reset_code", FailClosed, err)
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1, nil
}

func (s *Store) DeleteResetCode(ctx context.Context, email string) error {
	if err := s.kv.Del(ctx, resetKey(email)); err != nil {
		return s.fail(ctx, "delete_reset_code", FailReported, err)
	}
	return nil
}

// Ping reports backend health for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}
