package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/campusclub/shop/internal/cache"
	"github.com/campusclub/shop/internal/tokens"
)

// Context keys populated for downstream handlers.
const (
	CtxUserID      = "userID"
	CtxRole        = "role"
	CtxAccessToken = "accessToken"
)

type Middleware struct {
	Secret []byte
	Cache  *cache.Store
}

func NewMiddleware(secret []byte, store *cache.Store) *Middleware {
	return &Middleware{Secret: secret, Cache: store}
}

// ExtractToken returns the access token from the request, checking the
// Authorization bearer header, the legacy token header, then the
// accessToken cookie, in that order.
func ExtractToken(c echo.Context) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return tok
		}
	}
	if h := c.Request().Header.Get("token"); h != "" {
		return h
	}
	if cookie, err := c.Cookie("accessToken"); err == nil {
		return cookie.Value
	}
	return ""
}

// RequireAuth rejects requests without a valid, non-blacklisted access
// token and attaches the authenticated identity to the echo context.
func (m *Middleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := ExtractToken(c)
		if raw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		claims, err := tokens.AccessClaimsFromToken(raw, m.Secret)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}

		if m.Cache.IsTokenBlacklisted(c.Request().Context(), raw) {
			return echo.NewHTTPError(http.StatusUnauthorized, "token has been revoked")
		}

		c.Set(CtxUserID, claims.Subject)
		c.Set(CtxRole, claims.Role)
		c.Set(CtxAccessToken, raw)

		return next(c)
	}
}

// UserID returns the authenticated identity set by RequireAuth.
func UserID(c echo.Context) string {
	if v, ok := c.Get(CtxUserID).(string); ok {
		return v
	}
	return ""
}

func Role(c echo.Context) string {
	if v, ok := c.Get(CtxRole).(string); ok {
		return v
	}
	return ""
}

func AccessToken(c echo.Context) string {
	if v, ok := c.Get(CtxAccessToken).(string); ok {
		return v
	}
	return ""
}
