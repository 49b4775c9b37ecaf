package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/campusclub/shop/internal/logging"
	mwauth "github.com/campusclub/shop/internal/middleware/auth"
	"github.com/campusclub/shop/internal/mykafka"
	"github.com/campusclub/shop/internal/repo"
	"github.com/campusclub/shop/internal/service"
	"github.com/campusclub/shop/internal/tokens"
)

type AuthHandler struct {
	Svc      *service.AuthService
	Producer *mykafka.Producer

	// SecureCookies is set in production deployments.
	SecureCookies bool
	// EchoResetCode keeps the development shortcut of returning the
	// reset code in the response. Never enabled in production.
	EchoResetCode bool
}

func (h *AuthHandler) publish(c echo.Context, key string, event map[string]interface{}) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "user_events", key, event); err != nil {
		logging.FromContext(c.Request().Context()).Warn("kafka_publish_error", "error", err)
	}
}

func (h *AuthHandler) setAuthCookies(c echo.Context, res *service.AuthResult) {
	c.SetCookie(CreateCookie("accessToken", res.AccessToken, tokens.AccessTokenTTL, h.SecureCookies))
	c.SetCookie(CreateCookie("refreshToken", res.RefreshToken, tokens.RefreshTokenTTL, h.SecureCookies))
}

func (h *AuthHandler) clearAuthCookies(c echo.Context) {
	c.SetCookie(DeleteCookie("accessToken", h.SecureCookies))
	c.SetCookie(DeleteCookie("refreshToken", h.SecureCookies))
}

// authResponse is the dual-delivery contract: tokens go out in cookies
// and in the body.
func authResponse(res *service.AuthResult) echo.Map {
	return echo.Map{
		"success":      true,
		"accessToken":  res.AccessToken,
		"refreshToken": res.RefreshToken,
		"user":         res.User,
	}
}

func denied(c echo.Context, code int, message string) error {
	return c.JSON(code, echo.Map{"success": false, "message": message})
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req struct {
		Name     string `json:"name"`
		NPM      string `json:"npm"`
		Email    string `json:"email"`
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return denied(c, http.StatusBadRequest, "invalid body")
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		return denied(c, http.StatusBadRequest, "name, email and password are required")
	}

	res, err := h.Svc.Register(c.Request().Context(), req.Name, req.NPM, req.Email, req.Phone, req.Password)
	if err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			return denied(c, http.StatusConflict, "email already registered")
		}
		return denied(c, http.StatusInternalServerError, "registration failed")
	}

	h.setAuthCookies(c, res)
	h.publish(c, res.User.ID, map[string]interface{}{
		"type":   "user_registered",
		"userID": res.User.ID,
		"email":  res.User.Email,
	})

	return c.JSON(http.StatusCreated, authResponse(res))
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return denied(c, http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return denied(c, http.StatusUnauthorized, "invalid email or password")
		}
		return denied(c, http.StatusInternalServerError, "login failed")
	}

	h.setAuthCookies(c, res)
	h.publish(c, res.User.ID, map[string]interface{}{
		"type":   "user_logged_in",
		"userID": res.User.ID,
		"email":  res.User.Email,
	})

	return c.JSON(http.StatusOK, authResponse(res))
}

func (h *AuthHandler) AdminLogin(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return denied(c, http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.AdminLogin(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return denied(c, http.StatusUnauthorized, "invalid email or password")
	}

	h.setAuthCookies(c, res)
	return c.JSON(http.StatusOK, authResponse(res))
}

// Logout clears cookies no matter what; the cache cleanup behind it is
// best effort, so a second logout with no live session still succeeds.
func (h *AuthHandler) Logout(c echo.Context) error {
	userID := mwauth.UserID(c)
	token := mwauth.AccessToken(c)

	h.Svc.Logout(c.Request().Context(), userID, token)
	h.clearAuthCookies(c)

	h.publish(c, userID, map[string]interface{}{
		"type":   "user_logged_out",
		"userID": userID,
	})

	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "logged out"})
}

func (h *AuthHandler) Profile(c echo.Context) error {
	userID := mwauth.UserID(c)

	profile, err := h.Svc.Profile(c.Request().Context(), userID)
	if err != nil {
		return denied(c, http.StatusNotFound, "user not found")
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": profile})
}

// RefreshToken is authenticated by the old access token, which may have
// just expired; identity comes from its claims, not from the refresh
// token.
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	raw := mwauth.ExtractToken(c)
	if raw == "" {
		return denied(c, http.StatusUnauthorized, "missing access token")
	}
	claims, err := tokens.AccessClaimsAllowExpired(raw, h.Svc.Issuer.Secret)
	if err != nil {
		return denied(c, http.StatusUnauthorized, "invalid access token")
	}

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.Bind(&req); err != nil {
		return denied(c, http.StatusBadRequest, "invalid body")
	}
	if req.RefreshToken == "" {
		if cookie, err := c.Cookie("refreshToken"); err == nil {
			req.RefreshToken = cookie.Value
		}
	}
	if req.RefreshToken == "" {
		return denied(c, http.StatusBadRequest, "refresh token is required")
	}

	res, err := h.Svc.Refresh(c.Request().Context(), claims.Subject, req.RefreshToken)
	if err != nil {
		return denied(c, http.StatusUnauthorized, "invalid refresh token")
	}

	h.setAuthCookies(c, res)
	return c.JSON(http.StatusOK, echo.Map{
		"success":      true,
		"accessToken":  res.AccessToken,
		"refreshToken": res.RefreshToken,
	})
}

func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return denied(c, http.StatusBadRequest, "email is required")
	}

	code, err := h.Svc.ForgotPassword(c.Request().Context(), req.Email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return denied(c, http.StatusNotFound, "email not registered")
		}
		return denied(c, http.StatusInternalServerError, "could not issue reset code")
	}

	resp := echo.Map{
		"success": true,
		"message": "reset code issued, valid for 15 minutes",
	}
	if h.EchoResetCode {
		resp["resetToken"] = code
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req struct {
		Email       string `json:"email"`
		ResetToken  string `json:"resetToken"`
		NewPassword string `json:"newPassword"`
	}
	if err := c.Bind(&req); err != nil {
		return denied(c, http.StatusBadRequest, "invalid body")
	}
	if req.Email == "" || req.ResetToken == "" || req.NewPassword == "" {
		return denied(c, http.StatusBadRequest, "email, resetToken and newPassword are required")
	}

	if err := h.Svc.ResetPassword(c.Request().Context(), req.Email, req.ResetToken, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrInvalidResetCode) {
			return denied(c, http.StatusUnauthorized, "invalid or expired reset code")
		}
		return denied(c, http.StatusInternalServerError, "could not reset password")
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "password updated"})
}
