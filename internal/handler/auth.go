package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-reservation/internal/config"
	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/repository"
	"github.com/iliyamo/parking-reservation/internal/session"
	"github.com/iliyamo/parking-reservation/internal/utils"
)

// UserStore is the part of repository.UserRepo the auth endpoints use.
type UserStore interface {
	Create(ctx context.Context, email, password, role string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Users    UserStore
	Sessions session.Store
	Log      *slog.Logger
}

func NewAuthHandler(cfg config.Config, users UserStore, sessions session.Store, log *slog.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: users, Sessions: sessions, Log: log.With("component", "auth")}
}

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func (r *credentialsReq) normalize() bool {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	return r.Email != "" && r.Password != ""
}

// Register creates a driver account with an empty wallet and signs it in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if !req.normalize() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}
	if len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 8 characters"})
	}

	ctx, cancel := requestCtx(c, h.Cfg.RequestTimeout)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Email, req.Password, model.RoleDriver, h.Cfg.BcryptCost)
	if errors.Is(err, repository.ErrEmailExists) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
	}
	if err != nil {
		h.Log.Error("create user failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	h.Log.Info("user registered", "user_id", uid)
	return h.issue(ctx, c, http.StatusCreated, model.User{ID: uid, Email: req.Email, Role: model.RoleDriver})
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if !req.normalize() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := requestCtx(c, h.Cfg.RequestTimeout)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if err != nil {
		h.Log.Error("load user failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	return h.issue(ctx, c, http.StatusOK, u)
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := requestCtx(c, h.Cfg.RequestTimeout)
	defer cancel()

	userID, err := h.Sessions.Lookup(ctx, hash)
	if err != nil {
		if !errors.Is(err, session.ErrInvalid) {
			h.Log.Error("session lookup failed", "err", err)
		}
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if err := h.Sessions.Revoke(ctx, hash); err != nil {
		h.Log.Error("revoke session failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
	}
	u, err := h.Users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !u.IsActive) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	return h.issue(ctx, c, http.StatusOK, u)
}

// Logout revokes the refresh token in the body, or every session of the
// bearer when no token is given.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	raw := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := requestCtx(c, h.Cfg.RequestTimeout)
	defer cancel()

	if raw != "" {
		hash := utils.HashRefreshRaw(raw)
		if _, err := h.Sessions.Lookup(ctx, hash); err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
		}
		if err := h.Sessions.Revoke(ctx, hash); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}

	bearer, ok := strings.CutPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "provide Authorization header or refresh_token"})
	}
	uid, _, err := utils.ParseAccessToken(h.Cfg.JWTSecret, bearer)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if err := h.Sessions.RevokeUser(ctx, uid); err != nil {
		h.Log.Error("revoke user sessions failed", "user_id", uid, "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Me echoes the identity carried by the access token.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, echo.Map{"user_id": uid, "role": c.Get("role")})
}

func (h *AuthHandler) issue(ctx context.Context, c echo.Context, status int, u model.User) error {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue refresh failed"})
	}
	if err := h.Sessions.Save(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		h.Log.Error("save session failed", "user_id", u.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save refresh failed"})
	}
	return c.JSON(status, authResp{
		User:    userPart{ID: u.ID, Email: u.Email, Role: u.Role},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	})
}
