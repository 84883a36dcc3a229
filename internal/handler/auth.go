package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/smartbooking/internal/config"
	"github.com/iliyamo/smartbooking/internal/middleware"
	"github.com/iliyamo/smartbooking/internal/model"
	"github.com/iliyamo/smartbooking/internal/repository"
	"github.com/iliyamo/smartbooking/internal/service"
	"github.com/iliyamo/smartbooking/internal/utils"
)

// UserStore is the user persistence used by the account endpoints.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id uint64) (model.User, error)
	GetByLoginOrEmail(ctx context.Context, ident string) (model.User, error)
	UpdateProfile(ctx context.Context, id uint64, firstname, lastname, email, langue string) error
	UpdatePassword(ctx context.Context, id uint64, hash string) error
}

// SessionManager issues and revokes login sessions.
type SessionManager interface {
	Issue(ctx context.Context, u model.User) (service.Session, error)
	Revoke(ctx context.Context, raw string) error
}

// PasswordResetter runs the forgot/reset password flow.
type PasswordResetter interface {
	RequestReset(ctx context.Context, email string) error
	Reset(ctx context.Context, token, password string) error
}

// AuthHandler serves registration, login and the caller's own account.
type AuthHandler struct {
	Cfg      config.Config
	Users    UserStore
	Sessions SessionManager
	Accounts PasswordResetter
}

func NewAuthHandler(cfg config.Config, users UserStore, sessions SessionManager, accounts PasswordResetter) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: users, Sessions: sessions, Accounts: accounts}
}

type registerReq struct {
	Firstname       string `json:"firstname" validate:"required,max=60"`
	Lastname        string `json:"lastname" validate:"required,max=60"`
	Login           string `json:"login" validate:"required,min=3,max=50"`
	Email           string `json:"email" validate:"required,email,max=255"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"eqfield=Password"`
	Langue          string `json:"langue" validate:"langue"`
}

type loginReq struct {
	Login    string `json:"login" form:"login"`
	Password string `json:"password" form:"password"`
}

type profileReq struct {
	Firstname       string `json:"firstname" validate:"required,max=60"`
	Lastname        string `json:"lastname" validate:"required,max=60"`
	Email           string `json:"email" validate:"required,email,max=255"`
	Langue          string `json:"langue" validate:"langue"`
	Password        string `json:"password" validate:"omitempty,min=8,max=72"`
	ConfirmPassword string `json:"confirmPassword"`
}

type forgotReq struct {
	Email string `json:"email" validate:"required,email"`
}

type resetReq struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,max=72"`
}

func defaultLangue(l string) string {
	if l == "" {
		return "fr"
	}
	return l
}

// Register creates a MEMBER account and returns its profile.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	login := strings.TrimSpace(req.Login)
	if len(login) < 3 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": echo.Map{"login": "min=3"}})
	}

	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "hash password failed").SetInternal(err)
	}
	u := model.User{
		Login:        login,
		PasswordHash: hash,
		Firstname:    strings.TrimSpace(req.Firstname),
		Lastname:     strings.TrimSpace(req.Lastname),
		Email:        repository.NormalizeEmail(req.Email),
		Langue:       defaultLangue(req.Langue),
		Roles:        []string{model.RoleMember},
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Users.Create(ctx, &u); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return jsonError(c, http.StatusConflict, "email already exists")
		case errors.Is(err, repository.ErrLoginExists):
			return jsonError(c, http.StatusConflict, "login already exists")
		}
		return storeError(c, err, "create user failed")
	}
	return c.JSON(http.StatusCreated, u.Profile())
}

// Login accepts a login or an email with a password and sets the session
// cookies.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ident := strings.TrimSpace(req.Login)
	if ident == "" || req.Password == "" {
		return badRequest(c, "login and password required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByLoginOrEmail(ctx, ident)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !utils.VerifyPassword(u.PasswordHash, req.Password)) {
		return jsonError(c, http.StatusUnauthorized, "invalid credentials")
	}
	if err != nil {
		return storeError(c, err, "query failed")
	}

	sess, err := h.Sessions.Issue(ctx, u)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "issue session failed").SetInternal(err)
	}
	middleware.SetSessionCookies(c, sess.Access, sess.Refresh, h.Cfg.CookieSecure)
	return c.JSON(http.StatusOK, u.Profile())
}

// Logout revokes the refresh token and clears both cookies.
func (h *AuthHandler) Logout(c echo.Context) error {
	if ck, err := c.Cookie(middleware.RefreshCookie); err == nil && ck.Value != "" {
		ctx, cancel := reqCtx(c)
		defer cancel()
		if err := h.Sessions.Revoke(ctx, ck.Value); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "logout failed").SetInternal(err)
		}
	}
	middleware.ClearSessionCookies(c, h.Cfg.CookieSecure)
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// Me returns the identity carried by the session.
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := middleware.CurrentUser(c)
	if !ok {
		return unauthorized(c)
	}
	roles := id.Roles
	if roles == nil {
		roles = []string{}
	}
	return c.JSON(http.StatusOK, echo.Map{"userId": id.UserID, "login": id.Login, "roles": roles})
}

// Profile returns the caller's profile.
func (h *AuthHandler) Profile(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return storeError(c, err, "load profile failed")
	}
	return c.JSON(http.StatusOK, u.Profile())
}

// UpdateProfile changes names, email, language and optionally the password.
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req profileReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	if req.Password != "" && req.Password != req.ConfirmPassword {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": echo.Map{"confirmPassword": "eqfield=Password"}})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	err = h.Users.UpdateProfile(ctx, uid, strings.TrimSpace(req.Firstname), strings.TrimSpace(req.Lastname),
		req.Email, defaultLangue(req.Langue))
	if errors.Is(err, repository.ErrEmailExists) {
		return jsonError(c, http.StatusConflict, "email already exists")
	}
	if err != nil {
		return storeError(c, err, "update profile failed")
	}
	if req.Password != "" {
		hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "hash password failed").SetInternal(err)
		}
		if err := h.Users.UpdatePassword(ctx, uid, hash); err != nil {
			return storeError(c, err, "update password failed")
		}
	}
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return storeError(c, err, "load profile failed")
	}
	return c.JSON(http.StatusOK, u.Profile())
}

// ForgotPassword always answers the same way, whether the email exists or not.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Accounts.RequestReset(ctx, req.Email); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "request reset failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "if the address is registered, a reset link has been sent"})
}

// ResetPassword consumes a reset token.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	err := h.Accounts.Reset(ctx, req.Token, req.Password)
	switch {
	case errors.Is(err, service.ErrInvalidResetToken), errors.Is(err, service.ErrWeakPassword):
		return badRequest(c, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "reset password failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}
