package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/smartbooking/internal/model"
	"github.com/iliyamo/smartbooking/internal/utils"
)

// Session cookie names.
const (
	AccessCookie  = "SB_ACCESS"
	RefreshCookie = "SB_REFRESH"
)

// SessionRefresher turns a refresh token into a new access token.
type SessionRefresher interface {
	Refresh(ctx context.Context, raw string) (model.User, utils.AccessToken, error)
}

// AuthConfig configures Authenticate.
type AuthConfig struct {
	Secret       string
	CookieSecure bool
	Refresher    SessionRefresher
}

// Authenticate resolves the caller from a Bearer token, the access cookie
// or, failing both, the refresh cookie. A valid refresh cookie silently
// issues a new access cookie. Requests without valid credentials continue
// anonymously; RequireAuth and RequireRole reject them where needed.
func Authenticate(cfg AuthConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if raw, ok := bearerToken(c.Request()); ok {
				if claims, err := utils.ParseAccessToken(cfg.Secret, raw); err == nil {
					setClaims(c, claims)
					c.Set(bearerKey, true)
				}
				return next(c)
			}

			if ck, err := c.Cookie(AccessCookie); err == nil && ck.Value != "" {
				if claims, err := utils.ParseAccessToken(cfg.Secret, ck.Value); err == nil {
					setClaims(c, claims)
					return next(c)
				}
			}

			if cfg.Refresher != nil {
				if ck, err := c.Cookie(RefreshCookie); err == nil && ck.Value != "" {
					u, at, err := cfg.Refresher.Refresh(c.Request().Context(), ck.Value)
					if err == nil {
						SetAccessCookie(c, at, cfg.CookieSecure)
						SetIdentity(c, Identity{UserID: u.ID, Login: u.Login, Roles: u.Roles})
					}
				}
			}
			return next(c)
		}
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return raw, raw != ""
}

func setClaims(c echo.Context, claims *utils.SessionClaims) {
	id, _ := claims.UserID()
	SetIdentity(c, Identity{UserID: id, Login: claims.Login, Roles: claims.Roles})
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := CurrentUser(c); !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			return next(c)
		}
	}
}

// SetSessionCookies writes both session cookies after a login.
func SetSessionCookies(c echo.Context, at utils.AccessToken, rt utils.RefreshToken, secure bool) {
	SetAccessCookie(c, at, secure)
	c.SetCookie(sessionCookie(RefreshCookie, rt.Raw, "/api", rt.Exp, secure))
}

// SetAccessCookie writes the access cookie.
func SetAccessCookie(c echo.Context, at utils.AccessToken, secure bool) {
	c.SetCookie(sessionCookie(AccessCookie, at.Token, "/", at.Exp, secure))
}

// ClearSessionCookies expires both session cookies.
func ClearSessionCookies(c echo.Context, secure bool) {
	for _, ck := range []*http.Cookie{
		sessionCookie(AccessCookie, "", "/", time.Unix(0, 0), secure),
		sessionCookie(RefreshCookie, "", "/api", time.Unix(0, 0), secure),
	} {
		ck.MaxAge = -1
		c.SetCookie(ck)
	}
}

func sessionCookie(name, value, path string, exp time.Time, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  exp,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
