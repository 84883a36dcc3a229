package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// CSRF cookie and header names, as read by the storefront.
const (
	CSRFCookie = "XSRF-TOKEN"
	CSRFHeader = "X-XSRF-TOKEN"
)

// csrfExempt lists endpoints reachable before a session exists, plus the
// payment webhook which is authenticated by its signature.
var csrfExempt = map[string]bool{
	"/api/users/login":           true,
	"/api/users/register":        true,
	"/api/users/forgot-password": true,
	"/api/users/reset-password":  true,
	"/api/webhooks/stripe":       true,
}

// CSRF returns the double-submit cookie middleware. The token cookie is
// readable by scripts so the storefront can echo it in X-XSRF-TOKEN.
func CSRF(secure bool) echo.MiddlewareFunc {
	return echomw.CSRFWithConfig(echomw.CSRFConfig{
		Skipper:        csrfSkipper,
		TokenLookup:    "header:" + CSRFHeader,
		CookieName:     CSRFCookie,
		CookiePath:     "/",
		CookieHTTPOnly: false,
		CookieSecure:   secure,
		CookieSameSite: http.SameSiteLaxMode,
		ErrorHandler: func(err error, c echo.Context) error {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "invalid csrf token"})
		},
	})
}

func csrfSkipper(c echo.Context) bool {
	return csrfExempt[c.Request().URL.Path] || IsBearer(c)
}
