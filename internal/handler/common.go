// Package handler contains the HTTP handlers of the booking API. Handlers
// depend on small interfaces declared next to them so they can be tested
// without a database.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/smartbooking/internal/middleware"
	"github.com/iliyamo/smartbooking/internal/repository"
	"github.com/iliyamo/smartbooking/internal/validation"
)

// requestTimeout bounds the storage work of one request.
const requestTimeout = 5 * time.Second

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// getUserID returns the authenticated caller's id.
func getUserID(c echo.Context) (uint64, error) {
	id, ok := middleware.CurrentUser(c)
	if !ok {
		return 0, errors.New("no authenticated user in context")
	}
	return id.UserID, nil
}

// caller returns the identity of the request, zero for anonymous visitors.
func caller(c echo.Context) middleware.Identity {
	id, _ := middleware.CurrentUser(c)
	return id
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func jsonError(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"error": msg})
}

func badRequest(c echo.Context, msg string) error { return jsonError(c, http.StatusBadRequest, msg) }
func notFound(c echo.Context) error               { return jsonError(c, http.StatusNotFound, "not found") }
func forbidden(c echo.Context) error              { return jsonError(c, http.StatusForbidden, "forbidden") }
func unauthorized(c echo.Context) error           { return jsonError(c, http.StatusUnauthorized, "unauthorized") }

// bindValid binds the body into dst and runs struct validation. On failure
// the 400 response is already written and ok is false.
func bindValid(c echo.Context, dst any) (ok bool, err error) {
	if err := c.Bind(dst); err != nil {
		return false, badRequest(c, "invalid body")
	}
	if err := c.Validate(dst); err != nil {
		return false, validationFailed(c, err)
	}
	return true, nil
}

func validationFailed(c echo.Context, err error) error {
	if fields := validation.Fields(err); fields != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": fields})
	}
	return badRequest(c, err.Error())
}

// storeError maps repository sentinels to responses. Unknown errors become
// a 500 carrying err as internal cause for the request logger.
func storeError(c echo.Context, err error, msg string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return notFound(c)
	case errors.Is(err, repository.ErrForbidden):
		return forbidden(c)
	case errors.Is(err, repository.ErrConflict):
		return jsonError(c, http.StatusConflict, "conflict")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, msg).SetInternal(err)
}

// ErrorHandler renders errors escaping handlers as {"error": msg}.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	msg := http.StatusText(status)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(status)
		}
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, echo.Map{"error": msg})
}
