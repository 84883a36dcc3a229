package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/smartbooking/internal/model"
)

// Context keys set by Authenticate.
const (
	identityKey = "identity"
	bearerKey   = "auth_bearer"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID uint64
	Login  string
	Roles  []string
}

// HasRole reports whether the caller holds any of roles.
func (i Identity) HasRole(roles ...string) bool {
	return model.HasAnyRole(i.Roles, roles...)
}

// CurrentUser returns the caller, if the request is authenticated.
func CurrentUser(c echo.Context) (Identity, bool) {
	id, ok := c.Get(identityKey).(Identity)
	return id, ok && id.UserID != 0
}

// SetIdentity attaches an authenticated caller to the request.
func SetIdentity(c echo.Context, id Identity) {
	c.Set(identityKey, id)
}

// IsBearer reports whether the caller authenticated with an Authorization
// header rather than cookies.
func IsBearer(c echo.Context) bool {
	b, _ := c.Get(bearerKey).(bool)
	return b
}

// userID returns the caller id as a string for rate limit keys, "anon"
// for anonymous requests.
func userID(c echo.Context) string {
	if id, ok := CurrentUser(c); ok {
		return strconv.FormatUint(id.UserID, 10)
	}
	return "anon"
}
