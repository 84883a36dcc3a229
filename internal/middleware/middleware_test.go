package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/smartbooking/internal/config"
	"github.com/iliyamo/smartbooking/internal/model"
	"github.com/iliyamo/smartbooking/internal/utils"
)

const secret = "test-secret"

type fakeRefresher struct {
	raw  string
	user model.User
}

func (f fakeRefresher) Refresh(_ context.Context, raw string) (model.User, utils.AccessToken, error) {
	if raw != f.raw {
		return model.User{}, utils.AccessToken{}, errors.New("invalid")
	}
	at, err := utils.NewAccessToken(secret, f.user.ID, f.user.Login, f.user.Roles, 5)
	return f.user, at, err
}

func whoAmI(c echo.Context) error {
	id, ok := CurrentUser(c)
	if !ok {
		return c.String(http.StatusOK, "anon")
	}
	return c.String(http.StatusOK, id.Login)
}

func newAuthEcho(r SessionRefresher) *echo.Echo {
	e := echo.New()
	e.Use(Authenticate(AuthConfig{Secret: secret, Refresher: r}))
	e.GET("/who", whoAmI)
	e.GET("/private", whoAmI, RequireAuth())
	e.GET("/admin", whoAmI, RequireRole(model.RoleAdmin))
	return e
}

func token(t *testing.T, id uint64, login string, roles ...string) string {
	at, err := utils.NewAccessToken(secret, id, login, roles, 5)
	require.NoError(t, err)
	return at.Token
}

func do(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate_Bearer(t *testing.T) {
	e := newAuthEcho(nil)
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token(t, 1, "ann", model.RoleMember))
	rec := do(e, req)
	assert.Equal(t, "ann", rec.Body.String())
}

func TestAuthenticate_Cookie(t *testing.T) {
	e := newAuthEcho(nil)
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: token(t, 2, "bob")})
	assert.Equal(t, "bob", do(e, req).Body.String())
}

func TestAuthenticate_InvalidTokenIsAnonymous(t *testing.T) {
	e := newAuthEcho(nil)
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer garbage")
	assert.Equal(t, "anon", do(e, req).Body.String())

	other, err := utils.NewAccessToken("other-secret", 1, "eve", nil, 5)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/who", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: other.Token})
	assert.Equal(t, "anon", do(e, req).Body.String())
}

func TestAuthenticate_RefreshCookieIssuesAccess(t *testing.T) {
	e := newAuthEcho(fakeRefresher{raw: "r1", user: model.User{ID: 3, Login: "cid", Roles: []string{model.RoleMember}}})
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: "expired"})
	req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: "r1"})
	rec := do(e, req)
	assert.Equal(t, "cid", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Set-Cookie"), AccessCookie+"=")

	req = httptest.NewRequest(http.MethodGet, "/who", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: "wrong"})
	assert.Equal(t, "anon", do(e, req).Body.String())
}

func TestRequireAuth(t *testing.T) {
	e := newAuthEcho(nil)
	rec := do(e, httptest.NewRequest(http.MethodGet, "/private", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	e := newAuthEcho(nil)

	rec := do(e, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token(t, 1, "ann", model.RoleMember))
	assert.Equal(t, http.StatusForbidden, do(e, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token(t, 1, "root", model.RoleMember, model.RoleAdmin))
	assert.Equal(t, http.StatusOK, do(e, req).Code)
}

func TestSessionCookies(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	at, _ := utils.NewAccessToken(secret, 1, "ann", nil, 5)
	rt, _ := utils.NewRefreshToken(1)
	SetSessionCookies(c, at, rt, true)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, AccessCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, RefreshCookie, cookies[1].Name)
	assert.Equal(t, "/api", cookies[1].Path)

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	ClearSessionCookies(c, false)
	for _, ck := range rec.Result().Cookies() {
		assert.Empty(t, ck.Value)
		assert.Equal(t, -1, ck.MaxAge)
	}
}

func newCSRFEcho() *echo.Echo {
	e := echo.New()
	e.Use(Authenticate(AuthConfig{Secret: secret}))
	e.Use(CSRF(false))
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	e.GET("/api/shows", ok)
	e.POST("/api/reservations", ok)
	e.POST("/api/users/login", ok)
	e.POST("/api/webhooks/stripe", ok)
	return e
}

func TestCSRF(t *testing.T) {
	e := newCSRFEcho()

	// a safe request hands out the token cookie
	rec := do(e, httptest.NewRequest(http.MethodGet, "/api/shows", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var csrf *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == CSRFCookie {
			csrf = ck
		}
	}
	require.NotNil(t, csrf)
	assert.False(t, csrf.HttpOnly)

	rec = do(e, httptest.NewRequest(http.MethodPost, "/api/reservations", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/reservations", nil)
	req.AddCookie(csrf)
	req.Header.Set(CSRFHeader, "wrong")
	assert.Equal(t, http.StatusForbidden, do(e, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/reservations", nil)
	req.AddCookie(csrf)
	req.Header.Set(CSRFHeader, csrf.Value)
	assert.Equal(t, http.StatusOK, do(e, req).Code)
}

func TestCSRF_Exemptions(t *testing.T) {
	e := newCSRFEcho()
	assert.Equal(t, http.StatusOK, do(e, httptest.NewRequest(http.MethodPost, "/api/users/login", nil)).Code)
	assert.Equal(t, http.StatusOK, do(e, httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", nil)).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/reservations", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token(t, 1, "ann"))
	assert.Equal(t, http.StatusOK, do(e, req).Code)
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	e := echo.New()
	e.Use(RequestLogger(zap.New(core)))
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/missing", func(c echo.Context) error { return echo.ErrNotFound })
	e.GET("/boom", func(c echo.Context) error { return errors.New("boom") })

	do(e, httptest.NewRequest(http.MethodGet, "/ok", nil))
	do(e, httptest.NewRequest(http.MethodGet, "/missing", nil))
	rec := do(e, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, zap.ErrorLevel, entries[2].Level)
	assert.Equal(t, "/boom", entries[2].ContextMap()["path"])
}

func TestCacheEntryRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": []string{"application/json"}}
	bs, err := encodeEntry(200, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)
	status, got, body, ok := decodeEntry(bs)
	require.True(t, ok)
	assert.Equal(t, 200, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodeEntry([]byte{0, 0, 0})
	assert.False(t, ok)
}

func TestCacheKey(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "sb:cache", KeyStrategy: "route_query"}
	key := func(target string) string {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
		c.SetPath("/api/shows/:id")
		return cacheKey(cfg, c)
	}
	assert.True(t, strings.HasPrefix(key("/api/shows/1"), "sb:cache:"))
	assert.NotEqual(t, key("/api/shows/1"), key("/api/shows/2"))
	assert.NotEqual(t, key("/api/shows/1?x=1"), key("/api/shows/1?x=2"))
	assert.Equal(t, key("/api/shows/1"), key("/api/shows/1"))
}

func TestPassThroughWithoutRedis(t *testing.T) {
	e := echo.New()
	e.Use(NewRedisCache(config.CacheConfig{Enabled: true}, nil))
	e.Use(NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, nil))
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "x") })
	rec := do(e, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, "x", rec.Body.String())
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/shows", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/shows")

	cfg := config.RateLimitConfig{Prefix: "sb:rl", KeyStrategy: "ip_user_route"}
	assert.Equal(t, "sb:rl:ip:10.0.0.1:user:anon:route:GET /api/shows", rateKey(cfg, c))

	SetIdentity(c, Identity{UserID: 7})
	cfg.KeyStrategy = "user"
	assert.Equal(t, "sb:rl:user:7", rateKey(cfg, c))
}
