// Package router registers the HTTP routes of the API and the middleware
// guarding them.
package router

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/smartbooking/internal/config"
	"github.com/iliyamo/smartbooking/internal/handler"
	"github.com/iliyamo/smartbooking/internal/middleware"
	"github.com/iliyamo/smartbooking/internal/model"
	"github.com/iliyamo/smartbooking/internal/validation"
)

// Handlers groups the handlers mounted by New.
type Handlers struct {
	Auth            *handler.AuthHandler
	Shows           *handler.ShowHandler
	Representations *handler.RepresentationHandler
	Locations       *handler.LocationHandler
	Artists         *handler.ArtistHandler
	Reservations    *handler.ReservationHandler
	Reviews         *handler.ReviewHandler
	Admin           *handler.AdminHandler
	Webhooks        *handler.WebhookHandler
}

// Deps carries what the global middleware chain needs.
type Deps struct {
	Cfg       config.Config
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig
	Redis     *redis.Client // nil turns cache and rate limiting into pass-through
	Refresher middleware.SessionRefresher
	Log       *zap.Logger
}

// showEditors may create and edit shows and their representations.
var showEditors = []string{model.RoleAdmin, model.RoleProducer, model.RoleAffiliate}

// New builds the echo instance with the middleware chain and every route.
func New(d Deps, h Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()
	e.HTTPErrorHandler = handler.ErrorHandler

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{d.Cfg.FrontendURL},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, middleware.CSRFHeader},
		AllowCredentials: true,
	}))
	e.Use(echomw.BodyLimit(bodyLimit(d.Cfg.UploadMaxBytes)))
	e.Use(middleware.Authenticate(middleware.AuthConfig{
		Secret:       d.Cfg.JWTSecret,
		CookieSecure: d.Cfg.CookieSecure,
		Refresher:    d.Refresher,
	}))
	e.Use(middleware.CSRF(d.Cfg.CookieSecure))

	e.Static(uploadsPrefix, d.Cfg.UploadDir)
	RegisterRoutes(e)

	api := e.Group("/api", middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log))
	cached := middleware.NewRedisCache(d.Cache, d.Redis)

	RegisterAuth(api, h.Auth)
	RegisterCatalog(api, h.Shows, h.Representations, h.Locations, h.Artists, cached)
	RegisterReservations(api, h.Reservations, h.Webhooks)
	RegisterReviews(api, h.Reviews, cached)
	RegisterAdmin(api, h.Admin)
	return e
}

const uploadsPrefix = "/uploads"

// bodyLimit leaves room for the multipart envelope around a poster.
func bodyLimit(maxUpload int64) string {
	const mb = 1 << 20
	n := (maxUpload+mb-1)/mb + 1
	return strconv.FormatInt(n, 10) + "M"
}

// RegisterRoutes registers routes that live outside /api.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth mounts the account endpoints under /api/users.
func RegisterAuth(api *echo.Group, a *handler.AuthHandler) {
	g := api.Group("/users")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/logout", a.Logout)
	g.POST("/forgot-password", a.ForgotPassword)
	g.POST("/reset-password", a.ResetPassword)

	auth := middleware.RequireAuth()
	g.GET("/me", a.Me, auth)
	g.GET("/profile", a.Profile, auth)
	g.PUT("/profile", a.UpdateProfile, auth)
}

// RegisterCatalog mounts shows, representations, venues and artists.
func RegisterCatalog(api *echo.Group, s *handler.ShowHandler, r *handler.RepresentationHandler,
	l *handler.LocationHandler, a *handler.ArtistHandler, cached echo.MiddlewareFunc) {
	admin := middleware.RequireRole(model.RoleAdmin)
	editors := middleware.RequireRole(showEditors...)

	api.GET("/shows", s.List, cached)
	api.GET("/shows/search", s.Search, cached)
	api.GET("/shows/slug/:slug", s.GetBySlug, cached)
	api.GET("/shows/admin", s.AdminList, admin)
	api.GET("/shows/mine", s.Mine, editors)
	api.GET("/shows/:id", s.Get, cached)
	api.POST("/shows", s.Create, editors)
	api.PUT("/shows/:id", s.Update, editors)
	api.DELETE("/shows/:id", s.Delete, middleware.RequireRole(model.RoleAdmin, model.RoleProducer))
	api.PUT("/shows/:id/confirm", s.Confirm, admin)
	api.PUT("/shows/:id/revoke", s.Revoke, admin)

	api.GET("/shows/:id/representations", r.ListByShow, cached)
	api.POST("/shows/:id/representations", r.Create, editors)
	api.PUT("/representations/:id", r.Update, editors)
	api.DELETE("/representations/:id", r.Delete, editors)

	api.GET("/locations", l.List, cached)
	api.GET("/locations/:id", l.Get, cached)
	api.POST("/locations", l.Create, admin)
	api.DELETE("/locations/:id", l.Delete, admin)
	api.GET("/localities", l.Localities, cached)

	api.GET("/artists", a.List, cached)
	api.GET("/artists/:id", a.Get, cached)
	api.POST("/artists/admin", a.Create, admin)
	api.DELETE("/artists/admin/:id", a.Delete, admin)
	api.GET("/artist-types", a.ListTypes, cached)
	api.POST("/artist-types", a.CreateType, admin)
}

// RegisterReservations mounts the buyer endpoints and the payment webhook.
func RegisterReservations(api *echo.Group, r *handler.ReservationHandler, w *handler.WebhookHandler) {
	g := api.Group("/reservations", middleware.RequireAuth())
	g.POST("", r.Create)
	g.GET("/my-bookings", r.MyBookings)
	g.GET("/:id", r.Get)
	g.DELETE("/:id", r.Cancel)

	api.POST("/webhooks/stripe", w.Stripe)
}

// RegisterReviews mounts reviews and their moderation.
func RegisterReviews(api *echo.Group, r *handler.ReviewHandler, cached echo.MiddlewareFunc) {
	admin := middleware.RequireRole(model.RoleAdmin)
	api.GET("/reviews", r.List)
	api.GET("/reviews/show/:showId", r.ByShow, cached)
	api.POST("/reviews", r.Create, middleware.RequireAuth())
	api.GET("/reviews/pending", r.Pending, admin)
	api.GET("/reviews/admin/stats", r.Stats, admin)
	api.PUT("/reviews/:id/validate", r.Validate, admin)
	api.DELETE("/reviews/:id", r.Delete, admin)
}

// RegisterAdmin mounts user management and dashboard counters.
func RegisterAdmin(api *echo.Group, a *handler.AdminHandler) {
	admin := middleware.RequireRole(model.RoleAdmin)
	api.GET("/users", a.ListUsers, admin)
	api.DELETE("/users/:id", a.DeleteUser, admin)
	api.PUT("/users/:id/roles", a.SetRoles, admin)
	api.GET("/admin/stats", a.DashboardStats, admin)
}
