package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/smartbooking/internal/model"
	"github.com/iliyamo/smartbooking/internal/repository"
)

// AdminUsers is the user administration persistence.
type AdminUsers interface {
	List(ctx context.Context) ([]model.User, error)
	SetRoles(ctx context.Context, id uint64, roles []string) error
	GetByID(ctx context.Context, id uint64) (model.User, error)
	Delete(ctx context.Context, id uint64) error
}

// Counter returns a row count.
type Counter func(ctx context.Context) (int64, error)

// StatsSources feeds the admin dashboard.
type StatsSources struct {
	Users        Counter
	Shows        func(ctx context.Context) (total, pending int64, err error)
	Reservations Counter
	Locations    Counter
	Artists      Counter
	Reviews      func(ctx context.Context) (model.ReviewStats, error)
}

// AdminHandler serves user management and the dashboard counters.
type AdminHandler struct {
	Users AdminUsers
	Stats StatsSources
}

func NewAdminHandler(users AdminUsers, stats StatsSources) *AdminHandler {
	return &AdminHandler{Users: users, Stats: stats}
}

type rolesReq struct {
	Roles []string `json:"roles" validate:"required,min=1,dive,role"`
}

func (h *AdminHandler) ListUsers(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	users, err := h.Users.List(ctx)
	if err != nil {
		return storeError(c, err, "list users failed")
	}
	out := make([]model.UserProfile, 0, len(users))
	for _, u := range users {
		out = append(out, u.Profile())
	}
	return c.JSON(http.StatusOK, out)
}

// DeleteUser removes an account other than the caller's own.
func (h *AdminHandler) DeleteUser(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	if caller(c).UserID == id {
		return jsonError(c, http.StatusConflict, "cannot delete your own account")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Users.Delete(ctx, id); err != nil {
		return storeError(c, err, "delete user failed")
	}
	return c.NoContent(http.StatusNoContent)
}

// SetRoles replaces the roles of a user and returns the updated profile.
func (h *AdminHandler) SetRoles(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req rolesReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Users.SetRoles(ctx, id, req.Roles); err != nil {
		return storeError(c, err, "set roles failed")
	}
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c)
		}
		return storeError(c, err, "load user failed")
	}
	return c.JSON(http.StatusOK, u.Profile())
}

// DashboardStats gathers the counters concurrently.
func (h *AdminHandler) DashboardStats(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	var st model.AdminStats
	g, gctx := errgroup.WithContext(ctx)
	count := func(fn Counter, dst *int64) {
		g.Go(func() error {
			n, err := fn(gctx)
			*dst = n
			return err
		})
	}
	count(h.Stats.Users, &st.TotalUsers)
	count(h.Stats.Reservations, &st.TotalReservations)
	count(h.Stats.Locations, &st.TotalLocations)
	count(h.Stats.Artists, &st.TotalArtists)
	g.Go(func() error {
		var err error
		st.TotalShows, st.PendingShows, err = h.Stats.Shows(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		st.ReviewStats, err = h.Stats.Reviews(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return storeError(c, err, "load stats failed")
	}
	return c.JSON(http.StatusOK, st)
}
