package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/smartbooking/internal/middleware"
	"github.com/iliyamo/smartbooking/internal/model"
	"github.com/iliyamo/smartbooking/internal/repository"
)

type MockAdminUsers struct {
	mock.Mock
}

func (m *MockAdminUsers) List(ctx context.Context) ([]model.User, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.User), args.Error(1)
}

func (m *MockAdminUsers) SetRoles(ctx context.Context, id uint64, roles []string) error {
	return m.Called(ctx, id, roles).Error(0)
}

func (m *MockAdminUsers) GetByID(ctx context.Context, id uint64) (model.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *MockAdminUsers) Delete(ctx context.Context, id uint64) error {
	return m.Called(ctx, id).Error(0)
}

func count(n int64) Counter {
	return func(context.Context) (int64, error) { return n, nil }
}

func newAdminServer(users *MockAdminUsers, stats StatsSources) *echo.Echo {
	h := NewAdminHandler(users, stats)
	e := newEcho()
	admin := as(middleware.Identity{UserID: 1, Login: "root", Roles: []string{model.RoleAdmin}})
	e.GET("/users", h.ListUsers, admin)
	e.DELETE("/users/:id", h.DeleteUser, admin)
	e.PUT("/users/:id/roles", h.SetRoles, admin)
	e.GET("/admin/stats", h.DashboardStats, admin)
	return e
}

func TestListUsers_HidesHashes(t *testing.T) {
	users := new(MockAdminUsers)
	users.On("List", mock.Anything).Return([]model.User{
		{ID: 1, Login: "root", PasswordHash: "$2a$secret", Roles: []string{model.RoleAdmin}},
		{ID: 2, Login: "ann", PasswordHash: "$2a$secret"},
	}, nil)

	rec := serve(newAdminServer(users, StatsSources{}), httptest.NewRequest(http.MethodGet, "/users", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
	assert.Contains(t, rec.Body.String(), `"role":"ADMIN"`)
}

func TestDeleteUser(t *testing.T) {
	users := new(MockAdminUsers)
	users.On("Delete", mock.Anything, uint64(2)).Return(nil)
	users.On("Delete", mock.Anything, uint64(9)).Return(repository.ErrNotFound)
	e := newAdminServer(users, StatsSources{})

	rec := serve(e, httptest.NewRequest(http.MethodDelete, "/users/1", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	users.AssertNotCalled(t, "Delete", mock.Anything, uint64(1))

	rec = serve(e, httptest.NewRequest(http.MethodDelete, "/users/2", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(e, httptest.NewRequest(http.MethodDelete, "/users/9", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetRoles(t *testing.T) {
	users := new(MockAdminUsers)
	roles := []string{model.RoleProducer, model.RoleMember}
	users.On("SetRoles", mock.Anything, uint64(2), roles).Return(nil)
	users.On("GetByID", mock.Anything, uint64(2)).Return(model.User{ID: 2, Login: "ann", Roles: roles}, nil)
	e := newAdminServer(users, StatsSources{})

	rec := serve(e, jsonReq(http.MethodPut, "/users/2/roles", `{"roles":["PRODUCER","MEMBER"]}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.RoleProducer, body(t, rec)["role"])

	for _, b := range []string{`{"roles":[]}`, `{"roles":["KING"]}`, `{}`} {
		rec = serve(e, jsonReq(http.MethodPut, "/users/2/roles", b))
		assert.Equal(t, http.StatusBadRequest, rec.Code, b)
	}
	users.AssertNumberOfCalls(t, "SetRoles", 1)
}

func TestDashboardStats(t *testing.T) {
	stats := StatsSources{
		Users:        count(10),
		Reservations: count(7),
		Locations:    count(3),
		Artists:      count(4),
		Shows: func(context.Context) (int64, int64, error) {
			return 6, 2, nil
		},
		Reviews: func(context.Context) (model.ReviewStats, error) {
			return model.ReviewStats{TotalReviews: 5, GlobalAverage: 3.5}, nil
		},
	}
	rec := serve(newAdminServer(new(MockAdminUsers), stats), httptest.NewRequest(http.MethodGet, "/admin/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	b := body(t, rec)
	assert.EqualValues(t, 10, b["totalUsers"])
	assert.EqualValues(t, 6, b["totalShows"])
	assert.EqualValues(t, 2, b["pendingShows"])
	assert.EqualValues(t, 7, b["totalReservations"])
	assert.EqualValues(t, 3, b["totalLocations"])
	assert.EqualValues(t, 4, b["totalArtists"])
	assert.EqualValues(t, 3.5, b["reviewStats"].(map[string]any)["globalAverage"])

	stats.Artists = func(context.Context) (int64, error) { return 0, errors.New("db down") }
	rec = serve(newAdminServer(new(MockAdminUsers), stats), httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
