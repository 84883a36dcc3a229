package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/smartbooking/internal/middleware"
	"github.com/iliyamo/smartbooking/internal/model"
	"github.com/iliyamo/smartbooking/internal/repository"
)

type MockReviewStore struct {
	mock.Mock
}

func (m *MockReviewStore) Create(ctx context.Context, rv *model.Review) error {
	return m.Called(ctx, rv).Error(0)
}

func (m *MockReviewStore) ListValidatedByShow(ctx context.Context, showID uint64) ([]model.Review, error) {
	args := m.Called(ctx, showID)
	return args.Get(0).([]model.Review), args.Error(1)
}

func (m *MockReviewStore) ListValidated(ctx context.Context) ([]model.Review, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Review), args.Error(1)
}

func (m *MockReviewStore) ListPending(ctx context.Context) ([]model.Review, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Review), args.Error(1)
}

func (m *MockReviewStore) Validate(ctx context.Context, id uint64) (model.Review, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Review), args.Error(1)
}

func (m *MockReviewStore) Delete(ctx context.Context, id uint64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockReviewStore) Stats(ctx context.Context) (model.ReviewStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.ReviewStats), args.Error(1)
}

type fakeShows map[uint64]model.Show

func (f fakeShows) GetByID(_ context.Context, id uint64) (model.Show, error) {
	s, ok := f[id]
	if !ok {
		return model.Show{}, repository.ErrNotFound
	}
	return s, nil
}

func newReviewServer(store *MockReviewStore) *echo.Echo {
	h := NewReviewHandler(store, fakeShows{1: {ID: 1, Title: "Ay Caramba"}})
	e := newEcho()
	member := as(middleware.Identity{UserID: 5, Login: "bob", Roles: []string{model.RoleMember}})
	e.GET("/reviews", h.List)
	e.GET("/reviews/show/:showId", h.ByShow)
	e.POST("/reviews", h.Create, member)
	e.PUT("/reviews/:id/validate", h.Validate)
	e.DELETE("/reviews/:id", h.Delete)
	e.GET("/reviews/admin/stats", h.Stats)
	return e
}

func TestCreateReview_StarsBounds(t *testing.T) {
	store := new(MockReviewStore)
	e := newReviewServer(store)
	for _, stars := range []string{"0", "6", "-1"} {
		rec := serve(e, jsonReq(http.MethodPost, "/reviews", `{"showId":1,"comment":"great","stars":`+stars+`}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "stars=%s", stars)
	}
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateReview_Comment(t *testing.T) {
	store := new(MockReviewStore)
	e := newReviewServer(store)

	rec := serve(e, jsonReq(http.MethodPost, "/reviews", `{"showId":1,"comment":"   ","stars":4}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	long := strings.Repeat("é", maxCommentLen+1)
	rec = serve(e, jsonReq(http.MethodPost, "/reviews", `{"showId":1,"comment":"`+long+`","stars":4}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateReview_Created(t *testing.T) {
	store := new(MockReviewStore)
	store.On("Create", mock.Anything, mock.MatchedBy(func(rv *model.Review) bool {
		return rv.UserID == 5 && rv.ShowID == 1 && rv.Stars == 5 && rv.Comment == "great show"
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*model.Review).ID = 40
	}).Return(nil)

	rec := serve(newReviewServer(store), jsonReq(http.MethodPost, "/reviews", `{"showId":1,"comment":" great show ","stars":5}`))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := body(t, rec)
	assert.EqualValues(t, 40, b["id"])
	assert.Equal(t, false, b["validated"])
	store.AssertExpectations(t)
}

func TestCreateReview_DuplicateAndUnknownShow(t *testing.T) {
	store := new(MockReviewStore)
	store.On("Create", mock.Anything, mock.Anything).Return(repository.ErrDuplicateReview)
	e := newReviewServer(store)

	rec := serve(e, jsonReq(http.MethodPost, "/reviews", `{"showId":1,"comment":"again","stars":3}`))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(e, jsonReq(http.MethodPost, "/reviews", `{"showId":99,"comment":"who?","stars":3}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListReviews(t *testing.T) {
	store := new(MockReviewStore)
	store.On("ListValidated", mock.Anything).Return([]model.Review{{ID: 1}, {ID: 2}}, nil)
	store.On("ListValidatedByShow", mock.Anything, uint64(1)).Return([]model.Review{{ID: 2, ShowID: 1}}, nil)
	e := newReviewServer(store)

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/reviews", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":1`)

	for _, target := range []string{"/reviews?showId=1", "/reviews/show/1"} {
		rec = serve(e, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), `"id":1,`)
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/reviews?showId=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModeration(t *testing.T) {
	store := new(MockReviewStore)
	store.On("Validate", mock.Anything, uint64(3)).Return(model.Review{ID: 3, Validated: true}, nil)
	store.On("Validate", mock.Anything, uint64(4)).Return(model.Review{}, repository.ErrNotFound)
	store.On("Delete", mock.Anything, uint64(3)).Return(nil)
	store.On("Stats", mock.Anything).Return(model.ReviewStats{TotalReviews: 2, ValidatedReviews: 1, PendingReviews: 1, GlobalAverage: 4}, nil)
	e := newReviewServer(store)

	rec := serve(e, httptest.NewRequest(http.MethodPut, "/reviews/3/validate", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body(t, rec)["validated"])

	rec = serve(e, httptest.NewRequest(http.MethodPut, "/reviews/4/validate", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(e, httptest.NewRequest(http.MethodDelete, "/reviews/3", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/reviews/admin/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, body(t, rec)["globalAverage"])
}
