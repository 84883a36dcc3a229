package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/smartbooking/internal/model"
	"github.com/iliyamo/smartbooking/internal/repository"
)

const maxCommentLen = 2000

// ReviewStore is the review persistence.
type ReviewStore interface {
	Create(ctx context.Context, rv *model.Review) error
	ListValidatedByShow(ctx context.Context, showID uint64) ([]model.Review, error)
	ListValidated(ctx context.Context) ([]model.Review, error)
	ListPending(ctx context.Context) ([]model.Review, error)
	Validate(ctx context.Context, id uint64) (model.Review, error)
	Delete(ctx context.Context, id uint64) error
	Stats(ctx context.Context) (model.ReviewStats, error)
}

// ReviewHandler serves reviews and their moderation.
type ReviewHandler struct {
	Reviews ReviewStore
	Shows   ShowGetter
}

func NewReviewHandler(reviews ReviewStore, shows ShowGetter) *ReviewHandler {
	return &ReviewHandler{Reviews: reviews, Shows: shows}
}

type reviewReq struct {
	ShowID  uint64 `json:"showId" validate:"required"`
	Comment string `json:"comment" validate:"required"`
	Stars   int    `json:"stars" validate:"min=1,max=5"`
}

// ByShow lists the validated reviews of a show.
func (h *ReviewHandler) ByShow(c echo.Context) error {
	showID, ok := parseID(c, "showId")
	if !ok {
		return badRequest(c, "invalid showId")
	}
	return h.listValidated(c, showID)
}

// List lists validated reviews, filtered by the optional showId query.
func (h *ReviewHandler) List(c echo.Context) error {
	var showID uint64
	if raw := c.QueryParam("showId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return badRequest(c, "invalid showId")
		}
		showID = id
	}
	return h.listValidated(c, showID)
}

func (h *ReviewHandler) listValidated(c echo.Context, showID uint64) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	var (
		list []model.Review
		err  error
	)
	if showID == 0 {
		list, err = h.Reviews.ListValidated(ctx)
	} else {
		list, err = h.Reviews.ListValidatedByShow(ctx, showID)
	}
	if err != nil {
		return storeError(c, err, "list reviews failed")
	}
	return c.JSON(http.StatusOK, list)
}

// Create stores the caller's review, pending moderation.
func (h *ReviewHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req reviewReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	comment := strings.TrimSpace(req.Comment)
	if comment == "" || utf8.RuneCountInString(comment) > maxCommentLen {
		return badRequest(c, "comment must be between 1 and 2000 characters")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	if _, err := h.Shows.GetByID(ctx, req.ShowID); err != nil {
		return storeError(c, err, "load show failed")
	}
	rv := model.Review{UserID: uid, ShowID: req.ShowID, Comment: comment, Stars: uint8(req.Stars)}
	if err := h.Reviews.Create(ctx, &rv); err != nil {
		if errors.Is(err, repository.ErrDuplicateReview) {
			return jsonError(c, http.StatusConflict, "you already reviewed this show")
		}
		return storeError(c, err, "create review failed")
	}
	return c.JSON(http.StatusCreated, rv)
}

func (h *ReviewHandler) Pending(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Reviews.ListPending(ctx)
	if err != nil {
		return storeError(c, err, "list pending reviews failed")
	}
	return c.JSON(http.StatusOK, list)
}

func (h *ReviewHandler) Validate(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	rv, err := h.Reviews.Validate(ctx, id)
	if err != nil {
		return storeError(c, err, "validate review failed")
	}
	return c.JSON(http.StatusOK, rv)
}

func (h *ReviewHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Reviews.Delete(ctx, id); err != nil {
		return storeError(c, err, "delete review failed")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ReviewHandler) Stats(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	st, err := h.Reviews.Stats(ctx)
	if err != nil {
		return storeError(c, err, "review stats failed")
	}
	return c.JSON(http.StatusOK, st)
}
