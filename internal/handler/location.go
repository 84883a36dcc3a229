package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/smartbooking/internal/model"
	"github.com/iliyamo/smartbooking/internal/repository"
	"github.com/iliyamo/smartbooking/internal/utils"
)

// LocationStore is the venue persistence.
type LocationStore interface {
	List(ctx context.Context) ([]model.Location, error)
	GetByID(ctx context.Context, id uint64) (model.Location, error)
	SlugTaken(ctx context.Context, slug string) (bool, error)
	Create(ctx context.Context, l *model.Location) error
	Delete(ctx context.Context, id uint64) error
	ListLocalities(ctx context.Context) ([]model.Locality, error)
}

// LocationHandler serves venues.
type LocationHandler struct {
	Locations LocationStore
}

func NewLocationHandler(locations LocationStore) *LocationHandler {
	return &LocationHandler{Locations: locations}
}

type locationReq struct {
	Designation string `json:"designation" validate:"required,max=60"`
	Address     string `json:"address" validate:"required,max=255"`
	Website     string `json:"website" validate:"omitempty,url,max=255"`
	Phone       string `json:"phone" validate:"omitempty,max=30"`
	PostalCode  string `json:"postalCode" validate:"required,max=6"`
	Locality    string `json:"locality" validate:"required,max=60"`
}

func (h *LocationHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Locations.List(ctx)
	if err != nil {
		return storeError(c, err, "list locations failed")
	}
	return c.JSON(http.StatusOK, list)
}

func (h *LocationHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	l, err := h.Locations.GetByID(ctx, id)
	if err != nil {
		return storeError(c, err, "load location failed")
	}
	return c.JSON(http.StatusOK, l)
}

// Localities lists the known postal code and town pairs.
func (h *LocationHandler) Localities(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Locations.ListLocalities(ctx)
	if err != nil {
		return storeError(c, err, "list localities failed")
	}
	return c.JSON(http.StatusOK, list)
}

// Create adds a venue; its slug derives from the designation.
func (h *LocationHandler) Create(c echo.Context) error {
	var req locationReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	designation := strings.TrimSpace(req.Designation)
	slug, err := utils.UniqueSlug(utils.Slugify(designation), func(s string) (bool, error) {
		return h.Locations.SlugTaken(ctx, s)
	})
	if err != nil {
		return storeError(c, err, "slug lookup failed")
	}
	l := model.Location{
		Slug:         slug,
		Designation:  designation,
		Address:      strings.TrimSpace(req.Address),
		Website:      strings.TrimSpace(req.Website),
		Phone:        strings.TrimSpace(req.Phone),
		PostalCode:   strings.TrimSpace(req.PostalCode),
		LocalityName: strings.TrimSpace(req.Locality),
	}
	if err := h.Locations.Create(ctx, &l); err != nil {
		return storeError(c, err, "create location failed")
	}
	return c.JSON(http.StatusCreated, l)
}

// Delete removes an unused venue.
func (h *LocationHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Locations.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return jsonError(c, http.StatusConflict, "location is in use")
		}
		return storeError(c, err, "delete location failed")
	}
	return c.NoContent(http.StatusNoContent)
}
