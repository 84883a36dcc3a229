package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/smartbooking/internal/model"
	"github.com/iliyamo/smartbooking/internal/repository"
)

// ArtistStore is the artist persistence.
type ArtistStore interface {
	List(ctx context.Context) ([]model.Artist, error)
	GetByID(ctx context.Context, id uint64) (model.Artist, error)
	Create(ctx context.Context, a *model.Artist) error
	ListArtistTypes(ctx context.Context) ([]model.ArtistType, error)
	CreateArtistType(ctx context.Context, artistID uint64, typeName string) (model.ArtistType, error)
	Delete(ctx context.Context, id uint64) error
}

// ArtistHandler serves artists and their types.
type ArtistHandler struct {
	Artists ArtistStore
}

func NewArtistHandler(artists ArtistStore) *ArtistHandler {
	return &ArtistHandler{Artists: artists}
}

type artistReq struct {
	Firstname string `json:"firstname" validate:"required,min=2,max=60"`
	Lastname  string `json:"lastname" validate:"required,min=2,max=60"`
}

type artistTypeReq struct {
	ArtistID uint64 `json:"artistId" validate:"required"`
	Type     string `json:"type" validate:"required,max=60"`
}

func (h *ArtistHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Artists.List(ctx)
	if err != nil {
		return storeError(c, err, "list artists failed")
	}
	return c.JSON(http.StatusOK, list)
}

func (h *ArtistHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	a, err := h.Artists.GetByID(ctx, id)
	if err != nil {
		return storeError(c, err, "load artist failed")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *ArtistHandler) Create(c echo.Context) error {
	var req artistReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	a := model.Artist{Firstname: strings.TrimSpace(req.Firstname), Lastname: strings.TrimSpace(req.Lastname)}
	if len(a.Firstname) < 2 || len(a.Lastname) < 2 {
		return badRequest(c, "firstname and lastname need at least 2 characters")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Artists.Create(ctx, &a); err != nil {
		return storeError(c, err, "create artist failed")
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *ArtistHandler) ListTypes(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Artists.ListArtistTypes(ctx)
	if err != nil {
		return storeError(c, err, "list artist types failed")
	}
	return c.JSON(http.StatusOK, list)
}

// CreateType links an artist to a type, creating the type if needed.
func (h *ArtistHandler) CreateType(c echo.Context) error {
	var req artistTypeReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	name := strings.ToLower(strings.TrimSpace(req.Type))
	if name == "" {
		return badRequest(c, "type required")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	at, err := h.Artists.CreateArtistType(ctx, req.ArtistID, name)
	switch {
	case errors.Is(err, repository.ErrConflict):
		return jsonError(c, http.StatusConflict, "artist already has this type")
	case errors.Is(err, repository.ErrNotFound):
		return badRequest(c, "unknown artist")
	case err != nil:
		return storeError(c, err, "create artist type failed")
	}
	return c.JSON(http.StatusCreated, at)
}

// Delete removes an artist that no show credits.
func (h *ArtistHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	err := h.Artists.Delete(ctx, id)
	if errors.Is(err, repository.ErrConflict) {
		return jsonError(c, http.StatusConflict, "artist is credited on a show")
	}
	if err != nil {
		return storeError(c, err, "delete artist failed")
	}
	return c.NoContent(http.StatusNoContent)
}
