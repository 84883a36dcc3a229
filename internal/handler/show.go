package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/smartbooking/internal/model"
	"github.com/iliyamo/smartbooking/internal/repository"
	"github.com/iliyamo/smartbooking/internal/service"
	"github.com/iliyamo/smartbooking/internal/utils"
)

// ShowStore is the show persistence used by ShowHandler.
type ShowStore interface {
	GetByID(ctx context.Context, id uint64) (model.Show, error)
	Detail(ctx context.Context, id uint64) (model.Show, error)
	DetailBySlug(ctx context.Context, slug string) (model.Show, error)
	ListConfirmed(ctx context.Context) ([]model.Show, error)
	ListAll(ctx context.Context) ([]model.Show, error)
	ListByProducer(ctx context.Context, producerID uint64) ([]model.Show, error)
	Search(ctx context.Context, q repository.ShowSearchQuery) ([]model.Show, error)
	SlugTaken(ctx context.Context, slug string, exceptID uint64) (bool, error)
	Create(ctx context.Context, s *model.Show) error
	Update(ctx context.Context, s *model.Show) error
	SetStatus(ctx context.Context, id uint64, status string) error
	Delete(ctx context.Context, id uint64) error
}

// LocationChecker tells whether a venue exists.
type LocationChecker interface {
	Exists(ctx context.Context, id uint64) (bool, error)
}

// ArtistTypeCounter counts how many of ids exist.
type ArtistTypeCounter interface {
	CountArtistTypes(ctx context.Context, ids []uint64) (int, error)
}

// PosterStorage keeps uploaded poster files.
type PosterStorage interface {
	Save(r io.Reader) (string, error)
	Remove(url string) error
}

// ShowHandler serves the catalog and the show editor endpoints.
type ShowHandler struct {
	Shows       ShowStore
	Locations   LocationChecker
	ArtistTypes ArtistTypeCounter
	Posters     PosterStorage
}

func NewShowHandler(shows ShowStore, locations LocationChecker, artistTypes ArtistTypeCounter, posters PosterStorage) *ShowHandler {
	return &ShowHandler{Shows: shows, Locations: locations, ArtistTypes: artistTypes, Posters: posters}
}

type showReq struct {
	Title         string   `json:"title" validate:"required,max=255"`
	Description   string   `json:"description" validate:"max=10000"`
	LocationID    *uint64  `json:"locationId"`
	Bookable      bool     `json:"bookable"`
	ArtistTypeIDs []uint64 `json:"artistTypeIds"`
}

// List returns confirmed shows with their details, sorted by title.
func (h *ShowHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	shows, err := h.Shows.ListConfirmed(ctx)
	if err != nil {
		return storeError(c, err, "list shows failed")
	}
	return c.JSON(http.StatusOK, shows)
}

// Get returns one show. Unconfirmed shows are only visible to admins and
// their producer.
func (h *ShowHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	s, err := h.Shows.Detail(ctx, id)
	return h.visible(c, s, err)
}

// GetBySlug is Get addressed by slug.
func (h *ShowHandler) GetBySlug(c echo.Context) error {
	slug := strings.TrimSpace(c.Param("slug"))
	if slug == "" {
		return badRequest(c, "invalid slug")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	s, err := h.Shows.DetailBySlug(ctx, slug)
	return h.visible(c, s, err)
}

func (h *ShowHandler) visible(c echo.Context, s model.Show, err error) error {
	if err != nil {
		return storeError(c, err, "load show failed")
	}
	who := caller(c)
	if !s.VisibleTo(who.UserID, who.Roles) {
		return notFound(c)
	}
	return c.JSON(http.StatusOK, s)
}

// Search filters confirmed shows by title, venue and representation dates.
func (h *ShowHandler) Search(c echo.Context) error {
	q := repository.ShowSearchQuery{
		Title:    strings.TrimSpace(c.QueryParam("title")),
		Location: strings.TrimSpace(c.QueryParam("location")),
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"start", &q.Start}, {"end", &q.End}} {
		raw := strings.TrimSpace(c.QueryParam(p.name))
		if raw == "" {
			continue
		}
		t, err := utils.ParseTime(raw)
		if err != nil {
			return badRequest(c, "invalid "+p.name+" date")
		}
		*p.dst = &t
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	shows, err := h.Shows.Search(ctx, q)
	if err != nil {
		return storeError(c, err, "search failed")
	}
	return c.JSON(http.StatusOK, shows)
}

// AdminList returns every show, pending ones first.
func (h *ShowHandler) AdminList(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	shows, err := h.Shows.ListAll(ctx)
	if err != nil {
		return storeError(c, err, "list shows failed")
	}
	return c.JSON(http.StatusOK, shows)
}

// Mine returns the shows produced by the caller.
func (h *ShowHandler) Mine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	shows, err := h.Shows.ListByProducer(ctx, uid)
	if err != nil {
		return storeError(c, err, "list shows failed")
	}
	return c.JSON(http.StatusOK, shows)
}

// readShowReq accepts a JSON body, or a multipart form whose "show" part
// holds the JSON and whose optional "poster" part holds the image.
func readShowReq(c echo.Context) (showReq, *multipart.FileHeader, error) {
	var req showReq
	var poster *multipart.FileHeader
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		if err := json.Unmarshal([]byte(c.FormValue("show")), &req); err != nil {
			return req, nil, errors.New("invalid show part")
		}
		fh, err := c.FormFile("poster")
		switch {
		case err == nil:
			poster = fh
		case !errors.Is(err, http.ErrMissingFile):
			return req, nil, errors.New("invalid poster part")
		}
	} else if err := c.Bind(&req); err != nil {
		return req, nil, errors.New("invalid body")
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	return req, poster, nil
}

// checkRefs validates the venue and artist type references of req. It
// writes the 400 response itself and reports false on failure.
func (h *ShowHandler) checkRefs(ctx context.Context, c echo.Context, req *showReq) (bool, error) {
	if req.LocationID != nil {
		ok, err := h.Locations.Exists(ctx, *req.LocationID)
		if err != nil {
			return false, storeError(c, err, "check location failed")
		}
		if !ok {
			return false, badRequest(c, "unknown location")
		}
	}
	seen := map[uint64]bool{}
	ids := make([]uint64, 0, len(req.ArtistTypeIDs))
	for _, id := range req.ArtistTypeIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	req.ArtistTypeIDs = ids
	if len(ids) > 0 {
		n, err := h.ArtistTypes.CountArtistTypes(ctx, ids)
		if err != nil {
			return false, storeError(c, err, "check artist types failed")
		}
		if n != len(ids) {
			return false, badRequest(c, "unknown artist type")
		}
	}
	return true, nil
}

// savePoster stores an uploaded poster. A nil header yields an empty URL.
func (h *ShowHandler) savePoster(c echo.Context, fh *multipart.FileHeader) (string, bool, error) {
	if fh == nil {
		return "", true, nil
	}
	f, err := fh.Open()
	if err != nil {
		return "", false, badRequest(c, "invalid poster part")
	}
	defer f.Close()
	url, err := h.Posters.Save(f)
	switch {
	case errors.Is(err, service.ErrPosterTooLarge):
		return "", false, jsonError(c, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrPosterType):
		return "", false, badRequest(c, err.Error())
	case err != nil:
		return "", false, echo.NewHTTPError(http.StatusInternalServerError, "save poster failed").SetInternal(err)
	}
	return url, true, nil
}

// Create adds a show awaiting moderation, produced by the caller.
func (h *ShowHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	req, poster, err := readShowReq(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if ok, err := h.checkRefs(ctx, c, &req); !ok {
		return err
	}
	slug, err := utils.UniqueSlug(utils.Slugify(req.Title), func(s string) (bool, error) {
		return h.Shows.SlugTaken(ctx, s, 0)
	})
	if err != nil {
		return storeError(c, err, "slug lookup failed")
	}
	url, ok, err := h.savePoster(c, poster)
	if !ok {
		return err
	}

	s := model.Show{
		Slug:          slug,
		Title:         req.Title,
		Description:   req.Description,
		PosterURL:     url,
		LocationID:    req.LocationID,
		ProducerID:    &uid,
		Bookable:      req.Bookable,
		Status:        model.ShowPending,
		ArtistTypeIDs: req.ArtistTypeIDs,
	}
	if err := h.Shows.Create(ctx, &s); err != nil {
		_ = h.Posters.Remove(url)
		return storeError(c, err, "create show failed")
	}
	return c.JSON(http.StatusCreated, s)
}

// editable loads a show and checks the caller may change it.
func (h *ShowHandler) editable(ctx context.Context, c echo.Context, id uint64) (model.Show, bool, error) {
	s, err := h.Shows.GetByID(ctx, id)
	if err != nil {
		return s, false, storeError(c, err, "load show failed")
	}
	who := caller(c)
	if !s.EditableBy(who.UserID, who.Roles) {
		return s, false, forbidden(c)
	}
	return s, true, nil
}

// Update replaces the editable fields of a show and optionally its poster.
func (h *ShowHandler) Update(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	req, poster, err := readShowReq(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	s, ok, err := h.editable(ctx, c, id)
	if !ok {
		return err
	}
	if ok, err := h.checkRefs(ctx, c, &req); !ok {
		return err
	}
	slug, err := utils.UniqueSlug(utils.Slugify(req.Title), func(cand string) (bool, error) {
		return h.Shows.SlugTaken(ctx, cand, id)
	})
	if err != nil {
		return storeError(c, err, "slug lookup failed")
	}
	url, ok, err := h.savePoster(c, poster)
	if !ok {
		return err
	}

	oldPoster := s.PosterURL
	s.Slug = slug
	s.Title = req.Title
	s.Description = req.Description
	s.LocationID = req.LocationID
	s.Bookable = req.Bookable
	s.ArtistTypeIDs = req.ArtistTypeIDs
	if url != "" {
		s.PosterURL = url
	}
	if err := h.Shows.Update(ctx, &s); err != nil {
		_ = h.Posters.Remove(url)
		return storeError(c, err, "update show failed")
	}
	if url != "" && oldPoster != "" {
		_ = h.Posters.Remove(oldPoster)
	}
	return c.JSON(http.StatusOK, s)
}

// Delete removes a show that has no representations.
func (h *ShowHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	s, ok, err := h.editable(ctx, c, id)
	if !ok {
		return err
	}
	if err := h.Shows.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return jsonError(c, http.StatusConflict, "show has representations")
		}
		return storeError(c, err, "delete show failed")
	}
	if s.PosterURL != "" {
		_ = h.Posters.Remove(s.PosterURL)
	}
	return c.NoContent(http.StatusNoContent)
}

// Confirm publishes a show.
func (h *ShowHandler) Confirm(c echo.Context) error {
	return h.setStatus(c, model.ShowConfirmed)
}

// Revoke sends a show back to moderation.
func (h *ShowHandler) Revoke(c echo.Context) error {
	return h.setStatus(c, model.ShowPending)
}

func (h *ShowHandler) setStatus(c echo.Context, status string) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Shows.SetStatus(ctx, id, status); err != nil {
		return storeError(c, err, "update status failed")
	}
	s, err := h.Shows.Detail(ctx, id)
	if err != nil {
		return storeError(c, err, "load show failed")
	}
	return c.JSON(http.StatusOK, s)
}
