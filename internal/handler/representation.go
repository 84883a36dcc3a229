package handler

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/smartbooking/internal/model"
	"github.com/iliyamo/smartbooking/internal/repository"
	"github.com/iliyamo/smartbooking/internal/utils"
)

// RepresentationStore is the representation persistence.
type RepresentationStore interface {
	GetByID(ctx context.Context, id uint64) (model.Representation, error)
	ListByShow(ctx context.Context, showID uint64) ([]model.Representation, error)
	Create(ctx context.Context, rep *model.Representation) error
	Update(ctx context.Context, rep *model.Representation) error
	Delete(ctx context.Context, id uint64) error
}

// ShowGetter loads a show without details.
type ShowGetter interface {
	GetByID(ctx context.Context, id uint64) (model.Show, error)
}

// RepresentationHandler manages the dated performances of a show.
type RepresentationHandler struct {
	Reps      RepresentationStore
	Shows     ShowGetter
	Locations LocationChecker
	Now       func() time.Time
}

func NewRepresentationHandler(reps RepresentationStore, shows ShowGetter, locations LocationChecker) *RepresentationHandler {
	return &RepresentationHandler{Reps: reps, Shows: shows, Locations: locations, Now: time.Now}
}

type priceReq struct {
	Type   string  `json:"type" validate:"pricetype"`
	Amount float64 `json:"amount" validate:"gt=0,lte=100000"`
}

type representationReq struct {
	When       string     `json:"when" validate:"required"`
	LocationID *uint64    `json:"locationId"`
	Capacity   uint32     `json:"capacity" validate:"lte=1000000"`
	Prices     []priceReq `json:"prices" validate:"omitempty,dive"`
}

func amountToCents(a float64) uint32 { return uint32(math.Round(a * 100)) }

// showFor loads the show owning a representation and checks the caller
// may edit it.
func (h *RepresentationHandler) showFor(ctx context.Context, c echo.Context, showID uint64) (model.Show, bool, error) {
	s, err := h.Shows.GetByID(ctx, showID)
	if err != nil {
		return s, false, storeError(c, err, "load show failed")
	}
	who := caller(c)
	if !s.EditableBy(who.UserID, who.Roles) {
		return s, false, forbidden(c)
	}
	return s, true, nil
}

// resolve parses the date and picks the venue, falling back to the show's.
func (h *RepresentationHandler) resolve(ctx context.Context, c echo.Context, s model.Show, req representationReq) (time.Time, *uint64, bool, error) {
	when, err := utils.ParseTime(req.When)
	if err != nil {
		return when, nil, false, badRequest(c, "invalid when")
	}
	if !when.After(h.Now()) {
		return when, nil, false, badRequest(c, "representation must be in the future")
	}
	loc := req.LocationID
	if loc != nil {
		ok, err := h.Locations.Exists(ctx, *loc)
		if err != nil {
			return when, nil, false, storeError(c, err, "check location failed")
		}
		if !ok {
			return when, nil, false, badRequest(c, "unknown location")
		}
	} else if s.LocationID == nil {
		return when, nil, false, badRequest(c, "a location is required")
	}
	return when, loc, true, nil
}

// ListByShow returns the representations of a visible show.
func (h *RepresentationHandler) ListByShow(c echo.Context) error {
	showID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	s, err := h.Shows.GetByID(ctx, showID)
	if err != nil {
		return storeError(c, err, "load show failed")
	}
	who := caller(c)
	if !s.VisibleTo(who.UserID, who.Roles) {
		return notFound(c)
	}
	reps, err := h.Reps.ListByShow(ctx, showID)
	if err != nil {
		return storeError(c, err, "list representations failed")
	}
	return c.JSON(http.StatusOK, reps)
}

// Create schedules a representation with its price tiers.
func (h *RepresentationHandler) Create(c echo.Context) error {
	showID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req representationReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	if len(req.Prices) == 0 {
		return badRequest(c, "at least one price is required")
	}
	seen := map[string]bool{}
	prices := make([]model.Price, 0, len(req.Prices))
	for _, p := range req.Prices {
		if seen[p.Type] {
			return badRequest(c, "duplicate price type "+p.Type)
		}
		seen[p.Type] = true
		cents := amountToCents(p.Amount)
		if cents == 0 {
			return badRequest(c, "price amount must be at least 0.01")
		}
		prices = append(prices, model.Price{Type: p.Type, AmountCents: cents, StartDate: h.Now().UTC()})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	s, ok, err := h.showFor(ctx, c, showID)
	if !ok {
		return err
	}
	when, loc, ok, err := h.resolve(ctx, c, s, req)
	if !ok {
		return err
	}
	rep := model.Representation{ShowID: showID, When: when, LocationID: loc, Capacity: req.Capacity, Prices: prices}
	if err := h.Reps.Create(ctx, &rep); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return badRequest(c, "duplicate price type")
		}
		return storeError(c, err, "create representation failed")
	}
	return c.JSON(http.StatusCreated, rep)
}

// Update moves or resizes a representation.
func (h *RepresentationHandler) Update(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req representationReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	rep, err := h.Reps.GetByID(ctx, id)
	if err != nil {
		return storeError(c, err, "load representation failed")
	}
	s, ok, err := h.showFor(ctx, c, rep.ShowID)
	if !ok {
		return err
	}
	when, loc, ok, err := h.resolve(ctx, c, s, req)
	if !ok {
		return err
	}
	rep.When, rep.LocationID, rep.Capacity = when, loc, req.Capacity
	if err := h.Reps.Update(ctx, &rep); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return jsonError(c, http.StatusConflict, "capacity below reserved places")
		}
		return storeError(c, err, "update representation failed")
	}
	return c.JSON(http.StatusOK, rep)
}

// Delete removes a representation nobody reserved.
func (h *RepresentationHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	rep, err := h.Reps.GetByID(ctx, id)
	if err != nil {
		return storeError(c, err, "load representation failed")
	}
	if _, ok, err := h.showFor(ctx, c, rep.ShowID); !ok {
		return err
	}
	if err := h.Reps.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return jsonError(c, http.StatusConflict, "representation has reservations")
		}
		return storeError(c, err, "delete representation failed")
	}
	return c.NoContent(http.StatusNoContent)
}
