package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/smartbooking/internal/model"
	"github.com/iliyamo/smartbooking/internal/repository"
	"github.com/iliyamo/smartbooking/internal/service"
)

// Bookings is the reservation workflow used by the buyer endpoints.
type Bookings interface {
	Checkout(ctx context.Context, userID uint64, email string, lines []service.BookingLine) (service.CheckoutResult, error)
	Get(ctx context.Context, userID, id uint64) (model.Reservation, error)
	CancelForUser(ctx context.Context, userID, id uint64) (model.Reservation, error)
}

// ReservationLister lists a buyer's reservations.
type ReservationLister interface {
	ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error)
}

// UserGetter resolves the buyer's email for the checkout page.
type UserGetter interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// ReservationHandler serves the buyer side of reservations.
type ReservationHandler struct {
	Bookings Bookings
	List     ReservationLister
	Users    UserGetter
}

func NewReservationHandler(b Bookings, list ReservationLister, users UserGetter) *ReservationHandler {
	return &ReservationHandler{Bookings: b, List: list, Users: users}
}

// Create books a basket and returns the hosted checkout URL.
func (h *ReservationHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var lines []service.BookingLine
	if err := c.Bind(&lines); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return unauthorized(c)
		}
		return storeError(c, err, "load user failed")
	}
	res, err := h.Bookings.Checkout(ctx, uid, u.Email, lines)
	if err != nil {
		return reservationError(c, err, "create reservation failed")
	}
	return c.JSON(http.StatusOK, res)
}

// MyBookings lists the caller's reservations, newest first.
func (h *ReservationHandler) MyBookings(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.List.ListByUser(ctx, uid)
	if err != nil {
		return storeError(c, err, "list reservations failed")
	}
	return c.JSON(http.StatusOK, list)
}

func (h *ReservationHandler) Get(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Bookings.Get(ctx, uid, id)
	if err != nil {
		return storeError(c, err, "load reservation failed")
	}
	return c.JSON(http.StatusOK, res)
}

// Cancel cancels one of the caller's reservations before it starts.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Bookings.CancelForUser(ctx, uid, id)
	if err != nil {
		return reservationError(c, err, "cancel reservation failed")
	}
	return c.JSON(http.StatusOK, res)
}

func reservationError(c echo.Context, err error, msg string) error {
	switch {
	case errors.Is(err, service.ErrInvalidItems):
		return badRequest(c, err.Error())
	case errors.Is(err, service.ErrNotBookable):
		return jsonError(c, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrSoldOut):
		return jsonError(c, http.StatusConflict, "sold out")
	case errors.Is(err, service.ErrAlreadyStarted), errors.Is(err, service.ErrAlreadyCancelled):
		return jsonError(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrPaymentProvider):
		return echo.NewHTTPError(http.StatusBadGateway, "payment provider unavailable").SetInternal(err)
	}
	return storeError(c, err, msg)
}
