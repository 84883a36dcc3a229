package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"github.com/iliyamo/smartbooking/internal/service"
)

const maxWebhookBody = 1 << 20

// PaymentEvents applies payment outcomes to reservations.
type PaymentEvents interface {
	Confirm(ctx context.Context, id uint64, paymentRef string) (bool, error)
	Cancel(ctx context.Context, id uint64) (bool, error)
}

// WebhookHandler receives Stripe events.
type WebhookHandler struct {
	Secret       string
	Reservations PaymentEvents
	Log          *zap.Logger
}

func NewWebhookHandler(secret string, reservations PaymentEvents, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{Secret: secret, Reservations: reservations, Log: log.Named("webhook")}
}

// Stripe verifies the signature and dispatches the event. Events that do
// not reference a reservation are acknowledged and ignored.
func (h *WebhookHandler) Stripe(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return badRequest(c, "unreadable body")
	}
	event, err := webhook.ConstructEventWithOptions(payload, c.Request().Header.Get("Stripe-Signature"), h.Secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.Log.Warn("rejected webhook", zap.Error(err))
		return badRequest(c, "invalid signature")
	}
	log := h.Log.With(zap.String("event_id", event.ID), zap.String("type", string(event.Type)))

	ctx, cancel := reqCtx(c)
	defer cancel()

	switch event.Type {
	case "checkout.session.completed":
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return badRequest(c, "invalid event payload")
		}
		id, ok := reservationID(s.Metadata)
		if !ok {
			log.Warn("checkout session without reservation id", zap.String("session_id", s.ID))
			return ignored(c)
		}
		if _, err := h.Reservations.Confirm(ctx, id, s.ID); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "confirm reservation failed").SetInternal(err)
		}
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return badRequest(c, "invalid event payload")
		}
		return h.cancel(c, ctx, log, s.Metadata)
	case "payment_intent.payment_failed":
		// The buyer can retry another card on the same checkout session; the
		// reservation is released by checkout.session.expired instead.
		log.Info("payment attempt failed, checkout still open")
		return ignored(c)
	default:
		return ignored(c)
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}

func (h *WebhookHandler) cancel(c echo.Context, ctx context.Context, log *zap.Logger, meta map[string]string) error {
	id, ok := reservationID(meta)
	if !ok {
		log.Warn("event without reservation id")
		return ignored(c)
	}
	if _, err := h.Reservations.Cancel(ctx, id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cancel reservation failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}

func reservationID(meta map[string]string) (uint64, bool) {
	id, err := strconv.ParseUint(meta[service.MetadataReservationID], 10, 64)
	return id, err == nil && id > 0
}

func ignored(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"received": true, "ignored": true})
}
