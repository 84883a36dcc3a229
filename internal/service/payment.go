package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
)

// MetadataReservationID is the metadata key carrying our reservation id on
// checkout sessions and payment intents.
const MetadataReservationID = "reservation_id"

// Stripe refuses checkout sessions expiring sooner than this.
const minCheckoutTTL = 30 * time.Minute

// CheckoutLine is one line item shown on the hosted payment page.
type CheckoutLine struct {
	Name            string
	Description     string
	UnitAmountCents int64
	Quantity        int64
}

// CheckoutRequest describes a payment for one reservation.
type CheckoutRequest struct {
	ReservationID uint64
	CustomerEmail string
	Currency      string
	Lines         []CheckoutLine
	SuccessURL    string
	CancelURL     string
	ExpiresAt     time.Time
}

// CheckoutSession is the provider session the buyer is redirected to.
type CheckoutSession struct {
	ID  string
	URL string
}

// PaymentGateway creates hosted checkout sessions.
type PaymentGateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
}

// StripeGateway implements PaymentGateway with Stripe Checkout.
type StripeGateway struct{}

// NewStripeGateway sets the Stripe API key and returns the gateway.
func NewStripeGateway(secretKey string) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	stripe.Key = secretKey
	return &StripeGateway{}, nil
}

// CreateCheckout opens a payment-mode checkout session.
func (g *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	params := checkoutParams(req, time.Now())
	params.Context = ctx
	s, err := session.New(params)
	if err != nil {
		return CheckoutSession{}, err
	}
	return CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// checkoutParams maps a request onto Stripe parameters. The reservation id
// is set on both the session and its payment intent so every webhook type
// can be traced back.
func checkoutParams(req CheckoutRequest, now time.Time) *stripe.CheckoutSessionParams {
	ref := strconv.FormatUint(req.ReservationID, 10)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(ref),
		Metadata:          map[string]string{MetadataReservationID: ref},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{MetadataReservationID: ref},
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if !req.ExpiresAt.IsZero() {
		exp := req.ExpiresAt
		if earliest := now.Add(minCheckoutTTL); exp.Before(earliest) {
			exp = earliest
		}
		params.ExpiresAt = stripe.Int64(exp.Unix())
	}
	for _, l := range req.Lines {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(l.Name)}
		if l.Description != "" {
			product.Description = stripe.String(l.Description)
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(l.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				UnitAmount:  stripe.Int64(l.UnitAmountCents),
				ProductData: product,
			},
		})
	}
	return params
}
