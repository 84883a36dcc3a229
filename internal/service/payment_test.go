package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

func TestCheckoutParams(t *testing.T) {
	now := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	params := checkoutParams(CheckoutRequest{
		ReservationID: 42,
		CustomerEmail: "bob@example.com",
		Currency:      "eur",
		SuccessURL:    "http://front/success",
		CancelURL:     "http://front/cart",
		ExpiresAt:     now.Add(5 * time.Minute),
		Lines: []CheckoutLine{
			{Name: "Ayiti", Description: "01/02/2030 20:00 - VIP", UnitAmountCents: 2500, Quantity: 2},
		},
	}, now)

	assert.Equal(t, string(stripe.CheckoutSessionModePayment), *params.Mode)
	assert.Equal(t, "42", *params.ClientReferenceID)
	assert.Equal(t, "42", params.Metadata[MetadataReservationID])
	require.NotNil(t, params.PaymentIntentData)
	assert.Equal(t, "42", params.PaymentIntentData.Metadata[MetadataReservationID])
	assert.Equal(t, "bob@example.com", *params.CustomerEmail)
	// Expiry is raised to the provider minimum.
	assert.Equal(t, now.Add(30*time.Minute).Unix(), *params.ExpiresAt)

	require.Len(t, params.LineItems, 1)
	li := params.LineItems[0]
	assert.Equal(t, int64(2), *li.Quantity)
	assert.Equal(t, int64(2500), *li.PriceData.UnitAmount)
	assert.Equal(t, "eur", *li.PriceData.Currency)
	assert.Equal(t, "Ayiti", *li.PriceData.ProductData.Name)
}

func TestCheckoutParams_NoEmailNoExpiry(t *testing.T) {
	params := checkoutParams(CheckoutRequest{ReservationID: 1, Currency: "eur"}, time.Now())
	assert.Nil(t, params.CustomerEmail)
	assert.Nil(t, params.ExpiresAt)
	assert.Empty(t, params.LineItems)
}

func TestNewStripeGateway_RequiresKey(t *testing.T) {
	_, err := NewStripeGateway("")
	assert.Error(t, err)
}
