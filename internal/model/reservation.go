package model

import "time"

// Reservation states.
const (
	ReservationPending   = "PENDING"
	ReservationConfirmed = "CONFIRMED"
	ReservationCancelled = "CANCELLED"
)

// Reservation is a user's purchase of places for one or more
// representation/price pairs. It stays PENDING until the payment
// provider reports the checkout as completed.
type Reservation struct {
	ID               uint64            `json:"id"`
	UserID           uint64            `json:"userId"`
	Status           string            `json:"statut"`
	ReservationDate  time.Time         `json:"reservationDate"`
	TotalAmountCents uint32            `json:"totalAmountCents"`
	TotalAmount      float64           `json:"totalAmount"`
	PaymentRef       *string           `json:"paymentRef,omitempty"`
	Items            []ReservationItem `json:"items"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// ReservationItem is one representation/price line of a reservation.
// UnitPriceCents is copied from the price when the reservation is made.
type ReservationItem struct {
	ID                 uint64    `json:"id"`
	RepresentationID   uint64    `json:"representationId"`
	RepresentationWhen time.Time `json:"representationWhen"`
	ShowID             uint64    `json:"showId"`
	ShowTitle          string    `json:"showTitle"`
	PriceID            uint64    `json:"priceId"`
	PriceType          string    `json:"priceType"`
	UnitPriceCents     uint32    `json:"unitPriceCents"`
	PriceAmount        float64   `json:"priceAmount"`
	Quantity           uint32    `json:"quantity"`
}

// FirstStart returns the earliest representation date of the reservation.
func (r Reservation) FirstStart() (time.Time, bool) {
	var first time.Time
	for i, it := range r.Items {
		if i == 0 || it.RepresentationWhen.Before(first) {
			first = it.RepresentationWhen
		}
	}
	return first, len(r.Items) > 0
}

// Places sums the quantities of all items.
func (r Reservation) Places() uint32 {
	var n uint32
	for _, it := range r.Items {
		n += it.Quantity
	}
	return n
}
