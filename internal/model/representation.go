package model

import "time"

// Price tiers of a representation.
const (
	PriceStandard = "STANDARD"
	PriceVIP      = "VIP"
	PriceReduced  = "REDUIT"
	PricePremium  = "PREMIUM"
)

// IsPriceType reports whether t names a known price tier.
func IsPriceType(t string) bool {
	switch t {
	case PriceStandard, PriceVIP, PriceReduced, PricePremium:
		return true
	}
	return false
}

// Price is one tier of a representation. EndDate is nil for open-ended
// tiers. Amount is AmountCents expressed in currency units.
type Price struct {
	ID               uint64     `json:"id"`
	RepresentationID uint64     `json:"representationId"`
	Type             string     `json:"type"`
	AmountCents      uint32     `json:"amountCents"`
	Amount           float64    `json:"amount"`
	StartDate        time.Time  `json:"startDate"`
	EndDate          *time.Time `json:"endDate,omitempty"`
}

// ActiveAt reports whether the tier can be sold at t.
func (p Price) ActiveAt(t time.Time) bool {
	if p.StartDate.After(t) {
		return false
	}
	return p.EndDate == nil || t.Before(*p.EndDate)
}

// Representation is a dated performance of a show. A zero Capacity means
// the venue does not limit places.
type Representation struct {
	ID                  uint64    `json:"id"`
	ShowID              uint64    `json:"showId"`
	ShowTitle           string    `json:"showTitle,omitempty"`
	When                time.Time `json:"when"`
	LocationID          *uint64   `json:"locationId,omitempty"`
	LocationDesignation string    `json:"locationDesignation"`
	Capacity            uint32    `json:"capacity"`
	ReservedPlaces      uint32    `json:"reservedPlaces"`
	Prices              []Price   `json:"prices"`
}

// Remaining returns how many places are left and whether the
// representation is limited at all.
func (r Representation) Remaining() (uint32, bool) {
	if r.Capacity == 0 {
		return 0, false
	}
	if r.ReservedPlaces >= r.Capacity {
		return 0, true
	}
	return r.Capacity - r.ReservedPlaces, true
}

// CentsToAmount converts cents to currency units.
func CentsToAmount(cents uint32) float64 { return float64(cents) / 100.0 }
