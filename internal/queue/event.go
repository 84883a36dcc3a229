// Package queue defines message payloads exchanged over the message broker
// and the consumer that processes them.
package queue

// Queue names. Messages are published on the default exchange with the
// queue name as routing key.
const (
	ReservationConfirmedQueue = "reservation.confirmed"
	PasswordResetQueue        = "password.reset"
)

// ReservationConfirmedEvent is published when the payment of a reservation
// completes. It carries enough for downstream consumers to log or notify
// without querying the primary database.
type ReservationConfirmedEvent struct {
	ReservationID    uint64      `json:"reservation_id"`
	UserID           uint64      `json:"user_id"`
	Email            string      `json:"email"`
	PaymentRef       string      `json:"payment_ref"`
	Lines            []EventLine `json:"lines"`
	TotalAmountCents uint32      `json:"total_amount_cents"`
	ConfirmedAt      string      `json:"confirmed_at"`
}

// EventLine is one representation/price line of a confirmed reservation.
type EventLine struct {
	ShowTitle string `json:"show_title"`
	StartsAt  string `json:"starts_at"`
	PriceType string `json:"price_type"`
	Quantity  uint32 `json:"quantity"`
}

// PasswordResetEvent asks the mailer to send a reset link.
type PasswordResetEvent struct {
	UserID    uint64 `json:"user_id"`
	Email     string `json:"email"`
	Firstname string `json:"firstname"`
	Langue    string `json:"langue"`
	ResetURL  string `json:"reset_url"`
	ExpiresAt string `json:"expires_at"`
}
