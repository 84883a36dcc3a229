package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/smartbooking/internal/model"
	q "github.com/iliyamo/smartbooking/internal/queue"
	"github.com/iliyamo/smartbooking/internal/repository"
)

// Booking limits.
const (
	MaxLines           = 20
	MaxPlacesPerLine   = 20
	MaxPlacesPerBasket = 20
)

var (
	// ErrInvalidItems reports a malformed basket (400).
	ErrInvalidItems = errors.New("invalid reservation items")
	// ErrNotBookable reports a basket that is well formed but cannot be
	// sold right now (409).
	ErrNotBookable = errors.New("not bookable")
	// ErrPaymentProvider wraps checkout creation failures (502).
	ErrPaymentProvider = errors.New("payment provider error")
	// ErrAlreadyStarted is returned when cancelling after the first
	// representation began.
	ErrAlreadyStarted = errors.New("representation already started")
	// ErrAlreadyCancelled is returned when cancelling twice.
	ErrAlreadyCancelled = errors.New("reservation already cancelled")
)

// BookingLine is one requested line of a basket.
type BookingLine struct {
	RepresentationID uint64 `json:"representationId"`
	PriceID          uint64 `json:"priceId"`
	Places           int    `json:"places"`
}

// CheckoutResult is returned to the storefront, which redirects to URL.
type CheckoutResult struct {
	URL           string `json:"url"`
	ReservationID uint64 `json:"reservationId"`
}

// ReservationStore is the persistence used by ReservationService.
type ReservationStore interface {
	PriceLines(ctx context.Context, priceIDs []uint64) (map[uint64]repository.PriceLine, error)
	CreatePending(ctx context.Context, userID uint64, items []repository.NewItem) (model.Reservation, error)
	SetPaymentRef(ctx context.Context, id uint64, ref string) error
	Transition(ctx context.Context, id uint64, from []string, to, paymentRef string) (bool, error)
	GetByID(ctx context.Context, id uint64) (model.Reservation, error)
	StalePending(ctx context.Context, cutoff time.Time) ([]uint64, error)
}

// UserLookup loads users by id.
type UserLookup interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// ReservationService runs the booking flow: basket validation, pending
// reservation, hosted checkout, and the confirm/cancel transitions driven
// by the payment webhook, the buyer or the janitor.
type ReservationService struct {
	Store    ReservationStore
	Users    UserLookup
	Payments PaymentGateway
	Events   EventPublisher
	Log      *zap.Logger

	Currency   string
	TTL        time.Duration
	SuccessURL func(reservationID uint64) string
	CancelURL  string

	Now func() time.Time
}

func (s *ReservationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// checkoutTTL is the lifetime of a PENDING reservation. Stripe keeps a
// checkout session open for at least minCheckoutTTL, so a shorter TTL would
// cancel reservations that can still be paid.
func (s *ReservationService) checkoutTTL() time.Duration {
	if s.TTL < minCheckoutTTL {
		return minCheckoutTTL
	}
	return s.TTL
}

func (s *ReservationService) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// MergeLines validates the shape of a basket and merges lines that target
// the same representation and price. The result is ordered by
// representation then price.
func MergeLines(lines []BookingLine) ([]BookingLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty basket", ErrInvalidItems)
	}
	if len(lines) > MaxLines {
		return nil, fmt.Errorf("%w: at most %d lines", ErrInvalidItems, MaxLines)
	}
	type key struct{ rep, price uint64 }
	merged := map[key]int{}
	total := 0
	for _, l := range lines {
		if l.RepresentationID == 0 || l.PriceID == 0 {
			return nil, fmt.Errorf("%w: representationId and priceId are required", ErrInvalidItems)
		}
		if l.Places < 1 || l.Places > MaxPlacesPerLine {
			return nil, fmt.Errorf("%w: places must be between 1 and %d", ErrInvalidItems, MaxPlacesPerLine)
		}
		merged[key{l.RepresentationID, l.PriceID}] += l.Places
		total += l.Places
	}
	if total > MaxPlacesPerBasket {
		return nil, fmt.Errorf("%w: at most %d places per reservation", ErrInvalidItems, MaxPlacesPerBasket)
	}
	out := make([]BookingLine, 0, len(merged))
	for k, n := range merged {
		out = append(out, BookingLine{RepresentationID: k.rep, PriceID: k.price, Places: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RepresentationID != out[j].RepresentationID {
			return out[i].RepresentationID < out[j].RepresentationID
		}
		return out[i].PriceID < out[j].PriceID
	})
	return out, nil
}

// priceItems checks every merged line against its price and returns the
// items to insert with unit prices copied in.
func priceItems(lines []BookingLine, prices map[uint64]repository.PriceLine, now time.Time) ([]repository.NewItem, error) {
	items := make([]repository.NewItem, 0, len(lines))
	for _, l := range lines {
		p, ok := prices[l.PriceID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown price %d", ErrInvalidItems, l.PriceID)
		}
		if p.RepresentationID != l.RepresentationID {
			return nil, fmt.Errorf("%w: price %d does not belong to representation %d", ErrInvalidItems, l.PriceID, l.RepresentationID)
		}
		if p.ShowStatus != model.ShowConfirmed || !p.Bookable {
			return nil, fmt.Errorf("%w: show %q is not open for booking", ErrNotBookable, p.ShowTitle)
		}
		if !p.When.After(now) {
			return nil, fmt.Errorf("%w: representation %d already started", ErrNotBookable, l.RepresentationID)
		}
		if !p.Price().ActiveAt(now) {
			return nil, fmt.Errorf("%w: price %d is not on sale", ErrNotBookable, l.PriceID)
		}
		items = append(items, repository.NewItem{
			RepresentationID: l.RepresentationID,
			PriceID:          l.PriceID,
			Quantity:         uint32(l.Places),
			UnitPriceCents:   p.AmountCents,
		})
	}
	return items, nil
}

// Checkout validates the basket, stores a PENDING reservation and opens a
// hosted checkout session for it. When the provider fails the reservation
// is cancelled so its places are released.
func (s *ReservationService) Checkout(ctx context.Context, userID uint64, email string, lines []BookingLine) (CheckoutResult, error) {
	merged, err := MergeLines(lines)
	if err != nil {
		return CheckoutResult{}, err
	}
	ids := make([]uint64, 0, len(merged))
	for _, l := range merged {
		ids = append(ids, l.PriceID)
	}
	prices, err := s.Store.PriceLines(ctx, ids)
	if err != nil {
		return CheckoutResult{}, err
	}
	now := s.now()
	items, err := priceItems(merged, prices, now)
	if err != nil {
		return CheckoutResult{}, err
	}

	res, err := s.Store.CreatePending(ctx, userID, items)
	if err != nil {
		return CheckoutResult{}, err
	}
	log := s.logger().With(zap.Uint64("reservation_id", res.ID), zap.Uint64("user_id", userID))

	req := CheckoutRequest{
		ReservationID: res.ID,
		CustomerEmail: email,
		Currency:      s.Currency,
		CancelURL:     s.CancelURL,
		ExpiresAt:     now.Add(s.checkoutTTL()),
	}
	if s.SuccessURL != nil {
		req.SuccessURL = s.SuccessURL(res.ID)
	}
	for _, it := range items {
		p := prices[it.PriceID]
		req.Lines = append(req.Lines, CheckoutLine{
			Name:            p.ShowTitle,
			Description:     p.When.Format("02/01/2006 15:04") + " - " + p.PriceType,
			UnitAmountCents: int64(it.UnitPriceCents),
			Quantity:        int64(it.Quantity),
		})
	}

	sess, err := s.Payments.CreateCheckout(ctx, req)
	if err != nil {
		log.Error("checkout session failed", zap.Error(err))
		if _, cerr := s.Store.Transition(ctx, res.ID, []string{model.ReservationPending}, model.ReservationCancelled, ""); cerr != nil {
			log.Error("cancel after provider failure", zap.Error(cerr))
		}
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}
	if err := s.Store.SetPaymentRef(ctx, res.ID, sess.ID); err != nil {
		return CheckoutResult{}, err
	}
	log.Info("checkout created", zap.String("session_id", sess.ID), zap.Uint32("places", res.Places()))
	return CheckoutResult{URL: sess.URL, ReservationID: res.ID}, nil
}

// Confirm marks a PENDING reservation as paid and publishes
// reservation.confirmed. It reports false when nothing changed, e.g. on a
// redelivered webhook.
func (s *ReservationService) Confirm(ctx context.Context, id uint64, paymentRef string) (bool, error) {
	changed, err := s.Store.Transition(ctx, id, []string{model.ReservationPending}, model.ReservationConfirmed, paymentRef)
	if err != nil {
		return false, err
	}
	log := s.logger().With(zap.Uint64("reservation_id", id))
	if !changed {
		if res, err := s.Store.GetByID(ctx, id); err == nil && res.Status == model.ReservationCancelled {
			log.Warn("payment received for cancelled reservation", zap.String("payment_ref", paymentRef))
		}
		return false, nil
	}
	log.Info("reservation confirmed", zap.String("payment_ref", paymentRef))

	if s.Events == nil {
		return true, nil
	}
	res, err := s.Store.GetByID(ctx, id)
	if err != nil {
		log.Warn("reload confirmed reservation", zap.Error(err))
		return true, nil
	}
	event := confirmedEvent(res, s.now())
	if s.Users != nil {
		if u, err := s.Users.GetByID(ctx, res.UserID); err == nil {
			event.Email = u.Email
		}
	}
	if err := s.Events.PublishReservationConfirmed(ctx, event); err != nil {
		log.Warn("publish reservation.confirmed", zap.Error(err))
	}
	return true, nil
}

func confirmedEvent(res model.Reservation, at time.Time) q.ReservationConfirmedEvent {
	ev := q.ReservationConfirmedEvent{
		ReservationID:    res.ID,
		UserID:           res.UserID,
		TotalAmountCents: res.TotalAmountCents,
		ConfirmedAt:      at.Format(time.RFC3339),
	}
	if res.PaymentRef != nil {
		ev.PaymentRef = *res.PaymentRef
	}
	for _, it := range res.Items {
		ev.Lines = append(ev.Lines, q.EventLine{
			ShowTitle: it.ShowTitle,
			StartsAt:  it.RepresentationWhen.UTC().Format(time.RFC3339),
			PriceType: it.PriceType,
			Quantity:  it.Quantity,
		})
	}
	return ev
}

// Cancel moves a PENDING reservation to CANCELLED, e.g. when the checkout
// expired or the payment failed.
func (s *ReservationService) Cancel(ctx context.Context, id uint64) (bool, error) {
	changed, err := s.Store.Transition(ctx, id, []string{model.ReservationPending}, model.ReservationCancelled, "")
	if err == nil && changed {
		s.logger().Info("reservation cancelled", zap.Uint64("reservation_id", id))
	}
	return changed, err
}

// Get returns a reservation of userID; other users' reservations are
// reported as not found.
func (s *ReservationService) Get(ctx context.Context, userID, id uint64) (model.Reservation, error) {
	res, err := s.Store.GetByID(ctx, id)
	if err != nil {
		return model.Reservation{}, err
	}
	if res.UserID != userID {
		return model.Reservation{}, repository.ErrNotFound
	}
	return res, nil
}

// CancelForUser lets a buyer cancel their own reservation as long as none
// of its representations has started.
func (s *ReservationService) CancelForUser(ctx context.Context, userID, id uint64) (model.Reservation, error) {
	res, err := s.Get(ctx, userID, id)
	if err != nil {
		return model.Reservation{}, err
	}
	if res.Status == model.ReservationCancelled {
		return model.Reservation{}, ErrAlreadyCancelled
	}
	if first, ok := res.FirstStart(); ok && !first.After(s.now()) {
		return model.Reservation{}, ErrAlreadyStarted
	}
	changed, err := s.Store.Transition(ctx, id,
		[]string{model.ReservationPending, model.ReservationConfirmed}, model.ReservationCancelled, "")
	if err != nil {
		return model.Reservation{}, err
	}
	if !changed {
		return model.Reservation{}, ErrAlreadyCancelled
	}
	s.logger().Info("reservation cancelled by buyer", zap.Uint64("reservation_id", id), zap.Uint64("user_id", userID))
	return s.Store.GetByID(ctx, id)
}

// ExpireStale cancels PENDING reservations older than the checkout TTL and
// returns how many were cancelled.
func (s *ReservationService) ExpireStale(ctx context.Context) (int, error) {
	ids, err := s.Store.StalePending(ctx, s.now().Add(-s.checkoutTTL()))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		changed, err := s.Cancel(ctx, id)
		if err != nil {
			return n, err
		}
		if changed {
			n++
		}
	}
	return n, nil
}
