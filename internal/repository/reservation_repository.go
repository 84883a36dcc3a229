package repository

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/iliyamo/smartbooking/internal/model"
)

// ReservationRepo stores reservations and their representation/price
// items. All timestamps are UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// PriceLine is everything needed to judge whether a price can be sold:
// the tier itself, its representation and the show it belongs to.
type PriceLine struct {
	PriceID          uint64
	RepresentationID uint64
	PriceType        string
	AmountCents      uint32
	StartDate        time.Time
	EndDate          *time.Time
	When             time.Time
	Capacity         uint32
	ShowID           uint64
	ShowTitle        string
	ShowStatus       string
	Bookable         bool
}

// Price converts the line into a model.Price.
func (l PriceLine) Price() model.Price {
	return model.Price{
		ID:               l.PriceID,
		RepresentationID: l.RepresentationID,
		Type:             l.PriceType,
		AmountCents:      l.AmountCents,
		Amount:           model.CentsToAmount(l.AmountCents),
		StartDate:        l.StartDate,
		EndDate:          l.EndDate,
	}
}

// PriceLines loads the given prices keyed by id. Unknown ids are absent
// from the map.
func (r *ReservationRepo) PriceLines(ctx context.Context, priceIDs []uint64) (map[uint64]PriceLine, error) {
	out := map[uint64]PriceLine{}
	if len(priceIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, `SELECT p.id, p.representation_id, p.type, p.amount_cents, p.start_date, p.end_date,
	        rep.starts_at, rep.capacity, s.id, s.title, s.status, s.bookable
	   FROM prices p
	   JOIN representations rep ON rep.id = p.representation_id
	   JOIN shows s ON s.id = rep.show_id
	  WHERE p.id IN (`+placeholders(len(priceIDs))+`)`, uint64Args(priceIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			l   PriceLine
			end sql.NullTime
		)
		if err := rows.Scan(&l.PriceID, &l.RepresentationID, &l.PriceType, &l.AmountCents, &l.StartDate, &end,
			&l.When, &l.Capacity, &l.ShowID, &l.ShowTitle, &l.ShowStatus, &l.Bookable); err != nil {
			return nil, err
		}
		if end.Valid {
			t := end.Time
			l.EndDate = &t
		}
		out[l.PriceID] = l
	}
	return out, rows.Err()
}

// NewItem is one line of a reservation about to be created.
type NewItem struct {
	RepresentationID uint64
	PriceID          uint64
	Quantity         uint32
	UnitPriceCents   uint32
}

// CreatePending stores a PENDING reservation. The representations involved
// are locked while remaining places are checked so concurrent buyers cannot
// oversell a limited representation; ErrSoldOut reports a shortage.
func (r *ReservationRepo) CreatePending(ctx context.Context, userID uint64, items []NewItem) (model.Reservation, error) {
	var out model.Reservation
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		requested := map[uint64]uint32{}
		var total uint32
		for _, it := range items {
			requested[it.RepresentationID] += it.Quantity
			total += it.Quantity * it.UnitPriceCents
		}
		repIDs := make([]uint64, 0, len(requested))
		for id := range requested {
			repIDs = append(repIDs, id)
		}
		sort.Slice(repIDs, func(i, j int) bool { return repIDs[i] < repIDs[j] })

		capacities, err := lockRepresentationsTx(ctx, tx, repIDs)
		if err != nil {
			return err
		}
		for _, id := range repIDs {
			capacity, ok := capacities[id]
			if !ok {
				return ErrNotFound
			}
			if capacity == 0 {
				continue
			}
			held, err := heldPlacesTx(ctx, tx, id)
			if err != nil {
				return err
			}
			if held+requested[id] > capacity {
				return ErrSoldOut
			}
		}

		res, err := tx.ExecContext(ctx,
			"INSERT INTO reservations (user_id, status, total_amount_cents) VALUES (?, ?, ?)",
			userID, model.ReservationPending, total)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := createItemsBulkTx(ctx, tx, uint64(id), items); err != nil {
			return err
		}
		out, err = r.get(ctx, tx, uint64(id))
		return err
	})
	return out, err
}

func lockRepresentationsTx(ctx context.Context, tx *sql.Tx, ids []uint64) (map[uint64]uint32, error) {
	out := map[uint64]uint32{}
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := tx.QueryContext(ctx,
		"SELECT id, capacity FROM representations WHERE id IN ("+placeholders(len(ids))+") ORDER BY id FOR UPDATE",
		uint64Args(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id       uint64
			capacity uint32
		)
		if err := rows.Scan(&id, &capacity); err != nil {
			return nil, err
		}
		out[id] = capacity
	}
	return out, rows.Err()
}

// createItemsBulkTx inserts all items in a single statement.
func createItemsBulkTx(ctx context.Context, tx *sql.Tx, reservationID uint64, items []NewItem) error {
	if len(items) == 0 {
		return nil
	}
	query := "INSERT INTO reservation_items (reservation_id, representation_id, price_id, quantity, unit_price_cents) VALUES "
	args := make([]any, 0, len(items)*5)
	for i, it := range items {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?)"
		args = append(args, reservationID, it.RepresentationID, it.PriceID, it.Quantity, it.UnitPriceCents)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// SetPaymentRef records the checkout session of a reservation.
func (r *ReservationRepo) SetPaymentRef(ctx context.Context, id uint64, ref string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE reservations SET payment_ref = ? WHERE id = ?", ref, id)
	return err
}

// Transition moves a reservation to status `to` if it currently is in one of
// `from`. It reports whether the row changed, which makes webhook
// redeliveries harmless. A non-empty paymentRef replaces the stored one.
func (r *ReservationRepo) Transition(ctx context.Context, id uint64, from []string, to, paymentRef string) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	args := []any{to, emptyToNull(paymentRef), id}
	args = append(args, stringArgs(from)...)
	res, err := r.db.ExecContext(ctx,
		"UPDATE reservations SET status = ?, payment_ref = COALESCE(?, payment_ref) WHERE id = ? AND status IN ("+placeholders(len(from))+")",
		args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetByID returns a reservation with its items or ErrNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (model.Reservation, error) {
	return r.get(ctx, r.db, id)
}

func (r *ReservationRepo) get(ctx context.Context, q querier, id uint64) (model.Reservation, error) {
	list, err := loadReservations(ctx, q, "WHERE id = ?", id)
	if err != nil {
		return model.Reservation{}, err
	}
	if len(list) == 0 {
		return model.Reservation{}, ErrNotFound
	}
	return list[0], nil
}

// ListByUser returns the reservations of a user, newest first.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	return loadReservations(ctx, r.db, "WHERE user_id = ? ORDER BY created_at DESC, id DESC", userID)
}

// StalePending returns PENDING reservations created before cutoff.
func (r *ReservationRepo) StalePending(ctx context.Context, cutoff time.Time) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id FROM reservations WHERE status = ? AND created_at < ? ORDER BY id",
		model.ReservationPending, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of reservations.
func (r *ReservationRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reservations").Scan(&n)
	return n, err
}

func loadReservations(ctx context.Context, q querier, tail string, args ...any) ([]model.Reservation, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, user_id, status, total_amount_cents, payment_ref, created_at, updated_at FROM reservations "+tail,
		args...)
	if err != nil {
		return nil, err
	}
	out := []model.Reservation{}
	for rows.Next() {
		var (
			res model.Reservation
			ref sql.NullString
		)
		if err := rows.Scan(&res.ID, &res.UserID, &res.Status, &res.TotalAmountCents, &ref,
			&res.ReservationDate, &res.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		if ref.Valid {
			s := ref.String
			res.PaymentRef = &s
		}
		res.TotalAmount = model.CentsToAmount(res.TotalAmountCents)
		res.Items = []model.ReservationItem{}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]uint64, len(out))
	index := make(map[uint64]int, len(out))
	for i, res := range out {
		ids[i] = res.ID
		index[res.ID] = i
	}
	itemRows, err := q.QueryContext(ctx, `SELECT ri.id, ri.reservation_id, ri.representation_id, rep.starts_at, s.id, s.title,
	        ri.price_id, p.type, ri.unit_price_cents, ri.quantity
	   FROM reservation_items ri
	   JOIN representations rep ON rep.id = ri.representation_id
	   JOIN shows s ON s.id = rep.show_id
	   JOIN prices p ON p.id = ri.price_id
	  WHERE ri.reservation_id IN (`+placeholders(len(ids))+`)
	  ORDER BY rep.starts_at, ri.id`, uint64Args(ids)...)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var (
			it    model.ReservationItem
			resID uint64
		)
		if err := itemRows.Scan(&it.ID, &resID, &it.RepresentationID, &it.RepresentationWhen, &it.ShowID, &it.ShowTitle,
			&it.PriceID, &it.PriceType, &it.UnitPriceCents, &it.Quantity); err != nil {
			return nil, err
		}
		it.PriceAmount = model.CentsToAmount(it.UnitPriceCents)
		if i, ok := index[resID]; ok {
			out[i].Items = append(out[i].Items, it)
		}
	}
	return out, itemRows.Err()
}
