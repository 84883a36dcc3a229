package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/smartbooking/internal/model"
)

// RepresentationRepo manages dated performances and their price tiers.
type RepresentationRepo struct {
	db *sql.DB
}

func NewRepresentationRepo(db *sql.DB) *RepresentationRepo { return &RepresentationRepo{db: db} }

// heldPlaces counts places of pending and confirmed reservations; cancelled
// ones give their places back.
const heldPlaces = `COALESCE((SELECT SUM(ri.quantity)
            FROM reservation_items ri
            JOIN reservations res ON res.id = ri.reservation_id
           WHERE ri.representation_id = r.id AND res.status IN ('PENDING', 'CONFIRMED')), 0)`

// The representation's own venue wins; otherwise the show's venue is used.
const representationSelect = `SELECT r.id, r.show_id, s.title, r.starts_at, COALESCE(r.location_id, s.location_id),
       COALESCE(lr.designation, ls.designation, ''), r.capacity, ` + heldPlaces + `
  FROM representations r
  JOIN shows s ON s.id = r.show_id
  LEFT JOIN locations lr ON lr.id = r.location_id
  LEFT JOIN locations ls ON ls.id = s.location_id`

func loadRepresentations(ctx context.Context, q querier, tail string, args ...any) ([]model.Representation, error) {
	rows, err := q.QueryContext(ctx, representationSelect+" "+tail, args...)
	if err != nil {
		return nil, err
	}
	out := []model.Representation{}
	for rows.Next() {
		var (
			rep      model.Representation
			location sql.NullInt64
		)
		if err := rows.Scan(&rep.ID, &rep.ShowID, &rep.ShowTitle, &rep.When, &location,
			&rep.LocationDesignation, &rep.Capacity, &rep.ReservedPlaces); err != nil {
			rows.Close()
			return nil, err
		}
		rep.LocationID = nullUint64(location)
		if rep.LocationDesignation == "" {
			rep.LocationDesignation = model.UnknownLocation
		}
		rep.Prices = []model.Price{}
		out = append(out, rep)
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
	for i, rep := range out {
		ids[i] = rep.ID
	}
	prices, err := loadPrices(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if ps := prices[out[i].ID]; ps != nil {
			out[i].Prices = ps
		}
	}
	return out, nil
}

func loadPrices(ctx context.Context, q querier, repIDs []uint64) (map[uint64][]model.Price, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, representation_id, type, amount_cents, start_date, end_date
		  FROM prices WHERE representation_id IN (`+placeholders(len(repIDs))+`)
		 ORDER BY amount_cents, id`, uint64Args(repIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[uint64][]model.Price{}
	for rows.Next() {
		var (
			p   model.Price
			end sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.RepresentationID, &p.Type, &p.AmountCents, &p.StartDate, &end); err != nil {
			return nil, err
		}
		if end.Valid {
			t := end.Time
			p.EndDate = &t
		}
		p.Amount = model.CentsToAmount(p.AmountCents)
		out[p.RepresentationID] = append(out[p.RepresentationID], p)
	}
	return out, rows.Err()
}

// GetByID returns one representation with prices or ErrNotFound.
func (r *RepresentationRepo) GetByID(ctx context.Context, id uint64) (model.Representation, error) {
	return r.get(ctx, r.db, id)
}

func (r *RepresentationRepo) get(ctx context.Context, q querier, id uint64) (model.Representation, error) {
	reps, err := loadRepresentations(ctx, q, "WHERE r.id = ?", id)
	if err != nil {
		return model.Representation{}, err
	}
	if len(reps) == 0 {
		return model.Representation{}, ErrNotFound
	}
	return reps[0], nil
}

// ListByShow returns the representations of a show by date.
func (r *RepresentationRepo) ListByShow(ctx context.Context, showID uint64) ([]model.Representation, error) {
	return loadRepresentations(ctx, r.db, "WHERE r.show_id = ? ORDER BY r.starts_at", showID)
}

// Create inserts the representation and its prices in one transaction and
// reads the stored row back into rep.
func (r *RepresentationRepo) Create(ctx context.Context, rep *model.Representation) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO representations (show_id, starts_at, location_id, capacity) VALUES (?, ?, ?, ?)",
			rep.ShowID, rep.When.UTC(), nullableID(rep.LocationID), rep.Capacity)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for _, p := range rep.Prices {
			start := p.StartDate
			if start.IsZero() {
				start = time.Now().UTC()
			}
			var end any
			if p.EndDate != nil {
				end = p.EndDate.UTC()
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO prices (representation_id, type, amount_cents, start_date, end_date) VALUES (?, ?, ?, ?, ?)",
				id, p.Type, p.AmountCents, start.UTC().Format("2006-01-02"), end); err != nil {
				if isDuplicateKey(err) {
					return ErrConflict
				}
				return err
			}
		}
		stored, err := r.get(ctx, tx, uint64(id))
		if err != nil {
			return err
		}
		*rep = stored
		return nil
	})
}

// Update changes date, venue and capacity. Capacity cannot drop below the
// places already held (ErrConflict).
func (r *RepresentationRepo) Update(ctx context.Context, rep *model.Representation) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var one int
		if err := tx.QueryRowContext(ctx, "SELECT 1 FROM representations WHERE id = ? FOR UPDATE", rep.ID).Scan(&one); err != nil {
			return notFound(err)
		}
		held, err := heldPlacesTx(ctx, tx, rep.ID)
		if err != nil {
			return err
		}
		if rep.Capacity > 0 && rep.Capacity < held {
			return ErrConflict
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE representations SET starts_at = ?, location_id = ?, capacity = ? WHERE id = ?",
			rep.When.UTC(), nullableID(rep.LocationID), rep.Capacity, rep.ID); err != nil {
			return err
		}
		stored, err := r.get(ctx, tx, rep.ID)
		if err != nil {
			return err
		}
		*rep = stored
		return nil
	})
}

// Delete removes a representation nobody booked. It returns ErrConflict
// when reservation items reference it, whatever their status.
func (r *RepresentationRepo) Delete(ctx context.Context, id uint64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var one int
		if err := tx.QueryRowContext(ctx, "SELECT 1 FROM representations WHERE id = ? FOR UPDATE", id).Scan(&one); err != nil {
			return notFound(err)
		}
		var items int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM reservation_items WHERE representation_id = ?", id).Scan(&items); err != nil {
			return err
		}
		if items > 0 {
			return ErrConflict
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM representations WHERE id = ?", id)
		return err
	})
}

func heldPlacesTx(ctx context.Context, q querier, repID uint64) (uint32, error) {
	var held uint32
	err := q.QueryRowContext(ctx, `SELECT COALESCE(SUM(ri.quantity), 0)
		  FROM reservation_items ri
		  JOIN reservations res ON res.id = ri.reservation_id
		 WHERE ri.representation_id = ? AND res.status IN ('PENDING', 'CONFIRMED')`, repID).Scan(&held)
	return held, err
}
