package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/smartbooking/internal/model"
)

// LocationRepo manages venues and their localities.
type LocationRepo struct {
	db *sql.DB
}

func NewLocationRepo(db *sql.DB) *LocationRepo { return &LocationRepo{db: db} }

const locationSelect = `SELECT l.id, l.slug, l.designation, l.address, COALESCE(l.website, ''), COALESCE(l.phone, ''),
       lo.id, lo.locality, lo.postal_code
  FROM locations l
  JOIN localities lo ON lo.id = l.locality_id`

func scanLocation(s interface{ Scan(...any) error }) (model.Location, error) {
	var l model.Location
	err := s.Scan(&l.ID, &l.Slug, &l.Designation, &l.Address, &l.Website, &l.Phone,
		&l.LocalityID, &l.LocalityName, &l.PostalCode)
	return l, err
}

// List returns all venues ordered by designation.
func (r *LocationRepo) List(ctx context.Context) ([]model.Location, error) {
	rows, err := r.db.QueryContext(ctx, locationSelect+" ORDER BY l.designation")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Location{}
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetByID returns a venue or ErrNotFound.
func (r *LocationRepo) GetByID(ctx context.Context, id uint64) (model.Location, error) {
	l, err := scanLocation(r.db.QueryRowContext(ctx, locationSelect+" WHERE l.id = ?", id))
	return l, notFound(err)
}

// Exists reports whether a venue id is known.
func (r *LocationRepo) Exists(ctx context.Context, id uint64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM locations WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// SlugTaken reports whether a venue already uses slug.
func (r *LocationRepo) SlugTaken(ctx context.Context, slug string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM locations WHERE slug = ?", slug).Scan(&n)
	return n > 0, err
}

// Create stores the venue, reusing the locality when the postal code and
// name already exist. l.ID and l.LocalityID are filled on success.
func (r *LocationRepo) Create(ctx context.Context, l *model.Location) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO localities (postal_code, locality) VALUES (?, ?)
			 ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id)`,
			strings.TrimSpace(l.PostalCode), strings.TrimSpace(l.LocalityName))
		if err != nil {
			return err
		}
		locID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		l.LocalityID = uint64(locID)
		res, err = tx.ExecContext(ctx,
			"INSERT INTO locations (slug, designation, address, locality_id, website, phone) VALUES (?,?,?,?,?,?)",
			l.Slug, l.Designation, l.Address, l.LocalityID, emptyToNull(l.Website), emptyToNull(l.Phone))
		if err != nil {
			if isDuplicateKey(err) {
				return ErrConflict
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		l.ID = uint64(id)
		return nil
	})
}

// Delete removes a venue that no show or representation uses.
func (r *LocationRepo) Delete(ctx context.Context, id uint64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var one int
		if err := tx.QueryRowContext(ctx, "SELECT 1 FROM locations WHERE id = ? FOR UPDATE", id).Scan(&one); err != nil {
			return notFound(err)
		}
		var used int
		err := tx.QueryRowContext(ctx,
			`SELECT (SELECT COUNT(*) FROM shows WHERE location_id = ?) +
			        (SELECT COUNT(*) FROM representations WHERE location_id = ?)`, id, id).Scan(&used)
		if err != nil {
			return err
		}
		if used > 0 {
			return ErrConflict
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM locations WHERE id = ?", id)
		return err
	})
}

// ListLocalities returns every locality ordered by postal code.
func (r *LocationRepo) ListLocalities(ctx context.Context) ([]model.Locality, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, postal_code, locality FROM localities ORDER BY postal_code, locality")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Locality{}
	for rows.Next() {
		var l model.Locality
		if err := rows.Scan(&l.ID, &l.PostalCode, &l.Locality); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Count returns the number of venues.
func (r *LocationRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM locations").Scan(&n)
	return n, err
}
