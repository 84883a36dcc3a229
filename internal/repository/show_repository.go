// Shows are the catalog entries. A show starts in the A_CONFIRMER state and
// only becomes public once an admin confirms it. Representations, validated
// reviews and artists are attached by the detail queries.
package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/smartbooking/internal/model"
)

// ShowRepo manages persistence for shows.
type ShowRepo struct {
	db *sql.DB
}

// NewShowRepo constructs a ShowRepo with the given DB handle.
func NewShowRepo(db *sql.DB) *ShowRepo {
	return &ShowRepo{db: db}
}

const showSelect = `SELECT s.id, s.slug, s.title, COALESCE(s.description, ''), COALESCE(s.poster_url, ''),
       s.bookable, s.status, s.location_id, COALESCE(l.designation, ''), s.producer_id, s.created_at, s.updated_at
  FROM shows s
  LEFT JOIN locations l ON l.id = s.location_id`

func scanShow(sc interface{ Scan(...any) error }) (model.Show, error) {
	var (
		s        model.Show
		location sql.NullInt64
		producer sql.NullInt64
	)
	err := sc.Scan(&s.ID, &s.Slug, &s.Title, &s.Description, &s.PosterURL, &s.Bookable, &s.Status,
		&location, &s.LocationDesignation, &producer, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return s, err
	}
	s.LocationID = nullUint64(location)
	s.ProducerID = nullUint64(producer)
	if s.LocationDesignation == "" {
		s.LocationDesignation = model.UnknownLocation
	}
	s.ArtistTypeIDs = []uint64{}
	s.Artists = []model.Artist{}
	s.Representations = []model.Representation{}
	s.Reviews = []model.Review{}
	return s, nil
}

func (r *ShowRepo) query(ctx context.Context, q querier, tail string, args ...any) ([]model.Show, error) {
	rows, err := q.QueryContext(ctx, showSelect+" "+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Show{}
	for rows.Next() {
		s, err := scanShow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetByID returns the bare show row or ErrNotFound.
func (r *ShowRepo) GetByID(ctx context.Context, id uint64) (model.Show, error) {
	s, err := scanShow(r.db.QueryRowContext(ctx, showSelect+" WHERE s.id = ?", id))
	return s, notFound(err)
}

// Detail returns the show with representations, validated reviews and
// artists attached.
func (r *ShowRepo) Detail(ctx context.Context, id uint64) (model.Show, error) {
	return r.detail(ctx, "WHERE s.id = ?", id)
}

// DetailBySlug is Detail addressed by slug.
func (r *ShowRepo) DetailBySlug(ctx context.Context, slug string) (model.Show, error) {
	return r.detail(ctx, "WHERE s.slug = ?", slug)
}

func (r *ShowRepo) detail(ctx context.Context, where string, arg any) (model.Show, error) {
	shows, err := r.query(ctx, r.db, where, arg)
	if err != nil {
		return model.Show{}, err
	}
	if len(shows) == 0 {
		return model.Show{}, ErrNotFound
	}
	if err := attachDetails(ctx, r.db, shows); err != nil {
		return model.Show{}, err
	}
	return shows[0], nil
}

// ListConfirmed returns the public catalog.
func (r *ShowRepo) ListConfirmed(ctx context.Context) ([]model.Show, error) {
	return r.listDetailed(ctx, "WHERE s.status = ? ORDER BY s.title", model.ShowConfirmed)
}

// ListAll returns every show, pending ones first.
func (r *ShowRepo) ListAll(ctx context.Context) ([]model.Show, error) {
	return r.listDetailed(ctx, "ORDER BY (s.status = 'CONFIRME'), s.title")
}

// ListByProducer returns the shows a producer created, in any state.
func (r *ShowRepo) ListByProducer(ctx context.Context, producerID uint64) ([]model.Show, error) {
	return r.listDetailed(ctx, "WHERE s.producer_id = ? ORDER BY s.created_at DESC", producerID)
}

func (r *ShowRepo) listDetailed(ctx context.Context, tail string, args ...any) ([]model.Show, error) {
	shows, err := r.query(ctx, r.db, tail, args...)
	if err != nil {
		return nil, err
	}
	if err := attachDetails(ctx, r.db, shows); err != nil {
		return nil, err
	}
	return shows, nil
}

// SlugTaken reports whether another show than exceptID uses slug.
func (r *ShowRepo) SlugTaken(ctx context.Context, slug string, exceptID uint64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM shows WHERE slug = ? AND id <> ?", slug, exceptID).Scan(&n)
	return n > 0, err
}

// Create inserts the show and its artist links. ID, status and timestamps
// are read back from the row.
func (r *ShowRepo) Create(ctx context.Context, s *model.Show) error {
	const q = `INSERT INTO shows (slug, title, description, poster_url, location_id, producer_id, bookable, status)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	status := s.Status
	if status == "" {
		status = model.ShowPending
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, q, s.Slug, s.Title, emptyToNull(s.Description), emptyToNull(s.PosterURL),
			nullableID(s.LocationID), nullableID(s.ProducerID), s.Bookable, status)
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
		if err := setShowArtistTypesTx(ctx, tx, uint64(id), s.ArtistTypeIDs); err != nil {
			return err
		}
		return r.reload(ctx, tx, uint64(id), s)
	})
}

// Update writes the editable columns and replaces the artist links.
func (r *ShowRepo) Update(ctx context.Context, s *model.Show) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		const q = `UPDATE shows SET slug = ?, title = ?, description = ?, poster_url = ?, location_id = ?, bookable = ?
		           WHERE id = ?`
		if _, err := tx.ExecContext(ctx, q, s.Slug, s.Title, emptyToNull(s.Description), emptyToNull(s.PosterURL),
			nullableID(s.LocationID), s.Bookable, s.ID); err != nil {
			if isDuplicateKey(err) {
				return ErrConflict
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM artist_type_show WHERE show_id = ?", s.ID); err != nil {
			return err
		}
		if err := setShowArtistTypesTx(ctx, tx, s.ID, s.ArtistTypeIDs); err != nil {
			return err
		}
		return r.reload(ctx, tx, s.ID, s)
	})
}

func (r *ShowRepo) reload(ctx context.Context, q querier, id uint64, dst *model.Show) error {
	shows, err := r.query(ctx, q, "WHERE s.id = ?", id)
	if err != nil {
		return err
	}
	if len(shows) == 0 {
		return ErrNotFound
	}
	if err := attachDetails(ctx, q, shows); err != nil {
		return err
	}
	*dst = shows[0]
	return nil
}

func setShowArtistTypesTx(ctx context.Context, tx *sql.Tx, showID uint64, ids []uint64) error {
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			"INSERT IGNORE INTO artist_type_show (artist_type_id, show_id) VALUES (?, ?)", id, showID); err != nil {
			if isForeignKeyViolation(err) {
				return ErrNotFound
			}
			return err
		}
	}
	return nil
}

// SetStatus moves a show between moderation states.
func (r *ShowRepo) SetStatus(ctx context.Context, id uint64, status string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE shows SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a show without representations. It returns ErrConflict
// when representations still exist.
func (r *ShowRepo) Delete(ctx context.Context, id uint64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var one int
		if err := tx.QueryRowContext(ctx, "SELECT 1 FROM shows WHERE id = ? FOR UPDATE", id).Scan(&one); err != nil {
			return notFound(err)
		}
		var reps int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM representations WHERE show_id = ?", id).Scan(&reps); err != nil {
			return err
		}
		if reps > 0 {
			return ErrConflict
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM shows WHERE id = ?", id)
		return err
	})
}

// Count returns the number of shows and how many await moderation.
func (r *ShowRepo) Count(ctx context.Context) (total, pending int64, err error) {
	err = r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(status = 'A_CONFIRMER'), 0) FROM shows").Scan(&total, &pending)
	return total, pending, err
}

// attachDetails fills representations, validated reviews and artists of
// shows in three batched queries.
func attachDetails(ctx context.Context, q querier, shows []model.Show) error {
	if len(shows) == 0 {
		return nil
	}
	ids := make([]uint64, len(shows))
	for i, s := range shows {
		ids[i] = s.ID
	}
	in := "(" + placeholders(len(ids)) + ")"

	reps, err := loadRepresentations(ctx, q, "WHERE r.show_id IN "+in+" ORDER BY r.starts_at", uint64Args(ids)...)
	if err != nil {
		return err
	}
	repsByShow := map[uint64][]model.Representation{}
	for _, rep := range reps {
		repsByShow[rep.ShowID] = append(repsByShow[rep.ShowID], rep)
	}

	reviews, err := loadReviews(ctx, q, "WHERE rv.validated = TRUE AND rv.show_id IN "+in+" ORDER BY rv.created_at DESC", uint64Args(ids)...)
	if err != nil {
		return err
	}
	reviewsByShow := map[uint64][]model.Review{}
	for _, rv := range reviews {
		reviewsByShow[rv.ShowID] = append(reviewsByShow[rv.ShowID], rv)
	}

	artists, links, err := loadShowArtists(ctx, q, ids)
	if err != nil {
		return err
	}

	for i := range shows {
		s := &shows[i]
		if rs := repsByShow[s.ID]; rs != nil {
			s.Representations = rs
		}
		if as := artists[s.ID]; as != nil {
			s.Artists = as
		}
		if ls := links[s.ID]; ls != nil {
			s.ArtistTypeIDs = ls
		}
		s.ApplyReviews(reviewsByShow[s.ID])
	}
	return nil
}

func loadShowArtists(ctx context.Context, q querier, showIDs []uint64) (map[uint64][]model.Artist, map[uint64][]uint64, error) {
	rows, err := q.QueryContext(ctx, `SELECT ats.show_id, aty.id, a.id, a.firstname, a.lastname, t.type
		  FROM artist_type_show ats
		  JOIN artist_type aty ON aty.id = ats.artist_type_id
		  JOIN artists a ON a.id = aty.artist_id
		  JOIN types t ON t.id = aty.type_id
		 WHERE ats.show_id IN (`+placeholders(len(showIDs))+`)
		 ORDER BY a.lastname, a.firstname, t.type`, uint64Args(showIDs)...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	artists := map[uint64][]model.Artist{}
	links := map[uint64][]uint64{}
	for rows.Next() {
		var (
			showID, linkID uint64
			a              model.Artist
			typ            string
		)
		if err := rows.Scan(&showID, &linkID, &a.ID, &a.Firstname, &a.Lastname, &typ); err != nil {
			return nil, nil, err
		}
		links[showID] = append(links[showID], linkID)
		list := artists[showID]
		if n := len(list); n > 0 && list[n-1].ID == a.ID {
			list[n-1].Types = append(list[n-1].Types, typ)
			continue
		}
		a.Types = []string{typ}
		artists[showID] = append(list, a)
	}
	return artists, links, rows.Err()
}
