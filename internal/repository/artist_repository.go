package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/smartbooking/internal/model"
)

// ArtistRepo manages artists, their types and the artist/type links that
// shows reference.
type ArtistRepo struct {
	db *sql.DB
}

func NewArtistRepo(db *sql.DB) *ArtistRepo { return &ArtistRepo{db: db} }

const artistSelect = `SELECT a.id, a.firstname, a.lastname, GROUP_CONCAT(t.type ORDER BY t.type)
  FROM artists a
  LEFT JOIN artist_type aty ON aty.artist_id = a.id
  LEFT JOIN types t ON t.id = aty.type_id`

func scanArtist(s interface{ Scan(...any) error }) (model.Artist, error) {
	var (
		a     model.Artist
		types sql.NullString
	)
	err := s.Scan(&a.ID, &a.Firstname, &a.Lastname, &types)
	a.Types = splitList(types)
	return a, err
}

// List returns all artists with their types.
func (r *ArtistRepo) List(ctx context.Context) ([]model.Artist, error) {
	rows, err := r.db.QueryContext(ctx, artistSelect+" GROUP BY a.id ORDER BY a.lastname, a.firstname")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Artist{}
	for rows.Next() {
		a, err := scanArtist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetByID returns one artist or ErrNotFound.
func (r *ArtistRepo) GetByID(ctx context.Context, id uint64) (model.Artist, error) {
	a, err := scanArtist(r.db.QueryRowContext(ctx, artistSelect+" WHERE a.id = ? GROUP BY a.id", id))
	return a, notFound(err)
}

// Create inserts an artist.
func (r *ArtistRepo) Create(ctx context.Context, a *model.Artist) error {
	res, err := r.db.ExecContext(ctx, "INSERT INTO artists (firstname, lastname) VALUES (?, ?)",
		strings.TrimSpace(a.Firstname), strings.TrimSpace(a.Lastname))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	a.Types = []string{}
	return nil
}

const artistTypeSelect = `SELECT aty.id, a.id, CONCAT(a.firstname, ' ', a.lastname), t.type
  FROM artist_type aty
  JOIN artists a ON a.id = aty.artist_id
  JOIN types t ON t.id = aty.type_id`

// ListArtistTypes returns every artist/type link.
func (r *ArtistRepo) ListArtistTypes(ctx context.Context) ([]model.ArtistType, error) {
	rows, err := r.db.QueryContext(ctx, artistTypeSelect+" ORDER BY a.lastname, a.firstname, t.type")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.ArtistType{}
	for rows.Next() {
		var at model.ArtistType
		if err := rows.Scan(&at.ID, &at.ArtistID, &at.ArtistName, &at.Type); err != nil {
			return nil, err
		}
		out = append(out, at)
	}
	return out, rows.Err()
}

// CreateArtistType links an artist to a type, creating the type when it is
// new. Linking the same pair twice returns ErrConflict.
func (r *ArtistRepo) CreateArtistType(ctx context.Context, artistID uint64, typeName string) (model.ArtistType, error) {
	var out model.ArtistType
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO types (type) VALUES (?) ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id)",
			strings.TrimSpace(typeName))
		if err != nil {
			return err
		}
		typeID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, "INSERT INTO artist_type (artist_id, type_id) VALUES (?, ?)", artistID, typeID)
		if err != nil {
			switch {
			case isDuplicateKey(err):
				return ErrConflict
			case isForeignKeyViolation(err):
				return ErrNotFound
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, artistTypeSelect+" WHERE aty.id = ?", id).
			Scan(&out.ID, &out.ArtistID, &out.ArtistName, &out.Type)
	})
	return out, err
}

// CountArtistTypes returns how many of ids exist, used to validate show
// payloads.
func (r *ArtistRepo) CountArtistTypes(ctx context.Context, ids []uint64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM artist_type WHERE id IN ("+placeholders(len(ids))+")", uint64Args(ids)...).Scan(&n)
	return n, err
}

// Delete removes an artist whose types no show references. Its
// artist/type links go with it.
func (r *ArtistRepo) Delete(ctx context.Context, id uint64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var one int
		if err := tx.QueryRowContext(ctx, "SELECT 1 FROM artists WHERE id = ? FOR UPDATE", id).Scan(&one); err != nil {
			return notFound(err)
		}
		var used int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM artist_type_show ats
			   JOIN artist_type aty ON aty.id = ats.artist_type_id
			  WHERE aty.artist_id = ?`, id).Scan(&used)
		if err != nil {
			return err
		}
		if used > 0 {
			return ErrConflict
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM artists WHERE id = ?", id)
		return err
	})
}

// Count returns the number of artists.
func (r *ArtistRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM artists").Scan(&n)
	return n, err
}
