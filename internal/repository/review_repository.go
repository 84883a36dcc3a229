package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/smartbooking/internal/model"
)

// ReviewRepo persists member reviews and their moderation state.
type ReviewRepo struct {
	db *sql.DB
}

func NewReviewRepo(db *sql.DB) *ReviewRepo { return &ReviewRepo{db: db} }

const reviewSelect = `SELECT rv.id, rv.user_id, rv.show_id, s.title, u.login, rv.comment, rv.stars, rv.validated, rv.created_at
  FROM reviews rv
  JOIN users u ON u.id = rv.user_id
  JOIN shows s ON s.id = rv.show_id`

func loadReviews(ctx context.Context, q querier, tail string, args ...any) ([]model.Review, error) {
	rows, err := q.QueryContext(ctx, reviewSelect+" "+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Review{}
	for rows.Next() {
		var rv model.Review
		if err := rows.Scan(&rv.ID, &rv.UserID, &rv.ShowID, &rv.ShowTitle, &rv.AuthorLogin,
			&rv.Comment, &rv.Stars, &rv.Validated, &rv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

// Create stores an unvalidated review. A second review of the same show by
// the same user returns ErrDuplicateReview.
func (r *ReviewRepo) Create(ctx context.Context, rv *model.Review) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO reviews (user_id, show_id, comment, stars, validated) VALUES (?, ?, ?, ?, FALSE)",
		rv.UserID, rv.ShowID, strings.TrimSpace(rv.Comment), rv.Stars)
	if err != nil {
		switch {
		case isDuplicateKey(err):
			return ErrDuplicateReview
		case isForeignKeyViolation(err):
			return ErrNotFound
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	list, err := loadReviews(ctx, r.db, "WHERE rv.id = ?", id)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return ErrNotFound
	}
	*rv = list[0]
	return nil
}

// ListValidatedByShow returns the public reviews of a show, newest first.
func (r *ReviewRepo) ListValidatedByShow(ctx context.Context, showID uint64) ([]model.Review, error) {
	return loadReviews(ctx, r.db, "WHERE rv.validated = TRUE AND rv.show_id = ? ORDER BY rv.created_at DESC, rv.id DESC", showID)
}

// ListValidated returns every public review, newest first.
func (r *ReviewRepo) ListValidated(ctx context.Context) ([]model.Review, error) {
	return loadReviews(ctx, r.db, "WHERE rv.validated = TRUE ORDER BY rv.created_at DESC, rv.id DESC")
}

// ListPending returns reviews awaiting moderation, oldest first.
func (r *ReviewRepo) ListPending(ctx context.Context) ([]model.Review, error) {
	return loadReviews(ctx, r.db, "WHERE rv.validated = FALSE ORDER BY rv.created_at, rv.id")
}

// Validate publishes a review. Validating twice is a no-op.
func (r *ReviewRepo) Validate(ctx context.Context, id uint64) (model.Review, error) {
	if _, err := r.db.ExecContext(ctx, "UPDATE reviews SET validated = TRUE WHERE id = ?", id); err != nil {
		return model.Review{}, err
	}
	list, err := loadReviews(ctx, r.db, "WHERE rv.id = ?", id)
	if err != nil {
		return model.Review{}, err
	}
	if len(list) == 0 {
		return model.Review{}, ErrNotFound
	}
	return list[0], nil
}

// Delete removes a review.
func (r *ReviewRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM reviews WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats aggregates moderation counters. The average only covers validated
// reviews and is 0 when there are none.
func (r *ReviewRepo) Stats(ctx context.Context) (model.ReviewStats, error) {
	var (
		st  model.ReviewStats
		avg sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*),
	        COALESCE(SUM(validated = FALSE), 0),
	        COALESCE(SUM(validated = TRUE), 0),
	        AVG(CASE WHEN validated THEN stars END)
	   FROM reviews`).Scan(&st.TotalReviews, &st.PendingReviews, &st.ValidatedReviews, &avg)
	if avg.Valid {
		st.GlobalAverage = avg.Float64
	}
	return st, err
}
