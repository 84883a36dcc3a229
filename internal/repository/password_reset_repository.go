package repository

import (
	"context"
	"database/sql"
	"time"
)

// PasswordResetRepo stores hashed password reset tokens. A user has at most
// one outstanding token.
type PasswordResetRepo struct{ db *sql.DB }

func NewPasswordResetRepo(db *sql.DB) *PasswordResetRepo { return &PasswordResetRepo{db: db} }

// Replace drops any previous token of the user and stores the new one.
func (r *PasswordResetRepo) Replace(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM password_reset_tokens WHERE user_id=?", userID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO password_reset_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
			userID, tokenHash, exp)
		return err
	})
}

// Lookup returns the user of a token that has not expired.
func (r *PasswordResetRepo) Lookup(ctx context.Context, tokenHash string) (uint64, error) {
	var (
		userID uint64
		exp    time.Time
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT user_id, expires_at FROM password_reset_tokens WHERE token_hash=?", tokenHash).Scan(&userID, &exp)
	if err != nil {
		return 0, notFound(err)
	}
	if !time.Now().UTC().Before(exp) {
		return 0, ErrNotFound
	}
	return userID, nil
}

// Delete removes a token once used.
func (r *PasswordResetRepo) Delete(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM password_reset_tokens WHERE token_hash=?", tokenHash)
	return err
}

// DeleteExpired removes tokens that expired before now.
func (r *PasswordResetRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM password_reset_tokens WHERE expires_at < ?", now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
