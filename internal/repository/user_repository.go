package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/smartbooking/internal/model"
)

// UserRepo persists users and their role assignments.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userSelect = `SELECT u.id, u.login, u.password_hash, u.firstname, u.lastname, u.email, u.langue,
       u.created_at, u.updated_at, GROUP_CONCAT(r.name ORDER BY r.id)
  FROM users u
  LEFT JOIN user_roles ur ON ur.user_id = u.id
  LEFT JOIN roles r ON r.id = ur.role_id`

func scanUser(s interface{ Scan(...any) error }) (model.User, error) {
	var (
		u     model.User
		roles sql.NullString
	)
	err := s.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.Firstname, &u.Lastname, &u.Email, &u.Langue,
		&u.CreatedAt, &u.UpdatedAt, &roles)
	u.Roles = splitList(roles)
	return u, err
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Create inserts the user with an already hashed password and assigns
// u.Roles. u.ID and timestamps are filled on success.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = NormalizeEmail(u.Email)
	u.Login = strings.TrimSpace(u.Login)
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO users (login, password_hash, firstname, lastname, email, langue) VALUES (?,?,?,?,?,?)",
			u.Login, u.PasswordHash, u.Firstname, u.Lastname, u.Email, u.Langue)
		if err != nil {
			return duplicateUserErr(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		u.ID = uint64(id)
		if err := setRolesTx(ctx, tx, u.ID, u.Roles); err != nil {
			return err
		}
		created, err := scanUser(tx.QueryRowContext(ctx, userSelect+" WHERE u.id = ? GROUP BY u.id", u.ID))
		if err != nil {
			return err
		}
		*u = created
		return nil
	})
}

func duplicateUserErr(err error) error {
	if !isDuplicateKey(err) {
		return err
	}
	if duplicateKeyName(err) == "email" {
		return ErrEmailExists
	}
	return ErrLoginExists
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, userSelect+" WHERE u.id = ? GROUP BY u.id", id))
	return u, notFound(err)
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, userSelect+" WHERE u.email = ? GROUP BY u.id", NormalizeEmail(email)))
	return u, notFound(err)
}

// GetByLoginOrEmail resolves the identifier typed in the login form.
func (r *UserRepo) GetByLoginOrEmail(ctx context.Context, ident string) (model.User, error) {
	ident = strings.TrimSpace(ident)
	u, err := scanUser(r.db.QueryRowContext(ctx,
		userSelect+" WHERE u.login = ? OR u.email = ? GROUP BY u.id ORDER BY u.login = ? DESC LIMIT 1",
		ident, NormalizeEmail(ident), ident))
	return u, notFound(err)
}

// List returns every user ordered by login.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx, userSelect+" GROUP BY u.id ORDER BY u.login")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpdateProfile changes the editable identity fields.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, firstname, lastname, email, langue string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET firstname=?, lastname=?, email=?, langue=? WHERE id=?",
		firstname, lastname, NormalizeEmail(email), langue, id)
	if err != nil {
		return duplicateUserErr(err)
	}
	return r.ensureExists(ctx, res, id)
}

// UpdatePassword stores a new bcrypt hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE users SET password_hash=? WHERE id=?", hash, id)
	if err != nil {
		return err
	}
	return r.ensureExists(ctx, res, id)
}

// ensureExists distinguishes "no row" from "row unchanged" after an UPDATE.
func (r *UserRepo) ensureExists(ctx context.Context, res sql.Result, id uint64) error {
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id=?", id).Scan(&one)
	return notFound(err)
}

// SetRoles replaces the role assignments of a user.
func (r *UserRepo) SetRoles(ctx context.Context, id uint64, roles []string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var one int
		if err := tx.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id=? FOR UPDATE", id).Scan(&one); err != nil {
			return notFound(err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM user_roles WHERE user_id=?", id); err != nil {
			return err
		}
		return setRolesTx(ctx, tx, id, roles)
	})
}

func setRolesTx(ctx context.Context, tx *sql.Tx, userID uint64, roles []string) error {
	if len(roles) == 0 {
		return nil
	}
	args := append([]any{userID}, stringArgs(roles)...)
	_, err := tx.ExecContext(ctx,
		"INSERT IGNORE INTO user_roles (user_id, role_id) SELECT ?, id FROM roles WHERE name IN ("+placeholders(len(roles))+")",
		args...)
	return err
}

// Delete removes a user; their tokens, reservations and reviews cascade.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of users.
func (r *UserRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n)
	return n, err
}
