// Package repository holds the MySQL data access layer. The sentinel errors
// below let handlers tell failure scenarios apart: ErrForbidden means the
// caller does not own the resource, ErrConflict that dependent rows or the
// current state prevent the change (e.g. deleting a show that still has
// representations).
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller attempts an operation on a
	// resource they do not own. Handlers translate it into 403.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict is returned when a delete or update cannot proceed
	// because of dependent rows or state. Handlers translate it into 409.
	ErrConflict = errors.New("conflict")
	// ErrEmailExists and ErrLoginExists report unique key violations on users.
	ErrEmailExists = errors.New("email already exists")
	ErrLoginExists = errors.New("login already exists")
	// ErrDuplicateReview is returned when a user reviews the same show twice.
	ErrDuplicateReview = errors.New("review already exists")
	// ErrSoldOut is returned when a reservation exceeds the remaining places
	// of a representation.
	ErrSoldOut = errors.New("sold out")
)

// querier is satisfied by *sql.DB and *sql.Tx so helpers can run inside or
// outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// isDuplicateKey reports a MySQL 1062 unique constraint violation.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return err != nil && strings.Contains(err.Error(), "1062")
}

// duplicateKeyName extracts the index name from a 1062 message such as
// "Duplicate entry 'x' for key 'users.email'". MySQL 8 prefixes the table
// name, older servers do not.
func duplicateKeyName(err error) string {
	msg := err.Error()
	i := strings.LastIndex(msg, "for key '")
	if i < 0 {
		return ""
	}
	key := strings.TrimSuffix(msg[i+len("for key '"):], "'")
	if j := strings.LastIndexByte(key, '.'); j >= 0 {
		key = key[j+1:]
	}
	return key
}

// isForeignKeyViolation reports MySQL 1451/1452 foreign key failures.
func isForeignKeyViolation(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1451 || me.Number == 1452
	}
	return false
}

// notFound maps sql.ErrNoRows to ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// placeholders returns "?,?,?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func uint64Args(ids []uint64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func stringArgs(vals []string) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

// splitList splits a GROUP_CONCAT result; NULL gives an empty slice.
func splitList(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" {
		return []string{}
	}
	return strings.Split(ns.String, ",")
}

func nullUint64(n sql.NullInt64) *uint64 {
	if !n.Valid {
		return nil
	}
	v := uint64(n.Int64)
	return &v
}

func nullableID(p *uint64) any {
	if p == nil {
		return nil
	}
	return *p
}

func emptyToNull(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// withTx runs fn in a transaction and commits when it returns nil.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
