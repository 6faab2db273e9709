package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const mysqlDuplicateEntry = 1062

var (
	ErrDuplicateEmail            = errors.New("duplicate email")
	ErrDuplicateVerificationCode = errors.New("duplicate verification code")
	// ErrStaleWrite means a conditional update matched no row because another
	// request changed it first.
	ErrStaleWrite = errors.New("stale write")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(tx)
}

// translateDuplicate maps a MySQL unique violation to the repository error
// for the index that rejected the row. Other errors pass through.
func translateDuplicate(err error) error {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) || mysqlErr.Number != mysqlDuplicateEntry {
		return err
	}
	if strings.Contains(mysqlErr.Message, "verification_code") {
		return ErrDuplicateVerificationCode
	}
	return ErrDuplicateEmail
}
