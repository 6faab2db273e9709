package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-hr-auth/config"

	"github.com/go-sql-driver/mysql"
)

// openDB forces parseTime so DATETIME columns scan into time.Time.
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	dsn, err := mysql.ParseDSN(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("invalid MYSQL_DSN: %w", err)
	}
	dsn.ParseTime = true
	if dsn.Loc == nil {
		dsn.Loc = time.UTC
	}

	db, err := sql.Open("mysql", dsn.FormatDSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
