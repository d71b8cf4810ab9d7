package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

//go:embed schema/*.sql
var schemaFS embed.FS

var errDSNRequired = errors.New("db dsn is required")

// Open connects to driver/dsn and applies the schema. sqlite is limited to a
// single connection so ":memory:" databases survive across queries.
func Open(driver, dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, errDSNRequired
	}
	if driver == "" {
		driver = DriverSQLite
	}

	switch driver {
	case DriverSQLite:
	case DriverMySQL:
		normalized, err := normalizeMySQLDSN(dsn)
		if err != nil {
			return nil, err
		}
		dsn = normalized
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	if err := applySchema(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// normalizeMySQLDSN forces time parsing in UTC so DATETIME columns scan into
// time.Time.
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

func applySchema(ctx context.Context, db *sqlx.DB, driver string) error {
	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			return fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema/" + driver + ".sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}

	// mysql rejects multi-statement Exec unless the DSN opts in.
	for _, stmt := range strings.Split(string(schemaSQL), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	return nil
}
