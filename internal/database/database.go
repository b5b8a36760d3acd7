// Package database opens the team store and applies its schema migrations.
// A postgres:// or postgresql:// URL selects PostgreSQL through pgx; anything
// else is treated as a SQLite file path.
package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/codejam/backend/internal/db"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DialectFor reports which SQL dialect a DATABASE_URL selects.
func DialectFor(dsn string) db.Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return db.DialectPostgres
	}
	return db.DialectSQLite
}

// New opens a connection pool for dsn.
func New(dsn string) (*sql.DB, db.Dialect, error) {
	dialect := DialectFor(dsn)
	if dialect == db.DialectPostgres {
		sqlDB, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, dialect, fmt.Errorf("open postgres: %w", err)
		}
		if err := sqlDB.Ping(); err != nil {
			sqlDB.Close()
			return nil, dialect, fmt.Errorf("ping postgres: %w", err)
		}
		return sqlDB, dialect, nil
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, dialect, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", "PRAGMA foreign_keys=ON"} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, dialect, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return sqlDB, dialect, nil
}

// RunMigrations brings the schema up to date.
func RunMigrations(sqlDB *sql.DB, dialect db.Dialect) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	var driver migratedb.Driver
	switch dialect {
	case db.DialectPostgres:
		driver, err = migratepgx.WithInstance(sqlDB, &migratepgx.Config{})
	default:
		driver, err = migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, string(dialect), driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
