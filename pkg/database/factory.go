// Package database opens SQL connections for the dead-letter store and the
// scheduler's database lock provider.
package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Connect opens and pings a database for the given driver and DSN.
// Supported drivers: mysql, postgres (also accepted as pgsql).
func Connect(driver, dsn string) (*sql.DB, error) {
	var driverName string
	switch driver {
	case "mysql":
		driverName = "mysql"
	case "pgsql", "postgres":
		driverName = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
