package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"hash/crc32"
	"time"
)

// DatabaseLockProvider implements LockProvider on SQL server-side locks,
// for deployments that have a database but no Redis.
type DatabaseLockProvider struct {
	db     *sql.DB
	driver string // "mysql" or "postgres"
}

// NewDatabaseLockProvider creates a new database lock provider
func NewDatabaseLockProvider(db *sql.DB, driver string) *DatabaseLockProvider {
	return &DatabaseLockProvider{
		db:     db,
		driver: driver,
	}
}

// GetLock attempts to acquire a lock
func (d *DatabaseLockProvider) GetLock(ctx context.Context, name string, duration time.Duration) (bool, error) {
	if d.driver == "postgres" || d.driver == "pgsql" || d.driver == "pq" {
		return d.getPostgresLock(ctx, name)
	}
	return d.getMySQLLock(ctx, name, duration)
}

// ReleaseLock releases the lock
func (d *DatabaseLockProvider) ReleaseLock(ctx context.Context, name string) error {
	if d.driver == "postgres" || d.driver == "pgsql" || d.driver == "pq" {
		return d.releasePostgresLock(ctx, name)
	}
	return d.releaseMySQLLock(ctx, name)
}

// MySQL implementation using GET_LOCK with timeout 0, returning immediately.
func (d *DatabaseLockProvider) getMySQLLock(ctx context.Context, name string, duration time.Duration) (bool, error) {
	query := "SELECT GET_LOCK(?, 0)"
	var result sql.NullInt64
	err := d.db.QueryRowContext(ctx, query, name).Scan(&result)
	if err != nil {
		return false, err
	}
	if !result.Valid {
		return false, fmt.Errorf("GET_LOCK returned NULL")
	}
	return result.Int64 == 1, nil
}

func (d *DatabaseLockProvider) releaseMySQLLock(ctx context.Context, name string) error {
	query := "SELECT RELEASE_LOCK(?)"
	var result sql.NullInt64
	err := d.db.QueryRowContext(ctx, query, name).Scan(&result)
	return err
}

// Postgres implementation using advisory locks, keyed by a hash of the name.
func (d *DatabaseLockProvider) getPostgresLock(ctx context.Context, name string) (bool, error) {
	key := d.hashName(name)
	query := "SELECT pg_try_advisory_lock($1)"
	var success bool
	err := d.db.QueryRowContext(ctx, query, key).Scan(&success)
	if err != nil {
		return false, err
	}
	return success, nil
}

func (d *DatabaseLockProvider) releasePostgresLock(ctx context.Context, name string) error {
	key := d.hashName(name)
	query := "SELECT pg_advisory_unlock($1)"
	var success bool
	err := d.db.QueryRowContext(ctx, query, key).Scan(&success)
	return err
}

// hashName maps a lock name to the bigint key advisory locks require.
func (d *DatabaseLockProvider) hashName(name string) int64 {
	return int64(crc32.ChecksumIEEE([]byte(name)))
}
