// Package database persists dead-lettered jobs to a SQL table. Jobs land
// here when their retry budget is exhausted; the rows keep the full payload
// so an operator can inspect and requeue them.
package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mimivibe/tarotq/pkg/queue"
)

// DefaultTable is the dead-letter table name.
const DefaultTable = "failed_jobs"

// FailedJob is one dead-lettered row.
type FailedJob struct {
	ID         int64
	Connection string
	Queue      string
	Payload    []byte
	Exception  string
	FailedAt   time.Time
}

// DeadLetterProvider writes dead-lettered jobs to a SQL table.
type DeadLetterProvider struct {
	db    *sql.DB
	table string
}

var _ queue.DeadLetterProvider = (*DeadLetterProvider)(nil)

// NewDeadLetterProvider builds a provider over an open database handle.
// An empty tableName selects DefaultTable.
func NewDeadLetterProvider(db *sql.DB, tableName string) *DeadLetterProvider {
	if tableName == "" {
		tableName = DefaultTable
	}
	return &DeadLetterProvider{db: db, table: tableName}
}

// Log records a dead-lettered job.
func (p *DeadLetterProvider) Log(ctx context.Context, connection, queueName string, payload []byte, reason string) error {
	query := `
		INSERT INTO ` + p.table + ` (connection, queue, payload, exception, failed_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err := p.db.ExecContext(ctx, query, connection, queueName, payload, reason, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Str("queue", queueName).Msg("Failed to record dead-lettered job")
		return err
	}

	log.Warn().Str("queue", queueName).Str("reason", reason).Msg("Job dead-lettered")
	return nil
}

// Count reports how many dead-lettered rows exist.
func (p *DeadLetterProvider) Count(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+p.table).Scan(&n)
	return n, err
}

// Recent returns the newest dead-lettered rows, most recent first.
func (p *DeadLetterProvider) Recent(ctx context.Context, limit int) ([]FailedJob, error) {
	query := `
		SELECT id, connection, queue, payload, exception, failed_at
		FROM ` + p.table + `
		ORDER BY failed_at DESC
		LIMIT ?`

	rows, err := p.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []FailedJob
	for rows.Next() {
		var j FailedJob
		if err := rows.Scan(&j.ID, &j.Connection, &j.Queue, &j.Payload, &j.Exception, &j.FailedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Delete removes one dead-lettered row, after a successful requeue.
func (p *DeadLetterProvider) Delete(ctx context.Context, id int64) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM `+p.table+` WHERE id = ?`, id)
	return err
}
