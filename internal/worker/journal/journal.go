// Package journal records the outcome of every render request in Postgres.
package journal

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"metatiled/internal/pkg/errors"
)

// Schema creates the journal table when it does not exist.
const Schema = `
CREATE TABLE IF NOT EXISTS metatile_renders (
	id           TEXT PRIMARY KEY,
	request_id   TEXT NOT NULL,
	backend      TEXT NOT NULL,
	layer        TEXT NOT NULL,
	z            INTEGER NOT NULL,
	x            INTEGER NOT NULL,
	y            INTEGER NOT NULL,
	ok           BOOLEAN NOT NULL,
	object_key   TEXT,
	rendered     INTEGER NOT NULL DEFAULT 0,
	skipped      INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	duration_ms  BIGINT NOT NULL,
	error        TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Execer is the subset of *pgxpool.Pool the journal needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Entry is one journal row.
type Entry struct {
	ID        string
	RequestID string
	Layer     string
	X, Y, Z   int
	OK        bool
	ObjectKey string
	Rendered  int
	Skipped   int
	Failed    int
	Duration  time.Duration
	Error     string
}

// Journal writes entries through a pgx pool.
type Journal struct {
	db      Execer
	backend string
}

func New(db Execer, backend string) *Journal {
	return &Journal{db: db, backend: backend}
}

// EnsureSchema creates the journal table.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.Exec(ctx, Schema); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "journal.schema", "create table")
	}
	return nil
}

// Record inserts e. A missing table is created once and the insert retried.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	err := j.insert(ctx, e)
	if isUndefinedTable(err) {
		if err = j.EnsureSchema(ctx); err == nil {
			err = j.insert(ctx, e)
		}
	}
	if err != nil {
		return errors.Wrap(err, "journal.record", "insert render").
			WithField("request_id", e.RequestID)
	}
	return nil
}

func (j *Journal) insert(ctx context.Context, e Entry) error {
	_, err := j.db.Exec(ctx, `
		INSERT INTO metatile_renders
			(id, request_id, backend, layer, z, x, y, ok, object_key, rendered, skipped, failed, duration_ms, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12, $13, NULLIF($14, ''))
	`, e.ID, e.RequestID, j.backend, e.Layer, e.Z, e.X, e.Y, e.OK, e.ObjectKey,
		e.Rendered, e.Skipped, e.Failed, e.Duration.Milliseconds(), e.Error)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "journal.insert", "exec")
	}
	return nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 42P01 = undefined_table
		return pgErr.Code == "42P01"
	}
	return false
}
