package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"bin-dates/models"
)

// PostgresWriter mirrors the six entity states into an entity_states table,
// one row per entity, overwritten on every refresh.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("postgres: ping: %w", ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate(ctx context.Context) error {
	_, err := pw.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS entity_states (
			entity_id  TEXT        PRIMARY KEY,
			state      TEXT        NOT NULL,
			uprn       TEXT        NOT NULL,
			cycle_id   UUID        NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

// Publish upserts every entity of the snapshot in a single transaction.
func (pw *PostgresWriter) Publish(ctx context.Context, snap models.Snapshot) error {
	query, args := upsertStatesQuery(snap)

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("postgres: upsert states: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func upsertStatesQuery(snap models.Snapshot) (string, []interface{}) {
	states := snap.EntityStates()
	valueStrings := make([]string, 0, len(states))
	valueArgs := make([]interface{}, 0, len(states)*5)

	for idx, s := range states {
		base := idx * 5
		valueStrings = append(valueStrings,
			fmt.Sprintf("($%d,$%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4, base+5))
		valueArgs = append(valueArgs, s.EntityID, s.State, string(snap.UPRN), snap.CycleID, snap.RefreshedAt)
	}

	query := fmt.Sprintf(`
		INSERT INTO entity_states (entity_id, state, uprn, cycle_id, updated_at)
		VALUES %s
		ON CONFLICT (entity_id) DO UPDATE SET
			state      = EXCLUDED.state,
			uprn       = EXCLUDED.uprn,
			cycle_id   = EXCLUDED.cycle_id,
			updated_at = EXCLUDED.updated_at
	`, strings.Join(valueStrings, ","))
	return query, valueArgs
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}
