// Package store persists the question bank, the fingerprint index, the
// per-user submission ledger and the mistake register. Everything runs over
// database/sql: Postgres (pgx) in production, sqlite for local runs and
// tests. Queries stick to distinct $N ordinals and Go-side timestamps so both
// drivers behave identically.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = sql.ErrNoRows

type DB struct {
	*sql.DB
}

// Open connects to the backing database and bootstraps the schema. DSNs with
// a postgres scheme go through pgx; anything else is treated as a sqlite
// path.
func Open(dsn string) (*DB, error) {
	driver := "sqlite3"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "pgx"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if driver == "sqlite3" {
		// sqlite handles no write concurrency; a larger pool only buys
		// "database is locked" errors
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(1 * time.Hour)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS questions (
			question_id      TEXT PRIMARY KEY,
			canonical_text   TEXT NOT NULL,
			subject          TEXT NOT NULL DEFAULT '',
			analysis_json    TEXT NOT NULL,
			first_seen_image TEXT NOT NULL DEFAULT '',
			first_seen_at    TIMESTAMP NOT NULL
		)`,

		// fingerprint -> question_id; many fingerprints may point at one
		// question, one fingerprint points at exactly one question
		`CREATE TABLE IF NOT EXISTS question_fingerprints (
			fingerprint TEXT PRIMARY KEY,
			question_id TEXT NOT NULL
		)`,

		// append-only ledger; no update or delete paths exist
		`CREATE TABLE IF NOT EXISTS submissions (
			submission_id  TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			question_id    TEXT NOT NULL,
			submitted_text TEXT NOT NULL,
			created_at     TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS mistakes (
			mistake_id      TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL,
			question_id     TEXT NOT NULL,
			question_text   TEXT NOT NULL,
			knowledge_point TEXT NOT NULL DEFAULT '',
			error_analysis  TEXT NOT NULL DEFAULT '',
			review_status   TEXT NOT NULL DEFAULT 'pending',
			added_at        TIMESTAMP NOT NULL,
			UNIQUE (user_id, question_id)
		)`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}
