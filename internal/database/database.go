package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// GetConnection returns the underlying database connection
func (db *DB) GetConnection() *sql.DB {
	return db.conn
}

// createTables creates the necessary tables
func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS user_stats (
			user_id TEXT NOT NULL,
			guild_id TEXT NOT NULL,
			xp BIGINT NOT NULL DEFAULT 0,
			embers BIGINT NOT NULL DEFAULT 0,
			messages BIGINT NOT NULL DEFAULT 0,
			attachment_messages BIGINT NOT NULL DEFAULT 0,
			reactions_given BIGINT NOT NULL DEFAULT 0,
			got_reactions BIGINT NOT NULL DEFAULT 0,
			voice_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			streaming_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			video_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			voice_sessions BIGINT NOT NULL DEFAULT 0,
			streak_count INT NOT NULL DEFAULT 0,
			streak_day TEXT NOT NULL DEFAULT '',
			voice_streak_count INT NOT NULL DEFAULT 0,
			voice_streak_day TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, guild_id)
		)`,
		`CREATE TABLE IF NOT EXISTS achievement_progress (
			user_id TEXT NOT NULL,
			guild_id TEXT NOT NULL,
			achievement_id TEXT NOT NULL,
			progress DOUBLE PRECISION NOT NULL DEFAULT 0,
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			day_buckets JSONB,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, guild_id, achievement_id)
		)`,
		`CREATE TABLE IF NOT EXISTS opt_outs (
			user_id TEXT NOT NULL,
			guild_id TEXT NOT NULL,
			opted_out BOOLEAN NOT NULL DEFAULT TRUE,
			PRIMARY KEY (user_id, guild_id)
		)`,
		`CREATE TABLE IF NOT EXISTS activity_patterns (
			user_id TEXT NOT NULL,
			guild_id TEXT NOT NULL,
			hourly JSONB NOT NULL,
			weekly JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, guild_id)
		)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}
