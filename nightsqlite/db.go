// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

// Package nightsqlite adapts a local SQLite database to the sync core's
// Querier interface. This is the single-process deployment shape.
package nightsqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a SQLite connection.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path. The busy timeout
// guards against transient locking from concurrent readers (the display
// path); the sync core itself is single-writer.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	return &DB{db: db}, nil
}

// Close releases the connection.
func (d *DB) Close() error { return d.db.Close() }

// Query runs a parameterized query and returns all rows as generic values.
func (d *DB) Query(ctx context.Context, query string, args ...any) ([][]any, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, values)
	}
	return out, rows.Err()
}

// Exec runs a parameterized statement.
func (d *DB) Exec(ctx context.Context, query string, args ...any) error {
	_, err := d.db.ExecContext(ctx, query, args...)
	return err
}

// EnsureSchema creates the telemetry tables if they do not exist. The sync
// core never issues DDL; schema setup belongs to the adapter.
func (d *DB) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS Sugar (
			id INTEGER PRIMARY KEY,
			date TEXT NOT NULL,
			sugar REAL NOT NULL,
			tendency TEXT,
			difference TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS Insulin (
			id INTEGER PRIMARY KEY,
			date TEXT NOT NULL,
			value REAL,
			carbs REAL,
			duration INTEGER NOT NULL DEFAULT 0,
			type TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS Device (
			id INTEGER PRIMARY KEY,
			date TEXT,
			phone_battery INTEGER,
			transmitter_battery INTEGER,
			pump_battery INTEGER,
			pump_cartridge REAL,
			insulin_date TEXT,
			cannula_date TEXT,
			sensor_date TEXT,
			pump_name TEXT,
			phone_name TEXT,
			transmitter_name TEXT,
			insulin_name TEXT,
			sensor_name TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sugar_date ON Sugar(date)`,
		`CREATE INDEX IF NOT EXISTS idx_insulin_date ON Insulin(date)`,
	}
	for _, stmt := range statements {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure sqlite schema: %w", err)
		}
	}
	return nil
}
