// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

// Package nightpg adapts a PostgreSQL database to the sync core's Querier
// interface. This is the server deployment shape behind the REST facade.
package nightpg

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgx connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close releases the pool.
func (d *DB) Close() { d.pool.Close() }

// Query runs a parameterized query (core queries use ? placeholders, which
// are rebound to $n here) and returns all rows as generic values.
func (d *DB) Query(ctx context.Context, query string, args ...any) ([][]any, error) {
	rows, err := d.pool.Query(ctx, rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		out = append(out, values)
	}
	return out, rows.Err()
}

// Exec runs a parameterized statement.
func (d *DB) Exec(ctx context.Context, query string, args ...any) error {
	_, err := d.pool.Exec(ctx, rebind(query), args...)
	return err
}

// rebind rewrites ? placeholders to the $1..$n form pgx expects. The core's
// queries never embed literal question marks, so a plain scan suffices.
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// EnsureSchema creates the telemetry tables if they do not exist.
func (d *DB) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS Sugar (
			id BIGINT PRIMARY KEY,
			date TEXT NOT NULL,
			sugar DOUBLE PRECISION NOT NULL,
			tendency TEXT,
			difference TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS Insulin (
			id BIGINT PRIMARY KEY,
			date TEXT NOT NULL,
			value DOUBLE PRECISION,
			carbs DOUBLE PRECISION,
			duration INTEGER NOT NULL DEFAULT 0,
			type TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS Device (
			id BIGINT PRIMARY KEY,
			date TEXT,
			phone_battery INTEGER,
			transmitter_battery INTEGER,
			pump_battery INTEGER,
			pump_cartridge DOUBLE PRECISION,
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
		if _, err := d.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure postgres schema: %w", err)
		}
	}
	return nil
}
