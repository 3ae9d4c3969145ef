package store

import (
	"database/sql"
	"fmt"
)

// Five logical tables: protected functions, protected blocks, call edges,
// errors, changes. No migrations are defined; the schema is created on
// first access if absent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS protected_functions (
		id            INTEGER PRIMARY KEY,
		file_path     TEXT NOT NULL,
		name          TEXT NOT NULL,
		digest        TEXT NOT NULL,
		origin        TEXT NOT NULL,
		last_verified TEXT NOT NULL,
		UNIQUE (file_path, name)
	)`,
	`CREATE TABLE IF NOT EXISTS protected_blocks (
		id            INTEGER PRIMARY KEY,
		file_path     TEXT NOT NULL,
		start_line    INTEGER NOT NULL,
		end_line      INTEGER NOT NULL,
		digest        TEXT NOT NULL,
		origin        TEXT NOT NULL,
		last_verified TEXT NOT NULL,
		UNIQUE (file_path, start_line, end_line)
	)`,
	`CREATE TABLE IF NOT EXISTS call_edges (
		id          INTEGER PRIMARY KEY,
		caller      TEXT NOT NULL,
		callee      TEXT NOT NULL,
		caller_file TEXT,
		callee_file TEXT,
		module      TEXT,
		args        TEXT,
		call_time   TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS errors (
		id            INTEGER PRIMARY KEY,
		function_name TEXT NOT NULL,
		error_kind    TEXT,
		message       TEXT,
		stack_trace   TEXT,
		context       TEXT,
		created_at    TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS changes (
		id           INTEGER PRIMARY KEY,
		file_path    TEXT NOT NULL,
		name         TEXT NOT NULL,
		change_kind  TEXT NOT NULL,
		old_digest   TEXT,
		new_digest   TEXT,
		diff         TEXT,
		auto_restore INTEGER NOT NULL DEFAULT 0,
		created_at   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_call_edges_caller ON call_edges (caller)`,
	`CREATE INDEX IF NOT EXISTS idx_call_edges_callee ON call_edges (callee)`,
	`CREATE INDEX IF NOT EXISTS idx_errors_function ON errors (function_name)`,
	`CREATE INDEX IF NOT EXISTS idx_changes_file ON changes (file_path)`,
}

func createSchema(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: create schema: %w", err)
		}
	}
	return nil
}
