package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nkarpov/codesentry/internal/model"
)

// timeFormat is the stored timestamp layout (UTC, microsecond precision).
const timeFormat = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Session is one actor's pinned database connection. Not safe for
// concurrent use; each goroutine acquires its own.
type Session struct {
	conn  *sql.Conn
	store *Store
}

// Close returns the underlying connection to the store.
func (s *Session) Close() error {
	s.store.release(s)
	return s.conn.Close()
}

// UpsertEntity registers or refreshes a protected entity. The same identity
// key overwrites digest, origin, and timestamp rather than duplicating.
func (s *Session) UpsertEntity(ctx context.Context, e model.ProtectedEntity) error {
	verified := formatTime(e.LastVerified)
	var err error
	switch e.Kind {
	case model.KindBlock:
		_, err = s.conn.ExecContext(ctx, `
			INSERT INTO protected_blocks (file_path, start_line, end_line, digest, origin, last_verified)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (file_path, start_line, end_line) DO UPDATE SET
				digest = excluded.digest,
				origin = excluded.origin,
				last_verified = excluded.last_verified`,
			e.FilePath, e.StartLine, e.EndLine, e.Digest, string(e.Origin), verified)
	case model.KindFunction:
		_, err = s.conn.ExecContext(ctx, `
			INSERT INTO protected_functions (file_path, name, digest, origin, last_verified)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (file_path, name) DO UPDATE SET
				digest = excluded.digest,
				origin = excluded.origin,
				last_verified = excluded.last_verified`,
			e.FilePath, e.Name, e.Digest, string(e.Origin), verified)
	default:
		return fmt.Errorf("store: unknown entity kind %q", e.Kind)
	}
	if err != nil {
		return fmt.Errorf("store: upsert entity: %w", err)
	}
	return nil
}

// TouchVerified updates last_verified for an entity that passed a check.
func (s *Session) TouchVerified(ctx context.Context, e model.ProtectedEntity, at time.Time) error {
	var err error
	if e.Kind == model.KindBlock {
		_, err = s.conn.ExecContext(ctx,
			`UPDATE protected_blocks SET last_verified = ? WHERE file_path = ? AND start_line = ? AND end_line = ?`,
			formatTime(at), e.FilePath, e.StartLine, e.EndLine)
	} else {
		_, err = s.conn.ExecContext(ctx,
			`UPDATE protected_functions SET last_verified = ? WHERE file_path = ? AND name = ?`,
			formatTime(at), e.FilePath, e.Name)
	}
	if err != nil {
		return fmt.Errorf("store: touch verified: %w", err)
	}
	return nil
}

// Entities returns all registered protected entities, functions first.
func (s *Session) Entities(ctx context.Context) ([]model.ProtectedEntity, error) {
	return s.entities(ctx, "")
}

// EntitiesByFile returns the protected entities registered for one file.
func (s *Session) EntitiesByFile(ctx context.Context, filePath string) ([]model.ProtectedEntity, error) {
	return s.entities(ctx, filePath)
}

func (s *Session) entities(ctx context.Context, filePath string) ([]model.ProtectedEntity, error) {
	var out []model.ProtectedEntity

	query := `SELECT file_path, name, digest, origin, last_verified FROM protected_functions`
	args := []any{}
	if filePath != "" {
		query += ` WHERE file_path = ?`
		args = append(args, filePath)
	}
	query += ` ORDER BY id`
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		if missingTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: query protected functions: %w", err)
	}
	for rows.Next() {
		var e model.ProtectedEntity
		var origin, verified string
		if err := rows.Scan(&e.FilePath, &e.Name, &e.Digest, &origin, &verified); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan protected function: %w", err)
		}
		e.Kind = model.KindFunction
		e.Origin = model.Origin(origin)
		e.LastVerified = parseTime(verified)
		out = append(out, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate protected functions: %w", err)
	}

	query = `SELECT file_path, start_line, end_line, digest, origin, last_verified FROM protected_blocks`
	args = args[:0]
	if filePath != "" {
		query += ` WHERE file_path = ?`
		args = append(args, filePath)
	}
	query += ` ORDER BY id`
	rows, err = s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		if missingTable(err) {
			return out, nil
		}
		return nil, fmt.Errorf("store: query protected blocks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e model.ProtectedEntity
		var origin, verified string
		if err := rows.Scan(&e.FilePath, &e.StartLine, &e.EndLine, &e.Digest, &origin, &verified); err != nil {
			return nil, fmt.Errorf("store: scan protected block: %w", err)
		}
		e.Kind = model.KindBlock
		e.Origin = model.Origin(origin)
		e.LastVerified = parseTime(verified)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate protected blocks: %w", err)
	}
	return out, nil
}

// InsertEdge appends one observed call. Append-only; duplicates are
// distinct invocations.
func (s *Session) InsertEdge(ctx context.Context, e model.CallEdge) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO call_edges (caller, callee, caller_file, callee_file, module, args, call_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Caller, e.Callee, e.CallerFile, e.CalleeFile, e.Module, e.Args, formatTime(e.Time))
	if err != nil {
		return fmt.Errorf("store: insert call edge: %w", err)
	}
	return nil
}

// InsertError appends one error record.
func (s *Session) InsertError(ctx context.Context, r model.ErrorRecord) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO errors (function_name, error_kind, message, stack_trace, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.Function, r.Kind, r.Message, r.StackTrace, r.Context, formatTime(r.Time))
	if err != nil {
		return fmt.Errorf("store: insert error record: %w", err)
	}
	return nil
}

// InsertChange appends one change record.
func (s *Session) InsertChange(ctx context.Context, c model.ChangeRecord) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO changes (file_path, name, change_kind, old_digest, new_digest, diff, auto_restore, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.FilePath, c.Name, c.ChangeKind, c.OldDigest, c.NewDigest, c.Diff, boolInt(c.AutoRestore), formatTime(c.Time))
	if err != nil {
		return fmt.Errorf("store: insert change record: %w", err)
	}
	return nil
}

// Errors returns the most recent error records, newest first. An empty
// function matches all functions.
func (s *Session) Errors(ctx context.Context, function string, limit int) ([]model.ErrorRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, function_name, error_kind, message, stack_trace, context, created_at FROM errors`
	args := []any{}
	if function != "" {
		query += ` WHERE function_name = ?`
		args = append(args, function)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		if missingTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: query errors: %w", err)
	}
	defer rows.Close()

	var out []model.ErrorRecord
	for rows.Next() {
		var r model.ErrorRecord
		var created string
		if err := rows.Scan(&r.ID, &r.Function, &r.Kind, &r.Message, &r.StackTrace, &r.Context, &created); err != nil {
			return nil, fmt.Errorf("store: scan error record: %w", err)
		}
		r.Time = parseTime(created)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate errors: %w", err)
	}
	return out, nil
}

// Changes returns the most recent change records, newest first, optionally
// filtered by file path and/or entity name.
func (s *Session) Changes(ctx context.Context, filePath, name string, limit int) ([]model.ChangeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, file_path, name, change_kind, old_digest, new_digest, diff, auto_restore, created_at FROM changes`
	args := []any{}
	switch {
	case filePath != "" && name != "":
		query += ` WHERE file_path = ? AND name = ?`
		args = append(args, filePath, name)
	case filePath != "":
		query += ` WHERE file_path = ?`
		args = append(args, filePath)
	case name != "":
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		if missingTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: query changes: %w", err)
	}
	defer rows.Close()

	var out []model.ChangeRecord
	for rows.Next() {
		var c model.ChangeRecord
		var auto int
		var created string
		if err := rows.Scan(&c.ID, &c.FilePath, &c.Name, &c.ChangeKind, &c.OldDigest, &c.NewDigest, &c.Diff, &auto, &created); err != nil {
			return nil, fmt.Errorf("store: scan change record: %w", err)
		}
		c.AutoRestore = auto != 0
		c.Time = parseTime(created)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate changes: %w", err)
	}
	return out, nil
}

// Clear deletes all rows from one table, or from every table when the
// name is empty.
func (s *Session) Clear(ctx context.Context, table string) error {
	tables := []string{"protected_functions", "protected_blocks", "call_edges", "errors", "changes"}
	if table != "" {
		found := false
		for _, t := range tables {
			if t == table {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("store: unknown table %q", table)
		}
		tables = []string{table}
	}
	for _, t := range tables {
		if _, err := s.conn.ExecContext(ctx, `DELETE FROM `+t); err != nil {
			return fmt.Errorf("store: clear %s: %w", t, err)
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
