package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nkarpov/codesentry/internal/model"
)

// Callees returns the distinct functions observed being called by fn,
// in first-seen order.
func (s *Session) Callees(ctx context.Context, fn string) ([]string, error) {
	return s.adjacent(ctx,
		`SELECT callee FROM call_edges WHERE caller = ? GROUP BY callee ORDER BY MIN(id)`, fn)
}

// Callers returns the distinct functions observed calling fn, in
// first-seen order.
func (s *Session) Callers(ctx context.Context, fn string) ([]string, error) {
	return s.adjacent(ctx,
		`SELECT caller FROM call_edges WHERE callee = ? GROUP BY caller ORDER BY MIN(id)`, fn)
}

func (s *Session) adjacent(ctx context.Context, query, fn string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, query, fn)
	if err != nil {
		if missingTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: query adjacency: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("store: scan adjacency: %w", err)
		}
		if name != "" {
			out = append(out, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate adjacency: %w", err)
	}
	return out, nil
}

// DistinctEdges returns every distinct (caller, callee) pair ever recorded,
// with the number of observed invocations as the weight.
func (s *Session) DistinctEdges(ctx context.Context) ([]model.GraphEdge, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT caller, callee, COUNT(*) FROM call_edges
		WHERE caller != '' AND callee != ''
		GROUP BY caller, callee ORDER BY MIN(id)`)
	if err != nil {
		if missingTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: query distinct edges: %w", err)
	}
	defer rows.Close()

	var out []model.GraphEdge
	for rows.Next() {
		var e model.GraphEdge
		if err := rows.Scan(&e.Source, &e.Target, &e.Weight); err != nil {
			return nil, fmt.Errorf("store: scan distinct edge: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate distinct edges: %w", err)
	}
	return out, nil
}

// NodeFacts are the per-function annotations attached to graph nodes.
type NodeFacts struct {
	Module    string
	Protected bool
	Changed   bool
	HasErrors bool
}

// FunctionFacts looks up graph annotations for one function: whether it is
// a registered protected entity, whether it has recorded changes or errors,
// and its most recently observed module.
func (s *Session) FunctionFacts(ctx context.Context, fn string) (NodeFacts, error) {
	var facts NodeFacts

	err := s.conn.QueryRowContext(ctx,
		`SELECT module FROM call_edges WHERE callee = ? OR caller = ? ORDER BY id DESC LIMIT 1`,
		fn, fn).Scan(&facts.Module)
	if err != nil && !noRowsOrMissing(err) {
		return facts, fmt.Errorf("store: query module: %w", err)
	}

	var n int
	err = s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM protected_functions WHERE name = ?`, fn).Scan(&n)
	if err != nil && !noRowsOrMissing(err) {
		return facts, fmt.Errorf("store: query protection: %w", err)
	}
	facts.Protected = n > 0

	err = s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM changes WHERE name = ?`, fn).Scan(&n)
	if err != nil && !noRowsOrMissing(err) {
		return facts, fmt.Errorf("store: query changes count: %w", err)
	}
	facts.Changed = n > 0

	err = s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM errors WHERE function_name = ?`, fn).Scan(&n)
	if err != nil && !noRowsOrMissing(err) {
		return facts, fmt.Errorf("store: query errors count: %w", err)
	}
	facts.HasErrors = n > 0

	return facts, nil
}

func noRowsOrMissing(err error) bool {
	return err == nil || missingTable(err) || errors.Is(err, sql.ErrNoRows)
}
