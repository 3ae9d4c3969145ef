// Package model defines the shared record types persisted and exchanged
// by the scanner, tracer, monitor, and graph builder.
package model

import (
	"fmt"
	"time"
)

// EntityKind distinguishes the two shapes of protected entity.
type EntityKind string

const (
	// KindFunction is a protected function located by qualified name.
	KindFunction EntityKind = "function"
	// KindBlock is a protected line range bracketed by lock comments.
	KindBlock EntityKind = "block"
)

// Origin records which discovery mechanism registered an entity.
type Origin string

const (
	// OriginMarker means the entity was found via a protect directive
	// attached to a function declaration.
	OriginMarker Origin = "marker"
	// OriginComment means the entity was found via paired lock comments.
	OriginComment Origin = "comment"
	// OriginManual means the entity was registered directly by a caller.
	OriginManual Origin = "manual"
)

// ProtectedEntity is a function or line range registered for integrity
// tracking. It is a tagged union: Kind selects which identity fields apply.
// Functions are keyed by (FilePath, Name); blocks by
// (FilePath, StartLine, EndLine).
type ProtectedEntity struct {
	Kind         EntityKind `json:"kind"`
	FilePath     string     `json:"file_path"`
	Name         string     `json:"name,omitempty"`
	StartLine    int        `json:"start_line,omitempty"`
	EndLine      int        `json:"end_line,omitempty"`
	Digest       string     `json:"digest"`
	Origin       Origin     `json:"origin"`
	LastVerified time.Time  `json:"last_verified"`
}

// DisplayName returns the name used for change attribution: the qualified
// function name, or a synthetic "block L<start>-L<end>" label for blocks.
func (e ProtectedEntity) DisplayName() string {
	if e.Kind == KindBlock {
		return fmt.Sprintf("block L%d-L%d", e.StartLine, e.EndLine)
	}
	return e.Name
}

// CallEdge is one observed caller→callee invocation. Append-only; duplicates
// represent distinct invocations, not a deduplicated graph.
type CallEdge struct {
	ID         int64     `json:"id,omitempty"`
	Caller     string    `json:"caller"`
	Callee     string    `json:"callee"`
	CallerFile string    `json:"caller_file,omitempty"`
	CalleeFile string    `json:"callee_file,omitempty"`
	Module     string    `json:"module,omitempty"`
	Args       string    `json:"args,omitempty"`
	Time       time.Time `json:"time"`
}

// ErrorRecord captures one runtime failure observed by the tracer, or
// reported directly by an embedding caller.
type ErrorRecord struct {
	ID         int64     `json:"id,omitempty"`
	Function   string    `json:"function"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	StackTrace string    `json:"stack_trace"`
	Context    string    `json:"context,omitempty"`
	Time       time.Time `json:"time"`
}

// ChangeKindModified is currently the only change kind recorded.
const ChangeKindModified = "modified"

// ChangeRecord is a detected digest mismatch for a protected entity.
type ChangeRecord struct {
	ID          int64     `json:"id,omitempty"`
	FilePath    string    `json:"file_path"`
	Name        string    `json:"name"`
	ChangeKind  string    `json:"change_kind"`
	OldDigest   string    `json:"old_digest"`
	NewDigest   string    `json:"new_digest"`
	Diff        string    `json:"diff,omitempty"`
	AutoRestore bool      `json:"auto_restore"`
	Time        time.Time `json:"time"`
}
