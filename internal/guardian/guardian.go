// Package guardian is the coordinator: it owns the store, scanner, tracer,
// monitor and graph builder, and exposes the operations the CLI and the
// tool server consume. One Guardian per database; all subsystem lifecycles
// hang off it.
package guardian

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/nkarpov/codesentry/internal/digest"
	"github.com/nkarpov/codesentry/internal/graph"
	"github.com/nkarpov/codesentry/internal/model"
	"github.com/nkarpov/codesentry/internal/monitor"
	"github.com/nkarpov/codesentry/internal/scanner"
	"github.com/nkarpov/codesentry/internal/store"
	"github.com/nkarpov/codesentry/internal/tracer"
)

// Guardian wires the subsystems together over one shared store session.
type Guardian struct {
	store  *store.Store
	sess   *store.Session
	scan   *scanner.Scanner
	trace  *tracer.Tracer
	mon    *monitor.Monitor
	graphs *graph.Builder

	errNotify chan model.ErrorRecord

	mu         sync.Mutex
	monitoring bool
}

// errRecorder forwards tracer writes to a store session and mirrors every
// recorded error onto the guardian's error notification channel.
type errRecorder struct {
	sess   *store.Session
	notify chan<- model.ErrorRecord
}

func (r errRecorder) InsertEdge(ctx context.Context, e model.CallEdge) error {
	return r.sess.InsertEdge(ctx, e)
}

func (r errRecorder) InsertError(ctx context.Context, rec model.ErrorRecord) error {
	if err := r.sess.InsertError(ctx, rec); err != nil {
		return err
	}
	select {
	case r.notify <- rec:
	default:
	}
	return nil
}

// Open creates a Guardian over the database at dbPath, creating the
// database and schema when absent. Each concurrent actor (tracer, monitor,
// query path) gets its own pinned store session.
func Open(ctx context.Context, dbPath string) (*Guardian, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}

	sess, err := st.Session(ctx)
	if err != nil {
		st.Close()
		return nil, err
	}
	traceSess, err := st.Session(ctx)
	if err != nil {
		st.Close()
		return nil, err
	}
	monSess, err := st.Session(ctx)
	if err != nil {
		st.Close()
		return nil, err
	}

	errNotify := make(chan model.ErrorRecord, 64)
	return &Guardian{
		store:     st,
		sess:      sess,
		scan:      scanner.New(sess),
		trace:     tracer.New(errRecorder{sess: traceSess, notify: errNotify}),
		mon:       monitor.New(monSess),
		graphs:    graph.NewBuilder(sess),
		errNotify: errNotify,
	}, nil
}

// Close stops monitoring and releases the store.
func (g *Guardian) Close() error {
	g.StopMonitoring()
	return g.store.Close()
}

// RegisterProtection registers one function as protected by qualified name.
// The function is located in the current file content; its digest is
// recorded as the trusted state.
func (g *Guardian) RegisterProtection(ctx context.Context, file, functionName string) (model.ProtectedEntity, error) {
	e, err := scanner.LocateFunction(file, functionName)
	if err != nil {
		return model.ProtectedEntity{}, err
	}
	e.Origin = model.OriginManual
	if err := g.sess.UpsertEntity(ctx, e); err != nil {
		return model.ProtectedEntity{}, err
	}
	g.graphs.InvalidateAll()
	return e, nil
}

// RegisterBlock registers the lines firstLine..lastLine (inclusive) of file
// as a protected block. Stored bounds follow the comment-marker convention:
// the protected content sits strictly between them.
func (g *Guardian) RegisterBlock(ctx context.Context, file string, firstLine, lastLine int) (model.ProtectedEntity, error) {
	if firstLine < 2 || lastLine < firstLine {
		return model.ProtectedEntity{}, fmt.Errorf("guardian: invalid block range L%d-L%d", firstLine, lastLine)
	}
	start, end := firstLine-1, lastLine+1

	text, err := scanner.BlockSource(file, start, end)
	if err != nil {
		return model.ProtectedEntity{}, err
	}
	e := model.ProtectedEntity{
		Kind:      model.KindBlock,
		FilePath:  file,
		StartLine: start,
		EndLine:   end,
		Digest:    digest.Hash(text),
		Origin:    model.OriginManual,
	}
	if err := g.sess.UpsertEntity(ctx, e); err != nil {
		return model.ProtectedEntity{}, err
	}
	g.graphs.InvalidateAll()
	return e, nil
}

// ScanDirectory discovers protection markers under root and registers every
// finding.
func (g *Guardian) ScanDirectory(ctx context.Context, root string) (scanner.Counts, error) {
	counts, err := g.scan.ScanDirectory(ctx, root)
	if err != nil {
		return counts, err
	}
	g.graphs.InvalidateAll()
	return counts, nil
}

// StartMonitoring attaches the tracer and starts the integrity monitor as a
// unit. modules restricts tracing to the given import-path prefixes;
// watchDirs, when non-empty, arms the monitor's file watcher. Starting
// while already monitoring is a success no-op.
func (g *Guardian) StartMonitoring(interval time.Duration, watchDirs, modules []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.monitoring {
		return nil
	}

	g.trace.Start(modules)
	if err := g.mon.Start(interval, watchDirs); err != nil {
		g.trace.Stop()
		return err
	}
	g.monitoring = true
	return nil
}

// StopMonitoring detaches the tracer and stops the monitor. Safe to call
// when not monitoring.
func (g *Guardian) StopMonitoring() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.monitoring {
		return
	}
	g.trace.Stop()
	g.mon.Stop()
	g.monitoring = false
}

// IsMonitoring reports whether the tracer and monitor are running.
func (g *Guardian) IsMonitoring() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.monitoring
}

// Enter instruments the calling function; use as `defer g.Enter()()`.
// Events flow into the call graph while monitoring is active.
func (g *Guardian) Enter(args ...any) func() {
	return g.trace.EnterSkip(1, args...)
}

// Guard is Enter with a pre-call integrity check: when the calling
// function is registered as protected, its source is re-hashed against
// the trusted digest before the call runs, and a change record is
// appended on mismatch. Use as `defer g.Guard()()`.
func (g *Guardian) Guard(args ...any) func() {
	if file, name, ok := callSite(2); ok {
		g.verifyCall(file, name)
	}
	return g.trace.EnterSkip(1, args...)
}

func (g *Guardian) verifyCall(file, name string) {
	rec, err := g.mon.CheckFunction(context.Background(), file, name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "guardian: pre-call check %s: %v\n", name, err)
		return
	}
	if rec != nil {
		g.graphs.InvalidateAll()
	}
}

// callSite resolves the file and qualified function name of a caller,
// matching the naming the scanner registers ("Func" or "Type.Method").
func callSite(skip int) (file, name string, ok bool) {
	pc, file, _, ok := runtime.Caller(skip)
	if !ok {
		return "", "", false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "", "", false
	}
	full := fn.Name()
	slash := strings.LastIndex(full, "/")
	dot := strings.Index(full[slash+1:], ".")
	if dot < 0 {
		return file, full, true
	}
	name = full[slash+1+dot+1:]
	name = strings.NewReplacer("(", "", ")", "", "*", "").Replace(name)
	return file, name, true
}

// CheckFileIntegrity synchronously re-verifies every protected entity in
// one file and returns the changes detected now.
func (g *Guardian) CheckFileIntegrity(ctx context.Context, path string) ([]model.ChangeRecord, error) {
	changed, err := g.mon.CheckFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(changed) > 0 {
		g.graphs.InvalidateAll()
	}
	return changed, nil
}

// CallGraph builds the call graph for opts. An empty root means the graph
// of everything ever traced.
func (g *Guardian) CallGraph(ctx context.Context, opts graph.Options) (*model.Graph, error) {
	return g.graphs.Build(ctx, opts)
}

// Errors returns recorded runtime errors, most recent first. An empty
// function returns errors across all functions.
func (g *Guardian) Errors(ctx context.Context, function string, limit int) ([]model.ErrorRecord, error) {
	return g.sess.Errors(ctx, function, limit)
}

// Changes returns recorded integrity changes, most recent first, optionally
// filtered by file and entity name.
func (g *Guardian) Changes(ctx context.Context, filePath, name string, limit int) ([]model.ChangeRecord, error) {
	return g.sess.Changes(ctx, filePath, name, limit)
}

// ReportError records a runtime failure observed by the embedding program
// itself rather than by the tracer. An empty stack is filled with the
// caller's current stack.
func (g *Guardian) ReportError(ctx context.Context, function, kind, message, stack string) error {
	if stack == "" {
		buf := make([]byte, 16<<10)
		stack = string(buf[:runtime.Stack(buf, false)])
	}
	rec := model.ErrorRecord{
		Function:   function,
		Kind:       kind,
		Message:    message,
		StackTrace: stack,
		Time:       time.Now().UTC(),
	}
	if err := g.sess.InsertError(ctx, rec); err != nil {
		return err
	}
	select {
	case g.errNotify <- rec:
	default:
	}
	g.graphs.Invalidate(function)
	return nil
}

// Entities lists every registered protected entity.
func (g *Guardian) Entities(ctx context.Context) ([]model.ProtectedEntity, error) {
	return g.sess.Entities(ctx)
}

// Notifications exposes the monitor's change events.
func (g *Guardian) Notifications() <-chan model.ChangeRecord {
	return g.mon.Notifications()
}

// ErrorNotifications exposes recorded runtime errors as they arrive, from
// both the tracer's panic capture and ReportError.
func (g *Guardian) ErrorNotifications() <-chan model.ErrorRecord {
	return g.errNotify
}

// ClearData empties one store table, or all of them when table is "all".
func (g *Guardian) ClearData(ctx context.Context, table string) error {
	if table == "all" {
		table = ""
	}
	if err := g.sess.Clear(ctx, table); err != nil {
		return err
	}
	g.graphs.InvalidateAll()
	return nil
}

// DatabasePath returns the backing database location.
func (g *Guardian) DatabasePath() string {
	return g.store.Path()
}
