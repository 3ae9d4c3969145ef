package monitor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/nkarpov/codesentry/internal/digest"
	"github.com/nkarpov/codesentry/internal/model"
	"github.com/nkarpov/codesentry/internal/scanner"
)

// CheckFile synchronously re-hashes every entity registered for one file
// and returns the entities whose digest changed, appending ChangeRecords
// as a side effect.
func (m *Monitor) CheckFile(ctx context.Context, filePath string) ([]model.ChangeRecord, error) {
	m.opMu.Lock()
	entities, err := m.sess.EntitiesByFile(ctx, filePath)
	m.opMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("monitor: load entities for %s: %w", filePath, err)
	}

	var changed []model.ChangeRecord
	for _, e := range entities {
		rec, err := m.verify(ctx, e)
		if err != nil {
			fmt.Fprintf(os.Stderr, "monitor: verify %s in %s: %v\n", e.DisplayName(), filePath, err)
			continue
		}
		if rec != nil {
			changed = append(changed, *rec)
		}
	}
	return changed, nil
}

// CheckFunction re-verifies a single registered function, appending a
// ChangeRecord when its digest moved. Returns nil when the function is
// not registered for the file or is unchanged. Safe for concurrent use;
// callers run it before invoking a protected function.
func (m *Monitor) CheckFunction(ctx context.Context, filePath, name string) (*model.ChangeRecord, error) {
	m.opMu.Lock()
	entities, err := m.sess.EntitiesByFile(ctx, filePath)
	m.opMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("monitor: load entities for %s: %w", filePath, err)
	}

	for _, e := range entities {
		if e.Kind == model.KindFunction && e.Name == name {
			return m.verify(ctx, e)
		}
	}
	return nil, nil
}

// verify re-extracts one entity's current text, hashes it, and records a
// change when the digest moved. The stored digest is updated in place so
// one mutation yields exactly one ChangeRecord.
func (m *Monitor) verify(ctx context.Context, e model.ProtectedEntity) (*model.ChangeRecord, error) {
	var current string
	var err error
	switch e.Kind {
	case model.KindBlock:
		current, err = scanner.BlockSource(e.FilePath, e.StartLine, e.EndLine)
	default:
		current, err = scanner.FunctionSource(e.FilePath, e.Name)
	}
	if err != nil {
		// Hash error: skip this entity for the cycle, keep it registered.
		return nil, err
	}

	now := time.Now()
	newDigest := digest.Hash(current)
	if newDigest == e.Digest {
		m.opMu.Lock()
		err := m.sess.TouchVerified(ctx, e, now)
		m.opMu.Unlock()
		return nil, err
	}

	rec := model.ChangeRecord{
		FilePath:   e.FilePath,
		Name:       e.DisplayName(),
		ChangeKind: model.ChangeKindModified,
		OldDigest:  e.Digest,
		NewDigest:  newDigest,
		Diff:       changeDiff(e, current),
		Time:       now,
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()
	if err := m.sess.InsertChange(ctx, rec); err != nil {
		return nil, err
	}
	e.Digest = newDigest
	e.LastVerified = now
	if err := m.sess.UpsertEntity(ctx, e); err != nil {
		return nil, err
	}

	select {
	case m.notify <- rec:
	default:
	}
	return &rec, nil
}

// changeDiff renders a unified diff of the current text against a
// best-effort reconstruction of the prior content. The original text is
// not retained, only its digest, so the "before" side is a placeholder
// identifying what was recorded.
func changeDiff(e model.ProtectedEntity, current string) string {
	prior := fmt.Sprintf("// recorded %s\n// digest %s\n", e.DisplayName(), e.Digest)
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(prior),
		B:        difflib.SplitLines(current),
		FromFile: fmt.Sprintf("%s (recorded)", e.FilePath),
		ToFile:   fmt.Sprintf("%s (current)", e.FilePath),
		Context:  3,
	})
	if err != nil {
		return fmt.Sprintf("diff unavailable: %v", err)
	}
	return text
}
