// Package audit persists the per-run decision trail for observability. The
// trail is internal diagnostics only: runs never read it back while deciding.
package audit

import (
	"context"
	"sync"

	"github.com/OmarSamirz/NextBI/internal/orchestrator/model"
)

// Sink records the decisions of a finished run.
type Sink interface {
	Append(ctx context.Context, runID string, entries []model.AuditEntry) error
}

// MemorySink keeps trails in memory. Used in tests and when no Redis is
// configured.
type MemorySink struct {
	mu     sync.Mutex
	trails map[string][]model.AuditEntry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{trails: make(map[string][]model.AuditEntry)}
}

func (s *MemorySink) Append(_ context.Context, runID string, entries []model.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trails[runID] = append(s.trails[runID], entries...)
	return nil
}

// RunIDs lists the runs with a recorded trail.
func (s *MemorySink) RunIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.trails))
	for id := range s.trails {
		ids = append(ids, id)
	}
	return ids
}

// Entries returns a copy of the trail recorded for a run.
func (s *MemorySink) Entries(runID string) []model.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AuditEntry, len(s.trails[runID]))
	copy(out, s.trails[runID])
	return out
}

var _ Sink = (*MemorySink)(nil)
