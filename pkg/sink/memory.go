// Package sink provides records.Sink implementations.
package sink

import (
	"context"
	"sync"

	"github.com/Sumatoshi-tech/githarvest/pkg/records"
)

// Entry is one record written to a Memory sink.
type Entry struct {
	Kind   records.Kind
	Record any
}

// Memory keeps every written record in order of arrival.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Write implements records.Sink.
func (m *Memory) Write(_ context.Context, kind records.Kind, record any) error {
	m.mu.Lock()
	m.entries = append(m.entries, Entry{Kind: kind, Record: record})
	m.mu.Unlock()

	return nil
}

// Entries returns a copy of everything written so far.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, len(m.entries))
	copy(out, m.entries)

	return out
}

// Commits returns the commit records.
func (m *Memory) Commits() []records.Commit {
	return collect[records.Commit](m, records.KindCommit)
}

// Patches returns the patch records.
func (m *Memory) Patches() []records.Patch {
	return collect[records.Patch](m, records.KindPatch)
}

// Rewrites returns the patch rewrite records.
func (m *Memory) Rewrites() []records.PatchRewrite {
	return collect[records.PatchRewrite](m, records.KindPatchRewrite)
}

// Branches returns the commit-branch records.
func (m *Memory) Branches() []records.CommitBranch {
	return collect[records.CommitBranch](m, records.KindCommitBranch)
}

func collect[T any](m *Memory, kind records.Kind) []T {
	var out []T

	for _, e := range m.Entries() {
		if e.Kind != kind {
			continue
		}

		if rec, ok := e.Record.(T); ok {
			out = append(out, rec)
		}
	}

	return out
}
