package memory

import (
	"context"
	"sync"

	ports "fintrack/internal/sheets"
)

var (
	_ ports.ActivityWriter = (*Store)(nil)
	_ ports.ProgressWriter = (*Store)(nil)
)

// Store keeps mirrored rows in memory. Used when no spreadsheet is
// configured and in tests.
type Store struct {
	mu       sync.Mutex
	activity []ports.ActivityRow
	progress []ports.ProgressRow
	writes   int
}

func New() *Store {
	return &Store{}
}

func (s *Store) AppendActivity(_ context.Context, rows []ports.ActivityRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, rows...)
	return nil
}

func (s *Store) ReplaceProgress(_ context.Context, rows []ports.ProgressRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append([]ports.ProgressRow(nil), rows...)
	s.writes++
	return nil
}

// Activity returns a copy of every appended row.
func (s *Store) Activity() []ports.ActivityRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.ActivityRow(nil), s.activity...)
}

// Progress returns the last progress table and how many times it was replaced.
func (s *Store) Progress() ([]ports.ProgressRow, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.ProgressRow(nil), s.progress...), s.writes
}
