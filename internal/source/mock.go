package source

import (
	"context"
	"sync"

	"powerwatch-backend/internal/record"
)

// MockSource returns canned rows per table name and counts calls.
type MockSource struct {
	mu    sync.Mutex
	Rows  map[string][]record.RawRow
	Err   error
	calls int
}

func (m *MockSource) Fetch(ctx context.Context, req Request) ([]record.RawRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Rows[req.Table.Name], nil
}

func (m *MockSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
