package container

import (
	"context"
	"fmt"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Memory is an in-memory Container implementation for testing.
// Thread-safe for concurrent reads and appends.
type Memory struct {
	mu     sync.RWMutex
	order  []string
	groups map[string][]map[string]*tensors.Tensor
}

var _ Container = (*Memory)(nil)

// NewMemory creates an empty in-memory container.
func NewMemory() *Memory {
	return &Memory{groups: make(map[string][]map[string]*tensors.Tensor)}
}

// Append adds one row to a group, creating the group on first use.
// Groups iterate in first-append order, mirroring on-disk containers that
// preserve insertion order.
func (m *Memory) Append(group string, row map[string]*tensors.Tensor) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[group]; !ok {
		m.order = append(m.order, group)
	}

	// Copy to prevent external mutation.
	copied := make(map[string]*tensors.Tensor, len(row))
	for k, v := range row {
		copied[k] = v
	}
	m.groups[group] = append(m.groups[group], copied)
}

// Groups returns the group names in first-append order.
func (m *Memory) Groups(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, len(m.order))
	copy(out, m.order)
	return out, nil
}

// Rows returns the number of rows appended to the group.
func (m *Memory) Rows(_ context.Context, group string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, ok := m.groups[group]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrGroupNotFound, group)
	}
	return int64(len(rows)), nil
}

// Read resolves one cell.
func (m *Memory) Read(_ context.Context, group, field string, row int64) (*tensors.Tensor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, ok := m.groups[group]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrGroupNotFound, group)
	}
	if row < 0 || row >= int64(len(rows)) {
		return nil, fmt.Errorf("%w: group %q row %d of %d", ErrRowOutOfRange, group, row, len(rows))
	}
	t, ok := rows[row][field]
	if !ok {
		return nil, fmt.Errorf("%w: group %q field %q", ErrFieldNotFound, group, field)
	}
	return t, nil
}

// Close is a no-op for the in-memory container.
func (m *Memory) Close() error { return nil }
