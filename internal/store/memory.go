package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is an in-process store used in offline mode and in tests.
type Memory struct {
	mu       sync.RWMutex
	sections map[string][]byte
	writes   int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{sections: make(map[string][]byte)}
}

// Get decodes the current contents.
func (m *Memory) Get(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Empty(), err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Decode(m.sections), nil
}

// Set replaces a section with the JSON encoding of value.
func (m *Memory) Set(ctx context.Context, section string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal section %s: %w", section, err)
	}
	m.mu.Lock()
	m.sections[section] = b
	m.writes++
	m.mu.Unlock()
	return nil
}

// SetRaw stores a pre-encoded payload without validation.
func (m *Memory) SetRaw(section string, raw []byte) {
	m.mu.Lock()
	m.sections[section] = append([]byte{}, raw...)
	m.writes++
	m.mu.Unlock()
}

// Writes returns the number of section writes so far.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}
