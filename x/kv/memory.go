package kv

import (
	"context"
	"errors"
	"sync"
)

// Memory is an in-memory Store. It backs MCU builds and tests.
type Memory struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool

	// FailWrites makes every mutation return an error; tests use it to
	// exercise persistence failures.
	FailWrites bool
}

var errWrite = errors.New("kv: write failed")

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key Key) ([]byte, error) {
	m.mu.RLock()
	v, ok := m.data[key.String()]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (m *Memory) Set(_ context.Context, key Key, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return errWrite
	}
	m.data[key.String()] = cp
	return nil
}

func (m *Memory) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return errWrite
	}
	delete(m.data, key.String())
	return nil
}

func (m *Memory) BatchSet(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return errWrite
	}
	for _, e := range entries {
		cp := make([]byte, len(e.Value))
		copy(cp, e.Value)
		m.data[e.Key.String()] = cp
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
