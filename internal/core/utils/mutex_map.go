package utils

import (
	"errors"
	"fmt"
	"sync"
)

var ErrMutexMapFull = errors.New("mutex map is full")

// MutexMap hands out one mutex per key. A key's mutex is released from the map
// once nothing holds or waits on it.
type MutexMap[K comparable] struct {
	edit         sync.Mutex
	queueLengths map[K]int
	mutexes      map[K]*sync.Mutex
	maxSize      int
}

func NewMutexMap[K comparable](maxSize int) *MutexMap[K] {
	return &MutexMap[K]{
		queueLengths: make(map[K]int),
		mutexes:      make(map[K]*sync.Mutex),
		maxSize:      maxSize,
	}
}

func (m *MutexMap[K]) Lock(key K) error {
	m.edit.Lock()

	if m.mutexes[key] == nil {
		if len(m.mutexes) >= m.maxSize {
			m.edit.Unlock()
			return fmt.Errorf("%w: %d keys held", ErrMutexMapFull, m.maxSize)
		}

		m.mutexes[key] = &sync.Mutex{}
		m.queueLengths[key] = 0
	}

	m.queueLengths[key]++
	mu := m.mutexes[key]
	m.edit.Unlock()

	mu.Lock()

	return nil
}

func (m *MutexMap[K]) Unlock(key K) error {
	m.edit.Lock()
	defer m.edit.Unlock()

	if m.mutexes[key] == nil {
		return fmt.Errorf("key %v not found", key)
	}

	m.mutexes[key].Unlock()
	m.queueLengths[key]--

	if m.queueLengths[key] == 0 {
		delete(m.mutexes, key)
		delete(m.queueLengths, key)
	}

	return nil
}

// Len returns the number of keys currently held or waited on.
func (m *MutexMap[K]) Len() int {
	m.edit.Lock()
	defer m.edit.Unlock()
	return len(m.mutexes)
}
