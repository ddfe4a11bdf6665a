package memory

import (
	"context"
	"sync"

	"github.com/aescanero/hrrelay/pkg/ports"
)

// InMemoryStore implements Store using a guarded string
// This is for testing purposes only
type InMemoryStore struct {
	mu      sync.RWMutex
	value   string
	present bool

	// ReadErr and WriteErr, when set, are returned instead of touching the value
	ReadErr  error
	WriteErr error

	reads  int
	writes int
}

// NewInMemoryStore creates an empty in-memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// NewInMemoryStoreWith creates an in-memory store holding value
func NewInMemoryStoreWith(value string) *InMemoryStore {
	return &InMemoryStore{value: value, present: true}
}

// Read returns the stored value (ports.Store interface)
func (s *InMemoryStore) Read(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads++
	if s.ReadErr != nil {
		return "", s.ReadErr
	}
	if !s.present {
		return "", ports.ErrNotFound
	}

	return s.value, nil
}

// Write replaces the stored value (ports.Store interface)
func (s *InMemoryStore) Write(ctx context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++
	if s.WriteErr != nil {
		return s.WriteErr
	}

	s.value = value
	s.present = true
	return nil
}

// Set replaces the value without counting a write, simulating an
// out-of-band edit
func (s *InMemoryStore) Set(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = value
	s.present = true
}

// SetErrors swaps the injected read and write errors
func (s *InMemoryStore) SetErrors(readErr, writeErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ReadErr = readErr
	s.WriteErr = writeErr
}

// Value returns the stored value and whether one exists
func (s *InMemoryStore) Value() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.value, s.present
}

// Writes returns how many writes were attempted
func (s *InMemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.writes
}

// Reads returns how many reads were attempted
func (s *InMemoryStore) Reads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.reads
}
