// Package handoff carries the interview setup (role, level and questions)
// from the setup step to the live session.
package handoff

import (
	"context"
	"errors"
	"sync"

	"github.com/amanullahtanweer/interview-rehearsal/internal/questions"
)

var ErrNotFound = errors.New("handoff: setup not found")

type Setup struct {
	Role      string               `json:"role"`
	Level     questions.Level      `json:"level"`
	Questions []questions.Question `json:"questions"`
}

type Store interface {
	Save(ctx context.Context, id string, s Setup) error
	Load(ctx context.Context, id string) (Setup, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps setups in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	setups map[string]Setup
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{setups: make(map[string]Setup)}
}

func (m *MemoryStore) Save(_ context.Context, id string, s Setup) error {
	s.Questions = append([]questions.Question(nil), s.Questions...)
	m.mu.Lock()
	m.setups[id] = s
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Load(_ context.Context, id string) (Setup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.setups[id]
	if !ok {
		return Setup{}, ErrNotFound
	}
	s.Questions = append([]questions.Question(nil), s.Questions...)
	return s, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.setups, id)
	m.mu.Unlock()
	return nil
}
