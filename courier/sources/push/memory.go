package push

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type MemoryState struct {
	mu          sync.Mutex
	permissions map[string]Permission
	tokens      map[string]string
}

func NewMemoryState() *MemoryState {
	return &MemoryState{
		permissions: make(map[string]Permission),
		tokens:      make(map[string]string),
	}
}

func (m *MemoryState) Permission(_ context.Context, installation string) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.permissions[installation]; ok {
		return p, nil
	}
	return PermissionDefault, nil
}

func (m *MemoryState) SetPermission(_ context.Context, installation string, p Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permissions[installation] = p
	return nil
}

func (m *MemoryState) IssueToken(_ context.Context, installation string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[installation]; ok {
		return t, nil
	}
	t := uuid.NewString()
	m.tokens[installation] = t
	return t, nil
}
