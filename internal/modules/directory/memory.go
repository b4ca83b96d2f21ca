// README: In-process directory used by the CLI and tests.
package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"carpool/internal/types"
)

type Memory struct {
	mu     sync.RWMutex
	roles  map[types.ID]types.Role
	byRole map[types.Role]map[types.ID]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		roles:  make(map[types.ID]types.Role),
		byRole: make(map[types.Role]map[types.ID]struct{}),
	}
}

// Register is idempotent; registering under a new role moves the actor.
func (m *Memory) Register(_ context.Context, id types.ID, role types.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.roles[id]; ok {
		delete(m.byRole[prev], id)
	}
	set, ok := m.byRole[role]
	if !ok {
		set = make(map[types.ID]struct{})
		m.byRole[role] = set
	}
	set[id] = struct{}{}
	m.roles[id] = role
	return nil
}

func (m *Memory) Deregister(_ context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return fmt.Errorf("deregister %s: %w", id, ErrNotRegistered)
	}
	delete(m.byRole[role], id)
	delete(m.roles, id)
	return nil
}

func (m *Memory) Find(_ context.Context, role types.Role) ([]types.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.ID, 0, len(m.byRole[role]))
	for id := range m.byRole[role] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
