package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"crewhub.io/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store with process-local maps. Used in development
// mode and in tests; a deployment with persistence uses PGStore.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]*User
	usersByMail map[string]string
	roles       map[string]*Role
	rolesByName map[string]string
	assignments map[string][]string // userID -> roleIDs
	sessions    map[string]*Session // tokenHash -> session
	audit       []*AuditEntry
	now         func() time.Time
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*User),
		usersByMail: make(map[string]string),
		roles:       make(map[string]*Role),
		rolesByName: make(map[string]string),
		assignments: make(map[string][]string),
		sessions:    make(map[string]*Session),
		now:         time.Now,
	}
}

// SetClockForTests overrides the store's expiry clock. Only for test use.
func (m *MemoryStore) SetClockForTests(fn func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fn != nil {
		m.now = fn
	}
}

func (m *MemoryStore) Users(context.Context) UserStore       { return (*memoryUsers)(m) }
func (m *MemoryStore) Roles(context.Context) RoleStore       { return (*memoryRoles)(m) }
func (m *MemoryStore) Sessions(context.Context) SessionStore { return (*memorySessions)(m) }
func (m *MemoryStore) Audit(context.Context) AuditStore      { return (*memoryAudit)(m) }

// AuditEntries returns a snapshot of appended entries, oldest first.
func (m *MemoryStore) AuditEntries() []*AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*AuditEntry, len(m.audit))
	copy(out, m.audit)
	return out
}

type memoryUsers MemoryStore

func (m *memoryUsers) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	email := strings.ToLower(u.Email)
	if _, ok := m.usersByMail[email]; ok {
		return ErrConflict
	}
	clone := *u
	m.users[u.ID] = &clone
	m.usersByMail[email] = u.ID
	return nil
}

func (m *memoryUsers) Find(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *memoryUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.usersByMail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *m.users[id]
	return &clone, nil
}

type memoryRoles MemoryStore

func (m *memoryRoles) Ensure(_ context.Context, roles []Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, role := range roles {
		if _, ok := m.rolesByName[role.Name]; ok {
			continue
		}
		clone := role
		if clone.ID == "" {
			clone.ID = ids.New()
		}
		m.roles[clone.ID] = &clone
		m.rolesByName[clone.Name] = clone.ID
	}
	return nil
}

func (m *memoryRoles) List(_ context.Context) ([]Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Role, 0, len(m.roles))
	for _, role := range m.roles {
		out = append(out, *role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

func (m *memoryRoles) FindByName(_ context.Context, name string) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.rolesByName[name]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *m.roles[id]
	return &clone, nil
}

func (m *memoryRoles) RolesForUser(_ context.Context, userID string) ([]Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Role
	for _, roleID := range m.assignments[userID] {
		if role, ok := m.roles[roleID]; ok {
			out = append(out, *role)
		}
	}
	return out, nil
}

func (m *memoryRoles) Assign(_ context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[roleID]; !ok {
		return ErrNotFound
	}
	for _, existing := range m.assignments[userID] {
		if existing == roleID {
			return nil
		}
	}
	m.assignments[userID] = append(m.assignments[userID], roleID)
	return nil
}

type memorySessions MemoryStore

func (m *memorySessions) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = ids.New()
	}
	clone := *s
	m.sessions[s.TokenHash] = &clone
	return nil
}

func (m *memorySessions) GetActive(_ context.Context, tokenHash string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[tokenHash]
	if !ok || !s.IsActive || !m.now().Before(s.ExpiresAt) {
		return nil, ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (m *memorySessions) Invalidate(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[tokenHash]; ok {
		s.IsActive = false
	}
	return nil
}

func (m *memorySessions) InvalidateIfActive(_ context.Context, tokenHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tokenHash]
	if !ok || !s.IsActive {
		return false, nil
	}
	s.IsActive = false
	return true, nil
}

func (m *memorySessions) InvalidateAllForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.UserID == userID {
			s.IsActive = false
		}
	}
	return nil
}

func (m *memorySessions) SweepExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	swept := 0
	for _, s := range m.sessions {
		if !now.Before(s.ExpiresAt) && s.IsActive {
			s.IsActive = false
			swept++
		}
	}
	return swept, nil
}

type memoryAudit MemoryStore

func (m *memoryAudit) Append(_ context.Context, entry *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *entry
	m.audit = append(m.audit, &clone)
	return nil
}
