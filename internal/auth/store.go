package auth

import "context"

// Store describes the persistence required by the auth subsystem. Query
// timeouts are the implementation's responsibility; the core never blocks
// beyond the request's own context.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Sessions(ctx context.Context) SessionStore
	Audit(ctx context.Context) AuditStore
}

// UserStore manages identities and their stored credentials.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// RoleStore manages the role catalog and user assignments.
type RoleStore interface {
	// Ensure inserts any missing roles; existing roles are left untouched.
	Ensure(ctx context.Context, roles []Role) error
	List(ctx context.Context) ([]Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	// RolesForUser returns roles with their permission keys populated.
	RolesForUser(ctx context.Context, userID string) ([]Role, error)
	Assign(ctx context.Context, userID, roleID string) error
}

// SessionStore is the session registry: one row per live login, keyed by the
// SHA-256 hash of the refresh token. All operations are idempotent with
// respect to their postconditions.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	// GetActive returns the session only when it is active and unexpired.
	GetActive(ctx context.Context, tokenHash string) (*Session, error)
	// Invalidate deactivates the matching session; missing rows are a no-op.
	Invalidate(ctx context.Context, tokenHash string) error
	// InvalidateIfActive deactivates the session and reports whether it was
	// still active. Rotation uses this so a refresh token, once used, can
	// never be used again even when two refreshes race.
	InvalidateIfActive(ctx context.Context, tokenHash string) (bool, error)
	InvalidateAllForUser(ctx context.Context, userID string) error
	// SweepExpired deactivates every expired row and returns the count.
	SweepExpired(ctx context.Context) (int, error)
}

// AuditStore appends immutable entries.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
}
