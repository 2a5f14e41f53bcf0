package auth

import (
	"fmt"
	"sort"
	"strings"
)

// Role levels form a total order. AdminLevel and above hold every permission
// by construction; that bypass lives in Principal.HasPermission and nowhere
// else.
const (
	LevelGuest      = 1
	LevelUser       = 2
	LevelPremium    = 3
	LevelAdmin      = 4
	LevelSuperadmin = 5

	AdminLevel = LevelAdmin
)

// DefaultRoleName is attached to every new account at signup.
const DefaultRoleName = "user"

// Scope bounds the resources a permission key authorizes.
type Scope int8

const (
	ScopeOwn Scope = iota + 1
	ScopeTeam
	ScopeAll
)

func (s Scope) String() string {
	switch s {
	case ScopeOwn:
		return "own"
	case ScopeTeam:
		return "team"
	case ScopeAll:
		return "all"
	default:
		return "unknown"
	}
}

// Permission is the parsed form of a "resource:action:scope" key.
type Permission struct {
	Resource string
	Action   string
	Scope    Scope
}

// Key renders the permission back to its interned string form.
func (p Permission) Key() string {
	return p.Resource + ":" + p.Action + ":" + p.Scope.String()
}

// ParsePermission splits a "resource:action:scope" key into its parts.
func ParsePermission(key string) (Permission, error) {
	parts := strings.Split(strings.TrimSpace(key), ":")
	if len(parts) != 3 {
		return Permission{}, fmt.Errorf("%w: permission key %q must be resource:action:scope", ErrInvalidInput, key)
	}
	for _, part := range parts {
		if part == "" {
			return Permission{}, fmt.Errorf("%w: permission key %q has an empty segment", ErrInvalidInput, key)
		}
	}
	var scope Scope
	switch parts[2] {
	case "own":
		scope = ScopeOwn
	case "team":
		scope = ScopeTeam
	case "all":
		scope = ScopeAll
	default:
		return Permission{}, fmt.Errorf("%w: unknown permission scope %q", ErrInvalidInput, parts[2])
	}
	return Permission{Resource: parts[0], Action: parts[1], Scope: scope}, nil
}

// Principal is the resolved identity attached to an authenticated request.
// It is derived at login or refresh time, embedded in tokens, and never
// persisted; role changes therefore take effect on the next token issuance.
type Principal struct {
	UserID      string
	Email       string
	RoleNames   []string
	Level       int
	Permissions map[string]struct{}
}

// NewPrincipal builds a principal from a user and its resolved roles.
func NewPrincipal(user *User, roles []Role) Principal {
	p := Principal{
		UserID:      user.ID,
		Email:       user.Email,
		Permissions: make(map[string]struct{}),
	}
	for _, role := range roles {
		p.RoleNames = append(p.RoleNames, role.Name)
		if role.Level > p.Level {
			p.Level = role.Level
		}
		for _, perm := range role.Permissions {
			p.Permissions[perm] = struct{}{}
		}
	}
	sort.Strings(p.RoleNames)
	return p
}

// HasPermission reports whether the principal holds the permission key.
// Principals at AdminLevel or above hold every key; this is the single
// authorization bypass in the codebase.
func (p Principal) HasPermission(key string) bool {
	if p.Level >= AdminLevel {
		return true
	}
	_, ok := p.Permissions[key]
	return ok
}

// HasMinimumRoleLevel reports whether the principal's highest role level
// meets the threshold.
func (p Principal) HasMinimumRoleLevel(level int) bool {
	return p.Level >= level
}

// PermissionKeys returns the held permission keys in sorted order, suitable
// for embedding into token claims.
func (p Principal) PermissionKeys() []string {
	out := make([]string, 0, len(p.Permissions))
	for k := range p.Permissions {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BuiltinRoles seeds the role catalog. Stored roles are authoritative; these
// are only ensured at startup so a fresh deployment can sign users in.
var BuiltinRoles = []Role{
	{
		Name:        "guest",
		Level:       LevelGuest,
		Description: "Read-only visitor",
		Permissions: []string{
			"feed:read:all",
			"profile:read:all",
		},
	},
	{
		Name:        "user",
		Level:       LevelUser,
		Description: "Standard member",
		Permissions: []string{
			"feed:read:all",
			"profile:read:all",
			"user:update:own",
			"story:create:own",
			"story:update:own",
			"story:delete:own",
			"message:create:team",
			"event:create:own",
			"team:read:team",
		},
	},
	{
		Name:        "premium",
		Level:       LevelPremium,
		Description: "Paid member",
		Permissions: []string{
			"feed:read:all",
			"profile:read:all",
			"user:update:own",
			"story:create:own",
			"story:update:own",
			"story:delete:own",
			"message:create:team",
			"event:create:own",
			"event:create:team",
			"team:read:team",
			"team:update:team",
		},
	},
	{
		Name:        "admin",
		Level:       LevelAdmin,
		Description: "Platform administrator",
	},
	{
		Name:        "superadmin",
		Level:       LevelSuperadmin,
		Description: "Unrestricted operator",
	},
}
