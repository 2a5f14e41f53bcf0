package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newPGTest(t *testing.T) (*PGStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return NewPGStore(db), mock, func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
		db.Close()
	}
}

func TestPGUsersFindByEmail(t *testing.T) {
	store, mock, done := newPGTest(t)
	defer done()
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery("select id, email, name, password_hash, status, created_at, updated_at from users where email").
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "status", "created_at", "updated_at"}).
			AddRow("u1", "alice@example.com", "Alice", "hashed", UserStatusActive, now, now))

	user, err := store.Users(ctx).FindByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if user.ID != "u1" || user.Status != UserStatusActive {
		t.Fatalf("unexpected user: %+v", user)
	}

	mock.ExpectQuery("select id, email, name, password_hash, status, created_at, updated_at from users where email").
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "status", "created_at", "updated_at"}))

	if _, err := store.Users(ctx).FindByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGUsersCreate(t *testing.T) {
	store, mock, done := newPGTest(t)
	defer done()
	ctx := context.Background()

	mock.ExpectExec("insert into users").
		WithArgs("u1", "alice@example.com", "Alice", "hashed", UserStatusActive).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Users(ctx).Create(ctx, &User{
		ID: "u1", Email: "alice@example.com", Name: "Alice",
		PasswordHash: "hashed", Status: UserStatusActive,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestPGRolesFindByName(t *testing.T) {
	store, mock, done := newPGTest(t)
	defer done()
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery("select id, name, level, description, created_at, updated_at from roles where name").
		WithArgs("user").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "level", "description", "created_at", "updated_at"}).
			AddRow("r1", "user", LevelUser, "Standard member", now, now))
	mock.ExpectQuery("select permission from role_permissions where role_id").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"permission"}).
			AddRow("feed:read:all").AddRow("story:create:own"))

	role, err := store.Roles(ctx).FindByName(ctx, "user")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}
	if role.ID != "r1" || role.Level != LevelUser {
		t.Fatalf("unexpected role: %+v", role)
	}
	if len(role.Permissions) != 2 || role.Permissions[1] != "story:create:own" {
		t.Fatalf("permissions not loaded: %v", role.Permissions)
	}
}

func TestPGRolesForUser(t *testing.T) {
	store, mock, done := newPGTest(t)
	defer done()
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery("from roles r join user_roles ur").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "level", "description", "created_at", "updated_at"}).
			AddRow("r2", "premium", LevelPremium, "Paid member", now, now))
	mock.ExpectQuery("select permission from role_permissions where role_id").
		WithArgs("r2").
		WillReturnRows(sqlmock.NewRows([]string{"permission"}).AddRow("team:update:team"))

	roles, err := store.Roles(ctx).RolesForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("RolesForUser: %v", err)
	}
	if len(roles) != 1 || roles[0].Name != "premium" || len(roles[0].Permissions) != 1 {
		t.Fatalf("unexpected roles: %+v", roles)
	}
}

func TestPGSessionsInvalidateIfActive(t *testing.T) {
	store, mock, done := newPGTest(t)
	defer done()
	ctx := context.Background()

	mock.ExpectExec("update sessions set is_active=false where token_hash").
		WithArgs("hash-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := store.Sessions(ctx).InvalidateIfActive(ctx, "hash-1")
	if err != nil || !ok {
		t.Fatalf("InvalidateIfActive: ok=%v err=%v", ok, err)
	}

	mock.ExpectExec("update sessions set is_active=false where token_hash").
		WithArgs("hash-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err = store.Sessions(ctx).InvalidateIfActive(ctx, "hash-1")
	if err != nil || ok {
		t.Fatalf("second InvalidateIfActive: ok=%v err=%v", ok, err)
	}
}

func TestPGSessionsGetActiveNotFound(t *testing.T) {
	store, mock, done := newPGTest(t)
	defer done()
	ctx := context.Background()

	mock.ExpectQuery("from sessions where token_hash").
		WithArgs("hash-x").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "last_activity", "ip_address", "user_agent", "is_active", "created_at"}))

	if _, err := store.Sessions(ctx).GetActive(ctx, "hash-x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGSessionsSweepExpired(t *testing.T) {
	store, mock, done := newPGTest(t)
	defer done()
	ctx := context.Background()

	mock.ExpectExec("update sessions set is_active=false where expires_at").
		WillReturnResult(sqlmock.NewResult(0, 3))

	swept, err := store.Sessions(ctx).SweepExpired(ctx)
	if err != nil || swept != 3 {
		t.Fatalf("SweepExpired: swept=%d err=%v", swept, err)
	}
}

func TestPGAuditAppend(t *testing.T) {
	store, mock, done := newPGTest(t)
	defer done()
	ctx := context.Background()

	mock.ExpectExec("insert into audit_log").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "u1", "auth.signin", "", "203.0.113.7", "crewhub-test/1.0").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Audit(ctx).Append(ctx, &AuditEntry{
		UserID: "u1", Action: "auth.signin",
		IPAddress: "203.0.113.7", UserAgent: "crewhub-test/1.0",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
}
