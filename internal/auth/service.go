package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"crewhub.io/internal/ids"
	"crewhub.io/internal/obs"
)

const (
	defaultLoginMaxAttempts  = 5
	defaultLoginWindow       = 15 * time.Minute
	defaultSignupMaxAttempts = 3
	defaultSignupWindow      = 60 * time.Minute
)

// Service coordinates login, refresh and logout across the token codec, the
// rate limiters, the session registry and the store.
type Service struct {
	store         Store
	codec         *TokenCodec
	loginLimiter  *RateLimiter
	signupLimiter *RateLimiter
	now           func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithLoginLimiter replaces the sign-in rate limiter.
func WithLoginLimiter(l *RateLimiter) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.loginLimiter = l
		}
	}
}

// WithSignupLimiter replaces the signup rate limiter.
func WithSignupLimiter(l *RateLimiter) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.signupLimiter = l
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the orchestrator.
func NewService(store Store, codec *TokenCodec, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: token codec is required")
	}
	s := &Service{
		store:         store,
		codec:         codec,
		loginLimiter:  NewRateLimiter(defaultLoginMaxAttempts, defaultLoginWindow),
		signupLimiter: NewRateLimiter(defaultSignupMaxAttempts, defaultSignupWindow),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Codec exposes the token codec for the HTTP layer (cookie TTLs, unsafe decode).
func (s *Service) Codec() *TokenCodec { return s.codec }

// EnsureBuiltins seeds the built-in role catalog.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	return s.store.Roles(ctx).Ensure(ctx, BuiltinRoles)
}

// TokenBundle carries everything the transport layer needs to set cookies.
type TokenBundle struct {
	AccessToken      string
	RefreshToken     string
	CSRFToken        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Signup registers a new identity with the default role. The rate-limit
// attempt is recorded before the existence check so probing a fixed email is
// throttled even when it always fails with a conflict.
func (s *Service) Signup(ctx context.Context, email, password, name string, client ClientInfo) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	name = strings.TrimSpace(name)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidInput
	}
	if s.signupLimiter.IsLimited(email) {
		return nil, &RateLimitedError{RetryAfterSeconds: s.signupLimiter.SecondsUntilReset(email)}
	}
	s.signupLimiter.RecordAttempt(email)

	users := s.store.Users(ctx)
	if _, err := users.FindByEmail(ctx, email); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, ErrInvalidInput
	}
	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Status:       UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, err
	}

	roles := s.store.Roles(ctx)
	role, err := roles.FindByName(ctx, DefaultRoleName)
	if err != nil {
		return nil, err
	}
	if err := roles.Assign(ctx, user.ID, role.ID); err != nil {
		return nil, err
	}

	s.Audit(ctx, &AuditEntry{
		UserID:    user.ID,
		Action:    "auth.signup",
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})
	return user, nil
}

// Signin authenticates credentials and issues a fresh token bundle plus a
// session registry entry. Lookup and password failures both return
// ErrUnauthenticated so the response cannot be used for account enumeration.
func (s *Service) Signin(ctx context.Context, email, password string, client ClientInfo) (TokenBundle, Principal, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if s.loginLimiter.IsLimited(email) {
		return TokenBundle{}, Principal{}, &RateLimitedError{RetryAfterSeconds: s.loginLimiter.SecondsUntilReset(email)}
	}
	s.loginLimiter.RecordAttempt(email)

	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.auditFailedSignin(ctx, "", "user_not_found", client)
			return TokenBundle{}, Principal{}, ErrUnauthenticated
		}
		return TokenBundle{}, Principal{}, err
	}
	if user.Status != UserStatusActive {
		s.auditFailedSignin(ctx, user.ID, "user_disabled", client)
		return TokenBundle{}, Principal{}, ErrUnauthenticated
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		s.auditFailedSignin(ctx, user.ID, "invalid_password", client)
		return TokenBundle{}, Principal{}, ErrUnauthenticated
	}

	principal, err := s.ResolvePrincipal(ctx, user.ID)
	if err != nil {
		return TokenBundle{}, Principal{}, err
	}
	bundle, err := s.mintBundle(ctx, principal, client)
	if err != nil {
		return TokenBundle{}, Principal{}, err
	}

	s.Audit(ctx, &AuditEntry{
		UserID:    user.ID,
		Action:    "auth.signin",
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})
	return bundle, principal, nil
}

// Refresh rotates the refresh token: the old session is invalidated and a new
// session plus new token pair are issued. Any verification failure is
// ErrUnauthenticated; there is no partial success. A second refresh racing on
// the same token loses the conditional invalidate and is rejected.
func (s *Service) Refresh(ctx context.Context, refreshToken string, client ClientInfo) (TokenBundle, Principal, error) {
	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return TokenBundle{}, Principal{}, ErrUnauthenticated
	}

	sessions := s.store.Sessions(ctx)
	hash := HashRefreshToken(refreshToken)
	session, err := sessions.GetActive(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenBundle{}, Principal{}, ErrUnauthenticated
		}
		return TokenBundle{}, Principal{}, err
	}
	if session.UserID != claims.Subject {
		return TokenBundle{}, Principal{}, ErrUnauthenticated
	}

	// Re-resolve so role changes since the last issuance take effect now.
	principal, err := s.ResolvePrincipal(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenBundle{}, Principal{}, ErrUnauthenticated
		}
		return TokenBundle{}, Principal{}, err
	}

	rotated, err := sessions.InvalidateIfActive(ctx, hash)
	if err != nil {
		return TokenBundle{}, Principal{}, err
	}
	if !rotated {
		return TokenBundle{}, Principal{}, ErrUnauthenticated
	}

	bundle, err := s.mintBundle(ctx, principal, client)
	if err != nil {
		return TokenBundle{}, Principal{}, err
	}

	s.Audit(ctx, &AuditEntry{
		UserID:    principal.UserID,
		Action:    "auth.refresh",
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})
	return bundle, principal, nil
}

// Signout invalidates the session matching the refresh token. It is
// idempotent: a missing or already-invalidated session is not an error.
func (s *Service) Signout(ctx context.Context, refreshToken string, client ClientInfo) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	hash := HashRefreshToken(refreshToken)
	if err := s.store.Sessions(ctx).Invalidate(ctx, hash); err != nil {
		return err
	}
	userID := ""
	if claims := s.codec.DecodeUnsafe(refreshToken); claims != nil {
		userID = claims.Subject
	}
	s.Audit(ctx, &AuditEntry{
		UserID:    userID,
		Action:    "auth.signout",
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})
	return nil
}

// SignoutAll invalidates every active session for the user.
func (s *Service) SignoutAll(ctx context.Context, userID string, client ClientInfo) error {
	if err := s.store.Sessions(ctx).InvalidateAllForUser(ctx, userID); err != nil {
		return err
	}
	s.Audit(ctx, &AuditEntry{
		UserID:    userID,
		Action:    "auth.signout_all",
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})
	return nil
}

// ListRoles returns the role catalog.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.Roles(ctx).List(ctx)
}

// AssignRole grants a named role to a user. Takes effect on the user's next
// signin or refresh, not on tokens already in flight.
func (s *Service) AssignRole(ctx context.Context, userID, roleName string) error {
	if _, err := s.store.Users(ctx).Find(ctx, userID); err != nil {
		return err
	}
	role, err := s.store.Roles(ctx).FindByName(ctx, roleName)
	if err != nil {
		return err
	}
	if err := s.store.Roles(ctx).Assign(ctx, userID, role.ID); err != nil {
		return err
	}
	s.Audit(ctx, &AuditEntry{
		UserID: userID,
		Action: "auth.role_assigned",
		Reason: role.Name,
	})
	return nil
}

// ResolvePrincipal loads the user's roles and unions their permission sets.
// Called at login and refresh time only; the result rides in the token until
// the next issuance, so role revocations lag by at most the access TTL.
func (s *Service) ResolvePrincipal(ctx context.Context, userID string) (Principal, error) {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	roles, err := s.store.Roles(ctx).RolesForUser(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	return NewPrincipal(user, roles), nil
}

// VerifyAccess validates an access token and rebuilds the embedded principal.
func (s *Service) VerifyAccess(token string) (Principal, error) {
	claims, err := s.codec.VerifyAccess(token)
	if err != nil {
		return Principal{}, err
	}
	return claims.Principal(), nil
}

// SessionForRefresh returns the active session registry entry for a refresh
// token, or ErrNotFound when none exists.
func (s *Service) SessionForRefresh(ctx context.Context, refreshToken string) (*Session, error) {
	return s.store.Sessions(ctx).GetActive(ctx, HashRefreshToken(refreshToken))
}

// SweepSessions invalidates expired session rows.
func (s *Service) SweepSessions(ctx context.Context) (int, error) {
	return s.store.Sessions(ctx).SweepExpired(ctx)
}

// SweepLimiters drops expired rate-limit records from both limiters.
func (s *Service) SweepLimiters() int {
	return s.loginLimiter.Sweep() + s.signupLimiter.Sweep()
}

// Audit appends an entry, swallowing store failures: a logging outage must
// not block authentication. Failures are still logged.
func (s *Service) Audit(ctx context.Context, entry *AuditEntry) {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = s.now().UTC()
	}
	if err := s.store.Audit(ctx).Append(ctx, entry); err != nil {
		obs.Logger().Warn().Err(err).Str("action", entry.Action).Msg("audit append failed")
	}
}

func (s *Service) auditFailedSignin(ctx context.Context, userID, reason string, client ClientInfo) {
	s.Audit(ctx, &AuditEntry{
		UserID:    userID,
		Action:    "auth.signin.failed",
		Reason:    reason,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})
}

func (s *Service) mintBundle(ctx context.Context, principal Principal, client ClientInfo) (TokenBundle, error) {
	access, accessExp, err := s.codec.IssueAccess(principal)
	if err != nil {
		return TokenBundle{}, err
	}
	refresh, refreshExp, err := s.codec.IssueRefresh(principal)
	if err != nil {
		return TokenBundle{}, err
	}
	now := s.now().UTC()
	session := &Session{
		ID:           ids.New(),
		UserID:       principal.UserID,
		TokenHash:    HashRefreshToken(refresh),
		ExpiresAt:    refreshExp,
		LastActivity: now,
		IPAddress:    client.IPAddress,
		UserAgent:    client.UserAgent,
		IsActive:     true,
		CreatedAt:    now,
	}
	if err := s.store.Sessions(ctx).Create(ctx, session); err != nil {
		return TokenBundle{}, err
	}
	return TokenBundle{
		AccessToken:      access,
		RefreshToken:     refresh,
		CSRFToken:        uuid.NewString(),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// HashRefreshToken derives the registry key for a refresh token. Only the
// hash is persisted so a leaked sessions table cannot replay logins.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
