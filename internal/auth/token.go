package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour
)

// Claims is the shared JWT payload. Access and refresh tokens use the same
// encoding; TokenType is the only discriminator, so every consumer must go
// through VerifyAccess or VerifyRefresh rather than trusting a raw token.
type Claims struct {
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Level       int      `json:"level,omitempty"`
	TokenType   string   `json:"token_type"`
	jwt.RegisteredClaims
}

// AccessClaims is the payload of a verified access token.
type AccessClaims struct{ Claims }

// RefreshClaims is the payload of a verified refresh token.
type RefreshClaims struct{ Claims }

// Principal rebuilds the principal embedded in the claims.
func (c *Claims) Principal() Principal {
	p := Principal{
		UserID:      c.Subject,
		Email:       c.Email,
		RoleNames:   c.Roles,
		Level:       c.Level,
		Permissions: make(map[string]struct{}, len(c.Permissions)),
	}
	for _, perm := range c.Permissions {
		p.Permissions[perm] = struct{}{}
	}
	return p
}

// TokenCodec creates and verifies the signed bearer credentials.
type TokenCodec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenCodecOption configures a TokenCodec.
type TokenCodecOption func(*TokenCodec)

// WithIssuer sets the iss claim stamped into and required from tokens.
func WithIssuer(issuer string) TokenCodecOption {
	return func(c *TokenCodec) {
		c.issuer = strings.TrimSpace(issuer)
	}
}

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenCodecOption {
	return func(c *TokenCodec) {
		if ttl > 0 {
			c.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenCodecOption {
	return func(c *TokenCodec) {
		if ttl > 0 {
			c.refreshTTL = ttl
		}
	}
}

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenCodecOption {
	return func(c *TokenCodec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewTokenCodec constructs the codec. An empty signing secret is a fatal
// configuration error surfaced here, never at request time.
func NewTokenCodec(secret string, opts ...TokenCodecOption) (*TokenCodec, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: token signing secret is not configured")
	}
	c := &TokenCodec{
		secret:     []byte(secret),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccess signs a short-lived access token for the principal.
func (c *TokenCodec) IssueAccess(p Principal) (string, time.Time, error) {
	return c.issue(p, tokenTypeAccess, c.accessTTL)
}

// IssueRefresh signs a long-lived refresh token for the principal.
func (c *TokenCodec) IssueRefresh(p Principal) (string, time.Time, error) {
	return c.issue(p, tokenTypeRefresh, c.refreshTTL)
}

func (c *TokenCodec) issue(p Principal, tokenType string, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return "", time.Time{}, ErrInvalidInput
	}
	now := c.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Email:       p.Email,
		Roles:       p.RoleNames,
		Permissions: p.PermissionKeys(),
		Level:       p.Level,
		TokenType:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyAccess validates signature and expiry and requires the access type.
func (c *TokenCodec) VerifyAccess(token string) (*AccessClaims, error) {
	claims, err := c.verify(token, tokenTypeAccess)
	if err != nil {
		return nil, err
	}
	return &AccessClaims{Claims: *claims}, nil
}

// VerifyRefresh validates signature and expiry and requires the refresh type.
func (c *TokenCodec) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims, err := c.verify(token, tokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	return &RefreshClaims{Claims: *claims}, nil
}

func (c *TokenCodec) verify(token, tokenType string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }),
	}
	if c.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(c.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenInvalid
	}
	// A stolen refresh token must not pass as an access token or vice versa.
	if claims.TokenType != tokenType {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// DecodeUnsafe decodes claims without verifying the signature. For display
// purposes only (e.g. showing a user their session expiry); never use the
// result for an authorization decision.
func (c *TokenCodec) DecodeUnsafe(token string) *Claims {
	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(strings.TrimSpace(token), &claims); err != nil {
		return nil
	}
	return &claims
}
