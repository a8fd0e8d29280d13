// Package credentials decides which caller credential a request runs under
// and issues supervisor tokens.
package credentials

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/sumangalagouda/DEV-HACK/internal/config"
)

// Source says where the credential came from
type Source string

const (
	SourceAPIKeyHeader Source = "apikey-header"
	SourceBearer       Source = "bearer"
	SourceAnonKey      Source = "anon-key"
	SourceServiceKey   Source = "service-role-key"
)

// Roles carried by the built in keys
const (
	RoleAnon    = "anon"
	RoleService = "service_role"
)

var (
	// ErrMissing means no header and no configured fallback key
	ErrMissing = errors.New("API key missing")
	// ErrInvalid means a token was supplied but failed verification
	ErrInvalid = errors.New("invalid credential")
	// ErrSigningDisabled means JWT_SECRET is not configured
	ErrSigningDisabled = errors.New("token signing is not configured")
)

// Claims is the JWT payload for supervisor and API tokens
type Claims struct {
	Role  string   `json:"role,omitempty"`
	Zones []string `json:"zones,omitempty"`
	jwt.RegisteredClaims
}

// Credential is the identity a request is executed under
type Credential struct {
	Token    string
	Source   Source
	Subject  string
	Role     string
	Zones    []string
	Verified bool
}

// ClaimsMap is what gets forwarded to the database as request.jwt.claims
func (c Credential) ClaimsMap() map[string]any {
	m := map[string]any{}
	if c.Subject != "" {
		m["sub"] = c.Subject
	}
	if c.Role != "" {
		m["role"] = c.Role
	}
	if len(c.Zones) > 0 {
		m["zones"] = c.Zones
	}
	return m
}

// Resolver picks a credential from request headers or configured fallbacks
type Resolver struct {
	anonKey    string
	serviceKey string
	secret     []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewResolver creates a resolver from the auth configuration
func NewResolver(cfg config.AuthConfig) *Resolver {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Resolver{
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceRoleKey,
		secret:     []byte(cfg.JWTSecret),
		ttl:        ttl,
		now:        time.Now,
	}
}

// Resolve applies the precedence: apikey header, bearer token, anon key, service key
func (r *Resolver) Resolve(h http.Header) (Credential, error) {
	if key := strings.TrimSpace(h.Get("apikey")); key != "" {
		return r.fromToken(key, SourceAPIKeyHeader)
	}
	if token := bearerToken(h.Get("Authorization")); token != "" {
		return r.fromToken(token, SourceBearer)
	}
	return r.fallback()
}

// ResolveToken is Resolve for transports that cannot set headers (websockets)
func (r *Resolver) ResolveToken(token string) (Credential, error) {
	if token = strings.TrimSpace(token); token != "" {
		return r.fromToken(token, SourceBearer)
	}
	return r.fallback()
}

func (r *Resolver) fallback() (Credential, error) {
	if r.anonKey != "" {
		return r.fromToken(r.anonKey, SourceAnonKey)
	}
	if r.serviceKey != "" {
		return r.fromToken(r.serviceKey, SourceServiceKey)
	}
	return Credential{}, ErrMissing
}

func (r *Resolver) fromToken(token string, source Source) (Credential, error) {
	cred := Credential{Token: token, Source: source}

	if len(r.secret) == 0 {
		// Nothing to verify against; the database decides what the key may do
		cred.Role = r.keyRole(token)
		return cred, nil
	}

	if !looksLikeJWT(token) {
		role := r.keyRole(token)
		if role == "" {
			return Credential{}, ErrInvalid
		}
		cred.Role = role
		cred.Verified = true
		return cred, nil
	}

	claims, err := r.parse(token)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cred.Subject = claims.Subject
	cred.Role = claims.Role
	cred.Zones = claims.Zones
	cred.Verified = true
	return cred, nil
}

func (r *Resolver) keyRole(token string) string {
	switch token {
	case r.anonKey:
		if r.anonKey != "" {
			return RoleAnon
		}
	case r.serviceKey:
		if r.serviceKey != "" {
			return RoleService
		}
	}
	return ""
}

func (r *Resolver) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(r.now))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("token is not valid")
	}
	return claims, nil
}

// Issue signs a token for a supervisor
func (r *Resolver) Issue(subject, role string, zones []string) (string, time.Time, error) {
	if len(r.secret) == 0 {
		return "", time.Time{}, ErrSigningDisabled
	}
	now := r.now()
	expires := now.Add(r.ttl)
	claims := Claims{
		Role:  role,
		Zones: zones,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

func bearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

// HashPassword hashes with bcrypt's default cost
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword compares a bcrypt hash with a plain password
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
