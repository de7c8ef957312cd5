// Package auth issues and validates the credentials that guard the
// canvas gateway: HS256 session tokens and static API keys.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"
)

var (
	ErrAuthDisabled = errors.New("auth disabled")
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidKey   = errors.New("invalid api key")
)

// Roles carried by tokens. Operators drive sessions; observers only
// watch the event and canvas streams.
const (
	RoleOperator = "operator"
	RoleObserver = "observer"
)

// Identity is an authenticated principal. SessionID scopes the
// credential to one session; empty means any session.
type Identity struct {
	SessionID string
	Role      string
}

// CanWrite reports whether the identity may send messages and mutate
// canvas state.
func (id Identity) CanWrite() bool {
	return id.Role != RoleObserver
}

// Config configures authentication helpers.
type Config struct {
	JWTSecret   string
	TokenExpiry time.Duration
	APIKeys     []APIKeyConfig
}

// APIKeyConfig declares a static API key and the identity it grants.
// An empty SessionID makes the key valid for every session.
type APIKeyConfig struct {
	Key       string
	SessionID string
	Role      string
}

// Service validates JWTs and API keys.
type Service struct {
	jwt     *JWTService
	apiKeys map[string]Identity
}

// NewService constructs an auth service from static configuration.
func NewService(cfg Config) *Service {
	service := &Service{}
	if strings.TrimSpace(cfg.JWTSecret) != "" {
		service.jwt = NewJWTService(cfg.JWTSecret, cfg.TokenExpiry)
	}
	service.apiKeys = buildAPIKeyMap(cfg.APIKeys)
	return service
}

// Enabled reports whether auth checks should run.
func (s *Service) Enabled() bool {
	return s != nil && (s.jwt != nil || len(s.apiKeys) > 0)
}

// IssueToken signs a session token with the given role.
func (s *Service) IssueToken(sessionID, role string) (string, error) {
	if s == nil || s.jwt == nil {
		return "", ErrAuthDisabled
	}
	return s.jwt.Issue(sessionID, normalizeRole(role))
}

// ValidateToken validates a JWT and returns the identity it carries.
func (s *Service) ValidateToken(token string) (Identity, error) {
	if s == nil || s.jwt == nil {
		return Identity{}, ErrAuthDisabled
	}
	return s.jwt.Validate(token)
}

// ValidateAPIKey validates an API key and returns the identity it
// grants. Uses constant-time comparison to prevent timing attacks.
func (s *Service) ValidateAPIKey(key string) (Identity, error) {
	if s == nil || len(s.apiKeys) == 0 {
		return Identity{}, ErrAuthDisabled
	}
	inputKey := strings.TrimSpace(key)
	// Every stored key is compared so lookup time stays independent of
	// which key, if any, matches.
	var matched *Identity
	for storedKey, identity := range s.apiKeys {
		if subtle.ConstantTimeCompare([]byte(inputKey), []byte(storedKey)) == 1 {
			id := identity
			matched = &id
		}
	}
	if matched == nil {
		return Identity{}, ErrInvalidKey
	}
	return *matched, nil
}

// Authorize checks a validated identity against the session it is
// trying to reach.
func (s *Service) Authorize(identity Identity, sessionID string) bool {
	if identity.SessionID == "" {
		return true
	}
	return identity.SessionID == sessionID
}

func buildAPIKeyMap(keys []APIKeyConfig) map[string]Identity {
	out := map[string]Identity{}
	for _, entry := range keys {
		key := strings.TrimSpace(entry.Key)
		if key == "" {
			continue
		}
		out[key] = Identity{
			SessionID: strings.TrimSpace(entry.SessionID),
			Role:      normalizeRole(entry.Role),
		}
	}
	return out
}

func normalizeRole(role string) string {
	switch strings.TrimSpace(strings.ToLower(role)) {
	case RoleObserver:
		return RoleObserver
	default:
		return RoleOperator
	}
}
