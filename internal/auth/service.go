package auth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoSecret is returned when tokens are requested but no signing secret is configured.
	ErrNoSecret = errors.New("jwt secret is not configured")
	// ErrNotAdmin is returned for a valid token that does not carry the admin claim.
	ErrNotAdmin = errors.New("token is not an admin token")
	// ErrInvalidSubject is returned when a token is requested for an empty operator name.
	ErrInvalidSubject = errors.New("invalid subject")
)

// Service issues and checks operator tokens.
type Service struct {
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(jwtConfig *JWTConfig) *Service {
	return &Service{jwtConfig: jwtConfig}
}

// Enabled reports whether a signing secret is configured.
func (s *Service) Enabled() bool {
	return len(s.jwtConfig.Secret) > 0
}

// IssueToken mints an admin token for the named operator.
func (s *Service) IssueToken(subject string) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", ErrInvalidSubject
	}

	token, err := GenerateToken(s.jwtConfig, subject)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
