package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/tradeloop/convocore/internal/directory"
)

// ErrInvalidCredentials is returned when an identity id / access key pair
// does not match a directory record.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Service exchanges directory access keys for bearer tokens.
type Service struct {
	dir       directory.Directory
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(dir directory.Directory, jwtConfig *JWTConfig) *Service {
	return &Service{
		dir:       dir,
		jwtConfig: jwtConfig,
	}
}

// IssueToken verifies the access key against the directory record and
// returns a signed JWT for the identity.
func (s *Service) IssueToken(ctx context.Context, identityID, accessKey string) (string, error) {
	ident, err := s.dir.ResolveIdentity(ctx, identityID)
	if err != nil {
		if errors.Is(err, directory.ErrIdentityNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("resolve identity: %w", err)
	}

	// Identities without a key on record cannot authenticate here at all.
	if ident.AccessKeyHash == "" {
		return "", ErrInvalidCredentials
	}
	if err := CompareAccessKey(ident.AccessKeyHash, accessKey); err != nil {
		return "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, ident.ID, string(ident.Role))
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// ValidateToken parses and validates a bearer token.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
