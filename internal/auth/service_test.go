package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tradeloop/convocore/internal/directory"
)

// memDirectory is a directory stub for auth tests.
type memDirectory struct {
	identities map[string]*directory.Identity
}

func (m *memDirectory) ResolveIdentity(_ context.Context, id string) (*directory.Identity, error) {
	ident, ok := m.identities[id]
	if !ok {
		return nil, directory.ErrIdentityNotFound
	}
	return ident, nil
}

func (m *memDirectory) FindByRole(_ context.Context, role directory.Role) ([]string, error) {
	var ids []string
	for id, ident := range m.identities {
		if ident.Role == role {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func testJWTConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
}

func TestIssueAndValidateToken(t *testing.T) {
	hash, err := HashAccessKey("open-sesame")
	if err != nil {
		t.Fatalf("HashAccessKey failed: %v", err)
	}

	dir := &memDirectory{identities: map[string]*directory.Identity{
		"seller-1": {ID: "seller-1", DisplayName: "Ada", Role: directory.RoleSeller, AccessKeyHash: hash},
		"ghost":    {ID: "ghost", DisplayName: "No Key", Role: directory.RoleCustomer},
	}}
	svc := NewService(dir, testJWTConfig())

	token, err := svc.IssueToken(context.Background(), "seller-1", "open-sesame")
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.IdentityID != "seller-1" || claims.Role != string(directory.RoleSeller) {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestIssueTokenRejections(t *testing.T) {
	hash, err := HashAccessKey("open-sesame")
	if err != nil {
		t.Fatalf("HashAccessKey failed: %v", err)
	}

	dir := &memDirectory{identities: map[string]*directory.Identity{
		"seller-1": {ID: "seller-1", Role: directory.RoleSeller, AccessKeyHash: hash},
		"ghost":    {ID: "ghost", Role: directory.RoleCustomer},
	}}
	svc := NewService(dir, testJWTConfig())

	tests := []struct {
		name       string
		identityID string
		accessKey  string
	}{
		{"wrong key", "seller-1", "wrong"},
		{"unknown identity", "nobody", "open-sesame"},
		{"identity without key", "ghost", "anything"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.IssueToken(context.Background(), tt.identityID, tt.accessKey)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Errorf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken(testJWTConfig(), "seller-1", "seller")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	other := testJWTConfig()
	other.Secret = []byte("other-secret")
	if _, err := ValidateToken(other, token); err == nil {
		t.Error("expected validation to fail with a different secret")
	}
}
