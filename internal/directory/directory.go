package directory

import (
	"context"
	"errors"
)

// Role classifies a platform identity.
type Role string

const (
	RoleCustomer        Role = "customer"
	RoleSeller          Role = "seller"
	RoleDesigner        Role = "designer"
	RoleServiceProvider Role = "service_provider"
	RolePartner         Role = "partner"
	RoleAdmin           Role = "admin"
)

// ErrIdentityNotFound is returned when no identity exists for an id.
var ErrIdentityNotFound = errors.New("identity not found")

// Identity is the display profile of a platform identity.
type Identity struct {
	ID          string
	DisplayName string
	AvatarURL   string
	Role        Role
	// AccessKeyHash is the bcrypt hash of the identity's API access key.
	// Empty for identities that never authenticate against this server.
	AccessKeyHash string
}

// Directory resolves platform identities. The identity roster is owned by the
// surrounding marketplace; this core only reads it.
type Directory interface {
	// ResolveIdentity returns the profile for an identity id.
	ResolveIdentity(ctx context.Context, id string) (*Identity, error)

	// FindByRole returns the ids of all identities with the given role,
	// sorted ascending.
	FindByRole(ctx context.Context, role Role) ([]string, error)
}
