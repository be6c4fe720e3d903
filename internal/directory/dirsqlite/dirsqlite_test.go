package dirsqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/tradeloop/convocore/internal/directory"
	"github.com/tradeloop/convocore/internal/store/sqlite"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return New(st.DB())
}

func TestResolveIdentity(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	want := &directory.Identity{
		ID:          "seller-1",
		DisplayName: "Ada's Atelier",
		AvatarURL:   "https://cdn.example.com/ada.png",
		Role:        directory.RoleSeller,
	}
	if err := a.PutIdentity(ctx, want); err != nil {
		t.Fatalf("PutIdentity failed: %v", err)
	}

	got, err := a.ResolveIdentity(ctx, "seller-1")
	if err != nil {
		t.Fatalf("ResolveIdentity failed: %v", err)
	}
	if got.DisplayName != want.DisplayName || got.Role != want.Role || got.AvatarURL != want.AvatarURL {
		t.Errorf("unexpected identity: %+v", got)
	}

	if _, err := a.ResolveIdentity(ctx, "nobody"); !errors.Is(err, directory.ErrIdentityNotFound) {
		t.Errorf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestPutIdentityUpsert(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	ident := &directory.Identity{ID: "customer-1", DisplayName: "Old Name", Role: directory.RoleCustomer}
	if err := a.PutIdentity(ctx, ident); err != nil {
		t.Fatalf("PutIdentity failed: %v", err)
	}

	ident.DisplayName = "New Name"
	if err := a.PutIdentity(ctx, ident); err != nil {
		t.Fatalf("PutIdentity (update) failed: %v", err)
	}

	got, err := a.ResolveIdentity(ctx, "customer-1")
	if err != nil {
		t.Fatalf("ResolveIdentity failed: %v", err)
	}
	if got.DisplayName != "New Name" {
		t.Errorf("expected updated display name, got %q", got.DisplayName)
	}
}

func TestFindByRoleSorted(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	seed := []*directory.Identity{
		{ID: "admin-charlie", DisplayName: "Charlie", Role: directory.RoleAdmin},
		{ID: "admin-alice", DisplayName: "Alice", Role: directory.RoleAdmin},
		{ID: "seller-1", DisplayName: "Someone", Role: directory.RoleSeller},
	}
	for _, ident := range seed {
		if err := a.PutIdentity(ctx, ident); err != nil {
			t.Fatalf("PutIdentity failed: %v", err)
		}
	}

	admins, err := a.FindByRole(ctx, directory.RoleAdmin)
	if err != nil {
		t.Fatalf("FindByRole failed: %v", err)
	}
	if len(admins) != 2 || admins[0] != "admin-alice" || admins[1] != "admin-charlie" {
		t.Errorf("expected sorted admin ids, got %v", admins)
	}

	none, err := a.FindByRole(ctx, directory.RolePartner)
	if err != nil {
		t.Fatalf("FindByRole failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no partners, got %v", none)
	}
}
