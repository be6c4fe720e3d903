package dirsqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tradeloop/convocore/internal/directory"
)

// Adapter implements directory.Directory over the identities table the
// marketplace syncs into the shared database. It borrows the store's
// connection rather than opening its own.
type Adapter struct {
	db *sql.DB
}

// New creates a directory adapter over an existing database handle.
func New(db *sql.DB) *Adapter {
	return &Adapter{db: db}
}

// ResolveIdentity returns the profile for an identity id.
func (a *Adapter) ResolveIdentity(ctx context.Context, id string) (*directory.Identity, error) {
	query := `
		SELECT id, display_name, avatar_url, role, access_key_hash
		FROM identities
		WHERE id = ?
	`
	var ident directory.Identity
	var role string
	err := a.db.QueryRowContext(ctx, query, id).Scan(
		&ident.ID,
		&ident.DisplayName,
		&ident.AvatarURL,
		&role,
		&ident.AccessKeyHash,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, directory.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("query identity: %w", err)
	}
	ident.Role = directory.Role(role)

	return &ident, nil
}

// FindByRole returns the ids of all identities with the given role, sorted
// ascending so callers that pick the first element get a stable choice.
func (a *Adapter) FindByRole(ctx context.Context, role directory.Role) ([]string, error) {
	query := `
		SELECT id FROM identities
		WHERE role = ?
		ORDER BY id ASC
	`
	rows, err := a.db.QueryContext(ctx, query, string(role))
	if err != nil {
		return nil, fmt.Errorf("query identities by role: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan identity id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// PutIdentity inserts or replaces an identity record. This is the roster
// sync hook: the surrounding platform owns the data, this core only mirrors it.
func (a *Adapter) PutIdentity(ctx context.Context, ident *directory.Identity) error {
	query := `
		INSERT INTO identities (id, display_name, avatar_url, role, access_key_hash)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			avatar_url = excluded.avatar_url,
			role = excluded.role,
			access_key_hash = excluded.access_key_hash
	`
	_, err := a.db.ExecContext(ctx, query,
		ident.ID,
		ident.DisplayName,
		ident.AvatarURL,
		string(ident.Role),
		ident.AccessKeyHash,
	)
	if err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}
	return nil
}

var _ directory.Directory = (*Adapter)(nil)
