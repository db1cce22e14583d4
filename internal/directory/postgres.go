package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresResolver reads the users table owned by the identity service.
// The table is created and mutated elsewhere; this resolver only queries it.
type PostgresResolver struct {
	db *sql.DB
}

// NewPostgresResolver creates a resolver over the given database handle.
func NewPostgresResolver(db *sql.DB) *PostgresResolver {
	return &PostgresResolver{db: db}
}

// ResolveUser looks a user up by email (the login identifier) or, failing
// that, by opaque ID. The display name falls back to the email when the
// identity service has no name on file.
func (r *PostgresResolver) ResolveUser(ctx context.Context, identifier string) (*User, error) {
	const query = `
		SELECT id, COALESCE(NULLIF(display_name, ''), email)
		FROM users
		WHERE email = $1 OR id::text = $1`

	var u User
	err := r.db.QueryRowContext(ctx, query, identifier).Scan(&u.ID, &u.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("directory: resolve %q: %w", identifier, err)
	}
	return &u, nil
}

// ListPeers returns every user except the given one, ordered by display name.
func (r *PostgresResolver) ListPeers(ctx context.Context, excludeUserID string) ([]User, error) {
	const query = `
		SELECT id, COALESCE(NULLIF(display_name, ''), email)
		FROM users
		WHERE id::text <> $1
		ORDER BY 2 ASC`

	rows, err := r.db.QueryContext(ctx, query, excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("directory: list peers: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.DisplayName); err != nil {
			return nil, fmt.Errorf("directory: list peers scan: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: list peers rows: %w", err)
	}
	return out, nil
}
