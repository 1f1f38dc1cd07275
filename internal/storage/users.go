package storage

import (
	"context"
	"fmt"
)

// TouchUser records a login, creating the user on first sight. An empty
// displayName keeps the stored one.
func (db *DB) TouchUser(ctx context.Context, login, displayName string) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO users (login, display_name)
		VALUES ($1, $2)
		ON CONFLICT (login) DO UPDATE
			SET last_seen = NOW(), display_name = COALESCE(NULLIF($2, ''), users.display_name)
	`, login, displayName)
	if err != nil {
		return fmt.Errorf("touching user %s: %w", login, err)
	}
	return nil
}
