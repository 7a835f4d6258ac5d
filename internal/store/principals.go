// ABOUTME: Principal directory operations on the sqlite store.
// ABOUTME: Implements the auth.Directory lookup plus create/update for bootstrap.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kestrelops/dialgate/internal/auth"
)

// Compile-time check that the store satisfies the auth lookup contract.
var _ auth.Directory = (*SQLiteStore)(nil)

// GetPrincipal looks up one principal by id.
func (s *SQLiteStore) GetPrincipal(ctx context.Context, id string) (*auth.PrincipalRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT principal_id, role, permissions, token_hash, disabled
		FROM principals WHERE principal_id = ?`, id)

	var rec auth.PrincipalRecord
	var permissions string
	var disabled int
	if err := row.Scan(&rec.ID, &rec.Role, &permissions, &rec.TokenHash, &disabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("querying principal: %w", err)
	}
	rec.Disabled = disabled != 0
	if permissions != "" {
		rec.Permissions = strings.Split(permissions, ",")
	}
	return &rec, nil
}

// CreatePrincipal inserts a new principal. Role must be one of the schema's
// allowed values.
func (s *SQLiteStore) CreatePrincipal(ctx context.Context, id, role string, permissions []string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO principals (principal_id, role, permissions, created_at)
		VALUES (?, ?, ?, ?)`,
		id, role, strings.Join(permissions, ","), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting principal: %w", err)
	}
	s.logger.Info("principal created", "principal_id", id, "role", role)
	return nil
}

// SetAPITokenHash stores the bcrypt hash of a freshly minted API token.
func (s *SQLiteStore) SetAPITokenHash(ctx context.Context, id, hash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE principals SET token_hash = ? WHERE principal_id = ?`, hash, id)
	if err != nil {
		return fmt.Errorf("updating token hash: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrPrincipalNotFound
	}
	return nil
}

// SetDisabled flips the principal's disabled flag.
func (s *SQLiteStore) SetDisabled(ctx context.Context, id string, disabled bool) error {
	flag := 0
	if disabled {
		flag = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE principals SET disabled = ? WHERE principal_id = ?`, flag, id)
	if err != nil {
		return fmt.Errorf("updating disabled flag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrPrincipalNotFound
	}
	s.logger.Info("principal disabled flag changed", "principal_id", id, "disabled", disabled)
	return nil
}
