// ABOUTME: Credit ledger operations: balance, debit, and grant.
// ABOUTME: Balances are derived from an append-only entry table inside a transaction.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInsufficientCredits indicates a debit would take the balance negative.
var ErrInsufficientCredits = errors.New("insufficient credits")

// Balance returns the principal's current credit balance.
func (s *SQLiteStore) Balance(ctx context.Context, principalID string) (int64, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM credit_entries WHERE principal_id = ?`, principalID)
	var balance int64
	if err := row.Scan(&balance); err != nil {
		return 0, fmt.Errorf("querying balance: %w", err)
	}
	return balance, nil
}

// Debit removes credits from the principal's balance. Fails with
// ErrInsufficientCredits when the balance cannot cover the amount; the check
// and the insert run in one transaction so concurrent debits cannot
// overdraw.
func (s *SQLiteStore) Debit(ctx context.Context, principalID string, amount int64, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning debit transaction: %w", err)
	}
	defer tx.Rollback()

	var balance int64
	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM credit_entries WHERE principal_id = ?`, principalID)
	if err := row.Scan(&balance); err != nil {
		return fmt.Errorf("querying balance: %w", err)
	}
	if balance < amount {
		return fmt.Errorf("%w: balance %d, needed %d", ErrInsufficientCredits, balance, amount)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO credit_entries (entry_id, principal_id, amount, reason, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), principalID, -amount, reason,
		time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("inserting debit entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing debit: %w", err)
	}

	s.logger.Info("credits debited", "principal_id", principalID, "amount", amount, "reason", reason)
	return nil
}

// Grant adds credits to the principal's balance.
func (s *SQLiteStore) Grant(ctx context.Context, principalID string, amount int64, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive, got %d", amount)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO credit_entries (entry_id, principal_id, amount, reason, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), principalID, amount, reason,
		time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("inserting grant entry: %w", err)
	}

	s.logger.Info("credits granted", "principal_id", principalID, "amount", amount, "reason", reason)
	return nil
}

// LedgerEntry is one row of a principal's credit history.
type LedgerEntry struct {
	EntryID     string
	PrincipalID string
	Amount      int64
	Reason      string
	CreatedAt   time.Time
}

// History returns the principal's ledger entries, newest first.
func (s *SQLiteStore) History(ctx context.Context, principalID string, limit int) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, principal_id, amount, reason, created_at
		FROM credit_entries WHERE principal_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, principalID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying ledger history: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanLedgerEntry(rows *sql.Rows) (LedgerEntry, error) {
	var e LedgerEntry
	var createdAt string
	if err := rows.Scan(&e.EntryID, &e.PrincipalID, &e.Amount, &e.Reason, &createdAt); err != nil {
		return LedgerEntry{}, fmt.Errorf("scanning ledger entry: %w", err)
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("parsing entry timestamp: %w", err)
	}
	e.CreatedAt = t
	return e, nil
}
