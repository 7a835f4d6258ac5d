// ABOUTME: Call record persistence: create, status transitions, and listing.
// ABOUTME: Destinations are stored but never logged, they may be phone numbers.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrCallNotFound indicates no call record exists for the id.
var ErrCallNotFound = errors.New("call not found")

// Call statuses.
const (
	CallStatusPlacing = "placing"
	CallStatusActive  = "active"
	CallStatusEnded   = "ended"
	CallStatusFailed  = "failed"
)

// Call is one outbound call record.
type Call struct {
	CallID         string
	ExternalCallID string
	PrincipalID    string
	SessionID      string
	Destination    string
	Status         string
	CreatedAt      time.Time
	EndedAt        *time.Time
}

// CreateCall inserts a new call record in the placing state.
func (s *SQLiteStore) CreateCall(ctx context.Context, call *Call) error {
	if call.Status == "" {
		call.Status = CallStatusPlacing
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calls (call_id, external_call_id, principal_id, session_id, destination, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		call.CallID, call.ExternalCallID, call.PrincipalID, call.SessionID,
		call.Destination, call.Status, call.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting call: %w", err)
	}
	s.logger.Info("call record created", "call_id", call.CallID, "principal_id", call.PrincipalID)
	return nil
}

// UpdateCallStatus moves a call to a new status, optionally recording the
// external call id assigned by the voice provider.
func (s *SQLiteStore) UpdateCallStatus(ctx context.Context, callID, status, externalCallID string) error {
	var endedAt any
	if status == CallStatusEnded || status == CallStatusFailed {
		endedAt = time.Now().UTC().Format(time.RFC3339)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE calls SET status = ?,
			external_call_id = CASE WHEN ? != '' THEN ? ELSE external_call_id END,
			ended_at = COALESCE(?, ended_at)
		WHERE call_id = ?`,
		status, externalCallID, externalCallID, endedAt, callID)
	if err != nil {
		return fmt.Errorf("updating call status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCallNotFound
	}
	s.logger.Info("call status updated", "call_id", callID, "status", status)
	return nil
}

// GetCall fetches one call record.
func (s *SQLiteStore) GetCall(ctx context.Context, callID string) (*Call, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT call_id, COALESCE(external_call_id, ''), principal_id, session_id, destination, status, created_at, ended_at
		FROM calls WHERE call_id = ?`, callID)
	call, err := scanCall(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCallNotFound
		}
		return nil, err
	}
	return call, nil
}

// ListCalls returns a principal's calls, newest first. An empty status
// matches all statuses.
func (s *SQLiteStore) ListCalls(ctx context.Context, principalID, status string, limit int) ([]*Call, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT call_id, COALESCE(external_call_id, ''), principal_id, session_id, destination, status, created_at, ended_at
		FROM calls
		WHERE principal_id = ? AND (? = '' OR status = ?)
		ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		principalID, status, status, limit)
	if err != nil {
		return nil, fmt.Errorf("querying calls: %w", err)
	}
	defer rows.Close()

	var calls []*Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (*Call, error) {
	var call Call
	var createdAt string
	var endedAt sql.NullString
	if err := row.Scan(&call.CallID, &call.ExternalCallID, &call.PrincipalID,
		&call.SessionID, &call.Destination, &call.Status, &createdAt, &endedAt); err != nil {
		return nil, err
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing call timestamp: %w", err)
	}
	call.CreatedAt = t

	if endedAt.Valid {
		e, err := time.Parse(time.RFC3339, endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing call end timestamp: %w", err)
		}
		call.EndedAt = &e
	}
	return &call, nil
}
