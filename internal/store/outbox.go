// ABOUTME: Append-only outbox rows consumed by the mirror worker.
// ABOUTME: Rows record what was mirrored; the mirror package decides when.

package store

import (
	"context"
	"fmt"
	"time"
)

// OutboxRow is one appended mirror record.
type OutboxRow struct {
	Seq       int64
	Kind      string
	Payload   string
	CreatedAt time.Time
}

// AppendOutbox appends one record. The table is append-only; nothing ever
// updates or deletes rows.
func (s *SQLiteStore) AppendOutbox(ctx context.Context, kind, payload string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mirror_outbox (kind, payload, created_at)
		VALUES (?, ?, ?)`,
		kind, payload, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("appending outbox row: %w", err)
	}
	return nil
}

// ListOutbox returns rows after the given sequence number, oldest first.
func (s *SQLiteStore) ListOutbox(ctx context.Context, afterSeq int64, limit int) ([]OutboxRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, payload, created_at
		FROM mirror_outbox WHERE seq > ?
		ORDER BY seq ASC LIMIT ?`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("querying outbox: %w", err)
	}
	defer rows.Close()

	var out []OutboxRow
	for rows.Next() {
		var row OutboxRow
		var createdAt string
		if err := rows.Scan(&row.Seq, &row.Kind, &row.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning outbox row: %w", err)
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing outbox timestamp: %w", err)
		}
		row.CreatedAt = t
		out = append(out, row)
	}
	return out, rows.Err()
}
