// ABOUTME: Sink implementations: sqlite outbox rows and an append-only CSV file.
// ABOUTME: Both are strictly append-only; nothing is ever rewritten.

package mirror

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"
)

// OutboxAppender is the slice of the store the outbox sink needs.
type OutboxAppender interface {
	AppendOutbox(ctx context.Context, kind, payload string) error
}

// OutboxSink appends records as rows in the store's mirror_outbox table.
type OutboxSink struct {
	store OutboxAppender
}

// NewOutboxSink wraps a store.
func NewOutboxSink(store OutboxAppender) *OutboxSink {
	return &OutboxSink{store: store}
}

// Write appends one outbox row.
func (s *OutboxSink) Write(ctx context.Context, rec Record) error {
	return s.store.AppendOutbox(ctx, rec.Kind, rec.Payload)
}

// CSVSink appends records to a local CSV file, one line per record:
// timestamp, kind, payload.
type CSVSink struct {
	mu   sync.Mutex
	path string
}

// NewCSVSink creates a sink appending to the file at path.
func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

// Write appends one CSV line. The file is opened per write so an external
// rotation never wedges the sink.
func (s *CSVSink) Write(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening mirror file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{time.Now().UTC().Format(time.RFC3339), rec.Kind, rec.Payload}); err != nil {
		return fmt.Errorf("writing mirror row: %w", err)
	}
	w.Flush()
	return w.Error()
}
