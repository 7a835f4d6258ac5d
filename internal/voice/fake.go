// ABOUTME: Recording in-memory dialer used by tests and local development.
// ABOUTME: Assigns deterministic call ids and remembers every request.

package voice

import (
	"context"
	"fmt"
	"sync"
)

// FakeDialer records calls instead of placing them.
type FakeDialer struct {
	mu     sync.Mutex
	next   int
	Placed []CallRequest
	Ended  []string
	// FailNext makes the next operation return ErrDialerUnavailable.
	FailNext bool
}

// NewFakeDialer creates an empty recording dialer.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{}
}

// PlaceCall records the request and returns a deterministic id.
func (d *FakeDialer) PlaceCall(ctx context.Context, req CallRequest) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailNext {
		d.FailNext = false
		return "", ErrDialerUnavailable
	}
	d.next++
	d.Placed = append(d.Placed, req)
	return fmt.Sprintf("fake-call-%d", d.next), nil
}

// EndCall records the hang-up.
func (d *FakeDialer) EndCall(ctx context.Context, externalCallID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailNext {
		d.FailNext = false
		return ErrDialerUnavailable
	}
	d.Ended = append(d.Ended, externalCallID)
	return nil
}
