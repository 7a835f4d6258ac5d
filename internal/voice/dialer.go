// ABOUTME: Dialer contract for the external voice provider plus an HTTP client.
// ABOUTME: Destinations never appear in logs, only opaque call ids do.

package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrDialerUnavailable indicates the voice provider rejected or failed the request.
var ErrDialerUnavailable = errors.New("voice provider unavailable")

// CallRequest describes an outbound call to place.
type CallRequest struct {
	Destination string `json:"destination"`
	CallerID    string `json:"callerId,omitempty"`
	// Metadata is forwarded opaque; the provider echoes it on webhooks.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Dialer places and ends calls against the external voice API.
type Dialer interface {
	PlaceCall(ctx context.Context, req CallRequest) (externalCallID string, err error)
	EndCall(ctx context.Context, externalCallID string) error
}

// HTTPDialer talks to a voice provider over its REST API.
type HTTPDialer struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPDialer creates a dialer for the provider at baseURL.
func NewHTTPDialer(baseURL, apiKey string, logger *slog.Logger) *HTTPDialer {
	return &HTTPDialer{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With("component", "voice-dialer"),
	}
}

// PlaceCall asks the provider to start an outbound call.
func (d *HTTPDialer) PlaceCall(ctx context.Context, req CallRequest) (string, error) {
	var result struct {
		CallID string `json:"callId"`
	}
	if err := d.post(ctx, "/v1/calls", req, &result); err != nil {
		return "", err
	}
	if result.CallID == "" {
		return "", fmt.Errorf("%w: provider returned no call id", ErrDialerUnavailable)
	}
	d.logger.Info("call placed", "external_call_id", result.CallID)
	return result.CallID, nil
}

// EndCall asks the provider to hang up.
func (d *HTTPDialer) EndCall(ctx context.Context, externalCallID string) error {
	if err := d.post(ctx, "/v1/calls/"+externalCallID+"/end", struct{}{}, nil); err != nil {
		return err
	}
	d.logger.Info("call ended", "external_call_id", externalCallID)
	return nil
}

func (d *HTTPDialer) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDialerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrDialerUnavailable, resp.StatusCode)
	}
	if out == nil {
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
