package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vocdoni/sealbid-node/types"
)

// ErrCallbackRejected is returned when the receiver refused an output. It
// is permanent: the output is not delivered again.
var ErrCallbackRejected = errors.New("callback rejected")

// Callback delivers signed outputs to the node that requested them.
type Callback interface {
	Deliver(ctx context.Context, out *types.SignedOutput) error
}

// CallbackFunc adapts a function to the Callback interface.
type CallbackFunc func(ctx context.Context, out *types.SignedOutput) error

// Deliver calls f.
func (f CallbackFunc) Deliver(ctx context.Context, out *types.SignedOutput) error {
	return f(ctx, out)
}

// HTTPCallback posts outputs as JSON to URL.
type HTTPCallback struct {
	URL    string
	Client *http.Client
}

// NewHTTPCallback returns an HTTPCallback with a default client.
func NewHTTPCallback(url string) *HTTPCallback {
	return &HTTPCallback{URL: url, Client: &http.Client{Timeout: 20 * time.Second}}
}

// Deliver implements Callback. Responses with a 4xx status are reported as
// ErrCallbackRejected.
func (h *HTTPCallback) Deliver(ctx context.Context, out *types.SignedOutput) error {
	body, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver callback: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return fmt.Errorf("%w: status %d: %s", ErrCallbackRejected, resp.StatusCode, respBody)
	}
	return fmt.Errorf("callback failed, status %d: %s", resp.StatusCode, respBody)
}
