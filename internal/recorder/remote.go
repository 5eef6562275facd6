package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/contest/internal/store"
)

// SolvesPath is the solve record endpoint of the contest service.
const SolvesPath = "/api/solves"

// RemoteWriter appends solve records through the contest HTTP service.
type RemoteWriter struct {
	base   string
	client *http.Client
	apiKey string
}

// NewRemoteWriter returns a Writer for the service at baseURL. client may
// be nil (5s timeout).
func NewRemoteWriter(baseURL, apiKey string, client *http.Client) *RemoteWriter {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &RemoteWriter{base: strings.TrimRight(baseURL, "/"), client: client, apiKey: apiKey}
}

func (w *RemoteWriter) WriteSolve(ctx context.Context, solve store.Solve) (bool, error) {
	body, err := json.Marshal(solve)
	if err != nil {
		return false, fmt.Errorf("encode solve: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.base+SolvesPath, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("post solve: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return false, fmt.Errorf("post solve: status %d", resp.StatusCode)
	}

	var out struct {
		Inserted bool `json:"inserted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode reply: %w", err)
	}
	return out.Inserted, nil
}
