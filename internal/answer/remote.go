package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/contest/internal/config"
)

// ValidatePath is the validation endpoint relative to the service base URL.
const ValidatePath = "/functions/v1/validate-answer"

// Request is the validation request body.
type Request struct {
	Stage  int    `json:"stage"`
	Step   int    `json:"step"`
	Answer string `json:"answer"`
}

// Response is the validation reply.
type Response struct {
	OK bool `json:"ok"`
}

// Remote calls the HTTP validation service.
type Remote struct {
	base   string
	client *http.Client
	apiKey string
}

// RemoteOption configures a Remote.
type RemoteOption func(*Remote)

// WithHTTPClient replaces the default client (5s timeout).
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) { r.client = c }
}

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) RemoteOption {
	return func(r *Remote) { r.apiKey = key }
}

// NewRemote returns a validator for the service at baseURL.
func NewRemote(baseURL string, opts ...RemoteOption) *Remote {
	r := &Remote{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Validate posts the normalized answer. Any failure to get a verdict is
// reported as ErrUnavailable.
func (r *Remote) Validate(ctx context.Context, stage config.StageID, step int, answer string) (bool, error) {
	body, err := json.Marshal(Request{Stage: int(stage), Step: step, Answer: Normalize(answer)})
	if err != nil {
		return false, fmt.Errorf("%w: encode request: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base+ValidatePath, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return false, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return out.OK, nil
}
