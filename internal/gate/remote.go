package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/contest/internal/config"
)

// AvailabilityPath is the read-only availability endpoint.
const AvailabilityPath = "/api/stage_control"

// Entry is one row of the availability endpoint.
type Entry struct {
	Stage   int  `json:"stage"`
	Enabled bool `json:"is_enabled"`
}

// RemoteSource reads availability from the contest HTTP service.
type RemoteSource struct {
	base   string
	client *http.Client
}

// NewRemoteSource returns a Source for the service at baseURL. client may
// be nil (5s timeout).
func NewRemoteSource(baseURL string, client *http.Client) *RemoteSource {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &RemoteSource{base: strings.TrimRight(baseURL, "/"), client: client}
}

func (r *RemoteSource) StageAvailability(ctx context.Context) (map[config.StageID]bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+AvailabilityPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch availability: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch availability: status %d", resp.StatusCode)
	}

	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode availability: %w", err)
	}

	out := make(map[config.StageID]bool, len(entries))
	for _, e := range entries {
		out[config.StageID(e.Stage)] = e.Enabled
	}
	return out, nil
}
