package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/contest/internal/store"
)

// WinnersPath is the winners endpoint of the contest service.
const WinnersPath = "/api/stage_winners"

// RemoteSource reads winners from the contest HTTP service.
type RemoteSource struct {
	base   string
	client *http.Client
}

// NewRemoteSource returns a WinnerSource for the service at baseURL. client
// may be nil (5s timeout).
func NewRemoteSource(baseURL string, client *http.Client) *RemoteSource {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &RemoteSource{base: strings.TrimRight(baseURL, "/"), client: client}
}

func (r *RemoteSource) Winners(ctx context.Context) ([]store.Winner, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+WinnersPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch winners: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch winners: status %d", resp.StatusCode)
	}

	var winners []store.Winner
	if err := json.NewDecoder(resp.Body).Decode(&winners); err != nil {
		return nil, fmt.Errorf("decode winners: %w", err)
	}
	return winners, nil
}
