package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/contest/internal/config"
)

// SolvesPath is the solve record endpoint of the contest service.
const SolvesPath = "/api/solves"

// RemoteSource reads a user's solved stages from the contest HTTP service.
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

func (r *RemoteSource) SolvedStages(ctx context.Context, userID string) (config.StageSet, error) {
	endpoint := r.base + SolvesPath + "/" + url.PathEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return config.StageSet{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return config.StageSet{}, fmt.Errorf("fetch solves: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return config.StageSet{}, fmt.Errorf("fetch solves: status %d", resp.StatusCode)
	}

	var body struct {
		Stages []int `json:"stages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return config.StageSet{}, fmt.Errorf("decode solves: %w", err)
	}
	return config.StageSetFromInts(body.Stages), nil
}
