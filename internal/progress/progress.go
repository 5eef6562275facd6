// Package progress is the local progress cache: the solved set and the set
// of two-step stages whose first answer was accepted.
//
// Values are stored as sorted, de-duplicated JSON integer lists under
// fixed keys, scoped by profile. A missing or unreadable value reads as the
// empty set; the cache is never a reason to fail a session.
package progress

import (
	"context"
	"encoding/json"

	"github.com/roach88/contest/internal/config"
)

// Keys under which the two sets are persisted.
const (
	KeySolvedStages      = "contest_solved_stages"
	KeyFirstRiddleSolved = "contest_first_riddle_solved"
)

// DefaultProfile is used when no profile name is configured.
const DefaultProfile = "default"

// Store persists local progress. Implementations must be safe for
// concurrent use.
type Store interface {
	SolvedStages(ctx context.Context) (config.StageSet, error)
	SetSolvedStages(ctx context.Context, s config.StageSet) error
	FirstRiddleSolved(ctx context.Context) (config.StageSet, error)
	SetFirstRiddleSolved(ctx context.Context, s config.StageSet) error

	// Clear removes both keys (sign-out).
	Clear(ctx context.Context) error
}

// decodeSet parses a persisted value. Corrupt values read as empty.
func decodeSet(data []byte) config.StageSet {
	if len(data) == 0 {
		return config.StageSet{}
	}
	var s config.StageSet
	if err := json.Unmarshal(data, &s); err != nil {
		return config.StageSet{}
	}
	return s
}

func encodeSet(s config.StageSet) ([]byte, error) {
	return json.Marshal(s)
}

func profileKey(profile, key string) []byte {
	if profile == "" {
		profile = DefaultProfile
	}
	return []byte("profile/" + profile + "/" + key)
}
