package config

import (
	"fmt"
	"strings"
	"time"
)

// DefaultLeaderboardDelay is how long a leaderboard refresh is deferred after
// a solve so the remote write has a chance to land first.
const DefaultLeaderboardDelay = 100 * time.Millisecond

// MaxLeaderboardDelay bounds the configurable refresh delay.
const MaxLeaderboardDelay = 200 * time.Millisecond

// Stage is the static description of one stage.
type Stage struct {
	ID         StageID
	Title      string
	Video      string
	Prize      string
	SecondClue string

	// answers maps step (1 or 2) to the normalized expected answer. Only
	// stages that carry a local fallback have entries.
	answers map[int]string
}

// Contest is the loaded contest configuration.
//
// A Contest is read-only after Load/Default return; it is safe to share
// between goroutines.
type Contest struct {
	Total            int
	TwoStepFrom      StageID
	TwoStepTo        StageID
	AdminEmail       string
	LeaderboardDelay time.Duration

	stages map[StageID]Stage
}

// Valid reports whether s is a stage of this contest.
func (c *Contest) Valid(s StageID) bool {
	return s >= 1 && int(s) <= c.Total
}

// Final returns the last stage ID (the grand-prize stage).
func (c *Contest) Final() StageID {
	return StageID(c.Total)
}

// StageIDs returns 1..Total in order.
func (c *Contest) StageIDs() []StageID {
	ids := make([]StageID, c.Total)
	for i := range ids {
		ids[i] = StageID(i + 1)
	}
	return ids
}

// HasTwoAnswers reports whether s requires two accepted answers.
// It is a static range check over [TwoStepFrom, TwoStepTo].
func (c *Contest) HasTwoAnswers(s StageID) bool {
	if c.TwoStepFrom == 0 {
		return false
	}
	return s >= c.TwoStepFrom && s <= c.TwoStepTo
}

// Steps returns how many answers s requires (1 or 2).
func (c *Contest) Steps(s StageID) int {
	if c.HasTwoAnswers(s) {
		return 2
	}
	return 1
}

// Stage returns the description of s. Stages that were not configured get a
// generated title and an empty description.
func (c *Contest) Stage(s StageID) Stage {
	if st, ok := c.stages[s]; ok {
		return st
	}
	return Stage{ID: s, Title: fmt.Sprintf("Stage %d", int(s))}
}

// FallbackAnswers returns the local fallback table as (stage, step) → answer.
func (c *Contest) FallbackAnswers() map[StageID]map[int]string {
	out := make(map[StageID]map[int]string)
	for id, st := range c.stages {
		if len(st.answers) == 0 {
			continue
		}
		steps := make(map[int]string, len(st.answers))
		for step, ans := range st.answers {
			steps[step] = ans
		}
		out[id] = steps
	}
	return out
}

// IsAdmin reports whether email belongs to the contest administrator.
func (c *Contest) IsAdmin(email string) bool {
	if c.AdminEmail == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(email), c.AdminEmail)
}
