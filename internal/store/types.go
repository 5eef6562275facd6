package store

import (
	"errors"
	"time"

	"github.com/roach88/contest/internal/config"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a write would violate a uniqueness rule
	// that is not absorbed by ON CONFLICT DO NOTHING (e.g. account email).
	ErrDuplicate = errors.New("already exists")

	// ErrExpired is returned for password reset tokens past their expiry.
	ErrExpired = errors.New("expired")
)

// DefaultUpdatedBy is recorded for stage control rows nobody has edited.
const DefaultUpdatedBy = "System"

// Solve is one accepted final answer.
type Solve struct {
	Seq      int64          `json:"seq,omitempty"` // assigned by the store
	ID       string         `json:"id"`
	Stage    config.StageID `json:"stage"`
	UserID   string         `json:"user_id"`
	Username string         `json:"username"`
	Step     int            `json:"step"`
	SolvedAt time.Time      `json:"solved_at"`
}

// Winner is the first solver of a stage.
type Winner struct {
	Stage    config.StageID `json:"stage"`
	UserID   string         `json:"user_id"`
	Username string         `json:"username"`
	WonAt    time.Time      `json:"won_at"`
}

// StageControl is the administrator-set availability of a stage.
type StageControl struct {
	Stage     config.StageID `json:"stage"`
	Enabled   bool           `json:"is_enabled"`
	UpdatedBy string         `json:"updated_by"`
	Notes     string         `json:"notes"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// User is a contest account.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
