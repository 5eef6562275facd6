// Package leaderboard renders the first solver of every stage.
//
// Stages 1..N-1 are rendered as rows of a grid and the final stage as a
// separate large card. A board is always produced: when winners cannot be
// read every card shows "No Winner Yet".
package leaderboard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/contest/internal/config"
	"github.com/roach88/contest/internal/store"
)

// Card labels.
const (
	NoWinner       = "No Winner Yet"
	PrizeAvailable = "Prize Still Available"
)

// dateLayout renders WonAt. Dates are shown in UTC so every viewer agrees.
const dateLayout = "2006-01-02"

// WinnerSource reads the winners view.
type WinnerSource interface {
	Winners(ctx context.Context) ([]store.Winner, error)
}

// Card is one stage on the board.
type Card struct {
	Stage    config.StageID `json:"stage"`
	Title    string         `json:"title"`
	Prize    string         `json:"prize"`
	Username string         `json:"username,omitempty"`
	WonAt    *time.Time     `json:"won_at,omitempty"`
	Final    bool           `json:"final,omitempty"`
}

// HasWinner reports whether somebody solved the stage.
func (c Card) HasWinner() bool {
	return c.WonAt != nil
}

// Pill is the winner badge text.
func (c Card) Pill() string {
	if !c.HasWinner() {
		return NoWinner
	}
	name := c.Username
	if name == "" {
		name = "-"
	}
	return "Winner: " + name
}

// Status is the footer line.
func (c Card) Status() string {
	if !c.HasWinner() {
		return PrizeAvailable
	}
	return "Congratulations! Won " + c.WonAt.UTC().Format(dateLayout)
}

// Board is a rendered leaderboard.
type Board struct {
	Cards []Card `json:"cards"`
	Final Card   `json:"final"`

	// Stale is set when winners could not be read.
	Stale bool `json:"stale,omitempty"`
}

// Builder assembles boards from the winners view.
type Builder struct {
	cfg    *config.Contest
	source WinnerSource
	logger *slog.Logger
}

// NewBuilder creates a Builder. A nil logger means slog.Default().
func NewBuilder(cfg *config.Contest, source WinnerSource, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{cfg: cfg, source: source, logger: logger.With("component", "leaderboard")}
}

// Build reads winners and lays out the board. It never fails.
func (b *Builder) Build(ctx context.Context) Board {
	byStage := make(map[config.StageID]store.Winner)
	stale := false

	winners, err := b.source.Winners(ctx)
	if err != nil {
		b.logger.Warn("winners unavailable, rendering empty board", "error", err)
		stale = true
	}
	for _, w := range winners {
		if b.cfg.Valid(w.Stage) {
			byStage[w.Stage] = w
		}
	}

	board := Board{Cards: make([]Card, 0, b.cfg.Total-1), Stale: stale}
	for _, s := range b.cfg.StageIDs() {
		card := b.card(s, byStage)
		if s == b.cfg.Final() {
			card.Final = true
			board.Final = card
			continue
		}
		board.Cards = append(board.Cards, card)
	}
	return board
}

func (b *Builder) card(s config.StageID, winners map[config.StageID]store.Winner) Card {
	st := b.cfg.Stage(s)
	c := Card{
		Stage: s,
		Title: fmt.Sprintf("Stage %d", int(s)),
		Prize: st.Prize,
	}
	if w, ok := winners[s]; ok {
		wonAt := w.WonAt
		c.Username = w.Username
		c.WonAt = &wonAt
	}
	return c
}

const finalWidth = 40

// WriteText renders the board as fixed-width text.
func (bd Board) WriteText(w io.Writer) error {
	var sb strings.Builder
	sb.WriteString("LEADERBOARD\n\n")
	for _, c := range bd.Cards {
		fmt.Fprintf(&sb, "%-10s %-16s %-28s %s\n", c.Title, orDash(c.Prize), c.Pill(), c.Status())
	}

	border := "+" + strings.Repeat("-", finalWidth+2) + "+\n"
	sb.WriteString("\n")
	sb.WriteString(border)
	for _, line := range []string{
		fmt.Sprintf("STAGE %d GRAND PRIZE", int(bd.Final.Stage)),
		orDash(bd.Final.Prize),
		bd.Final.Pill(),
		bd.Final.Status(),
	} {
		fmt.Fprintf(&sb, "| %-*s |\n", finalWidth, line)
	}
	sb.WriteString(border)

	_, err := io.WriteString(w, sb.String())
	return err
}

// Text is WriteText into a string.
func (bd Board) Text() string {
	var sb strings.Builder
	_ = bd.WriteText(&sb)
	return sb.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
