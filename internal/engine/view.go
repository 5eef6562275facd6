package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/contest/internal/config"
)

var errNoValidator = errors.New("no answer validator configured")

// Status is the display status of one stage.
type Status string

const (
	StatusLocked         Status = "locked"
	StatusUnlocked       Status = "unlocked"
	StatusAwaitingSecond Status = "awaiting-second"
	StatusSolved         Status = "solved"
	StatusAdminDisabled  Status = "admin-disabled"
)

// Mode is what the main panel shows for the current stage.
type Mode string

const (
	ModePrompt       Mode = "prompt"
	ModeSecondPrompt Mode = "second-prompt"
	ModeSolved       Mode = "solved"
	ModeDisabled     Mode = "disabled"
	ModeGrandPrize   Mode = "grand-prize"
)

// State is a snapshot of the progression state.
type State struct {
	// CurrentStage is the viewed stage. Clamped to N when Complete.
	CurrentStage config.StageID `json:"current_stage"`
	Solved       config.StageSet `json:"solved"`
	FirstSolved  config.StageSet `json:"first_solved"`
	Complete     bool            `json:"complete"`
}

// Summary is the "k / N solved" progress line.
type Summary struct {
	Solved  int    `json:"solved"`
	Total   int    `json:"total"`
	Percent int    `json:"percent"`
	Text    string `json:"text"`
}

func newSummary(solved, total int) Summary {
	pct := 0
	if total > 0 {
		pct = solved * 100 / total
	}
	return Summary{
		Solved:  solved,
		Total:   total,
		Percent: pct,
		Text:    fmt.Sprintf("%d / %d solved", solved, total),
	}
}

// Cell is one entry of the stage grid.
type Cell struct {
	Stage  config.StageID `json:"stage"`
	Status Status         `json:"status"`
	// Final marks the grand-prize stage, rendered as a separate large card.
	Final bool `json:"final,omitempty"`
}

// View is everything a renderer needs to draw the game screen.
type View struct {
	// Seq increases with every render.
	Seq int64 `json:"seq"`

	Mode       Mode           `json:"mode"`
	Stage      config.StageID `json:"stage"`
	Title      string         `json:"title"`
	Video      string         `json:"video,omitempty"`
	Prize      string         `json:"prize,omitempty"`
	SecondClue string         `json:"second_clue,omitempty"`

	// Step is the step the next answer is checked against (0 when no answer
	// is expected).
	Step int `json:"step"`

	// Next is the lowest unsolved stage, or Terminal.
	Next config.StageID `json:"next"`

	Summary Summary `json:"summary"`
	Grid    []Cell  `json:"grid"`
}

// Outcome is the result of one SubmitAnswer call.
type Outcome struct {
	Stage config.StageID `json:"stage"`
	Step  int            `json:"step"`

	// Correct is the validator's verdict.
	Correct bool `json:"correct"`

	// Solved is true when this submission solved the stage.
	Solved bool `json:"solved"`

	// AwaitingSecond is true when a first answer of two was accepted.
	AwaitingSecond bool `json:"awaiting_second"`

	AlreadySolved bool `json:"already_solved,omitempty"`

	// Stale is true when the viewed stage changed while the validator ran;
	// the verdict was discarded.
	Stale bool `json:"stale,omitempty"`

	Next     config.StageID `json:"next"`
	Complete bool           `json:"complete"`
}

func (e *Engine) gridLocked() []Cell {
	ids := e.cfg.StageIDs()
	cells := make([]Cell, 0, len(ids))
	final := e.cfg.Final()
	for _, s := range ids {
		cells = append(cells, Cell{Stage: s, Status: e.statusLocked(s), Final: s == final})
	}
	return cells
}

func (e *Engine) viewLocked() View {
	s := e.current
	st := e.cfg.Stage(s)
	v := View{
		Seq:     e.clock.Next(),
		Stage:   s,
		Title:   st.Title,
		Video:   st.Video,
		Prize:   st.Prize,
		Next:    e.findNextUnsolvedLocked(),
		Summary: e.summaryLocked(),
		Grid:    e.gridLocked(),
	}

	switch {
	case e.complete && s == e.cfg.Final():
		v.Mode = ModeGrandPrize
	case e.solved.Contains(s):
		v.Mode = ModeSolved
	case !e.gate.IsStageEnabled(s):
		v.Mode = ModeDisabled
	case e.cfg.HasTwoAnswers(s) && e.firstSolved.Contains(s):
		v.Mode = ModeSecondPrompt
		v.Step = 2
		v.SecondClue = e.SecondClue(s)
	default:
		v.Mode = ModePrompt
		v.Step = 1
	}
	return v
}
