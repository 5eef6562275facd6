package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/roach88/contest/internal/engine"
	"github.com/roach88/contest/internal/leaderboard"
)

// screen is the text front end of play. The command loop, the engine's
// renderer callback and the leaderboard refresher all write through it.
type screen struct {
	mu sync.Mutex
	w  io.Writer

	// active is set while the game view is up. Engine renders outside it
	// are dropped.
	active bool

	// shown is the last rendered panel; views with the same panel are not
	// reprinted.
	shown panel
	board string
}

type panel struct {
	mode  engine.Mode
	stage int
	step  int
}

func newScreen(w io.Writer) *screen {
	return &screen{w: w}
}

func (s *screen) Printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}

// Render implements engine.Renderer. It runs under the engine lock and only
// writes.
func (s *screen) Render(v engine.View) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := panel{mode: v.Mode, stage: int(v.Stage), step: v.Step}
	if !s.active || p == s.shown {
		return
	}
	s.shown = p
	writeView(s.w, v)
}

// SetActive turns engine rendering on or off.
func (s *screen) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
	s.shown = panel{}
}

// Show prints v even when its panel was already shown.
func (s *screen) Show(v engine.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = panel{mode: v.Mode, stage: int(v.Stage), step: v.Step}
	writeView(s.w, v)
}

// Board prints b when it differs from the last printed board, or always
// when force is set.
func (s *screen) Board(b leaderboard.Board, force bool) {
	text := b.Text()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !force && text == s.board {
		return
	}
	s.board = text
	fmt.Fprintln(s.w)
	io.WriteString(s.w, text)
	if b.Stale {
		fmt.Fprintln(s.w, "(winners could not be loaded)")
	}
}

// Grid prints the stage grid with the final stage on its own line.
func (s *screen) Grid(cells []engine.Cell) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sb strings.Builder
	var final *engine.Cell
	for i, c := range cells {
		if c.Final {
			final = &cells[i]
			continue
		}
		fmt.Fprintf(&sb, "  %2d %-15s", int(c.Stage), c.Status)
		if i%4 == 3 {
			sb.WriteString("\n")
		}
	}
	if !strings.HasSuffix(sb.String(), "\n") {
		sb.WriteString("\n")
	}
	if final != nil {
		fmt.Fprintf(&sb, "  [ stage %d, grand prize: %s ]\n", int(final.Stage), final.Status)
	}
	io.WriteString(s.w, sb.String())
}

func writeView(w io.Writer, v engine.View) {
	fmt.Fprintf(w, "\n-- %s --\n", v.Title)
	switch v.Mode {
	case engine.ModeGrandPrize:
		fmt.Fprintln(w, "Every stage is solved.")
		if v.Prize != "" {
			fmt.Fprintf(w, "Grand prize: %s\n", v.Prize)
		}
	case engine.ModeSolved:
		fmt.Fprintln(w, "Solved.")
	case engine.ModeDisabled:
		fmt.Fprintln(w, "This stage is currently disabled by the administrator.")
	case engine.ModeSecondPrompt:
		if v.SecondClue != "" {
			fmt.Fprintf(w, "Second riddle: %s\n", v.SecondClue)
		}
		fmt.Fprintln(w, "Enter the second answer: answer <text>")
	default:
		if v.Video != "" {
			fmt.Fprintf(w, "Video: %s\n", v.Video)
		}
		if v.Prize != "" {
			fmt.Fprintf(w, "Prize: %s\n", v.Prize)
		}
		fmt.Fprintln(w, "Enter your answer: answer <text>")
	}
	fmt.Fprintf(w, "%s (%d%%)\n", v.Summary.Text, v.Summary.Percent)
}
