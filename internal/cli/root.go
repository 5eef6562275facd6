package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/contest/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Config is a contest.cue file or a CUE package directory. Empty means
	// the built-in contest.
	Config string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the contest CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "contest",
		Short: "Stage-gated puzzle contest",
		Long: `Run a stage-gated puzzle contest.

Players progress through numbered stages, each needing one or two correct
answers. The first solver of every stage is shown on the leaderboard and an
administrator can enable or disable stages while the contest runs.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "contest definition (CUE file or directory; default built in)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewPlayCommand(opts))
	cmd.AddCommand(NewLeaderboardCommand(opts))
	cmd.AddCommand(NewAdminCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// Execute runs the root command with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadContest returns the --config contest or the built-in one.
func loadContest(opts *RootOptions) (*config.Contest, error) {
	if opts.Config == "" {
		return config.Default()
	}
	return config.Load(opts.Config)
}

// newLogger builds the text slog handler commands log through, at level
// base. --verbose lowers the level to Debug.
func newLogger(opts *RootOptions, w io.Writer, base slog.Level) *slog.Logger {
	level := base
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}
