package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/contest/internal/leaderboard"
	"github.com/roach88/contest/internal/store"
)

// LeaderboardOptions holds flags for the leaderboard command.
type LeaderboardOptions struct {
	*RootOptions
	Database string
	Server   string
}

// NewLeaderboardCommand creates the leaderboard command.
func NewLeaderboardCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LeaderboardOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the first solver of every stage",
		Long: `Show the leaderboard: the first solver of every stage, with the final
stage as a separate grand prize card.

Reads the contest store with --db, or a running contest service with
--server.

Examples:
  contest leaderboard --db ./contest.db
  contest leaderboard --server http://localhost:8080 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLeaderboard(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite contest store")
	cmd.Flags().StringVar(&opts.Server, "server", "", "contest service base URL")
	cmd.MarkFlagsOneRequired("db", "server")
	cmd.MarkFlagsMutuallyExclusive("db", "server")

	return cmd
}

func runLeaderboard(opts *LeaderboardOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr(), slog.LevelWarn)

	cfg, err := loadContest(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load contest", err)
	}

	var source leaderboard.WinnerSource
	if opts.Server != "" {
		source = leaderboard.NewRemoteSource(opts.Server, nil)
	} else {
		st, err := store.Open(opts.Database)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
		}
		defer st.Close()
		source = st
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	board := leaderboard.NewBuilder(cfg, source, logger).Build(ctx)
	if board.Stale {
		formatter.VerboseLog("winners could not be read; showing an empty board")
	}

	if formatter.JSON() {
		return formatter.Success(board)
	}
	return board.WriteText(formatter.Writer)
}
