package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/contest/internal/admin"
	"github.com/roach88/contest/internal/config"
	"github.com/roach88/contest/internal/gate"
	"github.com/roach88/contest/internal/store"
)

// AdminOptions holds flags for the admin command.
type AdminOptions struct {
	*RootOptions
	Database string

	// As is the acting administrator. Empty means the configured one.
	As string
}

// NewAdminCommand creates the admin command.
func NewAdminCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AdminOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrator stage control",
		Long: `Inspect and change stage availability in the contest store.

With no subcommand arguments beyond "overview", lists every stage with its
enabled flag, notes and solve count.

Examples:
  contest admin overview --db ./contest.db
  contest admin disable 7 --db ./contest.db
  contest admin notes 7 "back after lunch" --db ./contest.db
  contest admin bulk disable 3 4 5 --db ./contest.db
  contest admin bulk enable_all --db ./contest.db --format json`,
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite contest store (required)")
	cmd.PersistentFlags().StringVar(&opts.As, "as", "", "acting administrator email (default the configured administrator)")
	_ = cmd.MarkPersistentFlagRequired("db")

	for _, sub := range []struct {
		use   string
		short string
		args  cobra.PositionalArgs
	}{
		{"overview", "List every stage with its control row and solve count", cobra.NoArgs},
		{"enable <stage>", "Enable one stage", cobra.ExactArgs(1)},
		{"disable <stage>", "Disable one stage", cobra.ExactArgs(1)},
		{"notes <stage> <text>", "Replace a stage's notes", cobra.MinimumNArgs(2)},
		{"bulk <action> [stages...]", "Apply enable_all, disable_all, enable or disable", cobra.MinimumNArgs(1)},
	} {
		name := strings.Fields(sub.use)[0]
		cmd.AddCommand(&cobra.Command{
			Use:           sub.use,
			Short:         sub.short,
			Args:          sub.args,
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runAdmin(opts, cmd, append([]string{name}, args...))
			},
		})
	}

	return cmd
}

func runAdmin(opts *AdminOptions, cmd *cobra.Command, args []string) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadContest(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load contest", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	by := opts.As
	if by == "" {
		by = cfg.AdminEmail
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr(), slog.LevelWarn)
	console := admin.New(cfg, st, gate.New(st, gate.WithLogger(logger)), admin.WithLogger(logger))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter.VerboseLog("acting as %s", by)
	res, err := adminAction(ctx, console, by, args)
	if err != nil {
		code, exit := ErrCodeStore, ExitCommandError
		switch {
		case errors.Is(err, admin.ErrForbidden):
			code, exit = ErrCodeForbidden, ExitFailure
		case errors.Is(err, admin.ErrInvalid), errors.As(err, new(usageError)):
			code, exit = ErrCodeInvalid, ExitFailure
		}
		return formatter.Fail(exit, code, "admin "+args[0]+" failed", err)
	}

	if formatter.JSON() {
		return formatter.Success(res.data)
	}
	_, err = io.WriteString(formatter.Writer, res.text)
	return err
}

type adminResult struct {
	data any
	text string
}

// adminAction runs one admin command line (overview, enable, disable, notes,
// bulk) as by.
func adminAction(ctx context.Context, console *admin.Console, by string, args []string) (adminResult, error) {
	if len(args) == 0 || args[0] == "overview" {
		if err := console.Authorize(by); err != nil {
			return adminResult{}, err
		}
		ov, err := console.Overview(ctx)
		if err != nil {
			return adminResult{}, err
		}
		var sb strings.Builder
		writeOverview(&sb, ov)
		return adminResult{data: ov, text: sb.String()}, nil
	}

	switch verb, rest := args[0], args[1:]; verb {
	case "enable", "disable":
		if len(rest) != 1 {
			return adminResult{}, errUsage(verb + " <stage>")
		}
		stage, err := strconv.Atoi(rest[0])
		if err != nil {
			return adminResult{}, errUsage(verb + " <stage>")
		}
		enabled := verb == "enable"
		sc, err := console.Toggle(ctx, admin.ToggleRequest{Stage: stage, Enabled: &enabled, AdminUser: by})
		if err != nil {
			return adminResult{}, err
		}
		return adminResult{data: sc, text: fmt.Sprintf("Stage %d %sd: %s\n", stage, verb, sc.Notes)}, nil

	case "notes":
		if len(rest) < 2 {
			return adminResult{}, errUsage("notes <stage> <text>")
		}
		stage, err := strconv.Atoi(rest[0])
		if err != nil {
			return adminResult{}, errUsage("notes <stage> <text>")
		}
		sc, err := console.UpdateNotes(ctx, admin.NotesRequest{Stage: stage, Notes: strings.Join(rest[1:], " "), AdminUser: by})
		if err != nil {
			return adminResult{}, err
		}
		return adminResult{data: sc, text: fmt.Sprintf("Stage %d notes: %s\n", stage, sc.Notes)}, nil

	case "bulk":
		if len(rest) == 0 {
			return adminResult{}, errUsage("bulk <action> [stages...]")
		}
		stages := make([]int, 0, len(rest)-1)
		for _, a := range rest[1:] {
			n, err := strconv.Atoi(a)
			if err != nil {
				return adminResult{}, errUsage("bulk <action> [stages...]")
			}
			stages = append(stages, n)
		}
		br, err := console.Bulk(ctx, admin.BulkRequest{Action: rest[0], Stages: stages, AdminUser: by})
		if err != nil {
			return adminResult{}, err
		}
		verb := "disabled"
		if br.Enabled {
			verb = "enabled"
		}
		return adminResult{data: br, text: fmt.Sprintf("%s: %d stage(s) %s %v\n", br.Action, len(br.Stages), verb, stageList(br.Stages))}, nil
	}
	return adminResult{}, errUsage("admin [overview|enable|disable|notes|bulk]")
}

func writeOverview(w io.Writer, ov admin.Overview) {
	fmt.Fprintf(w, "%-6s %-9s %-7s %-24s %s\n", "STAGE", "STATUS", "SOLVES", "UPDATED BY", "NOTES")
	for _, row := range ov.Stages {
		status := "enabled"
		if !row.Enabled {
			status = "disabled"
		}
		fmt.Fprintf(w, "%-6d %-9s %-7d %-24s %s\n", int(row.Stage), status, row.Solves, row.UpdatedBy, row.Notes)
	}

	total := 0
	for _, pair := range admin.SortedCounts(ov.SolveCounts) {
		total += pair[1]
	}
	fmt.Fprintf(w, "\n%d solve(s) recorded\n", total)
}

func stageList(ids []config.StageID) []int {
	out := make([]int, len(ids))
	for i, s := range ids {
		out[i] = int(s)
	}
	return out
}
