package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/contest/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Contest *ContestSummary   `json:"contest,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

// ContestSummary describes a valid contest definition.
type ContestSummary struct {
	Total       int    `json:"total"`
	TwoStepFrom int    `json:"two_step_from"`
	TwoStepTo   int    `json:"two_step_to"`
	AdminEmail  string `json:"admin_email"`
	// FallbackAnswers counts the (stage, step) pairs with a local answer.
	FallbackAnswers int `json:"fallback_answers"`
}

// ValidationError is one problem in a contest definition.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [contest.cue | dir]",
		Short: "Validate a contest definition",
		Long: `Validate a CUE contest definition against the contest schema.

Checks the stage count, the two-step range, the administrator email and
every stage entry. Without an argument the --config file (or the built-in
contest) is validated.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Config
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	var (
		cfg *config.Contest
		err error
	)
	if path == "" {
		formatter.VerboseLog("Validating the built-in contest")
		cfg, err = config.Default()
	} else {
		formatter.VerboseLog("Validating %s", path)
		cfg, err = config.Load(path)
	}

	if err != nil {
		verr := toValidationError(err)
		if formatter.JSON() {
			_ = formatter.Error(ErrCodeConfig, verr.Message, ValidationResult{Valid: false, Errors: []ValidationError{verr}})
		} else {
			fmt.Fprintln(formatter.Writer, "✗ Validation failed")
			fmt.Fprintln(formatter.Writer)
			if verr.Line > 0 {
				fmt.Fprintf(formatter.Writer, "%s line %d\n", verr.File, verr.Line)
			}
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", verr.Field, verr.Message)
		}
		// Validation failures = exit code 1 (test/validation failure)
		return WrapExitError(ExitFailure, "validation failed", err)
	}

	summary := &ContestSummary{
		Total:       cfg.Total,
		TwoStepFrom: int(cfg.TwoStepFrom),
		TwoStepTo:   int(cfg.TwoStepTo),
		AdminEmail:  cfg.AdminEmail,
	}
	for _, steps := range cfg.FallbackAnswers() {
		summary.FallbackAnswers += len(steps)
	}

	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Contest: summary})
	}
	fmt.Fprintf(formatter.Writer, "✓ Contest valid: %d stages, two-step %d-%d, admin %s\n",
		summary.Total, summary.TwoStepFrom, summary.TwoStepTo, summary.AdminEmail)
	return nil
}

func toValidationError(err error) ValidationError {
	var cerr *config.ConfigError
	if errors.As(err, &cerr) {
		v := ValidationError{Field: cerr.Field, Message: cerr.Message}
		if cerr.Pos.IsValid() {
			v.File = cerr.Pos.Filename()
			v.Line = cerr.Pos.Line()
		}
		return v
	}
	return ValidationError{Field: "contest", Message: err.Error()}
}
