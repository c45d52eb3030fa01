package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/entitycore/internal/cli/ui"
	"github.com/conduit-lang/entitycore/internal/watch"
)

func newValidateCommand(flags *globalFlags) *cobra.Command {
	var all, watchMode bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the model document",
		Long: `Build the model document and run the model rules against it.

By default validation stops at the first rule that reports an error and
warnings go to the log. With --all every rule runs and each finding is
listed; warnings named in validation.warnings_as_errors count as errors.
With --watch the model is validated again whenever the model document or
the config file changes, until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd, flags)
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			if watchMode {
				return watchValidate(cmd, flags, e, all)
			}
			return runValidate(e, all)
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "run every rule and list all findings")
	cmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "validate again on every change")
	return cmd
}

func runValidate(e *env, all bool) error {
	if all {
		return runValidateAll(e)
	}
	m, err := e.loadModel()
	if err != nil {
		return err
	}
	ui.WriteSuccess(e.out, fmt.Sprintf("model '%s' is valid (%d entity types)", e.cfg.Model.Name, len(m.GetEntityTypes())), e.noColor)
	return nil
}

// watchValidate reports every validation result and only returns when the
// command context is cancelled or the watcher cannot start
func watchValidate(cmd *cobra.Command, flags *globalFlags, e *env, all bool) error {
	files := []string{e.cfg.Model.Path}
	if flags.configPath != "" {
		files = append(files, flags.configPath)
	}
	w, err := watch.New(files, watch.WithLogger(e.logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	report := func(e *env) {
		if err := runValidate(e, all); err != nil && !errors.Is(err, errReported) {
			ui.WriteProblem(e.out, ui.Problem{Message: err.Error()}, e.noColor)
		}
	}
	report(e)
	ui.WriteWarning(e.out, "watching for changes, press Ctrl+C to stop", e.noColor)

	return w.Run(ctx, func(changed []string) {
		fmt.Fprintf(e.out, "\n%s changed\n", strings.Join(changed, ", "))
		// reload so configuration edits take effect
		next, err := newEnv(cmd, flags)
		if err != nil {
			ui.WriteProblem(e.out, ui.Problem{Context: "configuration", Message: err.Error()}, e.noColor)
			return
		}
		report(next)
	})
}

func runValidateAll(e *env) error {
	m, err := e.buildModel()
	if err != nil {
		return err
	}

	v := e.validator()
	violations := v.Collect(m)
	if len(violations) == 0 {
		ui.WriteSuccess(e.out, fmt.Sprintf("model '%s' is valid (%d entity types)", e.cfg.Model.Name, len(m.GetEntityTypes())), e.noColor)
		return nil
	}

	errorCount := 0
	table := ui.NewTable(e.out, e.noColor, "SEVERITY", "RULE", "MESSAGE")
	for _, violation := range violations {
		severity := violation.Severity.String()
		if v.IsError(violation) {
			severity = "error"
			errorCount++
		}
		table.AddRow(severity, violation.Rule, violation.Message)
	}
	table.Render()
	fmt.Fprintln(e.out)

	if errorCount > 0 {
		ui.WriteProblem(e.out, ui.Problem{
			Context: "model validation",
			Message: fmt.Sprintf("%d error(s), %d warning(s)", errorCount, len(violations)-errorCount),
		}, e.noColor)
		return errReported
	}
	ui.WriteWarning(e.out, fmt.Sprintf("model '%s' is valid with %d warning(s)", e.cfg.Model.Name, len(violations)), e.noColor)
	return nil
}
