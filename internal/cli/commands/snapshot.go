package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/entitycore/internal/cli/ui"
	"github.com/conduit-lang/entitycore/internal/orm/snapshot"
)

func newSnapshotCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage precomputed model snapshots",
		Long: `Manage the precomputed models that applications load at startup.

Snapshots are kept in the store selected by snapshot.store: a directory of
YAML files, or Redis. Names default to model.name.`,
	}

	cmd.AddCommand(newSnapshotSaveCommand(flags))
	cmd.AddCommand(newSnapshotCheckCommand(flags))
	cmd.AddCommand(newSnapshotListCommand(flags))
	cmd.AddCommand(newSnapshotDeleteCommand(flags))
	return cmd
}

func newSnapshotSaveCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "save [name]",
		Short: "Validate the model document and store it as a snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd, flags)
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			m, err := e.loadModel()
			if err != nil {
				return err
			}
			s, err := snapshot.Take(m, e.snapshotName(args))
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, closeStore, err := e.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.Save(ctx, s); err != nil {
				return fmt.Errorf("saving snapshot '%s': %w", s.Name, err)
			}
			ui.WriteSuccess(e.out, fmt.Sprintf("saved snapshot '%s' (product version %s, fingerprint %s)", s.Name, s.ProductVersion, s.Fingerprint), e.noColor)
			return nil
		},
	}
}

func newSnapshotCheckCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check [name]",
		Short: "Load a snapshot the way an application would",
		Long: `Load a snapshot, check its product version against this build, rebuild
and finalize its model. A patch version difference is logged as a warning;
a major or minor difference fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd, flags)
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			ctx := cmd.Context()
			store, closeStore, err := e.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			name := e.snapshotName(args)
			loader := snapshot.NewLoader(store, name,
				snapshot.WithLogger(e.logger),
				snapshot.WithValidator(e.validator().Validate))
			m, err := loader.Model(ctx)
			switch {
			case errors.Is(err, snapshot.ErrNotFound):
				ui.WriteProblem(e.out, ui.Problem{
					Context: "snapshot not found",
					Message: name,
					Hints:   []string{"entitycore snapshot save " + name},
				}, e.noColor)
				return errReported
			case errors.Is(err, snapshot.ErrIncompatibleVersion):
				ui.WriteProblem(e.out, ui.Problem{
					Context: "incompatible snapshot",
					Message: name,
					Detail:  err.Error(),
					Hints:   []string{"entitycore snapshot save " + name},
				}, e.noColor)
				return errReported
			case err != nil:
				return e.reportViolation(err)
			}
			ui.WriteSuccess(e.out, fmt.Sprintf("snapshot '%s' loads (product version %s, %d entity types)", name, m.ProductVersion(), len(m.GetEntityTypes())), e.noColor)
			return nil
		},
	}
}

func newSnapshotListCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd, flags)
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			ctx := cmd.Context()
			store, closeStore, err := e.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			names, err := store.List(ctx)
			if err != nil {
				return fmt.Errorf("listing snapshots: %w", err)
			}
			if len(names) == 0 {
				ui.WriteWarning(e.out, "no snapshots stored", e.noColor)
				return nil
			}

			table := ui.NewTable(e.out, e.noColor, "NAME", "PRODUCT VERSION", "ENTITY TYPES", "CREATED", "FINGERPRINT")
			for _, name := range names {
				s, err := store.Load(ctx, name)
				if err != nil {
					table.AddRow(name, "-", "-", "-", err.Error())
					continue
				}
				table.AddRow(
					s.Name,
					s.ProductVersion,
					fmt.Sprint(len(s.Model.EntityTypes)),
					s.CreatedAt.Local().Format(time.DateTime),
					s.Fingerprint,
				)
			}
			table.Render()
			return nil
		},
	}
}

func newSnapshotDeleteCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd, flags)
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			ctx := cmd.Context()
			store, closeStore, err := e.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.Delete(ctx, args[0]); err != nil {
				return fmt.Errorf("deleting snapshot '%s': %w", args[0], err)
			}
			ui.WriteSuccess(e.out, fmt.Sprintf("deleted snapshot '%s'", args[0]), e.noColor)
			return nil
		},
	}
}
