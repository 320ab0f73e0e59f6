package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Move legacy aggregate data into per-entity records",
		Long: `Move data written by the pre-namespaced client into per-entity records.

Entries without an id are skipped and entries that fail to save are
counted; neither stops the run. The legacy blob is removed afterwards, so
running migrate again does nothing.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, cmd)
		},
	}
}

func runMigrate(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	e, err := openEnv(cmd.Context(), opts, f)
	if err != nil {
		return err
	}
	defer e.close()

	report, err := e.store.MigrateLegacy(cmd.Context())
	if err != nil {
		return f.Fail("migrate legacy data", err)
	}

	if f.Format == "json" {
		return f.Success(report)
	}
	fmt.Fprintf(f.Writer, "✓ Migrated %d, skipped %d, failed %d\n", report.Migrated, report.Skipped, report.Failed)
	return nil
}
