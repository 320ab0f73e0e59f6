package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/initiative/internal/config"
	"github.com/roach88/initiative/internal/queue"
)

// StatusResult is the local sync state shown by the status command.
type StatusResult struct {
	Driver      string           `json:"driver"`
	Path        string           `json:"path,omitempty"`
	Pending     int              `json:"pendingCount"`
	Head        *queue.Operation `json:"head,omitempty"`
	Quarantined int              `json:"quarantined"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show pending operations and storage health",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	e, err := openEnv(cmd.Context(), opts, f)
	if err != nil {
		return err
	}
	defer e.close()

	quarantined, err := e.store.Quarantined(cmd.Context())
	if err != nil {
		return f.Fail("list quarantine", err)
	}

	st := StatusResult{
		Driver:      e.cfg.Storage.Driver,
		Pending:     e.queue.Len(),
		Quarantined: len(quarantined),
	}
	if st.Driver != config.DriverMemory {
		st.Path = e.cfg.Storage.Path
	}
	if pending := e.queue.Pending(); len(pending) > 0 {
		st.Head = &pending[0]
	}

	if f.Format == "json" {
		return f.Success(st)
	}
	fmt.Fprintf(f.Writer, "Storage:     %s %s\n", st.Driver, st.Path)
	fmt.Fprintf(f.Writer, "Pending:     %d\n", st.Pending)
	if st.Head != nil {
		fmt.Fprintf(f.Writer, "Head:        %s\n", formatOperation(*st.Head))
	}
	fmt.Fprintf(f.Writer, "Quarantined: %d\n", st.Quarantined)
	return nil
}
