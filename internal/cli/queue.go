package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/initiative/internal/clock"
	"github.com/roach88/initiative/internal/queue"
	"github.com/roach88/initiative/internal/value"
)

// QueueOptions holds flags for the queue commands.
type QueueOptions struct {
	*RootOptions
	Payload string // JSON payload for enqueue
	Remote  string // overrides remote.base_url for drain
}

// DrainResult is the outcome of one drain pass.
type DrainResult struct {
	Processed int `json:"processed"`
	Pending   int `json:"pending"`
}

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and drive the pending operation queue",
	}

	enqueue := &cobra.Command{
		Use:   "enqueue <create|replace|delete> <resource>",
		Short: "Queue a remote mutation",
		Long: `Queue a remote mutation for delivery.

Example:
  initiative queue enqueue create encounters --payload '{"id":"enc-1","name":"Goblin Ambush"}'
  initiative queue enqueue delete encounters/enc-1`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueEnqueue(opts, args[0], args[1], cmd)
		},
	}
	enqueue.Flags().StringVar(&opts.Payload, "payload", "", "operation payload as JSON")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List pending operations in delivery order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueList(opts, cmd)
		},
	}

	show := &cobra.Command{
		Use:           "show <id>",
		Short:         "Show one pending operation",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueShow(opts, args[0], cmd)
		},
	}

	clearCmd := &cobra.Command{
		Use:           "clear",
		Short:         "Drop every pending operation",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueClear(opts, cmd)
		},
	}

	drain := &cobra.Command{
		Use:   "drain",
		Short: "Run one delivery pass against the remote service",
		Long: `Deliver eligible operations in order until the queue is empty, the head
is backing off, or a delivery fails.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueDrain(opts, cmd)
		},
	}
	drain.Flags().StringVar(&opts.Remote, "remote", "", "remote base URL (overrides remote.base_url)")

	cmd.AddCommand(enqueue, list, show, clearCmd, drain)
	return cmd
}

func runQueueEnqueue(opts *QueueOptions, verbArg, resource string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	verb, err := queue.ParseVerb(verbArg)
	if err != nil {
		_ = f.Error(ErrCodeUsage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid verb", err)
	}

	var payload value.Value = value.Null{}
	if opts.Payload != "" {
		payload, err = value.Unmarshal([]byte(opts.Payload))
		if err != nil {
			_ = f.Error(ErrCodeUsage, fmt.Sprintf("--payload: invalid JSON: %v", err), nil)
			return WrapExitError(ExitCommandError, "invalid --payload", err)
		}
	}

	e, err := openEnv(cmd.Context(), opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer e.close()

	op, err := e.queue.Enqueue(cmd.Context(), verb, resource, payload)
	if err != nil {
		return f.Fail("enqueue", err)
	}

	if f.Format == "json" {
		return f.Success(op)
	}
	fmt.Fprintf(f.Writer, "✓ Queued %s %s %s (%d pending)\n", op.ID, op.Verb, op.Resource, e.queue.Len())
	return nil
}

func runQueueList(opts *QueueOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	e, err := openEnv(cmd.Context(), opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer e.close()

	ops := e.queue.Pending()
	if f.Format == "json" {
		return f.Success(ops)
	}
	if len(ops) == 0 {
		fmt.Fprintln(f.Writer, "Queue is empty.")
		return nil
	}
	for _, op := range ops {
		fmt.Fprintln(f.Writer, formatOperation(op))
	}
	return nil
}

// formatOperation renders one operation as a text line.
func formatOperation(op queue.Operation) string {
	line := fmt.Sprintf("%s\t%s\t%s\tretries=%d", op.ID, op.Verb, op.Resource, op.Retries)
	if op.Retries > 0 {
		line += "\tnext=" + clock.Time(op.NextRetryAt).UTC().Format(time.RFC3339)
	}
	return line
}

func runQueueShow(opts *QueueOptions, id string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	e, err := openEnv(cmd.Context(), opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer e.close()

	op, ok := e.queue.Get(id)
	if !ok {
		_ = f.Error(string(queue.ErrCodeNotFound), fmt.Sprintf("no queued operation %s", id), nil)
		return NewExitError(ExitFailure, fmt.Sprintf("no queued operation %s", id))
	}

	if f.Format == "json" {
		return f.Success(op)
	}
	b, err := op.MarshalJSON()
	if err != nil {
		return WrapExitError(ExitFailure, "encode operation", err)
	}
	fmt.Fprintln(f.Writer, string(b))
	return nil
}

func runQueueClear(opts *QueueOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	e, err := openEnv(cmd.Context(), opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer e.close()

	dropped := e.queue.Len()
	if err := e.queue.Clear(cmd.Context()); err != nil {
		return f.Fail("clear queue", err)
	}

	if f.Format == "json" {
		return f.Success(map[string]int{"dropped": dropped})
	}
	fmt.Fprintf(f.Writer, "✓ Dropped %d operation(s)\n", dropped)
	return nil
}

func runQueueDrain(opts *QueueOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	e, err := openEnv(cmd.Context(), opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer e.close()

	remote := e.cfg.Remote
	if opts.Remote != "" {
		remote.BaseURL = opts.Remote
	}
	t, err := newTransport(remote)
	if err != nil {
		_ = f.Error(ErrCodeRemote, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid remote", err)
	}

	processed, err := e.queue.Process(cmd.Context(), t)
	result := DrainResult{Processed: processed, Pending: e.queue.Len()}
	if err != nil {
		return f.Fail("drain", err)
	}

	if f.Format == "json" {
		return f.Success(result)
	}
	fmt.Fprintf(f.Writer, "✓ Delivered %d operation(s), %d pending\n", result.Processed, result.Pending)
	if pending := e.queue.Pending(); len(pending) > 0 && pending[0].Retries > 0 {
		fmt.Fprintf(f.Writer, "  Head backing off: %s\n", formatOperation(pending[0]))
	}
	return nil
}
