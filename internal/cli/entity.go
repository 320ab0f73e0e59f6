package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/initiative/internal/entity"
	"github.com/roach88/initiative/internal/value"
)

// EntityOptions holds flags for the entity commands.
type EntityOptions struct {
	*RootOptions
	Data            string // JSON object for save
	ExpectedVersion int64  // -1 means unconditional save
}

// NewEntityCommand creates the entity command group.
func NewEntityCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EntityOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Read and write local entities",
		Long: `Read and write entities in the local store.

Kinds are free-form (encounters, parties, characters, combatState); known
kinds are checked against their payload schema on save.`,
	}

	save := &cobra.Command{
		Use:   "save <kind> <id>",
		Short: "Create or update an entity",
		Long: `Create or update an entity.

Fields in --data are merged over the stored ones and the version goes up by
one. Saving onto a deleted entity starts over at version 1.

Example:
  initiative entity save encounters enc-1 --data '{"userId":"u1","name":"Goblin Ambush"}'
  initiative entity save encounters enc-1 --data '{"userId":"u1","round":3}' --expect-version 1`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntitySave(opts, args[0], args[1], cmd)
		},
	}
	save.Flags().StringVar(&opts.Data, "data", "", "entity fields as a JSON object (required)")
	save.Flags().Int64Var(&opts.ExpectedVersion, "expect-version", -1, "only save if the live version matches (0 = must not exist)")
	_ = save.MarkFlagRequired("data")

	get := &cobra.Command{
		Use:           "get <kind> <id>",
		Short:         "Show one entity, deleted or not",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntityGet(opts, args[0], args[1], cmd)
		},
	}

	list := &cobra.Command{
		Use:           "list <kind>",
		Short:         "List live entities of a kind",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntityList(opts, args[0], cmd)
		},
	}

	del := &cobra.Command{
		Use:           "delete <kind> <id>",
		Short:         "Mark an entity deleted",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntityDelete(opts, args[0], args[1], cmd)
		},
	}

	quarantined := &cobra.Command{
		Use:           "quarantined",
		Short:         "List unreadable records that were set aside",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntityQuarantined(opts, cmd)
		},
	}

	cmd.AddCommand(save, get, list, del, quarantined)
	return cmd
}

// parseObject decodes a JSON object flag value.
func parseObject(flag, raw string) (value.Object, error) {
	v, err := value.Unmarshal([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("--%s: invalid JSON: %w", flag, err)
	}
	obj, ok := v.(value.Object)
	if !ok {
		return nil, fmt.Errorf("--%s: want a JSON object", flag)
	}
	return obj, nil
}

func runEntitySave(opts *EntityOptions, kind, id string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	data, err := parseObject("data", opts.Data)
	if err != nil {
		_ = f.Error(ErrCodeUsage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --data", err)
	}

	e, err := openEnv(cmd.Context(), opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer e.close()

	var rec entity.Record
	if opts.ExpectedVersion >= 0 {
		rec, err = e.store.SaveExpected(cmd.Context(), kind, id, opts.ExpectedVersion, data)
	} else {
		rec, err = e.store.Save(cmd.Context(), kind, id, data)
	}
	if err != nil {
		return f.Fail(fmt.Sprintf("save %s/%s", kind, id), err)
	}

	if f.Format == "json" {
		return f.Success(rec)
	}
	fmt.Fprintf(f.Writer, "✓ Saved %s/%s (version %d)\n", kind, rec.ID, rec.Version)
	return nil
}

func runEntityGet(opts *EntityOptions, kind, id string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	e, err := openEnv(cmd.Context(), opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer e.close()

	rec, ok, err := e.store.Load(cmd.Context(), kind, id)
	if err != nil {
		return f.Fail(fmt.Sprintf("load %s/%s", kind, id), err)
	}
	if !ok {
		_ = f.Error(string(entity.ErrCodeNotFound), fmt.Sprintf("no record %s/%s", kind, id), nil)
		return NewExitError(ExitFailure, fmt.Sprintf("no record %s/%s", kind, id))
	}

	if f.Format == "json" {
		return f.Success(rec)
	}
	b, err := rec.MarshalJSON()
	if err != nil {
		return WrapExitError(ExitFailure, "encode record", err)
	}
	fmt.Fprintln(f.Writer, string(b))
	return nil
}

func runEntityList(opts *EntityOptions, kind string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	e, err := openEnv(cmd.Context(), opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer e.close()

	recs, err := e.store.LoadAll(cmd.Context(), kind)
	if err != nil {
		return f.Fail(fmt.Sprintf("list %s", kind), err)
	}

	if f.Format == "json" {
		return f.Success(recs)
	}
	for _, rec := range recs {
		b, err := rec.MarshalJSON()
		if err != nil {
			return WrapExitError(ExitFailure, "encode record", err)
		}
		fmt.Fprintln(f.Writer, string(b))
	}
	f.VerboseLog("%d %s", len(recs), kind)
	return nil
}

func runEntityDelete(opts *EntityOptions, kind, id string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	e, err := openEnv(cmd.Context(), opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer e.close()

	rec, err := e.store.Delete(cmd.Context(), kind, id)
	if err != nil {
		return f.Fail(fmt.Sprintf("delete %s/%s", kind, id), err)
	}

	if f.Format == "json" {
		return f.Success(rec)
	}
	fmt.Fprintf(f.Writer, "✓ Deleted %s/%s (version %d)\n", kind, rec.ID, rec.Version)
	return nil
}

func runEntityQuarantined(opts *EntityOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	e, err := openEnv(cmd.Context(), opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer e.close()

	recs, err := e.store.Quarantined(cmd.Context())
	if err != nil {
		return f.Fail("list quarantine", err)
	}

	if f.Format == "json" {
		return f.Success(recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(f.Writer, "Nothing quarantined.")
		return nil
	}
	for _, r := range recs {
		fmt.Fprintf(f.Writer, "%s\t%s/%s\t%d bytes\n", r.Key, r.Kind, r.ID, len(r.Raw))
	}
	return nil
}
