package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/aether/internal/query"
	"github.com/roach88/aether/internal/snapshot"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	DB string // snapshot database path
}

// NewInspectCommand creates the inspect command and its lookups.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Look up state in a snapshot export",
		Long: `Read a SQLite snapshot written by "aether serve" or "aether ingest".

Lookups mirror the HTTP read API.

Exit codes:
  0 - Entry found
  1 - No such entry, or the database holds no export
  2 - Command error (missing database, etc.)

Examples:
  aether inspect --db state.db meta
  aether inspect --db state.db binding T-100
  aether inspect --db state.db placement TOOL drill-7
  aether inspect --db state.db tx tx-42 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "snapshot database path (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(newInspectMetaCommand(opts))
	cmd.AddCommand(newInspectBindingCommand(opts))
	cmd.AddCommand(newInspectPlacementCommand(opts))
	cmd.AddCommand(newInspectTxCommand(opts))

	return cmd
}

func newInspectMetaCommand(opts *InspectOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "meta",
		Short:         "Show export time, contract version and digest",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, cmd, func(ctx context.Context, db *snapshot.DB) (any, error) {
				return db.Meta(ctx)
			})
		},
	}
}

func newInspectBindingCommand(opts *InspectOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "binding <tagUid>",
		Short:         "Show what a tag is bound to",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, cmd, func(ctx context.Context, db *snapshot.DB) (any, error) {
				return db.Binding(ctx, args[0])
			})
		},
	}
}

func newInspectPlacementCommand(opts *InspectOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "placement <objectType> <objectId>",
		Short:         "Show where an object is",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, cmd, func(ctx context.Context, db *snapshot.DB) (any, error) {
				return db.Placement(ctx, args[0], args[1])
			})
		},
	}
}

func newInspectTxCommand(opts *InspectOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "tx <txId>",
		Short:         "Show a checkout transaction",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, cmd, func(ctx context.Context, db *snapshot.DB) (any, error) {
				return db.Transaction(ctx, args[0])
			})
		},
	}
}

// runInspect opens the database, performs one lookup and prints it.
func runInspect(opts *InspectOptions, cmd *cobra.Command, lookup func(context.Context, *snapshot.DB) (any, error)) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// Open creates missing files, so check first.
	if _, err := os.Stat(opts.DB); err != nil {
		msg := fmt.Sprintf("database not found: %s", opts.DB)
		if outErr := formatter.Error(ErrCodeNotFound, msg, nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, msg, err)
	}

	db, err := snapshot.Open(opts.DB)
	if err != nil {
		if outErr := formatter.Error(ErrCodeReadFailed, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer db.Close()

	formatter.VerboseLog("opened %s", opts.DB)

	v, err := lookup(commandContext(cmd), db)
	switch {
	case err == nil:
	case errors.Is(err, query.ErrNotFound), errors.Is(err, snapshot.ErrNoExport):
		if outErr := formatter.Error(ErrCodeNotFound, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "lookup failed", err)
	default:
		if outErr := formatter.Error(ErrCodeReadFailed, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "lookup failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(v)
	}
	writeView(cmd.OutOrStdout(), v)
	return nil
}

// writeView prints a view as aligned key/value lines.
func writeView(w io.Writer, v any) {
	switch v := v.(type) {
	case snapshot.Meta:
		fmt.Fprintf(w, "exportedAt:      %s\n", formatInspectTime(v.ExportedAt))
		fmt.Fprintf(w, "contractVersion: %s\n", v.ContractVersion)
		fmt.Fprintf(w, "digest:          %s\n", v.Digest)
	case query.BindingView:
		fmt.Fprintf(w, "tagUid:     %s\n", v.TagUID)
		fmt.Fprintf(w, "target:     %s\n", v.Target)
		if v.ZoneID != "" {
			fmt.Fprintf(w, "zoneId:     %s\n", v.ZoneID)
		} else {
			fmt.Fprintf(w, "objectType: %s\n", v.ObjectType)
			fmt.Fprintf(w, "objectId:   %s\n", v.ObjectID)
		}
	case query.PlacementView:
		fmt.Fprintf(w, "objectType: %s\n", v.ObjectType)
		fmt.Fprintf(w, "objectId:   %s\n", v.ObjectID)
		if v.ZoneID != "" {
			fmt.Fprintf(w, "zoneId:     %s\n", v.ZoneID)
		} else {
			fmt.Fprintf(w, "ctbPath:    %s\n", v.CtbPath)
		}
		fmt.Fprintf(w, "updatedAt:  %s\n", formatInspectTime(v.UpdatedAt))
	case query.TransactionView:
		fmt.Fprintf(w, "txId:             %s\n", v.TxID)
		fmt.Fprintf(w, "objectType:       %s\n", v.ObjectType)
		fmt.Fprintf(w, "objectId:         %s\n", v.ObjectID)
		fmt.Fprintf(w, "status:           %s\n", v.Status)
		fmt.Fprintf(w, "checkoutAt:       %s\n", formatInspectTime(v.CheckoutAt))
		if v.ExpectedReturnAt != nil {
			fmt.Fprintf(w, "expectedReturnAt: %s\n", formatInspectTime(*v.ExpectedReturnAt))
		}
		if v.ReturnedAt != nil {
			fmt.Fprintf(w, "returnedAt:       %s\n", formatInspectTime(*v.ReturnedAt))
		}
	default:
		fmt.Fprintln(w, v)
	}
}

func formatInspectTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
