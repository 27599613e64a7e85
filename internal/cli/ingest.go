package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/aether/internal/ingest"
	"github.com/roach88/aether/internal/ir"
	"github.com/roach88/aether/internal/schema"
	"github.com/roach88/aether/internal/snapshot"
	"github.com/roach88/aether/internal/store"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Snapshot string // export path, empty to skip
}

// BatchReport is the outcome of one batch file.
type BatchReport struct {
	Path     string            `json:"path"`
	Error    *BatchErrorReport `json:"error,omitempty"`
	Response *ir.BatchResponse `json:"response,omitempty"`
}

// BatchErrorReport describes a batch rejected as a whole.
type BatchErrorReport struct {
	Code    string                   `json:"code"`
	Message string                   `json:"message"`
	Details []schema.ValidationError `json:"details,omitempty"`
}

// IngestResult holds the ingest run result.
type IngestResult struct {
	Batches  []BatchReport  `json:"batches"`
	Stats    store.Stats    `json:"stats"`
	Snapshot *snapshot.Meta `json:"snapshot,omitempty"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <batch.json>...",
		Short: "Apply batch files to a fresh store",
		Long: `Apply batch documents in order to an empty in-memory store and print
each batch response.

Paths may be files or directories; directories contribute their *.json
files in lexical order. With --snapshot the final state is exported to a
SQLite file that "aether inspect" can read.

Exit codes:
  0 - Every batch was processed
  1 - At least one batch was rejected as a whole
  2 - Command error (missing files, unwritable snapshot, etc.)

Examples:
  aether ingest ./batches
  aether ingest day1.json day2.json --snapshot state.db`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", "", "write the final state to this SQLite file")

	return cmd
}

func runIngest(opts *IngestOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	files, err := LoadBatchFiles(paths)
	if err != nil {
		return outputLoadError(formatter, err)
	}

	gate, err := schema.New()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load contracts", err)
	}

	st := store.New()
	ing := ingest.New(st, gate)

	result := IngestResult{Batches: make([]BatchReport, 0, len(files))}
	failed := 0
	for _, f := range files {
		report, err := applyBatch(ing, f)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("apply %s", f.Path), err)
		}
		if report.Error != nil {
			failed++
		}
		formatter.VerboseLog("%s: applied", f.Path)
		result.Batches = append(result.Batches, report)
	}
	result.Stats = st.Stats()

	if opts.Snapshot != "" {
		meta, err := snapshot.WriteFile(commandContext(cmd), opts.Snapshot, st.Snapshot(), time.Now().UTC())
		if err != nil {
			if outErr := formatter.Error(ErrCodeWriteFailed, err.Error(), nil); outErr != nil {
				return outErr
			}
			return WrapExitError(ExitCommandError, "failed to write snapshot", err)
		}
		result.Snapshot = &meta
	}

	if opts.Format == "json" {
		var failure *CLIError
		if failed > 0 {
			failure = &CLIError{
				Code:    ErrCodeInvalidBatch,
				Message: fmt.Sprintf("%d batch(es) rejected", failed),
			}
		}
		if err := formatter.Result(failed == 0, result, failure); err != nil {
			return err
		}
	} else {
		outputIngestText(cmd.OutOrStdout(), result)
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d batch(es) rejected", failed))
	}
	return nil
}

// applyBatch runs one file through the same decode and apply path the
// server uses. Only a batch-level rejection lands in the report; any
// other error aborts the run.
func applyBatch(ing *ingest.Ingestor, f BatchFile) (BatchReport, error) {
	report := BatchReport{Path: f.Path}

	var be *ingest.BatchError
	req, err := ing.Decode(f.Data)
	if err == nil {
		report.Response, err = ing.Process(req)
	}
	switch {
	case err == nil:
		return report, nil
	case errors.As(err, &be):
		report.Error = &BatchErrorReport{Code: be.Code, Message: be.Message, Details: be.Details}
		return report, nil
	default:
		return report, err
	}
}

func outputIngestText(w io.Writer, result IngestResult) {
	for _, b := range result.Batches {
		if b.Error != nil {
			fmt.Fprintf(w, "✗ %s: %s %s\n", b.Path, b.Error.Code, b.Error.Message)
			for _, d := range b.Error.Details {
				fmt.Fprintf(w, "  %s\n", d.Error())
			}
			continue
		}
		resp := b.Response
		fmt.Fprintf(w, "✓ %s: %d accepted, %d rejected, %d duplicate\n",
			b.Path, resp.Accepted(), resp.Rejected, resp.Duplicate)
		for _, r := range resp.Results {
			if r.Status != ir.StatusRejected {
				continue
			}
			fmt.Fprintf(w, "  [%d] %s %s: %s\n", r.EventIndex, r.EventKey, r.Code, r.Message)
		}
	}

	s := result.Stats
	fmt.Fprintf(w, "\n%d bindings, %d placements, %d transactions (%d open), %d keys seen\n",
		s.Bindings, s.Placements, s.Transactions, s.OpenTransactions, s.SeenKeys)
	if result.Snapshot != nil {
		fmt.Fprintf(w, "snapshot digest %s\n", result.Snapshot.Digest)
	}
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
