package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/aether/internal/schema"
)

// Expectations for the validate command.
const (
	ExpectValid   = "valid"
	ExpectInvalid = "invalid"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Expect string // "valid" | "invalid"
}

// FileValidation is the outcome for one file.
type FileValidation struct {
	Path   string                   `json:"path"`
	Valid  bool                     `json:"valid"`
	Pass   bool                     `json:"pass"`
	Errors []schema.ValidationError `json:"errors,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Expect string           `json:"expect"`
	Files  []FileValidation `json:"files"`
	Passed int              `json:"passed"`
	Failed int              `json:"failed"`
	Total  int              `json:"total"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Check batch documents against the request contract",
		Long: `Validate JSON batch documents against the event batch request contract.

Each path is a file or a directory searched for *.json files. By default
every document must be valid; with --expect invalid every document must be
rejected, which is how negative fixtures are checked.

Exit codes:
  0 - Every document met the expectation
  1 - At least one document did not
  2 - Command error (missing paths, etc.)

Examples:
  aether validate ./fixtures/ok
  aether validate --expect invalid ./fixtures/bad`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Expect, "expect", ExpectValid, "expected outcome (valid|invalid)")

	return cmd
}

func runValidate(opts *ValidateOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	if opts.Expect != ExpectValid && opts.Expect != ExpectInvalid {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --expect %q: must be valid or invalid", opts.Expect))
	}

	files, err := LoadBatchFiles(paths)
	if err != nil {
		return outputLoadError(formatter, err)
	}

	gate, err := schema.New()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load contracts", err)
	}

	wantValid := opts.Expect == ExpectValid
	result := ValidationResult{
		Expect: opts.Expect,
		Files:  make([]FileValidation, 0, len(files)),
		Total:  len(files),
	}

	for _, f := range files {
		errs := gate.ValidateRequest(f.Data)
		fv := FileValidation{
			Path:   f.Path,
			Valid:  len(errs) == 0,
			Errors: errs,
		}
		fv.Pass = fv.Valid == wantValid
		if fv.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		formatter.VerboseLog("%s: valid=%t", f.Path, fv.Valid)
		result.Files = append(result.Files, fv)
	}

	if opts.Format == "json" {
		var failure *CLIError
		if result.Failed > 0 {
			failure = &CLIError{
				Code:    schema.ErrContractViolation,
				Message: fmt.Sprintf("%d file(s) did not validate as %s", result.Failed, opts.Expect),
			}
		}
		if err := formatter.Result(result.Failed == 0, result, failure); err != nil {
			return err
		}
	} else {
		outputValidateText(cmd, result)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d file(s) did not validate as %s", result.Failed, opts.Expect))
	}
	return nil
}

func outputValidateText(cmd *cobra.Command, result ValidationResult) {
	w := cmd.OutOrStdout()
	for _, f := range result.Files {
		if f.Pass {
			fmt.Fprintf(w, "✓ %s\n", f.Path)
			continue
		}
		if f.Valid {
			fmt.Fprintf(w, "✗ %s: expected invalid, but document is valid\n", f.Path)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", f.Path)
		for _, e := range f.Errors {
			fmt.Fprintf(w, "  %s\n", e.Error())
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}

// outputLoadError reports a file collection failure with exit code 2.
func outputLoadError(formatter *OutputFormatter, err error) error {
	code, message := ErrCodeGeneric, err.Error()
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		code, message = loadErr.Code, loadErr.Message
	}
	if outErr := formatter.Error(code, message, nil); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitCommandError, message, err)
}
