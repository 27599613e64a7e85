package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/aether/internal/ingest"
	"github.com/roach88/aether/internal/ir"
	"github.com/roach88/aether/internal/schema"
	"github.com/roach88/aether/internal/snapshot"
	"github.com/roach88/aether/internal/store"
	"github.com/roach88/aether/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios through the real gate, ingestor and projector with a
// deterministic clock.
type Harness struct {
	ingestor *ingest.Ingestor
	logger   *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh store and a fresh in-memory snapshot
// database for isolation.
//
// Execution flow:
// 1. Create fresh store, gate and ingestor on a deterministic clock
// 2. Submit each batch in order, checking its expect clause
// 3. Verify store invariants
// 4. Export the store and evaluate assertions against the export
func Run(scenario *Scenario) (*Result, error) {
	gate, err := schema.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load contracts: %w", err)
	}
	return RunWithGate(scenario, gate)
}

// RunWithGate is Run with a caller-supplied gate, so a suite can compile
// the contracts once.
func RunWithGate(scenario *Scenario, gate *schema.Gate) (*Result, error) {
	start, step, err := scenario.Clock.parse(testutil.Epoch)
	if err != nil {
		return nil, fmt.Errorf("invalid clock: %w", err)
	}

	st := store.New()
	clock := testutil.NewSteppingClock(start, step)
	h := &Harness{
		ingestor: ingest.New(st, gate, ingest.WithNow(clock.Now)),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	result := NewResult()
	for i, batch := range scenario.Batches {
		if err := h.executeBatch(i, batch, result); err != nil {
			return nil, fmt.Errorf("failed to execute batch %d: %w", i, err)
		}
	}

	if err := st.Verify(); err != nil {
		result.AddError(fmt.Sprintf("store invariant: %v", err))
	}

	snap := st.Snapshot()
	result.Stats = st.Stats()

	ctx := context.Background()
	db, err := snapshot.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot database: %w", err)
	}
	defer db.Close()

	meta, err := db.Export(ctx, snap, start)
	if err != nil {
		return nil, fmt.Errorf("failed to export final state: %w", err)
	}
	result.Digest = meta.Digest

	actx := &AssertionContext{
		DB:  db,
		Ctx: ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// executeBatch submits one batch and records its outcome.
// Expectation mismatches are recorded on result; only harness failures
// are returned.
func (h *Harness) executeBatch(index int, step BatchStep, result *Result) error {
	body, err := step.Body()
	if err != nil {
		return err
	}

	outcome, err := h.submit(body)
	if err != nil {
		return err
	}
	result.Outcomes = append(result.Outcomes, outcome)

	h.logger.Debug("batch executed",
		"batch", index,
		"error", outcome.Error,
	)

	if step.Expect == nil {
		if outcome.Error != "" {
			result.AddError(fmt.Sprintf("batches[%d]: unexpected batch error %s", index, outcome.Error))
		}
		return nil
	}

	for _, msg := range checkExpect(step.Expect, outcome) {
		result.AddError(fmt.Sprintf("batches[%d]: %s", index, msg))
	}
	return nil
}

// submit runs body through the gate and the synchronous ingest core.
func (h *Harness) submit(body []byte) (BatchOutcome, error) {
	req, err := h.ingestor.Decode(body)
	if err != nil {
		var be *ingest.BatchError
		if errors.As(err, &be) {
			return BatchOutcome{Error: be.Code}, nil
		}
		return BatchOutcome{}, err
	}

	resp, err := h.ingestor.Process(req)
	if err != nil {
		var be *ingest.BatchError
		if errors.As(err, &be) {
			return BatchOutcome{Error: be.Code}, nil
		}
		return BatchOutcome{}, err
	}
	return BatchOutcome{Response: resp}, nil
}

// checkExpect compares an outcome with its expect clause.
func checkExpect(exp *BatchExpect, got BatchOutcome) []string {
	var errs []string

	if exp.Error != "" {
		if got.Error != exp.Error {
			errs = append(errs, fmt.Sprintf("expected error %s, got %s", exp.Error, describe(got)))
		}
		return errs
	}
	if got.Error != "" {
		return []string{fmt.Sprintf("expected a response, got error %s", got.Error)}
	}

	resp := got.Response
	if exp.Statuses != nil {
		actual := make([]string, len(resp.Results))
		for i, r := range resp.Results {
			actual[i] = string(r.Status)
		}
		if strings.Join(actual, ",") != strings.Join(exp.Statuses, ",") {
			errs = append(errs, fmt.Sprintf("expected statuses [%s], got [%s]",
				strings.Join(exp.Statuses, " "), strings.Join(actual, " ")))
		}
	}

	if exp.Rejected != nil && resp.Rejected != *exp.Rejected {
		errs = append(errs, fmt.Sprintf("expected rejected=%d, got %d", *exp.Rejected, resp.Rejected))
	}
	if exp.Duplicate != nil && resp.Duplicate != *exp.Duplicate {
		errs = append(errs, fmt.Sprintf("expected duplicate=%d, got %d", *exp.Duplicate, resp.Duplicate))
	}

	switch {
	case exp.AbsentNextSeq && resp.NextSeqExpected != nil:
		errs = append(errs, fmt.Sprintf("expected no nextSeqExpected, got %d", *resp.NextSeqExpected))
	case exp.NextSeqExpected != nil && resp.NextSeqExpected == nil:
		errs = append(errs, fmt.Sprintf("expected nextSeqExpected=%d, got none", *exp.NextSeqExpected))
	case exp.NextSeqExpected != nil && *resp.NextSeqExpected != *exp.NextSeqExpected:
		errs = append(errs, fmt.Sprintf("expected nextSeqExpected=%d, got %d", *exp.NextSeqExpected, *resp.NextSeqExpected))
	}

	for _, re := range exp.Results {
		if re.Index < 0 || re.Index >= len(resp.Results) {
			errs = append(errs, fmt.Sprintf("results[%d]: no such verdict (batch has %d)", re.Index, len(resp.Results)))
			continue
		}
		errs = append(errs, matchResult(re, resp.Results[re.Index])...)
	}

	return errs
}

func matchResult(exp ResultExpect, got ir.Result) []string {
	var errs []string
	if exp.Status != "" && string(got.Status) != exp.Status {
		errs = append(errs, fmt.Sprintf("results[%d]: expected status %s, got %s", exp.Index, exp.Status, got.Status))
	}
	if exp.Code != "" && got.Code != exp.Code {
		errs = append(errs, fmt.Sprintf("results[%d]: expected code %s, got %q", exp.Index, exp.Code, got.Code))
	}
	if exp.Message != "" && got.Message != exp.Message {
		errs = append(errs, fmt.Sprintf("results[%d]: expected message %q, got %q", exp.Index, exp.Message, got.Message))
	}
	return errs
}

func describe(o BatchOutcome) string {
	if o.Error != "" {
		return o.Error
	}
	return "a response"
}
