package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/aether/internal/ir"
	"github.com/roach88/aether/internal/projector"
	"github.com/roach88/aether/internal/schema"
	"github.com/roach88/aether/internal/store"
)

// Observer is notified of every batch outcome. Implementations must be
// safe for concurrent use: Submit reports decode failures from the
// caller's goroutine.
type Observer interface {
	BatchApplied(req ir.BatchRequest, resp *ir.BatchResponse, elapsed time.Duration)
	BatchFailed(code string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) BatchApplied(ir.BatchRequest, *ir.BatchResponse, time.Duration) {}
func (nopObserver) BatchFailed(string, time.Duration)                             {}

// Ingestor applies event batches to a store.
//
// Thread-safety model:
//   - Submit(): safe from any goroutine; batches are applied in FIFO order
//   - Run(): must be called from exactly one goroutine
//   - Process(): safe from any goroutine; each call holds the store's
//     exclusive lock for the whole batch
type Ingestor struct {
	store    *store.Store
	gate     *schema.Gate
	clock    *Clock
	now      func() time.Time
	observer Observer
	queue    *batchQueue
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithNow replaces the wall clock used for serverTime and for events
// without producedAt.
func WithNow(now func() time.Time) Option {
	return func(in *Ingestor) {
		in.now = now
	}
}

// WithObserver registers an observer for batch outcomes.
func WithObserver(o Observer) Option {
	return func(in *Ingestor) {
		in.observer = o
	}
}

// New creates an Ingestor over s, validating with g.
func New(s *store.Store, g *schema.Gate, opts ...Option) *Ingestor {
	in := &Ingestor{
		store:    s,
		gate:     g,
		clock:    NewClock(),
		now:      time.Now,
		observer: nopObserver{},
		queue:    newBatchQueue(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Decode validates raw against the request contract and decodes it.
// A contract failure is returned as a *BatchError with CodeSchemaInvalid.
func (in *Ingestor) Decode(raw []byte) (ir.BatchRequest, error) {
	if errs := in.gate.ValidateRequest(raw); len(errs) > 0 {
		return ir.BatchRequest{}, newRequestError(errs)
	}

	var req ir.BatchRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return ir.BatchRequest{}, newRequestError([]schema.ValidationError{{
			Field:   "/",
			Message: err.Error(),
			Code:    schema.ErrMalformedJSON,
		}})
	}
	return req, nil
}

// Submit validates raw and hands the batch to the Run loop, then waits
// for its response.
//
// If ctx ends first Submit returns ctx.Err(); the batch still runs to
// completion once dequeued.
func (in *Ingestor) Submit(ctx context.Context, raw []byte) (*ir.BatchResponse, error) {
	start := time.Now()

	req, err := in.Decode(raw)
	if err != nil {
		slog.Warn("batch rejected by request contract", "error", err)
		in.observer.BatchFailed(CodeSchemaInvalid, time.Since(start))
		return nil, err
	}

	j := &job{req: req, done: make(chan jobResult, 1)}
	if !in.queue.Enqueue(j) {
		return nil, ErrStopped
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-j.done:
		return res.resp, res.err
	}
}

// Run starts the single-writer loop. Blocks until ctx is cancelled or
// Stop is called. Batches still queued at that point fail with ErrStopped.
//
// Must be called from exactly one goroutine.
func (in *Ingestor) Run(ctx context.Context) error {
	slog.Info("ingestor starting")

	for {
		if j, ok := in.queue.TryDequeue(); ok {
			resp, err := in.Process(j.req)
			j.done <- jobResult{resp: resp, err: err}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("ingestor stopping: context cancelled")
			failPending(in.queue.Close())
			return ctx.Err()

		case _, open := <-in.queue.Wait():
			if !open {
				slog.Info("ingestor stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns and later Submits fail with ErrStopped.
func (in *Ingestor) Stop() {
	failPending(in.queue.Close())
}

func failPending(jobs []*job) {
	for _, j := range jobs {
		j.done <- jobResult{err: ErrStopped}
	}
}

// Process applies a decoded batch and returns the self-checked response.
//
// Events are applied in array order under one exclusive store lock, so
// readers observe either none or all of the batch. A response that fails
// the response contract is returned as a *BatchError with
// CodeResponseInvalid; the batch's mutations are kept.
func (in *Ingestor) Process(req ir.BatchRequest) (*ir.BatchResponse, error) {
	start := time.Now()

	// Checked before any mutation: nextSeqExpected must be computable
	// once the batch is applied.
	if req.SeqStart != nil && (*req.SeqStart < 0 || *req.SeqStart > ir.MaxSeqStart) {
		err := newRequestError([]schema.ValidationError{{
			Field:   "/seqStart",
			Message: fmt.Sprintf("seqStart %d out of range [0, %d]", *req.SeqStart, ir.MaxSeqStart),
			Code:    schema.ErrContractViolation,
		}})
		in.observer.BatchFailed(CodeSchemaInvalid, time.Since(start))
		return nil, err
	}

	seq := in.clock.Next()
	now := in.now().UTC()

	resp := &ir.BatchResponse{
		ServerTime: now,
		Results:    make([]ir.Result, 0, len(req.Events)),
	}

	err := in.store.Update(func(w store.Writer) error {
		batchSeen := make(map[string]struct{}, len(req.Events))

		for idx, ev := range req.Events {
			res := ir.Result{EventID: ev.EventID, EventKey: ev.EventKey, EventIndex: idx}

			if _, dup := batchSeen[ev.EventKey]; dup || w.Seen(ev.EventKey) {
				res.Status = ir.StatusDuplicate
				resp.Duplicate++
				resp.Results = append(resp.Results, res)
				slog.Debug("event duplicate",
					"batch_seq", seq,
					"event_id", ev.EventID,
					"event_key", ev.EventKey,
				)
				continue
			}

			out := projector.Apply(w, ev, ev.Time(now))
			if out.Accepted {
				res.Status = ir.StatusAccepted
				batchSeen[ev.EventKey] = struct{}{}
				w.MarkSeen(ev.EventKey)
			} else {
				res.Status = ir.StatusRejected
				res.Code = out.Code
				res.Message = out.Message
				if res.Code == "" {
					res.Code = ir.CodeSchemaInvalid
				}
				if res.Message == "" {
					res.Message = projector.MessageRejected
				}
				resp.Rejected++
				slog.Warn("event rejected",
					"batch_seq", seq,
					"event_id", ev.EventID,
					"event_key", ev.EventKey,
					"kind", ev.Kind,
					"code", res.Code,
					"message", res.Message,
				)
			}
			resp.Results = append(resp.Results, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if req.SeqStart != nil {
		next := *req.SeqStart + int64(len(req.Events))
		resp.NextSeqExpected = &next
	}

	if errs := in.gate.ValidateResponse(resp); len(errs) > 0 {
		breach := newBreachError(errs)
		slog.Error("response contract breach",
			"batch_seq", seq,
			"violations", len(errs),
			"error", breach,
		)
		in.observer.BatchFailed(CodeResponseInvalid, time.Since(start))
		return nil, breach
	}

	slog.Info("batch applied",
		"batch_seq", seq,
		"events", len(req.Events),
		"accepted", resp.Accepted(),
		"rejected", resp.Rejected,
		"duplicate", resp.Duplicate,
	)
	in.observer.BatchApplied(req, resp, time.Since(start))
	return resp, nil
}
