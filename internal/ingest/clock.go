package ingest

import "sync/atomic"

// Clock numbers batches in the order the ingestor applies them.
//
// The sequence is a logical clock for logs and metrics only; it is not
// related to the caller-supplied seqStart.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next batch sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
