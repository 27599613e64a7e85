package ir

import (
	"encoding/json"
	"time"
)

// Event is one entry of an inbound batch.
//
// EventKey is the caller-supplied deduplication token. EventID identifies
// the event itself and doubles as the transaction identifier for CHECKOUT.
type Event struct {
	EventID    string          `json:"eventId"`
	EventKey   string          `json:"eventKey"`
	Kind       EventKind       `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	ProducedAt *time.Time      `json:"producedAt,omitempty"`
}

// Time returns the event time used to stamp projections.
//
// The producer's timestamp wins when present. Otherwise the ingestion
// clock reading for the batch is used, so every event without producedAt
// in one batch shares the same instant.
func (e Event) Time(ingestedAt time.Time) time.Time {
	if e.ProducedAt != nil {
		return *e.ProducedAt
	}
	return ingestedAt
}

// MaxSeqStart is the largest seqStart the request contract admits,
// the largest integer a JSON number carries exactly.
const MaxSeqStart int64 = 1<<53 - 1

// BatchRequest is the inbound envelope.
// SeqStart is nil when the caller did not supply it.
type BatchRequest struct {
	Events   []Event `json:"events"`
	SeqStart *int64  `json:"seqStart,omitempty"`
}
