package ir

import "time"

// VerdictStatus is the per-event outcome reported to the caller.
type VerdictStatus string

const (
	StatusAccepted  VerdictStatus = "ACCEPTED"
	StatusRejected  VerdictStatus = "REJECTED"
	StatusDuplicate VerdictStatus = "DUPLICATE"
)

// Rejection codes carried on REJECTED results.
const (
	CodeSchemaInvalid = "SCHEMA_INVALID"
)

// Result is the verdict for one event, tagged with its index in the batch.
type Result struct {
	EventID    string        `json:"eventId"`
	EventKey   string        `json:"eventKey"`
	Status     VerdictStatus `json:"status"`
	EventIndex int           `json:"eventIndex"`
	Code       string        `json:"code,omitempty"`
	Message    string        `json:"message,omitempty"`
}

// BatchResponse is the outbound envelope.
// NextSeqExpected is set only when the request carried seqStart.
type BatchResponse struct {
	ServerTime      time.Time `json:"serverTime"`
	NextSeqExpected *int64    `json:"nextSeqExpected,omitempty"`
	Rejected        int       `json:"rejected"`
	Duplicate       int       `json:"duplicate"`
	Results         []Result  `json:"results"`
}

// Accepted counts ACCEPTED results.
func (r *BatchResponse) Accepted() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusAccepted {
			n++
		}
	}
	return n
}
