package promotion

import "time"

// Result is what one reconciliation step did with an upload.
type Result string

const (
	ResultValidated Result = "validated"
	ResultRejected  Result = "rejected"
	// ResultPending: forwarded, the authority has not answered yet.
	ResultPending Result = "pending"
	// ResultDeferred: a copy failed verification; the upload stays in
	// quarantine and is retried on the next run.
	ResultDeferred Result = "deferred"
	// ResultFailed: the step could not complete (handoff transport down,
	// status update failed); nothing changed and the next run retries.
	ResultFailed Result = "failed"
)

// Terminal reports whether the upload left quarantine.
func (r Result) Terminal() bool {
	return r == ResultValidated || r == ResultRejected
}

type Outcome struct {
	UploadID   string `json:"upload_id"`
	Result     Result `json:"result"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// BatchReport covers the uploads of one kind.
type BatchReport struct {
	Kind     string    `json:"kind"`
	Skipped  bool      `json:"skipped,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Outcomes []Outcome `json:"outcomes"`
}

// Count returns how many outcomes have the given result.
func (b *BatchReport) Count(r Result) int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Result == r {
			n++
		}
	}
	return n
}

type RunReport struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Batches    []*BatchReport `json:"batches"`
}
