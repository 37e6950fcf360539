package client

import (
	"strings"
	"time"
)

// Fragment is one section of a gate report.
type Fragment struct {
	Title   string   `json:"title"`
	Details []string `json:"details,omitempty"`
}

// Report is the validation report returned with a flagged upload.
type Report struct {
	Fragments []Fragment `json:"fragments"`
}

func (r *Report) String() string {
	var b strings.Builder
	for i, f := range r.Fragments {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(f.Title)
		b.WriteString("\n")
		for _, d := range f.Details {
			b.WriteString("  - ")
			b.WriteString(d)
			b.WriteString("\n")
		}
	}
	return b.String()
}

type Outcome struct {
	UploadID   string `json:"upload_id"`
	Result     string `json:"result"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

type BatchReport struct {
	Kind     string    `json:"kind"`
	Skipped  bool      `json:"skipped,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Outcomes []Outcome `json:"outcomes"`
}

// Counts tallies outcomes by result.
func (b *BatchReport) Counts() map[string]int {
	m := make(map[string]int)
	for _, o := range b.Outcomes {
		m[o.Result]++
	}
	return m
}

type RunReport struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Batches    []*BatchReport `json:"batches"`
}
