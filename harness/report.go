package harness

import (
	"time"

	"github.com/localrivet/mcpsmoke/target"
)

// StepStatus is the reported outcome of one exchange step.
type StepStatus string

const (
	StatusOK      StepStatus = "ok"
	StatusFailed  StepStatus = "failed"
	StatusSkipped StepStatus = "skipped"
)

// Step records one step of the fixed exchange sequence. A failed step is a
// soft failure: it is reported but never aborts the remaining sequence.
type Step struct {
	ID       int64
	Method   string
	Status   StepStatus
	Detail   string
	Err      string
	Duration time.Duration
}

// Report aggregates the outcome of one harness run.
type Report struct {
	RunID        string
	Target       target.Kind
	StartedAt    time.Time
	FinishedAt   time.Time
	SessionToken string
	Steps        []Step

	// Fatal is set when the run aborted before or during session
	// establishment. Soft call failures never set it.
	Fatal string
}

// OK reports whether the run reached the exchange phase. Per-call soft
// failures do not affect it; they only show up in the step list.
func (r *Report) OK() bool {
	return r.Fatal == ""
}

// SoftFailures counts steps that failed without aborting the run.
func (r *Report) SoftFailures() int {
	n := 0
	for _, step := range r.Steps {
		if step.Status == StatusFailed {
			n++
		}
	}
	return n
}
