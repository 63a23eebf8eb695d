package notify

import (
	"context"
	"fmt"
)

// serviceTag identifies this service in alerts delivered to shared channels.
const serviceTag = "fillscope"

// Event types emitted by the enrichment pipeline.
const (
	EventJobExhausted = "job_exhausted"
	EventError        = "error"
)

// JobExhausted reports a batch job that has burned through its retry budget.
// The signature matches the pipeline's exhaustion hook.
func (n *Notifier) JobExhausted(ctx context.Context, jobName string, cause error) {
	_ = n.Notify(ctx, EventJobExhausted,
		"Job retry budget exhausted",
		fmt.Sprintf("Job %q failed every attempt this tick; it will try again next tick.\nLast error: %v", jobName, cause),
	)
}
