// Package sagalog is the append-only audit trail of saga executions. Each
// transition of a saga is one entry, stamped with the trace that produced it
// so a row can be followed to the distributed trace.
package sagalog

import "time"

type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusStepDone     Status = "STEP_DONE"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusFailed       Status = "FAILED"
)

// SagaLog is one entry. SagaID is the order id for order sagas, Payload is
// only set on STARTED entries and ErrorMessages is a JSON array of the
// failures collected so far.
type SagaLog struct {
	SagaID        string    `json:"saga_id"`
	Status        Status    `json:"status"`
	CurrentStep   string    `json:"current_step,omitempty"`
	Payload       string    `json:"payload,omitempty"`
	ErrorMessages string    `json:"error_messages"`
	TraceID       string    `json:"trace_id,omitempty"`
	SpanID        string    `json:"span_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}
