package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus tracks the lifecycle of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunContext identifies one pipeline run. It is threaded explicitly through
// every stage; nothing reads a global batch id.
type RunContext struct {
	RunID     string    `json:"run_id"`
	BatchID   string    `json:"batch_id"`
	DataDate  time.Time `json:"data_date"`
	StartedAt time.Time `json:"started_at"`
}

// NewRunContext creates a run context for the given business date.
func NewRunContext(dataDate time.Time) RunContext {
	now := time.Now().UTC()
	return RunContext{
		RunID:     uuid.New().String(),
		BatchID:   fmt.Sprintf("batch_%s", now.Format("20060102T150405")),
		DataDate:  DateOf(dataDate),
		StartedAt: now,
	}
}

// Run is one row of the run log.
type Run struct {
	RunID       string     `json:"run_id"`
	BatchID     string     `json:"batch_id"`
	DataDate    time.Time  `json:"data_date"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Report      []byte     `json:"report,omitempty"`
}
