package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial" // completed, but one or more batches were excluded
	RunStatusFailed   RunStatus = "failed"
)

// Run is a single pipeline execution record.
type Run struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	Report     *RunReport `json:"report,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunReport holds the per-run counts reported to orchestration.
type RunReport struct {
	Considered      int  `json:"considered"`
	Malformed       int  `json:"malformed"`
	Prefiltered     int  `json:"prefiltered"`
	Overridden      int  `json:"overridden"`
	Unmatched       int  `json:"unmatched"`
	Candidates      int  `json:"candidates"`
	Confirmed       int  `json:"confirmed"`
	Rejected        int  `json:"rejected"`
	ExcludedRecords int  `json:"excluded_records"`
	ExcludedBatches int  `json:"excluded_batches"`
	Inserted        int  `json:"inserted"`
	Skipped         int  `json:"skipped"`
	SnapshotRows    int  `json:"snapshot_rows"`
	RefreshFailed   bool `json:"refresh_failed,omitempty"`
}

// Status derives the run outcome from the counts: partial success when any
// batch was excluded or the snapshot refresh failed, complete otherwise.
func (r *RunReport) Status() RunStatus {
	if r.ExcludedBatches > 0 || r.RefreshFailed {
		return RunStatusPartial
	}
	return RunStatusComplete
}

// Override is a manually asserted classification for a specific page title.
// Owned by an operator workflow; read-only from the pipeline's perspective.
type Override struct {
	PageTitle      string    `json:"page_title"`
	CorrectCompany Company   `json:"correct_company"`
	Reason         string    `json:"reason,omitempty"`
	CreatedBy      string    `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ExcludedBatch is a confirmer batch that exhausted its retry budget and was
// parked for operator-visible reprocessing.
type ExcludedBatch struct {
	ID         string            `json:"id"`
	RunID      string            `json:"run_id"`
	Records    []CandidateRecord `json:"records"`
	Reason     string            `json:"reason"`
	RetryCount int               `json:"retry_count"`
	CreatedAt  time.Time         `json:"created_at"`
}
