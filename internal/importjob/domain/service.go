package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wealthdesk/pkg/db/pagination"
)

type Service interface {
	StartImport(ctx context.Context, req StartImportRequest) (*ImportSummary, error)
	GetJob(ctx context.Context, jobID snowflake.ID) (*ImportJob, error)
	ListJobs(ctx context.Context, req ListImportsRequest) (ListImportsResponse, error)
}

// UndoService drives the reversal run for a finished import.
type UndoService interface {
	// RequestUndo claims the undo slot for the job and starts the
	// reversal in the background. Exactly one caller wins; the rest
	// observe the state the winner produced.
	RequestUndo(ctx context.Context, jobID snowflake.ID) (*UndoState, error)
	UndoState(ctx context.Context, jobID snowflake.ID) (*UndoState, error)
}

type StartImportRequest struct {
	ImportType ImportType       `json:"import_type"`
	Rows       []map[string]any `json:"rows"`
}

type ImportSummary struct {
	JobID          snowflake.ID `json:"job_id"`
	ImportType     ImportType   `json:"import_type"`
	Status         JobStatus    `json:"status"`
	TotalRows      int64        `json:"total_rows"`
	CreatedCount   int64        `json:"created_count"`
	UpdatedCount   int64        `json:"updated_count"`
	FailedCount    int64        `json:"failed_count"`
	DuplicateCount int64        `json:"duplicate_count"`
	RowErrors      []RowError   `json:"row_errors,omitempty"`
}

type ListImportsRequest struct {
	pagination.Pagination
	ImportType string `form:"import_type"`
}

type ListImportsResponse struct {
	pagination.PageInfo
	Imports []ImportJob `json:"imports"`
}

// UndoState is the reversal view of a job returned by the undo API.
type UndoState struct {
	JobID      snowflake.ID `json:"job_id"`
	Status     UndoStatus   `json:"status"`
	Progress   int64        `json:"progress"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Error      *string      `json:"error,omitempty"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidImportType   = errors.New("invalid_import_type")
	ErrEmptyBatch          = errors.New("empty_batch")
	ErrBatchTooLarge       = errors.New("batch_too_large")
	ErrJobNotFound         = errors.New("job_not_found")
	ErrInvalidPageToken    = errors.New("invalid_page_token")

	ErrUndoNotEligible = errors.New("undo_not_eligible")
	ErrUndoInProgress  = errors.New("undo_in_progress")
	ErrUndoAlreadyDone = errors.New("undo_already_done")
	ErrUndoFailed      = errors.New("undo_failed")

	ErrCrossTenantRecord = errors.New("cross_tenant_record")
)
