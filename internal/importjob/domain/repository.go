package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	InsertJob(ctx context.Context, job *ImportJob) error
	FinishJob(ctx context.Context, job *ImportJob) error
	FindJobByID(ctx context.Context, orgID, jobID snowflake.ID) (*ImportJob, error)
	FindLatestJob(ctx context.Context, orgID snowflake.ID) (*ImportJob, error)
	ListJobs(ctx context.Context, orgID snowflake.ID, req ListImportsRequest) ([]ImportJob, error)

	AppendOperations(ctx context.Context, ops []Operation) error
	CountOperations(ctx context.Context, jobID snowflake.ID) (int64, error)
	// FindOperationsBefore returns up to limit operations with
	// op_index strictly below the given bound, newest first.
	FindOperationsBefore(ctx context.Context, jobID snowflake.ID, belowIndex int64, limit int) ([]Operation, error)

	// ClaimUndo flips undo_status from idle to running. It reports
	// false when another request already moved the job out of idle.
	ClaimUndo(ctx context.Context, jobID snowflake.ID, userID *snowflake.ID, now time.Time) (bool, error)
	// AdvanceUndoProgress raises undo_progress on a running undo.
	// Writes that would lower the published value are dropped.
	AdvanceUndoProgress(ctx context.Context, jobID snowflake.ID, progress int64, now time.Time) error
	FinishUndo(ctx context.Context, jobID snowflake.ID, now time.Time) error
	MarkUndoFailed(ctx context.Context, jobID snowflake.ID, reason string, now time.Time) error
	// FindStuckUndos lists undos still marked running whose run began
	// before the cutoff.
	FindStuckUndos(ctx context.Context, cutoff time.Time) ([]ImportJob, error)
}
