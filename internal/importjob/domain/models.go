// Package domain contains the import job and operation log models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ImportType names one of the record kinds a batch may carry.
type ImportType string

const (
	TypeContact     ImportType = "contact"
	TypeAccount     ImportType = "account"
	TypeLiability   ImportType = "liability"
	TypeBeneficiary ImportType = "beneficiary"
	TypeBilling     ImportType = "billing"
)

// Valid reports whether t is a known import type.
func (t ImportType) Valid() bool {
	switch t {
	case TypeContact, TypeAccount, TypeLiability, TypeBeneficiary, TypeBilling:
		return true
	}
	return false
}

// JobStatus is the lifecycle of the import itself.
type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// UndoStatus is the lifecycle of the reversal run attached to a job.
// idle -> running -> done | failed. done and failed are terminal.
type UndoStatus string

const (
	UndoIdle    UndoStatus = "idle"
	UndoRunning UndoStatus = "running"
	UndoDone    UndoStatus = "done"
	UndoFailed  UndoStatus = "failed"
)

// RowOutcome classifies one processed row.
type RowOutcome string

const (
	RowCreated   RowOutcome = "created"
	RowUpdated   RowOutcome = "updated"
	RowFailed    RowOutcome = "failed"
	RowDuplicate RowOutcome = "duplicate"
)

// OpKind is the forward direction of a recorded write.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// ImportJob is one bulk import batch for a firm, including the state of
// its reversal run.
type ImportJob struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID  `gorm:"not null;index" json:"org_id"`
	ImportType     ImportType    `gorm:"type:text;not null;column:import_type" json:"import_type"`
	Status         JobStatus     `gorm:"type:text;not null;default:'running'" json:"status"`
	TotalRows      int64         `gorm:"not null;default:0" json:"total_rows"`
	CreatedCount   int64         `gorm:"not null;default:0" json:"created_count"`
	UpdatedCount   int64         `gorm:"not null;default:0" json:"updated_count"`
	FailedCount    int64         `gorm:"not null;default:0" json:"failed_count"`
	DuplicateCount int64         `gorm:"not null;default:0" json:"duplicate_count"`
	Error          *string       `gorm:"type:text" json:"error,omitempty"`
	CreatedBy      *snowflake.ID `gorm:"column:created_by" json:"created_by,omitempty"`
	UndoStatus     UndoStatus    `gorm:"type:text;not null;default:'idle'" json:"undo_status"`
	UndoProgress   int64         `gorm:"not null;default:0" json:"undo_progress"`
	UndoBy         *snowflake.ID `gorm:"column:undo_by" json:"undo_by,omitempty"`
	UndoStartedAt  *time.Time    `json:"undo_started_at,omitempty"`
	UndoFinishedAt *time.Time    `json:"undo_finished_at,omitempty"`
	UndoError      *string       `gorm:"type:text" json:"undo_error,omitempty"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	FinishedAt     *time.Time    `json:"finished_at,omitempty"`
}

// TableName sets the database table name.
func (ImportJob) TableName() string { return "import_jobs" }

// Operation is one recorded write made on behalf of a job. OpIndex is
// assigned in arrival order; reversal replays operations by descending
// OpIndex.
type Operation struct {
	ID         snowflake.ID   `gorm:"primaryKey" json:"id"`
	JobID      snowflake.ID   `gorm:"not null;uniqueIndex:ux_import_operations_job_idx,priority:1" json:"job_id"`
	OpIndex    int64          `gorm:"not null;uniqueIndex:ux_import_operations_job_idx,priority:2" json:"op_index"`
	Collection string         `gorm:"type:text;not null" json:"collection"`
	DocID      snowflake.ID   `gorm:"not null;column:doc_id" json:"doc_id"`
	Kind       OpKind         `gorm:"type:text;not null" json:"kind"`
	Before     datatypes.JSON `gorm:"type:jsonb" json:"before,omitempty"`
	After      datatypes.JSON `gorm:"type:jsonb" json:"after,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Operation) TableName() string { return "import_operations" }

// RowError reports why a single row was rejected.
type RowError struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}
