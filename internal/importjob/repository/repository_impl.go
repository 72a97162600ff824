package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wealthdesk/internal/importjob/domain"
	"github.com/smallbiznis/wealthdesk/pkg/db/option"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) InsertJob(ctx context.Context, job *domain.ImportJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *repository) FinishJob(ctx context.Context, job *domain.ImportJob) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE import_jobs
		 SET status = ?, created_count = ?, updated_count = ?, failed_count = ?, duplicate_count = ?,
		     error = ?, updated_at = ?, finished_at = ?
		 WHERE id = ?`,
		job.Status,
		job.CreatedCount,
		job.UpdatedCount,
		job.FailedCount,
		job.DuplicateCount,
		job.Error,
		job.UpdatedAt,
		job.FinishedAt,
		job.ID,
	).Error
}

func (r *repository) FindJobByID(ctx context.Context, orgID, jobID snowflake.ID) (*domain.ImportJob, error) {
	var job domain.ImportJob
	err := r.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", jobID, orgID).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repository) FindLatestJob(ctx context.Context, orgID snowflake.ID) (*domain.ImportJob, error) {
	var job domain.ImportJob
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at DESC, id DESC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repository) ListJobs(ctx context.Context, orgID snowflake.ID, req domain.ListImportsRequest) ([]domain.ImportJob, error) {
	tx := r.db.WithContext(ctx).Model(&domain.ImportJob{}).Where("org_id = ?", orgID)

	if importType := strings.TrimSpace(req.ImportType); importType != "" {
		tx = tx.Where("import_type = ?", importType)
	}

	tx = option.ApplyPagination(req.Pagination).Apply(tx)

	var jobs []domain.ImportJob
	if err := tx.Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repository) AppendOperations(ctx context.Context, ops []domain.Operation) error {
	if len(ops) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&ops).Error
}

func (r *repository) CountOperations(ctx context.Context, jobID snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Operation{}).
		Where("job_id = ?", jobID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) FindOperationsBefore(ctx context.Context, jobID snowflake.ID, belowIndex int64, limit int) ([]domain.Operation, error) {
	tx := r.db.WithContext(ctx).
		Where("job_id = ? AND op_index < ?", jobID, belowIndex)
	tx = option.WithOrder("op_index DESC").Apply(tx)
	tx = option.WithLimit(limit).Apply(tx)

	var ops []domain.Operation
	err := tx.Find(&ops).Error
	if err != nil {
		return nil, err
	}
	return ops, nil
}

func (r *repository) ClaimUndo(ctx context.Context, jobID snowflake.ID, userID *snowflake.ID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE import_jobs
		 SET undo_status = ?, undo_progress = 0, undo_by = ?, undo_started_at = ?, undo_finished_at = NULL, undo_error = NULL, updated_at = ?
		 WHERE id = ? AND undo_status = ?`,
		domain.UndoRunning, userID, now, now, jobID, domain.UndoIdle,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) AdvanceUndoProgress(ctx context.Context, jobID snowflake.ID, progress int64, now time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE import_jobs
		 SET undo_progress = ?, updated_at = ?
		 WHERE id = ? AND undo_status = ? AND undo_progress <= ?`,
		progress, now, jobID, domain.UndoRunning, progress,
	).Error
}

func (r *repository) FinishUndo(ctx context.Context, jobID snowflake.ID, now time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE import_jobs
		 SET undo_status = ?, undo_progress = 100, undo_finished_at = ?, updated_at = ?
		 WHERE id = ? AND undo_status = ?`,
		domain.UndoDone, now, now, jobID, domain.UndoRunning,
	).Error
}

func (r *repository) MarkUndoFailed(ctx context.Context, jobID snowflake.ID, reason string, now time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE import_jobs
		 SET undo_status = ?, undo_error = ?, undo_finished_at = ?, updated_at = ?
		 WHERE id = ? AND undo_status = ?`,
		domain.UndoFailed, reason, now, now, jobID, domain.UndoRunning,
	).Error
}

func (r *repository) FindStuckUndos(ctx context.Context, cutoff time.Time) ([]domain.ImportJob, error) {
	var jobs []domain.ImportJob
	err := r.db.WithContext(ctx).
		Where("undo_status = ? AND undo_started_at < ?", domain.UndoRunning, cutoff).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}
