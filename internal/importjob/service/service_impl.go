package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/wealthdesk/internal/audit/domain"
	"github.com/smallbiznis/wealthdesk/internal/clock"
	"github.com/smallbiznis/wealthdesk/internal/config"
	"github.com/smallbiznis/wealthdesk/internal/importjob/domain"
	"github.com/smallbiznis/wealthdesk/internal/importjob/progress"
	"github.com/smallbiznis/wealthdesk/internal/observability/metrics"
	"github.com/smallbiznis/wealthdesk/internal/orgcontext"
	"github.com/smallbiznis/wealthdesk/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cfg      *config.ImportConfigHolder
	Repo     domain.Repository
	Handlers map[domain.ImportType]TypeHandler
	Hub      *progress.Hub
	Metrics  *metrics.Metrics
	Audit    auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      *config.ImportConfigHolder
	repo     domain.Repository
	handlers map[domain.ImportType]TypeHandler
	hub      *progress.Hub
	metrics  *metrics.Metrics
	audit    auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("importjob.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Cfg,
		repo:     p.Repo,
		handlers: p.Handlers,
		hub:      p.Hub,
		metrics:  p.Metrics,
		audit:    p.Audit,
	}
}

func (s *Service) StartImport(ctx context.Context, req domain.StartImportRequest) (*domain.ImportSummary, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if !req.ImportType.Valid() {
		return nil, domain.ErrInvalidImportType
	}
	handler, ok := s.handlers[req.ImportType]
	if !ok {
		return nil, domain.ErrInvalidImportType
	}
	if len(req.Rows) == 0 {
		return nil, domain.ErrEmptyBatch
	}

	cfg := s.cfg.Current()
	if len(req.Rows) > cfg.MaxBatchRows {
		return nil, domain.ErrBatchTooLarge
	}

	now := s.clock.Now().UTC()
	job := domain.ImportJob{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		ImportType: req.ImportType,
		Status:     domain.JobRunning,
		TotalRows:  int64(len(req.Rows)),
		UndoStatus: domain.UndoIdle,
		CreatedBy:  actorFromContext(ctx),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.InsertJob(ctx, &job); err != nil {
		return nil, err
	}

	log := s.log.With(
		zap.String("job_id", job.ID.String()),
		zap.String("org_id", orgID.String()),
		zap.String("import_type", string(req.ImportType)),
	)
	log.Info("import started", zap.Int("rows", len(req.Rows)))

	outcomes := &progress.Outcomes{}
	summary := s.processBatch(ctx, &job, handler, req.Rows, cfg, outcomes)

	job.UpdatedAt = s.clock.Now().UTC()
	finishedAt := job.UpdatedAt
	job.FinishedAt = &finishedAt
	if err := s.repo.FinishJob(ctx, &job); err != nil {
		log.Error("failed to persist import result", zap.Error(err))
		return nil, err
	}

	s.publishImportEvent(&job, job.TotalRows, "", outcomes)

	if err := s.audit.Record(ctx, orgID, job.CreatedBy, "import.finished", "import_job", &job.ID, map[string]any{
		"import_type": string(job.ImportType),
		"status":      string(job.Status),
		"created":     job.CreatedCount,
		"updated":     job.UpdatedCount,
		"failed":      job.FailedCount,
		"duplicates":  job.DuplicateCount,
	}); err != nil {
		log.Warn("audit write failed", zap.Error(err))
	}

	log.Info("import finished",
		zap.String("status", string(job.Status)),
		zap.Int64("created", job.CreatedCount),
		zap.Int64("updated", job.UpdatedCount),
		zap.Int64("failed", job.FailedCount),
		zap.Int64("duplicates", job.DuplicateCount),
	)
	return summary, nil
}

// processBatch walks the batch in chunks, applying each row in its own
// transaction. A panic anywhere in the pipeline fails the job instead
// of leaking a half-written batch with no recorded outcome.
func (s *Service) processBatch(ctx context.Context, job *domain.ImportJob, handler TypeHandler, rows []map[string]any, cfg config.ImportConfig, outcomes *progress.Outcomes) (summary *domain.ImportSummary) {
	defer func() {
		if r := recover(); r != nil {
			reason := fmt.Sprintf("import panicked: %v", r)
			job.Status = domain.JobFailed
			job.Error = &reason
			summary = &domain.ImportSummary{
				JobID:          job.ID,
				ImportType:     job.ImportType,
				Status:         job.Status,
				TotalRows:      job.TotalRows,
				CreatedCount:   job.CreatedCount,
				UpdatedCount:   job.UpdatedCount,
				FailedCount:    job.FailedCount,
				DuplicateCount: job.DuplicateCount,
			}
			s.log.Error("import panicked",
				zap.String("job_id", job.ID.String()),
				zap.Any("panic", r),
			)
		}
	}()

	total := int64(len(rows))
	chunkSize := cfg.ChunkSize
	tracker := newETATracker(s.clock)
	seen := make(map[string]struct{}, len(rows))
	nextIndex := int64(0)

	var rowErrors []domain.RowError

	for chunk := 0; chunk*chunkSize < len(rows); chunk++ {
		tracker.StartChunk()

		start := chunk * chunkSize
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}

		for i := start; i < end; i++ {
			outcome, key, err := s.processRow(ctx, job, handler, rows[i], seen, &nextIndex)
			if err != nil {
				rowErrors = append(rowErrors, domain.RowError{Index: i, Message: err.Error()})
			}
			label := key
			if label == "" {
				label = fmt.Sprintf("row %d", i+1)
			}
			switch outcome {
			case domain.RowCreated:
				job.CreatedCount++
				outcomes.Created = append(outcomes.Created, label)
			case domain.RowUpdated:
				job.UpdatedCount++
				outcomes.Updated = append(outcomes.Updated, label)
			case domain.RowDuplicate:
				job.DuplicateCount++
				outcomes.Duplicates = append(outcomes.Duplicates, label)
			case domain.RowFailed:
				job.FailedCount++
				outcomes.Failed = append(outcomes.Failed, label)
			}
			s.metrics.RecordImportRow(ctx, string(job.ImportType), string(outcome))
		}

		tracker.FinishChunk(end - start)
		s.metrics.RecordImportChunk(ctx, string(job.ImportType))

		eta := ""
		if remaining, ok := tracker.Remaining(total - int64(end)); ok {
			eta = FormatETA(remaining)
		}
		s.publishImportProgress(job, int64(end), total, eta, outcomes)
	}

	job.Status = domain.JobDone
	return &domain.ImportSummary{
		JobID:          job.ID,
		ImportType:     job.ImportType,
		Status:         job.Status,
		TotalRows:      total,
		CreatedCount:   job.CreatedCount,
		UpdatedCount:   job.UpdatedCount,
		FailedCount:    job.FailedCount,
		DuplicateCount: job.DuplicateCount,
		RowErrors:      rowErrors,
	}
}

func (s *Service) processRow(ctx context.Context, job *domain.ImportJob, handler TypeHandler, row map[string]any, seen map[string]struct{}, nextIndex *int64) (domain.RowOutcome, string, error) {
	key, err := handler.NaturalKey(row)
	if err != nil {
		return domain.RowFailed, "", err
	}
	if _, dup := seen[key]; dup {
		return domain.RowDuplicate, key, nil
	}
	seen[key] = struct{}{}

	var outcome domain.RowOutcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := newOpLog(s.genID, job.ID, nextIndex)
		out, applyErr := handler.Apply(ctx, tx, job.OrgID, row, rec)
		if applyErr != nil {
			return applyErr
		}
		outcome = out
		return rec.Flush(ctx, tx, s.repo)
	})
	if err != nil {
		return domain.RowFailed, key, err
	}
	return outcome, key, nil
}

func (s *Service) publishImportProgress(job *domain.ImportJob, processed, total int64, eta string, outcomes *progress.Outcomes) {
	percent := int64(math.Round(float64(processed) * 100 / float64(total)))
	s.hub.Publish(job.ID.String(), progress.Event{
		JobID:      job.ID.String(),
		Phase:      progress.PhaseImport,
		Status:     string(domain.JobRunning),
		Percent:    percent,
		Processed:  processed,
		Total:      total,
		Created:    job.CreatedCount,
		Updated:    job.UpdatedCount,
		Failed:     job.FailedCount,
		Duplicates: job.DuplicateCount,
		Outcomes:   outcomes.Snapshot(),
		ETA:        eta,
		At:         s.clock.Now().UTC(),
	})
}

func (s *Service) publishImportEvent(job *domain.ImportJob, processed int64, eta string, outcomes *progress.Outcomes) {
	s.hub.Publish(job.ID.String(), progress.Event{
		JobID:      job.ID.String(),
		Phase:      progress.PhaseImport,
		Status:     string(job.Status),
		Percent:    100,
		Processed:  processed,
		Total:      job.TotalRows,
		Created:    job.CreatedCount,
		Updated:    job.UpdatedCount,
		Failed:     job.FailedCount,
		Duplicates: job.DuplicateCount,
		Outcomes:   outcomes.Snapshot(),
		ETA:        eta,
		At:         s.clock.Now().UTC(),
	})
}

func (s *Service) GetJob(ctx context.Context, jobID snowflake.ID) (*domain.ImportJob, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	job, err := s.repo.FindJobByID(ctx, orgID, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

func (s *Service) ListJobs(ctx context.Context, req domain.ListImportsRequest) (domain.ListImportsResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ListImportsResponse{}, domain.ErrInvalidOrganization
	}

	if strings.TrimSpace(req.PageToken) != "" {
		if _, err := pagination.DecodeCursor(req.PageToken); err != nil {
			return domain.ListImportsResponse{}, domain.ErrInvalidPageToken
		}
	}

	size := req.PageSize
	if size <= 0 {
		size = 10
	}

	jobs, err := s.repo.ListJobs(ctx, orgID, req)
	if err != nil {
		return domain.ListImportsResponse{}, err
	}

	resp := domain.ListImportsResponse{Imports: jobs}
	if len(jobs) > size {
		resp.Imports = jobs[:size]
		last := resp.Imports[len(resp.Imports)-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        last.ID.String(),
			CreatedAt: last.CreatedAt.Format(time.RFC3339Nano),
		})
		if err == nil {
			resp.NextPageToken = token
			resp.HasMore = true
		}
	}
	return resp, nil
}

func actorFromContext(ctx context.Context) *snowflake.ID {
	raw, ok := orgcontext.UserIDFromContext(ctx)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &id
}
