package undo

import (
	"context"
	"fmt"
	"math"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/wealthdesk/internal/audit/domain"
	"github.com/smallbiznis/wealthdesk/internal/cache"
	"github.com/smallbiznis/wealthdesk/internal/clock"
	"github.com/smallbiznis/wealthdesk/internal/config"
	"github.com/smallbiznis/wealthdesk/internal/importjob/domain"
	"github.com/smallbiznis/wealthdesk/internal/importjob/progress"
	"github.com/smallbiznis/wealthdesk/internal/observability/metrics"
	"github.com/smallbiznis/wealthdesk/internal/orgcontext"
	"github.com/smallbiznis/wealthdesk/pkg/rls"
	"github.com/smallbiznis/wealthdesk/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	AppCfg   config.Config
	Cfg      *config.ImportConfigHolder
	Repo     domain.Repository
	Registry *Registry
	Hub      *progress.Hub
	Metrics  *metrics.Metrics
	Audit    auditdomain.Service
	Resolver cache.ImportResolverCache
	Locker   *Locker `optional:"true"`
}

// Engine owns the reversal lifecycle: claim, replay, terminal state.
type Engine struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	appCfg   config.Config
	cfg      *config.ImportConfigHolder
	repo     domain.Repository
	registry *Registry
	hub      *progress.Hub
	metrics  *metrics.Metrics
	audit    auditdomain.Service
	resolver cache.ImportResolverCache
	locker   *Locker
}

func NewEngine(p Params) *Engine {
	return &Engine{
		db:       p.DB,
		log:      p.Log.Named("importjob.undo"),
		clock:    p.Clock,
		appCfg:   p.AppCfg,
		cfg:      p.Cfg,
		repo:     p.Repo,
		registry: p.Registry,
		hub:      p.Hub,
		metrics:  p.Metrics,
		audit:    p.Audit,
		resolver: p.Resolver,
		locker:   p.Locker,
	}
}

func NewUndoService(e *Engine) domain.UndoService { return e }

func (e *Engine) RequestUndo(ctx context.Context, jobID snowflake.ID) (*domain.UndoState, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	job, err := e.repo.FindJobByID(ctx, orgID, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domain.ErrJobNotFound
	}
	if job.Status == domain.JobRunning {
		// The forward processor is still appending operations; a job is
		// only replayable once it has finished.
		return nil, domain.ErrUndoNotEligible
	}

	latest, err := e.repo.FindLatestJob(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if latest == nil || latest.ID != job.ID {
		return nil, domain.ErrUndoNotEligible
	}

	if err := undoStateError(job.UndoStatus); err != nil {
		return nil, err
	}

	now := e.clock.Now().UTC()
	claimed, err := e.repo.ClaimUndo(ctx, job.ID, actorFromContext(ctx), now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Lost the race. Report whatever state the winner produced.
		current, err := e.repo.FindJobByID(ctx, orgID, jobID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, domain.ErrJobNotFound
		}
		if stateErr := undoStateError(current.UndoStatus); stateErr != nil {
			return nil, stateErr
		}
		return nil, domain.ErrUndoInProgress
	}

	job.UndoStatus = domain.UndoRunning
	job.UndoProgress = 0
	job.UndoStartedAt = &now

	key := leaseKey(job.ID)
	token, acquired, lockErr := e.locker.TryLock(ctx, key, e.cfg.Current().UndoLeaseTTL)
	if lockErr != nil || !acquired {
		e.log.Warn("undo lease not acquired, continuing without it",
			zap.String("job_id", job.ID.String()),
			zap.Error(lockErr),
		)
		token = ""
	}

	runCtx := context.Background()
	if corrID := correlation.ExtractCorrelationID(ctx); corrID != "" {
		runCtx = correlation.ContextWithCorrelationID(runCtx, corrID)
	}
	snapshot := *job
	go e.run(runCtx, snapshot, key, token)

	return stateOf(job), nil
}

func (e *Engine) UndoState(ctx context.Context, jobID snowflake.ID) (*domain.UndoState, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	job, err := e.repo.FindJobByID(ctx, orgID, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domain.ErrJobNotFound
	}
	return stateOf(job), nil
}

// run replays the job's operations newest first, one chunk per
// transaction. Any error drives the undo to failed; there is no path
// that leaves it running without a worker except process death, which
// the recovery sweep covers.
func (e *Engine) run(ctx context.Context, job domain.ImportJob, key, token string) {
	log := e.log.With(
		zap.String("job_id", job.ID.String()),
		zap.String("org_id", job.OrgID.String()),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("undo panicked", zap.Any("panic", r))
			e.fail(ctx, job, fmt.Sprintf("undo panicked: %v", r))
		}
		if err := e.locker.Release(ctx, key, token); err != nil {
			log.Warn("undo lease release failed", zap.Error(err))
		}
	}()

	total, err := e.repo.CountOperations(ctx, job.ID)
	if err != nil {
		e.fail(ctx, job, err.Error())
		return
	}

	log.Info("undo started", zap.Int64("operations", total))

	cfg := e.cfg.Current()
	processed := int64(0)
	below := int64(math.MaxInt64)

	for processed < total {
		ops, err := e.repo.FindOperationsBefore(ctx, job.ID, below, cfg.UndoChunkSize)
		if err != nil {
			e.fail(ctx, job, err.Error())
			return
		}
		if len(ops) == 0 {
			break
		}

		err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if e.appCfg.DBType == "postgres" {
				if err := rls.WithTenant(tx, int64(job.OrgID)); err != nil {
					return err
				}
			}
			for _, op := range ops {
				if err := e.applyInverse(ctx, tx, job, op); err != nil {
					return fmt.Errorf("op %d (%s %s): %w", op.OpIndex, op.Kind, op.Collection, err)
				}
			}
			return nil
		})
		if err != nil {
			e.fail(ctx, job, err.Error())
			return
		}

		processed += int64(len(ops))
		below = ops[len(ops)-1].OpIndex

		percent := int64(math.Round(float64(processed) * 100 / float64(total)))
		now := e.clock.Now().UTC()
		if err := e.repo.AdvanceUndoProgress(ctx, job.ID, percent, now); err != nil {
			log.Warn("undo progress write failed", zap.Error(err))
		}
		e.publish(job, domain.UndoRunning, percent, processed, total)
		e.metrics.RecordUndoChunk(ctx)

		if err := e.locker.Refresh(ctx, key, token, cfg.UndoLeaseTTL); err != nil {
			log.Warn("undo lease refresh failed", zap.Error(err))
		}
	}

	now := e.clock.Now().UTC()
	if err := e.repo.FinishUndo(ctx, job.ID, now); err != nil {
		e.fail(ctx, job, err.Error())
		return
	}

	e.resolver.Reset()
	e.publish(job, domain.UndoDone, 100, processed, total)
	e.metrics.RecordUndoRun(ctx, string(domain.UndoDone))

	if err := e.audit.Record(ctx, job.OrgID, job.UndoBy, "import.undone", "import_job", &job.ID, map[string]any{
		"import_type": string(job.ImportType),
		"operations":  total,
	}); err != nil {
		log.Warn("audit write failed", zap.Error(err))
	}

	log.Info("undo finished", zap.Int64("operations", processed))
}

func (e *Engine) applyInverse(ctx context.Context, tx *gorm.DB, job domain.ImportJob, op domain.Operation) error {
	col, ok := e.registry.Get(op.Collection)
	if !ok {
		return fmt.Errorf("unknown collection %q", op.Collection)
	}

	switch op.Kind {
	case domain.OpCreate:
		owner, err := col.OrgIDOf(ctx, tx, op.DocID)
		if err != nil {
			return err
		}
		if owner == 0 {
			// Row already gone; replays are idempotent.
			return nil
		}
		if owner != job.OrgID {
			return domain.ErrCrossTenantRecord
		}
		return col.Delete(ctx, tx, op.DocID)

	case domain.OpUpdate:
		owner, err := col.OrgIDOf(ctx, tx, op.DocID)
		if err != nil {
			return err
		}
		if owner == 0 {
			// Row vanished since the import; bring the prior state back.
			return e.guardedInsert(ctx, tx, col, job, op.Before)
		}
		if owner != job.OrgID {
			return domain.ErrCrossTenantRecord
		}
		expect, err := col.Version(op.After)
		if err != nil {
			return err
		}
		matched, err := col.Restore(ctx, tx, op.DocID, op.Before, expect)
		if err != nil {
			return err
		}
		if matched {
			return nil
		}
		// The row moved on since the import wrote it. The undo still
		// wins: overwrite with the pre-import state.
		return col.RestoreAny(ctx, tx, op.DocID, op.Before)

	case domain.OpDelete:
		owner, err := col.OrgIDOf(ctx, tx, op.DocID)
		if err != nil {
			return err
		}
		if owner != 0 {
			// Already restored by an earlier replay.
			return nil
		}
		return e.guardedInsert(ctx, tx, col, job, op.Before)

	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

func (e *Engine) guardedInsert(ctx context.Context, tx *gorm.DB, col Collection, job domain.ImportJob, snapshot []byte) error {
	owner, err := col.SnapshotOrgID(ctx, tx, snapshot)
	if err != nil {
		return err
	}
	if owner != job.OrgID {
		return domain.ErrCrossTenantRecord
	}
	return col.Insert(ctx, tx, snapshot)
}

func (e *Engine) fail(ctx context.Context, job domain.ImportJob, reason string) {
	now := e.clock.Now().UTC()
	if err := e.repo.MarkUndoFailed(ctx, job.ID, reason, now); err != nil {
		e.log.Error("failed to mark undo failed",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
	}
	// The in-memory job is the claim-time snapshot; the stream must
	// report the progress the chunks actually persisted.
	percent := job.UndoProgress
	if current, err := e.repo.FindJobByID(ctx, job.OrgID, job.ID); err == nil && current != nil {
		percent = current.UndoProgress
	}
	e.publish(job, domain.UndoFailed, percent, 0, 0)
	e.metrics.RecordUndoRun(ctx, string(domain.UndoFailed))
	e.log.Error("undo failed",
		zap.String("job_id", job.ID.String()),
		zap.String("reason", reason),
	)
}

func (e *Engine) publish(job domain.ImportJob, status domain.UndoStatus, percent, processed, total int64) {
	e.hub.Publish(job.ID.String(), progress.Event{
		JobID:     job.ID.String(),
		Phase:     progress.PhaseUndo,
		Status:    string(status),
		Percent:   percent,
		Processed: processed,
		Total:     total,
		At:        e.clock.Now().UTC(),
	})
}

func undoStateError(status domain.UndoStatus) error {
	switch status {
	case domain.UndoRunning:
		return domain.ErrUndoInProgress
	case domain.UndoDone:
		return domain.ErrUndoAlreadyDone
	case domain.UndoFailed:
		return domain.ErrUndoFailed
	}
	return nil
}

func stateOf(job *domain.ImportJob) *domain.UndoState {
	return &domain.UndoState{
		JobID:      job.ID,
		Status:     job.UndoStatus,
		Progress:   job.UndoProgress,
		StartedAt:  job.UndoStartedAt,
		FinishedAt: job.UndoFinishedAt,
		Error:      job.UndoError,
	}
}

func actorFromContext(ctx context.Context) *snowflake.ID {
	raw, ok := orgcontext.UserIDFromContext(ctx)
	if !ok || raw == "" {
		return nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return nil
	}
	return &id
}
