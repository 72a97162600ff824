package undo

import (
	"context"
	"time"

	"github.com/smallbiznis/wealthdesk/internal/clock"
	"github.com/smallbiznis/wealthdesk/internal/config"
	"github.com/smallbiznis/wealthdesk/internal/importjob/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const sweepInterval = time.Minute

type SweeperParams struct {
	fx.In

	Log    *zap.Logger
	Clock  clock.Clock
	Cfg    *config.ImportConfigHolder
	Repo   domain.Repository
	Locker *Locker `optional:"true"`
}

// Sweeper fails undos that claim to be running but lost their worker,
// typically after a crash mid-run. A live worker keeps its redis lease
// refreshed; a running undo past the threshold with no lease is dead.
type Sweeper struct {
	log    *zap.Logger
	clock  clock.Clock
	cfg    *config.ImportConfigHolder
	repo   domain.Repository
	locker *Locker
}

func NewSweeper(p SweeperParams) *Sweeper {
	return &Sweeper{
		log:    p.Log.Named("importjob.undo.sweeper"),
		clock:  p.Clock,
		cfg:    p.Cfg,
		repo:   p.Repo,
		locker: p.Locker,
	}
}

func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("stuck undo sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) RunOnce(ctx context.Context) error {
	now := s.clock.Now().UTC()
	cutoff := now.Add(-s.cfg.Current().StuckUndoThreshold)

	stuck, err := s.repo.FindStuckUndos(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, job := range stuck {
		held, err := s.locker.Held(ctx, leaseKey(job.ID))
		if err != nil {
			s.log.Warn("lease check failed",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if held {
			continue
		}

		if err := s.repo.MarkUndoFailed(ctx, job.ID, "undo worker lost", now); err != nil {
			s.log.Warn("failed to fail stuck undo",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
			continue
		}
		s.log.Warn("stuck undo marked failed",
			zap.String("job_id", job.ID.String()),
			zap.String("org_id", job.OrgID.String()),
		)
	}
	return nil
}

func RunSweeper(lc fx.Lifecycle, sweeper *Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sweeper.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
