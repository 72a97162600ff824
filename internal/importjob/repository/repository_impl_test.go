package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/wealthdesk/internal/importjob/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newRepoTest(t *testing.T, name string) (domain.Repository, *snowflake.Node) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.ImportJob{}, &domain.Operation{}))
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	return NewRepository(db), node
}

func seedJob(t *testing.T, repo domain.Repository, node *snowflake.Node, orgID snowflake.ID, createdAt time.Time) domain.ImportJob {
	t.Helper()
	job := domain.ImportJob{
		ID:         node.Generate(),
		OrgID:      orgID,
		ImportType: domain.TypeContact,
		Status:     domain.JobDone,
		UndoStatus: domain.UndoIdle,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
	require.NoError(t, repo.InsertJob(context.Background(), &job))
	return job
}

func TestClaimUndo_SingleWinner(t *testing.T) {
	repo, node := newRepoTest(t, "repo_claim")
	ctx := context.Background()
	orgID := node.Generate()
	now := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	job := seedJob(t, repo, node, orgID, now)

	claimed, err := repo.ClaimUndo(ctx, job.ID, nil, now)
	require.NoError(t, err)
	assert.True(t, claimed)

	// The claim is conditional on idle, so the second one loses.
	claimed, err = repo.ClaimUndo(ctx, job.ID, nil, now)
	require.NoError(t, err)
	assert.False(t, claimed)

	current, err := repo.FindJobByID(ctx, orgID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UndoRunning, current.UndoStatus)
	assert.Equal(t, int64(0), current.UndoProgress)
}

func TestAdvanceUndoProgress_Monotone(t *testing.T) {
	repo, node := newRepoTest(t, "repo_progress")
	ctx := context.Background()
	orgID := node.Generate()
	now := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	job := seedJob(t, repo, node, orgID, now)

	_, err := repo.ClaimUndo(ctx, job.ID, nil, now)
	require.NoError(t, err)

	require.NoError(t, repo.AdvanceUndoProgress(ctx, job.ID, 60, now))
	// A stale writer cannot move progress backwards.
	require.NoError(t, repo.AdvanceUndoProgress(ctx, job.ID, 30, now))

	current, err := repo.FindJobByID(ctx, orgID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), current.UndoProgress)
}

func TestFinishUndo_OnlyFromRunning(t *testing.T) {
	repo, node := newRepoTest(t, "repo_finish")
	ctx := context.Background()
	orgID := node.Generate()
	now := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	job := seedJob(t, repo, node, orgID, now)

	// Finishing an idle undo is a no-op.
	require.NoError(t, repo.FinishUndo(ctx, job.ID, now))
	current, err := repo.FindJobByID(ctx, orgID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UndoIdle, current.UndoStatus)

	_, err = repo.ClaimUndo(ctx, job.ID, nil, now)
	require.NoError(t, err)
	require.NoError(t, repo.FinishUndo(ctx, job.ID, now))

	current, err = repo.FindJobByID(ctx, orgID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UndoDone, current.UndoStatus)
	assert.Equal(t, int64(100), current.UndoProgress)

	// And done cannot be failed afterwards.
	require.NoError(t, repo.MarkUndoFailed(ctx, job.ID, "late failure", now))
	current, err = repo.FindJobByID(ctx, orgID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UndoDone, current.UndoStatus)
	assert.Nil(t, current.UndoError)
}

func TestFindLatestJob_OrdersByCreation(t *testing.T) {
	repo, node := newRepoTest(t, "repo_latest")
	ctx := context.Background()
	orgID := node.Generate()
	base := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)

	seedJob(t, repo, node, orgID, base)
	second := seedJob(t, repo, node, orgID, base.Add(time.Minute))

	// Another firm's jobs never leak into the answer.
	otherOrg := node.Generate()
	seedJob(t, repo, node, otherOrg, base.Add(time.Hour))

	latest, err := repo.FindLatestJob(ctx, orgID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
}

func TestFindOperationsBefore_NewestFirst(t *testing.T) {
	repo, node := newRepoTest(t, "repo_ops")
	ctx := context.Background()
	orgID := node.Generate()
	now := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	job := seedJob(t, repo, node, orgID, now)

	ops := make([]domain.Operation, 0, 5)
	for i := int64(0); i < 5; i++ {
		ops = append(ops, domain.Operation{
			ID:         node.Generate(),
			JobID:      job.ID,
			OpIndex:    i,
			Collection: "clients",
			DocID:      node.Generate(),
			Kind:       domain.OpCreate,
			CreatedAt:  now,
		})
	}
	require.NoError(t, repo.AppendOperations(ctx, ops))

	count, err := repo.CountOperations(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	page, err := repo.FindOperationsBefore(ctx, job.ID, 5, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(4), page[0].OpIndex)
	assert.Equal(t, int64(3), page[1].OpIndex)

	page, err = repo.FindOperationsBefore(ctx, job.ID, 3, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(2), page[0].OpIndex)

	page, err = repo.FindOperationsBefore(ctx, job.ID, 0, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}
