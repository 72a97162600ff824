package undo

import (
	"testing"
	"time"

	"github.com/smallbiznis/wealthdesk/internal/importjob/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_FailsStuckUndos(t *testing.T) {
	env := newUndoEnv(t, "sweeper_stuck")
	orgID := env.node.Generate()
	ctx := orgContext(orgID)

	now := env.clk.Now()
	staleStart := now.Add(-time.Hour)
	freshStart := now.Add(-time.Minute)

	stale := domain.ImportJob{
		ID:            env.node.Generate(),
		OrgID:         orgID,
		ImportType:    domain.TypeContact,
		Status:        domain.JobDone,
		UndoStatus:    domain.UndoRunning,
		UndoProgress:  40,
		UndoStartedAt: &staleStart,
		CreatedAt:     staleStart,
		UpdatedAt:     staleStart,
	}
	require.NoError(t, env.repo.InsertJob(ctx, &stale))

	fresh := domain.ImportJob{
		ID:            env.node.Generate(),
		OrgID:         orgID,
		ImportType:    domain.TypeContact,
		Status:        domain.JobDone,
		UndoStatus:    domain.UndoRunning,
		UndoProgress:  10,
		UndoStartedAt: &freshStart,
		CreatedAt:     freshStart,
		UpdatedAt:     freshStart,
	}
	require.NoError(t, env.repo.InsertJob(ctx, &fresh))

	require.NoError(t, env.sweeper.RunOnce(ctx))

	staleAfter, err := env.repo.FindJobByID(ctx, orgID, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UndoFailed, staleAfter.UndoStatus)
	require.NotNil(t, staleAfter.UndoError)
	assert.Equal(t, "undo worker lost", *staleAfter.UndoError)

	// A run inside the threshold is presumed alive.
	freshAfter, err := env.repo.FindJobByID(ctx, orgID, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UndoRunning, freshAfter.UndoStatus)
}

func TestSweeper_IgnoresTerminalStates(t *testing.T) {
	env := newUndoEnv(t, "sweeper_terminal")
	orgID := env.node.Generate()
	ctx := orgContext(orgID)

	old := env.clk.Now().Add(-2 * time.Hour)
	done := domain.ImportJob{
		ID:             env.node.Generate(),
		OrgID:          orgID,
		ImportType:     domain.TypeContact,
		Status:         domain.JobDone,
		UndoStatus:     domain.UndoDone,
		UndoProgress:   100,
		UndoStartedAt:  &old,
		UndoFinishedAt: &old,
		CreatedAt:      old,
		UpdatedAt:      old,
	}
	require.NoError(t, env.repo.InsertJob(ctx, &done))

	require.NoError(t, env.sweeper.RunOnce(ctx))

	after, err := env.repo.FindJobByID(ctx, orgID, done.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UndoDone, after.UndoStatus)
}
