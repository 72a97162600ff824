package undo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/smallbiznis/wealthdesk/internal/account/domain"
	accountrepo "github.com/smallbiznis/wealthdesk/internal/account/repository"
	auditdomain "github.com/smallbiznis/wealthdesk/internal/audit/domain"
	beneficiarydomain "github.com/smallbiznis/wealthdesk/internal/beneficiary/domain"
	beneficiaryrepo "github.com/smallbiznis/wealthdesk/internal/beneficiary/repository"
	billingdomain "github.com/smallbiznis/wealthdesk/internal/billingperiod/domain"
	billingrepo "github.com/smallbiznis/wealthdesk/internal/billingperiod/repository"
	"github.com/smallbiznis/wealthdesk/internal/cache"
	clientdomain "github.com/smallbiznis/wealthdesk/internal/client/domain"
	clientrepo "github.com/smallbiznis/wealthdesk/internal/client/repository"
	"github.com/smallbiznis/wealthdesk/internal/clock"
	"github.com/smallbiznis/wealthdesk/internal/config"
	householddomain "github.com/smallbiznis/wealthdesk/internal/household/domain"
	householdrepo "github.com/smallbiznis/wealthdesk/internal/household/repository"
	"github.com/smallbiznis/wealthdesk/internal/importjob/domain"
	"github.com/smallbiznis/wealthdesk/internal/importjob/progress"
	importrepo "github.com/smallbiznis/wealthdesk/internal/importjob/repository"
	importsvc "github.com/smallbiznis/wealthdesk/internal/importjob/service"
	liabilitydomain "github.com/smallbiznis/wealthdesk/internal/liability/domain"
	liabilityrepo "github.com/smallbiznis/wealthdesk/internal/liability/repository"
	"github.com/smallbiznis/wealthdesk/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type auditStub struct {
	mu      sync.Mutex
	actions []string
}

func (a *auditStub) Record(ctx context.Context, orgID snowflake.ID, actorID *snowflake.ID, action, targetType string, targetID *snowflake.ID, metadata map[string]any) error {
	a.mu.Lock()
	a.actions = append(a.actions, action)
	a.mu.Unlock()
	return nil
}

func (a *auditStub) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

type undoEnv struct {
	db       *gorm.DB
	node     *snowflake.Node
	clk      *clock.FakeClock
	hub      *progress.Hub
	repo     domain.Repository
	importer domain.Service
	undoer   domain.UndoService
	sweeper  *Sweeper
	audit    *auditStub
}

func newUndoEnv(t *testing.T, name string) *undoEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&householddomain.Household{},
		&clientdomain.Client{},
		&accountdomain.Account{},
		&liabilitydomain.Liability{},
		&beneficiarydomain.Beneficiary{},
		&billingdomain.BillingPeriod{},
		&domain.ImportJob{},
		&domain.Operation{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	resolver := cache.NewImportResolverCache()
	hub := progress.NewHub()
	audit := &auditStub{}

	households := householdrepo.NewRepository(db)
	clients := clientrepo.NewRepository(db)
	accounts := accountrepo.NewRepository(db)
	liabilities := liabilityrepo.NewRepository(db)
	beneficiaries := beneficiaryrepo.NewRepository(db)
	billing := billingrepo.NewRepository(db)

	handlers := importsvc.NewHandlers(node, clk, resolver, households, clients, accounts, liabilities, beneficiaries, billing)
	repo := importrepo.NewRepository(db)

	importer := importsvc.NewService(importsvc.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Repo:     repo,
		Handlers: handlers,
		Hub:      hub,
		Audit:    audit,
	})

	registry := NewRegistry(households, clients, accounts, liabilities, beneficiaries, billing)
	engine := NewEngine(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    clk,
		AppCfg:   config.Config{DBType: "sqlite"},
		Repo:     repo,
		Registry: registry,
		Hub:      hub,
		Audit:    audit,
		Resolver: resolver,
	})

	sweeper := NewSweeper(SweeperParams{
		Log:   zap.NewNop(),
		Clock: clk,
		Repo:  repo,
	})

	return &undoEnv{
		db:       db,
		node:     node,
		clk:      clk,
		hub:      hub,
		repo:     repo,
		importer: importer,
		undoer:   NewUndoService(engine),
		sweeper:  sweeper,
		audit:    audit,
	}
}

func orgContext(orgID snowflake.ID) context.Context {
	return orgcontext.WithOrgID(context.Background(), orgID)
}

func (e *undoEnv) seedHousehold(t *testing.T, orgID snowflake.ID, name string) householddomain.Household {
	t.Helper()
	now := e.clk.Now()
	h := householddomain.Household{
		ID:        e.node.Generate(),
		OrgID:     orgID,
		Name:      name,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, e.db.Create(&h).Error)
	return h
}

func (e *undoEnv) importContacts(t *testing.T, ctx context.Context, rows []map[string]any) *domain.ImportSummary {
	t.Helper()
	summary, err := e.importer.StartImport(ctx, domain.StartImportRequest{
		ImportType: domain.TypeContact,
		Rows:       rows,
	})
	require.NoError(t, err)
	return summary
}

func (e *undoEnv) waitForUndo(t *testing.T, ctx context.Context, jobID snowflake.ID, want domain.UndoStatus) *domain.ImportJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		state, err := e.undoer.UndoState(ctx, jobID)
		require.NoError(t, err)
		if state.Status == want {
			orgID, _ := orgcontext.OrgIDFromContext(ctx)
			job, err := e.repo.FindJobByID(ctx, orgID, jobID)
			require.NoError(t, err)
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("undo of %s never reached %s", jobID, want)
	return nil
}

func TestUndo_RoundTripRestore(t *testing.T) {
	env := newUndoEnv(t, "undo_roundtrip")
	orgID := env.node.Generate()
	ctx := orgContext(orgID)

	household := env.seedHousehold(t, orgID, "Round Household")
	now := env.clk.Now()
	seeded := clientdomain.Client{
		ID:          env.node.Generate(),
		OrgID:       orgID,
		HouseholdID: household.ID,
		FirstName:   "Original",
		LastName:    "Name",
		Email:       "round@firm.test",
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, env.db.Create(&seeded).Error)

	summary := env.importContacts(t, ctx, []map[string]any{
		{"email": "round@firm.test", "first_name": "Changed", "last_name": "Name", "household": "Round Household"},
		{"email": "fresh@firm.test", "first_name": "Fresh", "last_name": "Face", "household": "Fresh Household"},
	})
	require.Equal(t, int64(1), summary.UpdatedCount)
	require.Equal(t, int64(1), summary.CreatedCount)

	state, err := env.undoer.RequestUndo(ctx, summary.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.UndoRunning, state.Status)

	job := env.waitForUndo(t, ctx, summary.JobID, domain.UndoDone)
	assert.Equal(t, int64(100), job.UndoProgress)
	assert.NotNil(t, job.UndoFinishedAt)

	// The updated client is back to its pre-import state.
	var restored clientdomain.Client
	require.NoError(t, env.db.Where("id = ?", seeded.ID).First(&restored).Error)
	assert.Equal(t, "Original", restored.FirstName)
	assert.Equal(t, int64(1), restored.Version)

	// The created client and its implicit household are gone.
	var count int64
	env.db.Model(&clientdomain.Client{}).Where("email = ?", "fresh@firm.test").Count(&count)
	assert.Zero(t, count)
	env.db.Model(&householddomain.Household{}).Where("org_id = ? AND name = ?", orgID, "Fresh Household").Count(&count)
	assert.Zero(t, count)

	env.audit.mu.Lock()
	defer env.audit.mu.Unlock()
	assert.Contains(t, env.audit.actions, "import.undone")
}

func TestUndo_VersionDriftFallsBackToOverwrite(t *testing.T) {
	env := newUndoEnv(t, "undo_version_drift")
	orgID := env.node.Generate()
	ctx := orgContext(orgID)

	household := env.seedHousehold(t, orgID, "Drift Household")
	now := env.clk.Now()
	seeded := clientdomain.Client{
		ID:          env.node.Generate(),
		OrgID:       orgID,
		HouseholdID: household.ID,
		FirstName:   "Original",
		LastName:    "Drift",
		Email:       "drift@firm.test",
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, env.db.Create(&seeded).Error)

	summary := env.importContacts(t, ctx, []map[string]any{
		{"email": "drift@firm.test", "first_name": "Imported", "last_name": "Drift", "household": "Drift Household"},
	})
	require.Equal(t, int64(1), summary.UpdatedCount)

	// Someone edits the row after the import. The undo still wins.
	require.NoError(t, env.db.Exec(
		"UPDATE clients SET first_name = ?, version = ? WHERE id = ?",
		"Edited", 5, seeded.ID,
	).Error)

	_, err := env.undoer.RequestUndo(ctx, summary.JobID)
	require.NoError(t, err)
	env.waitForUndo(t, ctx, summary.JobID, domain.UndoDone)

	var restored clientdomain.Client
	require.NoError(t, env.db.Where("id = ?", seeded.ID).First(&restored).Error)
	assert.Equal(t, "Original", restored.FirstName)
	assert.Equal(t, int64(1), restored.Version)
}

func TestUndo_ProgressCadence(t *testing.T) {
	env := newUndoEnv(t, "undo_cadence")
	orgID := env.node.Generate()
	ctx := orgContext(orgID)

	env.seedHousehold(t, orgID, "Cadence Household")
	rows := make([]map[string]any, 0, 237)
	for i := 0; i < 237; i++ {
		rows = append(rows, map[string]any{
			"email":      fmt.Sprintf("cadence%03d@firm.test", i),
			"first_name": "C",
			"last_name":  fmt.Sprintf("N%03d", i),
			"household":  "Cadence Household",
		})
	}
	summary := env.importContacts(t, ctx, rows)
	require.Equal(t, int64(237), summary.CreatedCount)

	_, err := env.undoer.RequestUndo(ctx, summary.JobID)
	require.NoError(t, err)
	env.waitForUndo(t, ctx, summary.JobID, domain.UndoDone)

	sub, backlog, err := env.hub.Subscribe(summary.JobID.String())
	require.NoError(t, err)
	defer sub.Close()

	var undoEvents []progress.Event
	for _, ev := range backlog {
		if ev.Phase == progress.PhaseUndo {
			undoEvents = append(undoEvents, ev)
		}
	}

	// 237 operations in chunks of 100 tick at 42, 84, 100, then the
	// terminal done event repeats 100.
	require.Len(t, undoEvents, 4)
	assert.Equal(t, int64(42), undoEvents[0].Percent)
	assert.Equal(t, int64(84), undoEvents[1].Percent)
	assert.Equal(t, int64(100), undoEvents[2].Percent)
	assert.Equal(t, string(domain.UndoRunning), undoEvents[2].Status)
	assert.Equal(t, string(domain.UndoDone), undoEvents[3].Status)
	assert.Equal(t, int64(237), undoEvents[3].Total)
}

func TestUndo_OnlyLatestJobIsEligible(t *testing.T) {
	env := newUndoEnv(t, "undo_eligibility")
	orgID := env.node.Generate()
	ctx := orgContext(orgID)

	env.seedHousehold(t, orgID, "Elig Household")
	first := env.importContacts(t, ctx, []map[string]any{
		{"email": "one@firm.test", "first_name": "One", "last_name": "First", "household": "Elig Household"},
	})
	env.clk.Advance(time.Second)
	second := env.importContacts(t, ctx, []map[string]any{
		{"email": "two@firm.test", "first_name": "Two", "last_name": "Second", "household": "Elig Household"},
	})

	_, err := env.undoer.RequestUndo(ctx, first.JobID)
	assert.ErrorIs(t, err, domain.ErrUndoNotEligible)

	_, err = env.undoer.RequestUndo(ctx, second.JobID)
	require.NoError(t, err)
	env.waitForUndo(t, ctx, second.JobID, domain.UndoDone)

	// done is terminal: a second request is rejected, not retried.
	_, err = env.undoer.RequestUndo(ctx, second.JobID)
	assert.ErrorIs(t, err, domain.ErrUndoAlreadyDone)
}

func TestUndo_SingleFlight(t *testing.T) {
	env := newUndoEnv(t, "undo_single_flight")
	orgID := env.node.Generate()
	ctx := orgContext(orgID)

	env.seedHousehold(t, orgID, "Race Household")
	rows := make([]map[string]any, 0, 200)
	for i := 0; i < 200; i++ {
		rows = append(rows, map[string]any{
			"email":      fmt.Sprintf("race%03d@firm.test", i),
			"first_name": "R",
			"last_name":  fmt.Sprintf("N%03d", i),
			"household":  "Race Household",
		})
	}
	summary := env.importContacts(t, ctx, rows)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, errs[slot] = env.undoer.RequestUndo(ctx, summary.JobID)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		if !errors.Is(err, domain.ErrUndoInProgress) && !errors.Is(err, domain.ErrUndoAlreadyDone) {
			t.Fatalf("unexpected loser error: %v", err)
		}
	}
	assert.Equal(t, 1, winners, "exactly one caller claims the undo")

	env.waitForUndo(t, ctx, summary.JobID, domain.UndoDone)
}

func TestUndo_CrossTenantRecordFailsRun(t *testing.T) {
	env := newUndoEnv(t, "undo_cross_tenant")
	orgA := env.node.Generate()
	orgB := env.node.Generate()
	ctx := orgContext(orgA)

	env.seedHousehold(t, orgA, "Guard Household")
	summary := env.importContacts(t, ctx, []map[string]any{
		{"email": "guard@firm.test", "first_name": "Guard", "last_name": "Rail", "household": "Guard Household"},
	})

	// Simulate a corrupted operation log: the created row now belongs
	// to another firm. The run must abort, never touch the row.
	require.NoError(t, env.db.Exec(
		"UPDATE clients SET org_id = ? WHERE email = ?", orgB, "guard@firm.test",
	).Error)

	_, err := env.undoer.RequestUndo(ctx, summary.JobID)
	require.NoError(t, err)

	job := env.waitForUndo(t, ctx, summary.JobID, domain.UndoFailed)
	require.NotNil(t, job.UndoError)
	assert.Contains(t, *job.UndoError, domain.ErrCrossTenantRecord.Error())

	var count int64
	env.db.Model(&clientdomain.Client{}).Where("email = ?", "guard@firm.test").Count(&count)
	assert.Equal(t, int64(1), count, "the foreign row is left alone")

	// failed is terminal too.
	_, err = env.undoer.RequestUndo(ctx, summary.JobID)
	assert.ErrorIs(t, err, domain.ErrUndoFailed)
}

func TestUndo_FailureEventReportsPersistedProgress(t *testing.T) {
	env := newUndoEnv(t, "undo_failure_progress")
	orgID := env.node.Generate()
	orgB := env.node.Generate()
	ctx := orgContext(orgID)

	env.seedHousehold(t, orgID, "Partial Household")
	rows := make([]map[string]any, 0, 150)
	for i := 0; i < 150; i++ {
		rows = append(rows, map[string]any{
			"email":      fmt.Sprintf("partial%03d@firm.test", i),
			"first_name": "P",
			"last_name":  fmt.Sprintf("N%03d", i),
			"household":  "Partial Household",
		})
	}
	summary := env.importContacts(t, ctx, rows)
	require.Equal(t, int64(150), summary.CreatedCount)

	// The earliest row sits in the last undo chunk. Corrupting it lets
	// the first chunk commit before the run dies.
	require.NoError(t, env.db.Exec(
		"UPDATE clients SET org_id = ? WHERE email = ?", orgB, "partial000@firm.test",
	).Error)

	_, err := env.undoer.RequestUndo(ctx, summary.JobID)
	require.NoError(t, err)
	job := env.waitForUndo(t, ctx, summary.JobID, domain.UndoFailed)

	// 100 of 150 operations reversed before the failure.
	require.Equal(t, int64(67), job.UndoProgress)

	sub, backlog, err := env.hub.Subscribe(summary.JobID.String())
	require.NoError(t, err)
	defer sub.Close()

	var undoEvents []progress.Event
	for _, ev := range backlog {
		if ev.Phase == progress.PhaseUndo {
			undoEvents = append(undoEvents, ev)
		}
	}
	require.NotEmpty(t, undoEvents)

	// The stream and the status query agree on how far the undo got;
	// the failure event must not rewind to 0.
	last := undoEvents[len(undoEvents)-1]
	assert.Equal(t, string(domain.UndoFailed), last.Status)
	assert.Equal(t, job.UndoProgress, last.Percent)
}

func TestUndo_RunningImportIsNotEligible(t *testing.T) {
	env := newUndoEnv(t, "undo_running_import")
	orgID := env.node.Generate()
	ctx := orgContext(orgID)

	now := env.clk.Now()
	job := domain.ImportJob{
		ID:         env.node.Generate(),
		OrgID:      orgID,
		ImportType: domain.TypeContact,
		Status:     domain.JobRunning,
		TotalRows:  500,
		UndoStatus: domain.UndoIdle,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, env.repo.InsertJob(ctx, &job))

	// The forward processor is still writing; reversing now would race
	// the operation log.
	_, err := env.undoer.RequestUndo(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrUndoNotEligible)

	state, err := env.undoer.UndoState(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UndoIdle, state.Status)
}

func TestUndo_DeleteOpReinsertsRow(t *testing.T) {
	env := newUndoEnv(t, "undo_reinsert")
	orgID := env.node.Generate()
	ctx := orgContext(orgID)

	household := env.seedHousehold(t, orgID, "Restore Household")
	now := env.clk.Now()
	removed := clientdomain.Client{
		ID:          env.node.Generate(),
		OrgID:       orgID,
		HouseholdID: household.ID,
		FirstName:   "Gone",
		LastName:    "Client",
		Email:       "gone@firm.test",
		Version:     3,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	snapshot, err := json.Marshal(removed)
	require.NoError(t, err)

	job := domain.ImportJob{
		ID:         env.node.Generate(),
		OrgID:      orgID,
		ImportType: domain.TypeContact,
		Status:     domain.JobDone,
		TotalRows:  1,
		UndoStatus: domain.UndoIdle,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, env.repo.InsertJob(ctx, &job))
	require.NoError(t, env.repo.AppendOperations(ctx, []domain.Operation{{
		ID:         env.node.Generate(),
		JobID:      job.ID,
		OpIndex:    0,
		Collection: clientdomain.Client{}.TableName(),
		DocID:      removed.ID,
		Kind:       domain.OpDelete,
		Before:     datatypes.JSON(snapshot),
		CreatedAt:  now,
	}}))

	_, err = env.undoer.RequestUndo(ctx, job.ID)
	require.NoError(t, err)
	env.waitForUndo(t, ctx, job.ID, domain.UndoDone)

	var restored clientdomain.Client
	require.NoError(t, env.db.Where("id = ?", removed.ID).First(&restored).Error)
	assert.Equal(t, "Gone", restored.FirstName)
	assert.Equal(t, int64(3), restored.Version)
}
