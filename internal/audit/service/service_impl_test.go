package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/wealthdesk/internal/audit/domain"
	"github.com/smallbiznis/wealthdesk/internal/audit/repository"
	"github.com/smallbiznis/wealthdesk/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type tickingClock struct{ now time.Time }

func (c *tickingClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newAuditService(t *testing.T, name string) (auditdomain.Service, *snowflake.Node) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))
	node, err := snowflake.NewNode(6)
	require.NoError(t, err)
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: &tickingClock{now: time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC)},
		Repo:  repository.Provide(),
	})
	return svc, node
}

func TestAuditRecord_Validation(t *testing.T) {
	svc, node := newAuditService(t, "audit_validation")
	orgID := node.Generate()

	err := svc.Record(context.Background(), orgID, nil, "  ", "import_job", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)

	err = svc.Record(context.Background(), 0, nil, "import.finished", "import_job", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidOrganization)
}

func TestAuditList_ScopedAndFiltered(t *testing.T) {
	svc, node := newAuditService(t, "audit_list")
	orgA := node.Generate()
	orgB := node.Generate()

	for i := 0; i < 3; i++ {
		target := node.Generate()
		require.NoError(t, svc.Record(context.Background(), orgA, nil, "import.finished", "import_job", &target, map[string]any{"n": i}))
	}
	target := node.Generate()
	require.NoError(t, svc.Record(context.Background(), orgA, nil, "import.undone", "import_job", &target, nil))
	require.NoError(t, svc.Record(context.Background(), orgB, nil, "import.finished", "import_job", &target, nil))

	ctx := orgcontext.WithOrgID(context.Background(), orgA)

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 4, "the other firm's entries stay invisible")

	resp, err = svc.List(ctx, auditdomain.ListAuditLogRequest{Action: "import.undone"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, "import.undone", resp.AuditLogs[0].Action)

	_, err = svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidOrganization)
}

func TestAuditList_Paging(t *testing.T) {
	svc, node := newAuditService(t, "audit_paging")
	orgID := node.Generate()

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Record(context.Background(), orgID, nil, fmt.Sprintf("action.%d", i), "import_job", nil, nil))
	}

	ctx := orgcontext.WithOrgID(context.Background(), orgID)

	req := auditdomain.ListAuditLogRequest{}
	req.PageSize = 2
	resp, err := svc.List(ctx, req)
	require.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 2)
	assert.True(t, resp.HasMore)
	assert.NotEmpty(t, resp.NextPageToken)

	req.PageToken = resp.NextPageToken
	resp, err = svc.List(ctx, req)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(resp.AuditLogs), 2)

	req.PageToken = "%%%not-a-token"
	_, err = svc.List(ctx, req)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
