package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/wealthdesk/internal/organization/domain"
	"github.com/smallbiznis/wealthdesk/internal/organization/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newOrgService(t *testing.T, name string) domain.Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Organization{}))
	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	clk := fixedClock{now: time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)}
	return NewService(db, repository.NewRepository(db), node, clk)
}

func TestCreateOrganization(t *testing.T) {
	svc := newOrgService(t, "org_create")
	ctx := context.Background()

	org, err := svc.Create(ctx, domain.CreateOrganizationRequest{
		Name:         "Summit Wealth Advisors",
		SupportEmail: "ops@summitwealth.test",
	})
	require.NoError(t, err)
	assert.Equal(t, "summit-wealth-advisors", org.Slug)
	assert.NotZero(t, org.ID)

	fetched, err := svc.GetByID(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, org.Name, fetched.Name)
}

func TestCreateOrganization_DuplicateSlug(t *testing.T) {
	svc := newOrgService(t, "org_duplicate")
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateOrganizationRequest{Name: "Harbor Capital"})
	require.NoError(t, err)

	// The same name slugifies identically, so the second firm is rejected.
	_, err = svc.Create(ctx, domain.CreateOrganizationRequest{Name: "Harbor  Capital"})
	assert.ErrorIs(t, err, domain.ErrOrganizationExists)
}

func TestCreateOrganization_BlankName(t *testing.T) {
	svc := newOrgService(t, "org_blank")

	_, err := svc.Create(context.Background(), domain.CreateOrganizationRequest{Name: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestGetOrganization_Unknown(t *testing.T) {
	svc := newOrgService(t, "org_unknown")

	_, err := svc.GetByID(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidOrganization)

	_, err = svc.GetByID(context.Background(), snowflake.ID(123456789))
	assert.ErrorIs(t, err, domain.ErrInvalidOrganization)
}
