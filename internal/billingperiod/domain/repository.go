package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id snowflake.ID) (*BillingPeriod, error)
	FindByHouseholdAndStart(ctx context.Context, householdID snowflake.ID, periodStart time.Time) (*BillingPeriod, error)
	Insert(ctx context.Context, p BillingPeriod) error
	Update(ctx context.Context, p BillingPeriod) error
	OrgIDOf(ctx context.Context, id snowflake.ID) (snowflake.ID, error)
}
