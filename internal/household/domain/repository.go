package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id snowflake.ID) (*Household, error)
	FindByName(ctx context.Context, orgID snowflake.ID, name string) (*Household, error)
	Insert(ctx context.Context, h Household) error
	Update(ctx context.Context, h Household) error
	OrgIDOf(ctx context.Context, id snowflake.ID) (snowflake.ID, error)
}
