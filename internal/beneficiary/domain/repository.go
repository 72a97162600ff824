package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id snowflake.ID) (*Beneficiary, error)
	FindByAccountAndName(ctx context.Context, accountID snowflake.ID, fullName string) (*Beneficiary, error)
	Insert(ctx context.Context, b Beneficiary) error
	Update(ctx context.Context, b Beneficiary) error
	OrgIDOf(ctx context.Context, id snowflake.ID) (snowflake.ID, error)
}
