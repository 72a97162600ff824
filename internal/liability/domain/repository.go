package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id snowflake.ID) (*Liability, error)
	FindByLoanNumber(ctx context.Context, orgID snowflake.ID, loanNumber string) (*Liability, error)
	Insert(ctx context.Context, l Liability) error
	Update(ctx context.Context, l Liability) error
	OrgIDOf(ctx context.Context, id snowflake.ID) (snowflake.ID, error)
}
