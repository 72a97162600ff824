package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id snowflake.ID) (*Account, error)
	FindByNumber(ctx context.Context, orgID snowflake.ID, accountNumber string) (*Account, error)
	Insert(ctx context.Context, a Account) error
	Update(ctx context.Context, a Account) error
	OrgIDOf(ctx context.Context, id snowflake.ID) (snowflake.ID, error)
}
