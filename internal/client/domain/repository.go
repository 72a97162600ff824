package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id snowflake.ID) (*Client, error)
	FindByEmail(ctx context.Context, orgID snowflake.ID, email string) (*Client, error)
	Insert(ctx context.Context, c Client) error
	Update(ctx context.Context, c Client) error
	OrgIDOf(ctx context.Context, id snowflake.ID) (snowflake.ID, error)
}
