package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wealthdesk/internal/household/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.Household, error) {
	var h domain.Household
	err := r.db.WithContext(ctx).Raw(
		`SELECT * FROM households WHERE id = ?`, id,
	).First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *repository) FindByName(ctx context.Context, orgID snowflake.ID, name string) (*domain.Household, error) {
	var h domain.Household
	err := r.db.WithContext(ctx).Raw(
		`SELECT * FROM households WHERE org_id = ? AND name = ?`, orgID, name,
	).First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *repository) Insert(ctx context.Context, h domain.Household) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO households (id, org_id, name, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, h.OrgID, h.Name, h.Version, h.CreatedAt, h.UpdatedAt,
	).Error
}

func (r *repository) Update(ctx context.Context, h domain.Household) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE households SET name = ?, version = ?, updated_at = ? WHERE id = ?`,
		h.Name, h.Version, h.UpdatedAt, h.ID,
	).Error
}

func (r *repository) OrgIDOf(ctx context.Context, id snowflake.ID) (snowflake.ID, error) {
	var orgID snowflake.ID
	err := r.db.WithContext(ctx).Raw(
		`SELECT org_id FROM households WHERE id = ?`, id,
	).Scan(&orgID).Error
	if err != nil {
		return 0, err
	}
	return orgID, nil
}
