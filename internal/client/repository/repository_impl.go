package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wealthdesk/internal/client/domain"
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

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.Client, error) {
	var c domain.Client
	err := r.db.WithContext(ctx).Raw(
		`SELECT * FROM clients WHERE id = ?`, id,
	).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) FindByEmail(ctx context.Context, orgID snowflake.ID, email string) (*domain.Client, error) {
	var c domain.Client
	err := r.db.WithContext(ctx).Raw(
		`SELECT * FROM clients WHERE org_id = ? AND email = ?`, orgID, email,
	).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) Insert(ctx context.Context, c domain.Client) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO clients (id, org_id, household_id, first_name, last_name, email, phone, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OrgID, c.HouseholdID, c.FirstName, c.LastName, c.Email, c.Phone, c.Version, c.CreatedAt, c.UpdatedAt,
	).Error
}

func (r *repository) Update(ctx context.Context, c domain.Client) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE clients SET household_id = ?, first_name = ?, last_name = ?, email = ?, phone = ?, version = ?, updated_at = ?
		 WHERE id = ?`,
		c.HouseholdID, c.FirstName, c.LastName, c.Email, c.Phone, c.Version, c.UpdatedAt, c.ID,
	).Error
}

func (r *repository) OrgIDOf(ctx context.Context, id snowflake.ID) (snowflake.ID, error) {
	var orgID snowflake.ID
	err := r.db.WithContext(ctx).Raw(
		`SELECT org_id FROM clients WHERE id = ?`, id,
	).Scan(&orgID).Error
	if err != nil {
		return 0, err
	}
	return orgID, nil
}
