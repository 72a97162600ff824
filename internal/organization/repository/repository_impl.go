package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wealthdesk/internal/organization/domain"
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

func (r *repository) Create(ctx context.Context, org domain.Organization) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO organizations (id, name, slug, support_email, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		org.ID,
		org.Name,
		org.Slug,
		org.SupportEmail,
		org.CreatedAt,
		org.UpdatedAt,
	).Error
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).Raw(
		`SELECT * FROM organizations WHERE id = ?`, id,
	).Scan(&org).Error
	if err != nil {
		return nil, err
	}
	if org.ID == 0 {
		return nil, nil
	}
	return &org, nil
}

func (r *repository) FindBySlug(ctx context.Context, s string) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).Raw(
		`SELECT * FROM organizations WHERE slug = ?`, s,
	).First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}
