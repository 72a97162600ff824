package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wealthdesk/internal/beneficiary/domain"
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

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.Beneficiary, error) {
	var b domain.Beneficiary
	err := r.db.WithContext(ctx).Raw(
		`SELECT * FROM beneficiaries WHERE id = ?`, id,
	).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repository) FindByAccountAndName(ctx context.Context, accountID snowflake.ID, fullName string) (*domain.Beneficiary, error) {
	var b domain.Beneficiary
	err := r.db.WithContext(ctx).Raw(
		`SELECT * FROM beneficiaries WHERE account_id = ? AND full_name = ?`,
		accountID, fullName,
	).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repository) Insert(ctx context.Context, b domain.Beneficiary) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO beneficiaries (id, account_id, full_name, relation, allocation_pct, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.AccountID, b.FullName, b.Relation, b.AllocationPct, b.Version, b.CreatedAt, b.UpdatedAt,
	).Error
}

func (r *repository) Update(ctx context.Context, b domain.Beneficiary) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE beneficiaries SET account_id = ?, relation = ?, allocation_pct = ?, version = ?, updated_at = ?
		 WHERE id = ?`,
		b.AccountID, b.Relation, b.AllocationPct, b.Version, b.UpdatedAt, b.ID,
	).Error
}

func (r *repository) OrgIDOf(ctx context.Context, id snowflake.ID) (snowflake.ID, error) {
	var orgID snowflake.ID
	err := r.db.WithContext(ctx).Raw(
		`SELECT c.org_id FROM beneficiaries b
		 JOIN accounts a ON a.id = b.account_id
		 JOIN clients c ON c.id = a.client_id
		 WHERE b.id = ?`,
		id,
	).Scan(&orgID).Error
	if err != nil {
		return 0, err
	}
	return orgID, nil
}
