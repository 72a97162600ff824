package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wealthdesk/internal/liability/domain"
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

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.Liability, error) {
	var l domain.Liability
	err := r.db.WithContext(ctx).Raw(
		`SELECT * FROM liabilities WHERE id = ?`, id,
	).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *repository) FindByLoanNumber(ctx context.Context, orgID snowflake.ID, loanNumber string) (*domain.Liability, error) {
	var l domain.Liability
	err := r.db.WithContext(ctx).Raw(
		`SELECT l.* FROM liabilities l
		 JOIN clients c ON c.id = l.client_id
		 WHERE c.org_id = ? AND l.loan_number = ?`,
		orgID, loanNumber,
	).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *repository) Insert(ctx context.Context, l domain.Liability) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO liabilities (id, client_id, loan_number, lender, balance, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.ClientID, l.LoanNumber, l.Lender, l.Balance, l.Version, l.CreatedAt, l.UpdatedAt,
	).Error
}

func (r *repository) Update(ctx context.Context, l domain.Liability) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE liabilities SET client_id = ?, lender = ?, balance = ?, version = ?, updated_at = ?
		 WHERE id = ?`,
		l.ClientID, l.Lender, l.Balance, l.Version, l.UpdatedAt, l.ID,
	).Error
}

func (r *repository) OrgIDOf(ctx context.Context, id snowflake.ID) (snowflake.ID, error) {
	var orgID snowflake.ID
	err := r.db.WithContext(ctx).Raw(
		`SELECT c.org_id FROM liabilities l
		 JOIN clients c ON c.id = l.client_id
		 WHERE l.id = ?`,
		id,
	).Scan(&orgID).Error
	if err != nil {
		return 0, err
	}
	return orgID, nil
}
