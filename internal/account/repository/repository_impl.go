package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wealthdesk/internal/account/domain"
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

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.Account, error) {
	var a domain.Account
	err := r.db.WithContext(ctx).Raw(
		`SELECT * FROM accounts WHERE id = ?`, id,
	).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repository) FindByNumber(ctx context.Context, orgID snowflake.ID, accountNumber string) (*domain.Account, error) {
	var a domain.Account
	err := r.db.WithContext(ctx).Raw(
		`SELECT a.* FROM accounts a
		 JOIN clients c ON c.id = a.client_id
		 WHERE c.org_id = ? AND a.account_number = ?`,
		orgID, accountNumber,
	).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repository) Insert(ctx context.Context, a domain.Account) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO accounts (id, client_id, account_number, custodian, account_type, balance, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ClientID, a.AccountNumber, a.Custodian, a.AccountType, a.Balance, a.Version, a.CreatedAt, a.UpdatedAt,
	).Error
}

func (r *repository) Update(ctx context.Context, a domain.Account) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE accounts SET client_id = ?, custodian = ?, account_type = ?, balance = ?, version = ?, updated_at = ?
		 WHERE id = ?`,
		a.ClientID, a.Custodian, a.AccountType, a.Balance, a.Version, a.UpdatedAt, a.ID,
	).Error
}

func (r *repository) OrgIDOf(ctx context.Context, id snowflake.ID) (snowflake.ID, error) {
	var orgID snowflake.ID
	err := r.db.WithContext(ctx).Raw(
		`SELECT c.org_id FROM accounts a
		 JOIN clients c ON c.id = a.client_id
		 WHERE a.id = ?`,
		id,
	).Scan(&orgID).Error
	if err != nil {
		return 0, err
	}
	return orgID, nil
}
