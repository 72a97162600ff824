package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wealthdesk/internal/billingperiod/domain"
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

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.BillingPeriod, error) {
	var p domain.BillingPeriod
	err := r.db.WithContext(ctx).Raw(
		`SELECT * FROM billing_periods WHERE id = ?`, id,
	).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) FindByHouseholdAndStart(ctx context.Context, householdID snowflake.ID, periodStart time.Time) (*domain.BillingPeriod, error) {
	var p domain.BillingPeriod
	err := r.db.WithContext(ctx).Raw(
		`SELECT * FROM billing_periods WHERE household_id = ? AND period_start = ?`,
		householdID, periodStart,
	).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) Insert(ctx context.Context, p domain.BillingPeriod) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO billing_periods (id, household_id, period_start, period_end, amount, status, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.HouseholdID, p.PeriodStart, p.PeriodEnd, p.Amount, p.Status, p.Version, p.CreatedAt, p.UpdatedAt,
	).Error
}

func (r *repository) Update(ctx context.Context, p domain.BillingPeriod) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE billing_periods SET household_id = ?, period_end = ?, amount = ?, status = ?, version = ?, updated_at = ?
		 WHERE id = ?`,
		p.HouseholdID, p.PeriodEnd, p.Amount, p.Status, p.Version, p.UpdatedAt, p.ID,
	).Error
}

func (r *repository) OrgIDOf(ctx context.Context, id snowflake.ID) (snowflake.ID, error) {
	var orgID snowflake.ID
	err := r.db.WithContext(ctx).Raw(
		`SELECT h.org_id FROM billing_periods p
		 JOIN households h ON h.id = p.household_id
		 WHERE p.id = ?`,
		id,
	).Scan(&orgID).Error
	if err != nil {
		return 0, err
	}
	return orgID, nil
}
