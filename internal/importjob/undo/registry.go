package undo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/wealthdesk/internal/account/domain"
	beneficiarydomain "github.com/smallbiznis/wealthdesk/internal/beneficiary/domain"
	billingdomain "github.com/smallbiznis/wealthdesk/internal/billingperiod/domain"
	clientdomain "github.com/smallbiznis/wealthdesk/internal/client/domain"
	householddomain "github.com/smallbiznis/wealthdesk/internal/household/domain"
	liabilitydomain "github.com/smallbiznis/wealthdesk/internal/liability/domain"
	"gorm.io/gorm"
)

// Collection is the replay surface for one record table. Reversal only
// ever needs four primitives: find the owning firm, delete a created
// row, restore an updated row, and re-insert a deleted row.
type Collection interface {
	Name() string
	// OrgIDOf resolves the owning firm of a live row, walking the
	// ownership chain where the table carries no org_id of its own.
	// It returns 0 when the row no longer exists.
	OrgIDOf(ctx context.Context, tx *gorm.DB, id snowflake.ID) (snowflake.ID, error)
	// SnapshotOrgID resolves the owning firm from a snapshot, for
	// rows that are no longer in the table.
	SnapshotOrgID(ctx context.Context, tx *gorm.DB, snapshot []byte) (snowflake.ID, error)
	Version(snapshot []byte) (int64, error)
	Insert(ctx context.Context, tx *gorm.DB, snapshot []byte) error
	// Restore overwrites the row with the snapshot when its version
	// still matches expectVersion. It reports whether the guarded
	// write took effect.
	Restore(ctx context.Context, tx *gorm.DB, id snowflake.ID, snapshot []byte, expectVersion int64) (bool, error)
	// RestoreAny overwrites the row unconditionally. Used as the
	// fallback when the version guard misses.
	RestoreAny(ctx context.Context, tx *gorm.DB, id snowflake.ID, snapshot []byte) error
	Delete(ctx context.Context, tx *gorm.DB, id snowflake.ID) error
}

type collection[T any] struct {
	name          string
	orgIDOf       func(ctx context.Context, tx *gorm.DB, id snowflake.ID) (snowflake.ID, error)
	snapshotOrgID func(ctx context.Context, tx *gorm.DB, model T) (snowflake.ID, error)
	version       func(model T) int64
}

func (c *collection[T]) Name() string { return c.name }

func (c *collection[T]) OrgIDOf(ctx context.Context, tx *gorm.DB, id snowflake.ID) (snowflake.ID, error) {
	return c.orgIDOf(ctx, tx, id)
}

func (c *collection[T]) decode(snapshot []byte) (T, error) {
	var m T
	if err := json.Unmarshal(snapshot, &m); err != nil {
		return m, fmt.Errorf("decode %s snapshot: %w", c.name, err)
	}
	return m, nil
}

func (c *collection[T]) SnapshotOrgID(ctx context.Context, tx *gorm.DB, snapshot []byte) (snowflake.ID, error) {
	m, err := c.decode(snapshot)
	if err != nil {
		return 0, err
	}
	return c.snapshotOrgID(ctx, tx, m)
}

func (c *collection[T]) Version(snapshot []byte) (int64, error) {
	m, err := c.decode(snapshot)
	if err != nil {
		return 0, err
	}
	return c.version(m), nil
}

func (c *collection[T]) Insert(ctx context.Context, tx *gorm.DB, snapshot []byte) error {
	m, err := c.decode(snapshot)
	if err != nil {
		return err
	}
	return tx.WithContext(ctx).Table(c.name).Create(&m).Error
}

func (c *collection[T]) Restore(ctx context.Context, tx *gorm.DB, id snowflake.ID, snapshot []byte, expectVersion int64) (bool, error) {
	m, err := c.decode(snapshot)
	if err != nil {
		return false, err
	}
	res := tx.WithContext(ctx).Table(c.name).
		Where("id = ? AND version = ?", id, expectVersion).
		Select("*").
		Updates(&m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (c *collection[T]) RestoreAny(ctx context.Context, tx *gorm.DB, id snowflake.ID, snapshot []byte) error {
	m, err := c.decode(snapshot)
	if err != nil {
		return err
	}
	return tx.WithContext(ctx).Table(c.name).
		Where("id = ?", id).
		Select("*").
		Updates(&m).Error
}

func (c *collection[T]) Delete(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	return tx.WithContext(ctx).Exec(
		fmt.Sprintf("DELETE FROM %s WHERE id = ?", c.name), id,
	).Error
}

// Registry maps operation collections to their replay surfaces.
type Registry struct {
	byName map[string]Collection
}

func NewRegistry(
	households householddomain.Repository,
	clients clientdomain.Repository,
	accounts accountdomain.Repository,
	liabilities liabilitydomain.Repository,
	beneficiaries beneficiarydomain.Repository,
	billing billingdomain.Repository,
) *Registry {
	cols := []Collection{
		&collection[householddomain.Household]{
			name: householddomain.Household{}.TableName(),
			orgIDOf: func(ctx context.Context, tx *gorm.DB, id snowflake.ID) (snowflake.ID, error) {
				return households.WithTx(tx).OrgIDOf(ctx, id)
			},
			snapshotOrgID: func(_ context.Context, _ *gorm.DB, m householddomain.Household) (snowflake.ID, error) {
				return m.OrgID, nil
			},
			version: func(m householddomain.Household) int64 { return m.Version },
		},
		&collection[clientdomain.Client]{
			name: clientdomain.Client{}.TableName(),
			orgIDOf: func(ctx context.Context, tx *gorm.DB, id snowflake.ID) (snowflake.ID, error) {
				return clients.WithTx(tx).OrgIDOf(ctx, id)
			},
			snapshotOrgID: func(_ context.Context, _ *gorm.DB, m clientdomain.Client) (snowflake.ID, error) {
				return m.OrgID, nil
			},
			version: func(m clientdomain.Client) int64 { return m.Version },
		},
		&collection[accountdomain.Account]{
			name: accountdomain.Account{}.TableName(),
			orgIDOf: func(ctx context.Context, tx *gorm.DB, id snowflake.ID) (snowflake.ID, error) {
				return accounts.WithTx(tx).OrgIDOf(ctx, id)
			},
			snapshotOrgID: func(ctx context.Context, tx *gorm.DB, m accountdomain.Account) (snowflake.ID, error) {
				return clients.WithTx(tx).OrgIDOf(ctx, m.ClientID)
			},
			version: func(m accountdomain.Account) int64 { return m.Version },
		},
		&collection[liabilitydomain.Liability]{
			name: liabilitydomain.Liability{}.TableName(),
			orgIDOf: func(ctx context.Context, tx *gorm.DB, id snowflake.ID) (snowflake.ID, error) {
				return liabilities.WithTx(tx).OrgIDOf(ctx, id)
			},
			snapshotOrgID: func(ctx context.Context, tx *gorm.DB, m liabilitydomain.Liability) (snowflake.ID, error) {
				return clients.WithTx(tx).OrgIDOf(ctx, m.ClientID)
			},
			version: func(m liabilitydomain.Liability) int64 { return m.Version },
		},
		&collection[beneficiarydomain.Beneficiary]{
			name: beneficiarydomain.Beneficiary{}.TableName(),
			orgIDOf: func(ctx context.Context, tx *gorm.DB, id snowflake.ID) (snowflake.ID, error) {
				return beneficiaries.WithTx(tx).OrgIDOf(ctx, id)
			},
			snapshotOrgID: func(ctx context.Context, tx *gorm.DB, m beneficiarydomain.Beneficiary) (snowflake.ID, error) {
				return accounts.WithTx(tx).OrgIDOf(ctx, m.AccountID)
			},
			version: func(m beneficiarydomain.Beneficiary) int64 { return m.Version },
		},
		&collection[billingdomain.BillingPeriod]{
			name: billingdomain.BillingPeriod{}.TableName(),
			orgIDOf: func(ctx context.Context, tx *gorm.DB, id snowflake.ID) (snowflake.ID, error) {
				return billing.WithTx(tx).OrgIDOf(ctx, id)
			},
			snapshotOrgID: func(ctx context.Context, tx *gorm.DB, m billingdomain.BillingPeriod) (snowflake.ID, error) {
				return households.WithTx(tx).OrgIDOf(ctx, m.HouseholdID)
			},
			version: func(m billingdomain.BillingPeriod) int64 { return m.Version },
		},
	}

	byName := make(map[string]Collection, len(cols))
	for _, col := range cols {
		byName[col.Name()] = col
	}
	return &Registry{byName: byName}
}

func (r *Registry) Get(name string) (Collection, bool) {
	col, ok := r.byName[name]
	return col, ok
}
