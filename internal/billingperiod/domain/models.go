// Package domain contains persistence models for household billing periods.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusDraft    = "draft"
	StatusInvoiced = "invoiced"
	StatusPaid     = "paid"
)

// BillingPeriod is one advisory-fee period for a household. The owning
// firm is reached through the household row.
type BillingPeriod struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	HouseholdID snowflake.ID `gorm:"not null;index" json:"household_id"`
	PeriodStart time.Time    `gorm:"type:date;not null" json:"period_start"`
	PeriodEnd   time.Time    `gorm:"type:date;not null" json:"period_end"`
	Amount      float64      `gorm:"type:numeric(18,2);not null;default:0" json:"amount"`
	Status      string       `gorm:"type:text;not null;default:'draft'" json:"status"`
	Version     int64        `gorm:"not null;default:1" json:"version"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (BillingPeriod) TableName() string { return "billing_periods" }
