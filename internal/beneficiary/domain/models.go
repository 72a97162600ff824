// Package domain contains persistence models for account beneficiaries.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Beneficiary is a named beneficiary on a custodial account. The owning
// firm is two hops away: beneficiary -> account -> client.
type Beneficiary struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID     snowflake.ID `gorm:"not null;index" json:"account_id"`
	FullName      string       `gorm:"type:text;not null" json:"full_name"`
	Relation      string       `gorm:"type:text" json:"relation"`
	AllocationPct float64      `gorm:"type:numeric(5,2);not null;default:0" json:"allocation_pct"`
	Version       int64        `gorm:"not null;default:1" json:"version"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Beneficiary) TableName() string { return "beneficiaries" }
