// Package domain contains persistence models for client liabilities.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Liability is a loan or other debt held by a client. The owning firm
// is reached through the client row.
type Liability struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	ClientID   snowflake.ID `gorm:"not null;index" json:"client_id"`
	LoanNumber string       `gorm:"type:text;not null;index" json:"loan_number"`
	Lender     string       `gorm:"type:text" json:"lender"`
	Balance    float64      `gorm:"type:numeric(18,2);not null;default:0" json:"balance"`
	Version    int64        `gorm:"not null;default:1" json:"version"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Liability) TableName() string { return "liabilities" }
