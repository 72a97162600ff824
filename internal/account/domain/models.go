// Package domain contains persistence models for custodial accounts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Account is a custodial account held by a client. It carries no org_id
// of its own; the owning firm is reached through the client row.
type Account struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	ClientID      snowflake.ID `gorm:"not null;index" json:"client_id"`
	AccountNumber string       `gorm:"type:text;not null;index" json:"account_number"`
	Custodian     string       `gorm:"type:text" json:"custodian"`
	AccountType   string       `gorm:"type:text" json:"account_type"`
	Balance       float64      `gorm:"type:numeric(18,2);not null;default:0" json:"balance"`
	Version       int64        `gorm:"not null;default:1" json:"version"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "accounts" }
