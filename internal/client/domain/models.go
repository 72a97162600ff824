// Package domain contains persistence models for advised clients.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Client is a person advised by a firm. Ownership is direct through
// OrgID; email is the natural key within a firm.
type Client struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID `gorm:"not null;index" json:"org_id"`
	HouseholdID snowflake.ID `gorm:"not null;index" json:"household_id"`
	FirstName   string       `gorm:"type:text;not null" json:"first_name"`
	LastName    string       `gorm:"type:text;not null" json:"last_name"`
	Email       string       `gorm:"type:text;not null;uniqueIndex:ux_clients_org_email,priority:2" json:"email"`
	Phone       string       `gorm:"type:text" json:"phone"`
	Version     int64        `gorm:"not null;default:1" json:"version"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Client) TableName() string { return "clients" }
