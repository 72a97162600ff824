// Package domain contains persistence models for advisory households.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Household groups the clients that are advised together. It is owned
// directly by a firm through OrgID.
type Household struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index" json:"org_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Version   int64        `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Household) TableName() string { return "households" }
