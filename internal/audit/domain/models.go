// Package domain contains the audit trail model and service contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AuditLog records one operator-visible action against a firm.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID      `gorm:"not null;index" json:"org_id"`
	ActorID    *snowflake.ID     `gorm:"column:actor_id" json:"actor_id,omitempty"`
	Action     string            `gorm:"type:text;not null" json:"action"`
	TargetType string            `gorm:"type:text;not null" json:"target_type"`
	TargetID   *snowflake.ID     `gorm:"column:target_id" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }
