package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wealthdesk/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, req ListAuditLogRequest) ([]AuditLog, error)
}

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string `form:"action"`
	TargetType string `form:"target_type"`
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	Record(ctx context.Context, orgID snowflake.ID, actorID *snowflake.ID, action, targetType string, targetID *snowflake.ID, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
)
