package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wealthdesk/internal/audit/domain"
	"github.com/smallbiznis/wealthdesk/pkg/db/option"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repository) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, req domain.ListAuditLogRequest) ([]domain.AuditLog, error) {
	tx := db.WithContext(ctx).Model(&domain.AuditLog{}).Where("org_id = ?", orgID)

	if action := strings.TrimSpace(req.Action); action != "" {
		tx = tx.Where("action = ?", action)
	}
	if targetType := strings.TrimSpace(req.TargetType); targetType != "" {
		tx = tx.Where("target_type = ?", targetType)
	}

	tx = option.ApplyPagination(req.Pagination).Apply(tx)

	var logs []domain.AuditLog
	if err := tx.Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
