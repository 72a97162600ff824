package rls

import (
	"fmt"

	"gorm.io/gorm"
)

// WithTenant pins the current transaction to one firm so Postgres row-level
// security policies apply. No-op semantics on dialects without SET LOCAL are
// handled by the caller choosing not to invoke this.
func WithTenant(tx *gorm.DB, orgID int64) error {
	return tx.Exec(
		"SET LOCAL app.current_org_id = ?",
		fmt.Sprintf("%d", orgID),
	).Error
}
