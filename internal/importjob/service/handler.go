package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wealthdesk/internal/importjob/domain"
	"gorm.io/gorm"
)

// TypeHandler applies one import row of a specific record type.
type TypeHandler interface {
	Type() domain.ImportType
	// NaturalKey extracts the identity used for in-batch duplicate
	// detection. Rows that yield the same key after the first are
	// skipped without touching the database.
	NaturalKey(row map[string]any) (string, error)
	// Apply upserts the row inside tx and records every write it
	// makes through rec.
	Apply(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, row map[string]any, rec Recorder) (domain.RowOutcome, error)
}

func stringField(row map[string]any, key string) string {
	v, ok := row[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func floatField(row map[string]any, key string) (float64, bool) {
	v, ok := row[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

func dateField(row map[string]any, key string) (time.Time, bool) {
	raw := stringField(row, key)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func missingField(key string) error {
	return fmt.Errorf("missing required field %q", key)
}
