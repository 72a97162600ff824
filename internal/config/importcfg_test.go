package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestImportConfig_Defaults(t *testing.T) {
	cfg := DefaultImportConfig()

	assert.Equal(t, 50, cfg.ChunkSize)
	assert.Equal(t, 10000, cfg.MaxBatchRows)
	assert.Equal(t, 100, cfg.UndoChunkSize)
	assert.Equal(t, 30*time.Second, cfg.UndoLeaseTTL)
	assert.Equal(t, 15*time.Minute, cfg.StuckUndoThreshold)
}

func TestImportConfig_WithDefaultsFillsZeroes(t *testing.T) {
	cfg := ImportConfig{ChunkSize: 25}.withDefaults()

	assert.Equal(t, 25, cfg.ChunkSize)
	assert.Equal(t, 10000, cfg.MaxBatchRows)
	assert.Equal(t, 100, cfg.UndoChunkSize)
	assert.Equal(t, 30*time.Second, cfg.UndoLeaseTTL)

	cfg = ImportConfig{ChunkSize: -1, UndoChunkSize: -5}.withDefaults()
	assert.Equal(t, 50, cfg.ChunkSize)
	assert.Equal(t, 100, cfg.UndoChunkSize)
}

func TestImportConfigHolder_NilServesDefaults(t *testing.T) {
	var holder *ImportConfigHolder

	cfg := holder.Current()
	assert.Equal(t, DefaultImportConfig(), cfg)
}
