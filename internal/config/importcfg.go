package config

import (
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ImportConfig tunes the bulk import pipeline and the undo engine. Chunk sizes
// trade progress granularity against per-chunk overhead; neither affects
// correctness.
type ImportConfig struct {
	ChunkSize          int           `mapstructure:"chunk_size"`
	MaxBatchRows       int           `mapstructure:"max_batch_rows"`
	UndoChunkSize      int           `mapstructure:"undo_chunk_size"`
	UndoLeaseTTL       time.Duration `mapstructure:"undo_lease_ttl"`
	StuckUndoThreshold time.Duration `mapstructure:"stuck_undo_threshold"`
}

func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		ChunkSize:          50,
		MaxBatchRows:       10000,
		UndoChunkSize:      100,
		UndoLeaseTTL:       30 * time.Second,
		StuckUndoThreshold: 15 * time.Minute,
	}
}

func (c ImportConfig) withDefaults() ImportConfig {
	defaults := DefaultImportConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaults.ChunkSize
	}
	if c.MaxBatchRows <= 0 {
		c.MaxBatchRows = defaults.MaxBatchRows
	}
	if c.UndoChunkSize <= 0 {
		c.UndoChunkSize = defaults.UndoChunkSize
	}
	if c.UndoLeaseTTL <= 0 {
		c.UndoLeaseTTL = defaults.UndoLeaseTTL
	}
	if c.StuckUndoThreshold <= 0 {
		c.StuckUndoThreshold = defaults.StuckUndoThreshold
	}
	return c
}

// ImportConfigHolder serves the current import tuning and hot-reloads it when
// the mounted config file changes.
type ImportConfigHolder struct {
	current atomic.Value // holds ImportConfig
}

func NewImportConfigHolder() (*ImportConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("import")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/wealthdesk/config")
	v.AddConfigPath("/etc/wealthdesk")
	v.AddConfigPath("./config")

	holder := &ImportConfigHolder{}
	holder.current.Store(DefaultImportConfig())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		return holder, nil
	}

	if cfg, err := decodeImportConfig(v); err == nil {
		holder.current.Store(cfg)
	} else {
		log.Printf("import config: keeping defaults: %v", err)
	}

	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := decodeImportConfig(v)
		if err != nil {
			log.Printf("import config reload rejected: %v", err)
			return
		}
		holder.current.Store(cfg)
	})
	v.WatchConfig()

	return holder, nil
}

func (h *ImportConfigHolder) Current() ImportConfig {
	if h == nil {
		return DefaultImportConfig()
	}
	if cfg, ok := h.current.Load().(ImportConfig); ok {
		return cfg
	}
	return DefaultImportConfig()
}

func decodeImportConfig(v *viper.Viper) (ImportConfig, error) {
	var cfg ImportConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ImportConfig{}, err
	}
	return cfg.withDefaults(), nil
}
