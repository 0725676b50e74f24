package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ModeInline, cfg.Rollup.Mode)
	assert.Equal(t, 5*time.Second, cfg.Rollup.JobDelay)
	assert.Equal(t, DedupBackendMemory, cfg.Dedup.Backend)
	assert.Equal(t, 60*time.Second, cfg.Dedup.TTL)
	assert.Equal(t, "project_events", cfg.Rabbit.Exchange)
	assert.Equal(t, "component_updates", cfg.Rabbit.Queue)
}

func TestLoadQueuedModeDefaultsToDBDedup(t *testing.T) {
	t.Setenv("ROLLUP_MODE", "queued")

	cfg := Load()

	assert.Equal(t, ModeQueued, cfg.Rollup.Mode)
	assert.Equal(t, DedupBackendDB, cfg.Dedup.Backend)
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	t.Setenv("ROLLUP_MODE", "sideways")
	t.Setenv("DEDUP_BACKEND", "redis")

	cfg := Load()

	assert.Equal(t, ModeInline, cfg.Rollup.Mode)
	assert.Equal(t, DedupBackendMemory, cfg.Dedup.Backend)
}
