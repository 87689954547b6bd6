package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HOLD_TTL", "MAX_HOLD_TTL", "SWEEP_INTERVAL", "HTTP_ADDR", "DEFAULT_SEATS_PER_ROW", "OUTBOX_INTERVAL", "DEFAULT_CURRENCY", "MAX_EVENT_CAPACITY", "MAX_BODY_BYTES"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.HoldTTL)
	assert.Equal(t, 30*time.Minute, cfg.MaxHoldTTL)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 10, cfg.DefaultSeatsPerRow)
	assert.Equal(t, time.Second, cfg.OutboxInterval)
	assert.Equal(t, "USD", cfg.Currency)
	assert.Equal(t, 100000, cfg.MaxCapacity)
	assert.Equal(t, 1<<20, cfg.MaxBodyBytes)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HOLD_TTL", "90s")
	t.Setenv("MAX_HOLD_TTL", "10m")
	t.Setenv("ROW_DENSITY", "VIP=4")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.HoldTTL)
	assert.Equal(t, "VIP=4", cfg.RowDensity)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("HOLD_TTL", "soon")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("HOLD_TTL", "1h")
	t.Setenv("MAX_HOLD_TTL", "30m")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadRejectsCapacityCeiling(t *testing.T) {
	t.Setenv("MAX_EVENT_CAPACITY", "1000000")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("MAX_EVENT_CAPACITY", "5000")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.MaxCapacity)
}
