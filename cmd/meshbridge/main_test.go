package main

import (
	"flag"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshbridge/meshbridge-go/pkg/config"
)

func TestLoadConfigLogLevelOverride(t *testing.T) {
	t.Cleanup(func() { _ = flag.Set("log-level", "") })

	require.NoError(t, flag.Set("log-level", "debug"))
	cfg, err := loadConfig()
	require.NoError(t, err)

	level, err := config.ParseLevel(cfg.Logging.Level)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	require.NoError(t, flag.Set("log-level", "loud"))
	_, err = loadConfig()
	assert.Error(t, err, "an unknown level is rejected before logging is set up")
}
