package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relatore/internal/config"
)

func TestNewWritesToFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "relatore.log")
	logger := New(config.LoggingConfig{Level: "debug", File: file, MaxSizeMB: 1})

	logger.Info("hello")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
}

func TestNewBadLevelFallsBack(t *testing.T) {
	logger := New(config.LoggingConfig{Level: "shouting"})
	assert.NotNil(t, logger)
	assert.False(t, logger.Core().Enabled(-1), "debug disabled under info fallback")
}
