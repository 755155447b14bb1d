package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pos.log")

	logger, done, err := Init(Options{Mode: "production", File: path})
	require.NoError(t, err)
	assert.Same(t, logger, zap.L())

	zap.L().Info("sale.completed", zap.String("number", "TXN202610170001"))
	done()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"number":"TXN202610170001"`)
}

func TestInitDevelopmentWithoutFile(t *testing.T) {
	logger, done, err := Init(Options{Mode: "development"})
	require.NoError(t, err)
	defer done()
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))
}
