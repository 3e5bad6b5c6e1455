package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/erp/ledgercore/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"DEBUG":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_WritesJSONWithService(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log, err := New(config.LogConfig{Level: "info", Format: "json", Output: path}, "ledgercore")
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("visible")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"msg":"visible"`)
	assert.Contains(t, lines[0], `"service":"ledgercore"`)
}

func TestNew_BadOutput(t *testing.T) {
	_, err := New(config.LogConfig{Output: filepath.Join(t.TempDir(), "missing", "app.log")}, "")
	assert.Error(t, err)
}
