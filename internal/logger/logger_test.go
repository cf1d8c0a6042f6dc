package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token_renewer/config"
)

func TestInitializeWritesFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{LogDirectory: dir, LogOutputFile: "out.log", LogErrorFile: "err.log"}

	_, err := Initialize(cfg)
	require.NoError(t, err)

	Info().Print("hello info")
	Warn().Print("careful")
	Error().Print("boom")
	require.NoError(t, Close())

	out, err := os.ReadFile(filepath.Join(dir, "out.log"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(out), "[INFO] "))
	assert.Contains(t, string(out), "hello info")
	assert.Contains(t, string(out), "[WARN] ")

	errOut, err := os.ReadFile(filepath.Join(dir, "err.log"))
	require.NoError(t, err)
	assert.Contains(t, string(errOut), "boom")
	assert.NotContains(t, string(errOut), "hello info")
}

func TestGlobalFallsBackToDefault(t *testing.T) {
	require.NoError(t, Close())
	assert.NotNil(t, Info())
	assert.NotNil(t, Warn())
	assert.NotNil(t, Error())
}
