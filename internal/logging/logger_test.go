package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reset restores package state between tests; the logger is package-global
// by design, so tests serialize through it.
func reset() {
	CloseAll()
	logsDir = ""
	Configure(Settings{})
}

func TestDisabledByDefault(t *testing.T) {
	reset()
	t.Cleanup(reset)

	require.NoError(t, Initialize(t.TempDir()))
	assert.False(t, IsDebugMode())
	assert.False(t, IsCategoryEnabled(CategoryGeneration))

	// Must be safe no-ops
	Generation("token appended")
	StoreDebug("transition")
}

func TestInitializeRequiresWorkspace(t *testing.T) {
	reset()
	t.Cleanup(reset)

	assert.Error(t, Initialize(""))
}

func TestWritesCategoryFile(t *testing.T) {
	reset()
	t.Cleanup(reset)

	ws := t.TempDir()
	require.NoError(t, Initialize(ws))
	Configure(Settings{DebugMode: true, Level: "debug"})

	Generation("phase %s started", "plan")
	GenerationDebug("token %d", 1)
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(ws, ".planstream", "logs"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "generation")

	data, err := os.ReadFile(filepath.Join(ws, ".planstream", "logs", entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[INFO] phase plan started")
	assert.Contains(t, string(data), "[DEBUG] token 1")
}

func TestCategoryFilter(t *testing.T) {
	reset()
	t.Cleanup(reset)

	ws := t.TempDir()
	require.NoError(t, Initialize(ws))
	Configure(Settings{
		DebugMode:  true,
		Level:      "info",
		Categories: map[string]bool{"backend": false},
	})

	assert.False(t, IsCategoryEnabled(CategoryBackend))
	assert.True(t, IsCategoryEnabled(CategoryStore))

	Backend("should not appear")
	Store("should appear")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(ws, ".planstream", "logs"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "store")
}

func TestLevelGate(t *testing.T) {
	reset()
	t.Cleanup(reset)

	ws := t.TempDir()
	require.NoError(t, Initialize(ws))
	Configure(Settings{DebugMode: true, Level: "warn"})

	l := Get(CategoryConfig)
	l.Info("filtered")
	l.Warn("kept")
	CloseAll()

	dir := filepath.Join(ws, ".planstream", "logs")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "filtered")
	assert.Contains(t, string(data), "kept")
}

func TestReconfigureAtRuntime(t *testing.T) {
	reset()
	t.Cleanup(reset)

	ws := t.TempDir()
	require.NoError(t, Initialize(ws))
	Configure(Settings{DebugMode: true, Level: "error"})
	assert.True(t, IsDebugMode())

	Configure(Settings{DebugMode: false})
	assert.False(t, IsDebugMode())
	assert.False(t, IsCategoryEnabled(CategoryBoot))
}

func TestTimer(t *testing.T) {
	reset()
	t.Cleanup(reset)

	// Timers are usable even when logging is disabled.
	timer := StartTimer(CategoryGeneration, "stream")
	d := timer.Stop()
	assert.GreaterOrEqual(t, d.Nanoseconds(), int64(0))

	d = StartTimer(CategoryGeneration, "stream").StopWithThreshold(0)
	assert.GreaterOrEqual(t, d.Nanoseconds(), int64(0))
}
