package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch/skywatch-go/internal/conf"
)

func TestEnableFileLoggingWritesServiceLogs(t *testing.T) {
	Init()
	logPath := filepath.Join(t.TempDir(), "skywatch.log")

	closeLog, err := EnableFileLogging(conf.LogConfig{
		Enabled:  true,
		Path:     logPath,
		Rotation: conf.RotationDaily,
	})
	require.NoError(t, err)

	ForService("orchestrator").Info("state transition", "state", "running")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "orchestrator", entry["service"])
	assert.Equal(t, "state transition", entry["msg"])
	assert.Equal(t, "running", entry["state"])
}

func TestEnableFileLoggingCreatesLogDirectory(t *testing.T) {
	Init()
	logPath := filepath.Join(t.TempDir(), "logs", "nested", "skywatch.log")

	closeLog, err := EnableFileLogging(conf.LogConfig{Path: logPath, Rotation: conf.RotationSize})
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeLog() })

	Info("started")
	require.NoError(t, closeLog())

	_, err = os.Stat(logPath)
	assert.NoError(t, err)
}

func TestEnableFileLoggingCloseDetachesWriter(t *testing.T) {
	Init()
	logPath := filepath.Join(t.TempDir(), "skywatch.log")

	closeLog, err := EnableFileLogging(conf.LogConfig{Path: logPath, Rotation: conf.RotationSize})
	require.NoError(t, err)
	require.NoError(t, closeLog())

	before, err := os.ReadFile(logPath)
	require.NoError(t, err)

	// After close the structured stream must no longer reach the file.
	Info("after close")
	after, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRotatingWriterRotationMapping(t *testing.T) {
	dir := t.TempDir()

	daily, err := newRotatingWriter(conf.LogConfig{Path: filepath.Join(dir, "d.log"), Rotation: conf.RotationDaily})
	require.NoError(t, err)
	assert.Equal(t, 1, daily.MaxAge)
	assert.Equal(t, 30, daily.MaxBackups)

	weekly, err := newRotatingWriter(conf.LogConfig{Path: filepath.Join(dir, "w.log"), Rotation: conf.RotationWeekly})
	require.NoError(t, err)
	assert.Equal(t, 7, weekly.MaxAge)
	assert.Equal(t, 4, weekly.MaxBackups)

	sized, err := newRotatingWriter(conf.LogConfig{
		Path:     filepath.Join(dir, "s.log"),
		Rotation: conf.RotationSize,
		MaxSize:  10 * 1024 * 1024,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, sized.MaxSize)
}

func TestSetLevelKeepsFileOutput(t *testing.T) {
	Init()
	logPath := filepath.Join(t.TempDir(), "skywatch.log")

	closeLog, err := EnableFileLogging(conf.LogConfig{Path: logPath, Rotation: conf.RotationSize})
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeLog() })

	SetLevel(slog.LevelWarn)
	Warn("still on file")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "still on file")
}
