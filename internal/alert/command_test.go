package alert

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch/skywatch-go/internal/conf"
)

func TestCommandChannelRunsCommandWithEnv(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	outFile := filepath.Join(t.TempDir(), "out.txt")
	settings := &conf.AlertsSettings{}
	settings.Command.Enabled = true
	settings.Command.Command = "sh"
	settings.Command.Args = []string{"-c", "echo \"$SKYWATCH_CLASS $SKYWATCH_CONFIDENCE\" > " + outFile}
	settings.Command.Timeout = 5

	ch := NewCommandChannel(settings)
	require.NoError(t, ch.Send(context.Background(), detectionOf("raptor")))

	out, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Equal(t, "raptor 0.910", strings.TrimSpace(string(out)))
}

func TestCommandChannelTimeoutKillsCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	settings := &conf.AlertsSettings{}
	settings.Command.Enabled = true
	settings.Command.Command = "sleep"
	settings.Command.Args = []string{"60"}

	ch := NewCommandChannel(settings)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := ch.Send(ctx, detectionOf("raptor"))
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCommandChannelMissingCommand(t *testing.T) {
	settings := &conf.AlertsSettings{}
	settings.Command.Enabled = true
	ch := NewCommandChannel(settings)
	assert.Error(t, ch.Send(context.Background(), detectionOf("raptor")))
}
