package alert

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strconv"

	"github.com/skywatch/skywatch-go/internal/conf"
	"github.com/skywatch/skywatch-go/internal/datastore"
)

// CommandChannel runs a local command per alert, typically a sound player
// for an audible alarm. Detection fields are passed through SKYWATCH_*
// environment variables so arbitrary scripts can consume them.
type CommandChannel struct {
	channelBase
	command string
	args    []string
}

// NewCommandChannel creates the channel from settings.
func NewCommandChannel(settings *conf.AlertsSettings) *CommandChannel {
	return &CommandChannel{
		channelBase: newChannelBase("command", settings.Command.ChannelSettings),
		command:     settings.Command.Command,
		args:        slices.Clone(settings.Command.Args),
	}
}

// Send runs the command once. The context deadline kills a hung command.
func (c *CommandChannel) Send(ctx context.Context, d *datastore.Detection) error {
	if c.command == "" {
		return fmt.Errorf("command channel has no command configured")
	}

	cmd := exec.CommandContext(ctx, c.command, c.args...)
	cmd.Env = append(os.Environ(),
		"SKYWATCH_DETECTION_ID="+strconv.FormatUint(uint64(d.ID), 10),
		"SKYWATCH_CLASS="+d.ClassLabel,
		"SKYWATCH_SPECIES="+d.SpeciesLabel,
		"SKYWATCH_CONFIDENCE="+strconv.FormatFloat(d.Confidence, 'f', 3, 64),
		"SKYWATCH_TIMESTAMP="+d.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
	)

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("command %s failed: %w (output: %.200s)", c.command, err, string(output))
	}
	return nil
}
