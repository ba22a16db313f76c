package alert

import (
	"context"
	"time"

	"github.com/skywatch/skywatch-go/internal/conf"
	"github.com/skywatch/skywatch-go/internal/datastore"
)

// Channel is one notification delivery mechanism. Implementations must be
// safe for concurrent use. New channels are additive, dispatch logic never
// changes for them.
type Channel interface {
	Name() string
	IsEnabled() bool
	// MinInterval is the per-class minimum time between alerts on this
	// channel. Zero falls back to the dispatcher default.
	MinInterval() time.Duration
	// Timeout bounds a single Send call.
	Timeout() time.Duration
	Send(ctx context.Context, d *datastore.Detection) error
}

// channelBase carries the settings shared by all concrete channels.
type channelBase struct {
	name        string
	enabled     bool
	minInterval time.Duration
	timeout     time.Duration
}

func newChannelBase(name string, cs conf.ChannelSettings) channelBase {
	timeout := time.Duration(cs.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return channelBase{
		name:        name,
		enabled:     cs.Enabled,
		minInterval: time.Duration(cs.MinInterval) * time.Second,
		timeout:     timeout,
	}
}

func (c *channelBase) Name() string               { return c.name }
func (c *channelBase) IsEnabled() bool            { return c.enabled }
func (c *channelBase) MinInterval() time.Duration { return c.minInterval }
func (c *channelBase) Timeout() time.Duration     { return c.timeout }

// ChannelsFromSettings builds all configured channels, enabled or not.
// Disabled channels are kept so status surfaces can list them.
func ChannelsFromSettings(settings *conf.AlertsSettings) []Channel {
	return []Channel{
		NewShoutrrrChannel(settings),
		NewWebhookChannel(settings),
		NewMQTTChannel(settings),
		NewCommandChannel(settings),
	}
}
