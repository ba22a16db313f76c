package alert

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/skywatch/skywatch-go/internal/conf"
	"github.com/skywatch/skywatch-go/internal/datastore"
)

// ShoutrrrChannel delivers push notifications through shoutrrr service URLs
// (telegram, discord, pushover and friends). One sender handles all URLs.
type ShoutrrrChannel struct {
	channelBase
	urls   []string
	sender *router.ServiceRouter
}

// NewShoutrrrChannel creates the channel from settings. The sender is built
// lazily on first send so a bad URL disables delivery instead of startup.
func NewShoutrrrChannel(settings *conf.AlertsSettings) *ShoutrrrChannel {
	return &ShoutrrrChannel{
		channelBase: newChannelBase("shoutrrr", settings.Shoutrrr.ChannelSettings),
		urls:        slices.Clone(settings.Shoutrrr.URLs),
	}
}

func (c *ShoutrrrChannel) ensureSender() error {
	if c.sender != nil {
		return nil
	}
	if len(c.urls) == 0 {
		return fmt.Errorf("shoutrrr channel has no URLs configured")
	}
	sender, err := shoutrrr.CreateSender(c.urls...)
	if err != nil {
		return fmt.Errorf("creating shoutrrr sender: %w", err)
	}
	sender.Timeout = c.timeout
	sender.SetLogger(log.New(io.Discard, "", 0))
	c.sender = sender
	return nil
}

// Send pushes one detection to all configured service URLs.
func (c *ShoutrrrChannel) Send(ctx context.Context, d *datastore.Detection) error {
	if err := c.ensureSender(); err != nil {
		return err
	}
	_ = ctx // the router enforces its own timeout

	params := stypes.Params{}
	params.SetTitle(alertTitle(d))

	errs := c.sender.Send(alertMessage(d), &params)
	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("shoutrrr send: %w", err)
		}
	}
	return nil
}
