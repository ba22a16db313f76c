package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skywatch/skywatch-go/internal/datastore"
	"github.com/skywatch/skywatch-go/internal/logging"
	"github.com/skywatch/skywatch-go/internal/observability"
)

// Dispatcher fans accepted detections out to the notification channels.
// Channels are independent: a failing or slow channel never blocks the
// others, and each send is bounded by the channel's own timeout. Notify is
// called from the single detection loop, so per-channel ordering follows
// from Notify waiting for all sends before returning.
type Dispatcher struct {
	channels           []Channel
	tracker            *IntervalTracker
	defaultMinInterval time.Duration
	metrics            *observability.Metrics
	log                *slog.Logger
}

// NewDispatcher creates a dispatcher over the given channels.
func NewDispatcher(channels []Channel, defaultMinInterval time.Duration, metrics *observability.Metrics) *Dispatcher {
	log := logging.ForService("alert-dispatcher")
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		channels:           channels,
		tracker:            NewIntervalTracker(),
		defaultMinInterval: defaultMinInterval,
		metrics:            metrics,
		log:                log,
	}
}

// Channels returns the configured channels.
func (d *Dispatcher) Channels() []Channel {
	return d.channels
}

// Notify delivers one detection to every enabled channel, applying the
// per-(class, channel) rate limit first. It returns one result per enabled
// channel and blocks no longer than the largest channel timeout.
func (d *Dispatcher) Notify(ctx context.Context, det *datastore.Detection) []ChannelResult {
	results := make([]ChannelResult, 0, len(d.channels))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, ch := range d.channels {
		if !ch.IsEnabled() {
			continue
		}

		minInterval := ch.MinInterval()
		if minInterval == 0 {
			minInterval = d.defaultMinInterval
		}

		allowed, suppressed := d.tracker.Allow(det.ClassLabel, ch.Name(), minInterval)
		if !allowed {
			d.recordOutcome(ch.Name(), OutcomeSuppressed)
			mu.Lock()
			results = append(results, ChannelResult{
				Channel:    ch.Name(),
				Outcome:    OutcomeSuppressed,
				Suppressed: suppressed,
			})
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			result := d.send(ctx, ch, det)
			d.recordOutcome(result.Channel, result.Outcome)
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}(ch)
	}

	wg.Wait()
	return results
}

// send runs one delivery attempt with the channel's timeout applied.
func (d *Dispatcher) send(ctx context.Context, ch Channel, det *datastore.Detection) ChannelResult {
	sendCtx, cancel := context.WithTimeout(ctx, ch.Timeout())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- ch.Send(sendCtx, det)
	}()

	select {
	case err := <-done:
		if err != nil {
			d.log.Warn("alert delivery failed", "channel", ch.Name(), "class", det.ClassLabel, "error", err)
			return ChannelResult{Channel: ch.Name(), Outcome: OutcomeFailed, Err: err}
		}
		d.log.Info("alert sent", "channel", ch.Name(), "class", det.ClassLabel, "confidence", det.Confidence)
		return ChannelResult{Channel: ch.Name(), Outcome: OutcomeSent}
	case <-sendCtx.Done():
		err := fmt.Errorf("channel %s timed out after %s", ch.Name(), ch.Timeout())
		d.log.Warn("alert delivery timed out", "channel", ch.Name(), "timeout", ch.Timeout())
		return ChannelResult{Channel: ch.Name(), Outcome: OutcomeFailed, Err: err}
	}
}

func (d *Dispatcher) recordOutcome(channel string, outcome Outcome) {
	if d.metrics != nil {
		d.metrics.AlertsTotal.WithLabelValues(channel, string(outcome)).Inc()
	}
}
