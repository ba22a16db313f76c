package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch/skywatch-go/internal/datastore"
)

// fakeChannel is a scriptable channel for dispatcher tests.
type fakeChannel struct {
	name        string
	enabled     bool
	minInterval time.Duration
	timeout     time.Duration
	sendErr     error
	delay       time.Duration

	mu    sync.Mutex
	sends int
}

func (f *fakeChannel) Name() string               { return f.name }
func (f *fakeChannel) IsEnabled() bool            { return f.enabled }
func (f *fakeChannel) MinInterval() time.Duration { return f.minInterval }
func (f *fakeChannel) Timeout() time.Duration {
	if f.timeout == 0 {
		return time.Second
	}
	return f.timeout
}

func (f *fakeChannel) Send(ctx context.Context, d *datastore.Detection) error {
	f.mu.Lock()
	f.sends++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.sendErr
}

func (f *fakeChannel) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

func detectionOf(class string) *datastore.Detection {
	return &datastore.Detection{
		ID:         1,
		Timestamp:  time.Now().UTC(),
		ClassLabel: class,
		Confidence: 0.91,
		X1:         10, Y1: 10, X2: 100, Y2: 100,
	}
}

func resultFor(t *testing.T, results []ChannelResult, channel string) ChannelResult {
	t.Helper()
	for _, r := range results {
		if r.Channel == channel {
			return r
		}
	}
	t.Fatalf("no result for channel %s", channel)
	return ChannelResult{}
}

func TestNotifySendsToAllEnabledChannels(t *testing.T) {
	audio := &fakeChannel{name: "audio", enabled: true}
	sms := &fakeChannel{name: "sms", enabled: true}
	disabled := &fakeChannel{name: "off", enabled: false}

	d := NewDispatcher([]Channel{audio, sms, disabled}, 0, nil)
	results := d.Notify(context.Background(), detectionOf("raptor"))

	require.Len(t, results, 2, "disabled channels produce no result")
	assert.Equal(t, OutcomeSent, resultFor(t, results, "audio").Outcome)
	assert.Equal(t, OutcomeSent, resultFor(t, results, "sms").Outcome)
	assert.Zero(t, disabled.sendCount())
}

func TestNotifyRateLimitsPerChannel(t *testing.T) {
	audio := &fakeChannel{name: "audio", enabled: true} // zero interval, fires every time
	sms := &fakeChannel{name: "sms", enabled: true, minInterval: 5 * time.Minute}

	d := NewDispatcher([]Channel{audio, sms}, 0, nil)

	first := d.Notify(context.Background(), detectionOf("raptor"))
	second := d.Notify(context.Background(), detectionOf("raptor"))

	assert.Equal(t, OutcomeSent, resultFor(t, first, "sms").Outcome)
	assert.Equal(t, OutcomeSuppressed, resultFor(t, second, "sms").Outcome)
	assert.Equal(t, 1, resultFor(t, second, "sms").Suppressed)
	assert.Equal(t, 1, sms.sendCount(), "suppressed detections must not reach the channel")

	// The audio channel fires for both detections.
	assert.Equal(t, OutcomeSent, resultFor(t, second, "audio").Outcome)
	assert.Equal(t, 2, audio.sendCount())
}

func TestNotifyFailureIsolation(t *testing.T) {
	failing := &fakeChannel{name: "failing", enabled: true, sendErr: errors.New("smtp down")}
	healthy := &fakeChannel{name: "healthy", enabled: true}

	d := NewDispatcher([]Channel{failing, healthy}, 0, nil)
	results := d.Notify(context.Background(), detectionOf("raptor"))

	failed := resultFor(t, results, "failing")
	assert.Equal(t, OutcomeFailed, failed.Outcome)
	assert.Error(t, failed.Err)
	assert.Equal(t, OutcomeSent, resultFor(t, results, "healthy").Outcome)
}

func TestNotifyFailureStillAdvancesWindow(t *testing.T) {
	failing := &fakeChannel{name: "failing", enabled: true, sendErr: errors.New("boom"), minInterval: time.Hour}
	d := NewDispatcher([]Channel{failing}, 0, nil)

	first := d.Notify(context.Background(), detectionOf("raptor"))
	second := d.Notify(context.Background(), detectionOf("raptor"))

	// A failed attempt opens the window like a successful one, so a
	// persistently failing channel cannot cause a retry storm.
	assert.Equal(t, OutcomeFailed, resultFor(t, first, "failing").Outcome)
	assert.Equal(t, OutcomeSuppressed, resultFor(t, second, "failing").Outcome)
	assert.Equal(t, 1, failing.sendCount())
}

func TestNotifySlowChannelBoundedByTimeout(t *testing.T) {
	slow := &fakeChannel{name: "slow", enabled: true, delay: 5 * time.Second, timeout: 50 * time.Millisecond}
	fast := &fakeChannel{name: "fast", enabled: true}

	d := NewDispatcher([]Channel{slow, fast}, 0, nil)

	start := time.Now()
	results := d.Notify(context.Background(), detectionOf("raptor"))
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second, "dispatch must not wait for the slow channel beyond its timeout")
	assert.Equal(t, OutcomeFailed, resultFor(t, results, "slow").Outcome)
	assert.Equal(t, OutcomeSent, resultFor(t, results, "fast").Outcome)
}

func TestNotifyUsesDefaultMinInterval(t *testing.T) {
	ch := &fakeChannel{name: "push", enabled: true} // no per-channel interval
	d := NewDispatcher([]Channel{ch}, time.Hour, nil)

	d.Notify(context.Background(), detectionOf("raptor"))
	second := d.Notify(context.Background(), detectionOf("raptor"))

	assert.Equal(t, OutcomeSuppressed, resultFor(t, second, "push").Outcome)
}
