// Package orchestrator owns the detection loop: it pulls frames from the
// camera, runs inference, applies the detection policy, persists accepted
// detections and hands them to the alert dispatcher. All pipeline stages run
// sequentially inside a single goroutine, so a detection is fully processed
// before the next frame is read.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/skywatch/skywatch-go/internal/alert"
	"github.com/skywatch/skywatch-go/internal/conf"
	"github.com/skywatch/skywatch-go/internal/datastore"
	"github.com/skywatch/skywatch-go/internal/errors"
	"github.com/skywatch/skywatch-go/internal/frame"
	"github.com/skywatch/skywatch-go/internal/inference"
	"github.com/skywatch/skywatch-go/internal/logging"
	"github.com/skywatch/skywatch-go/internal/observability"
)

const (
	backoffInitial = 2 * time.Second
	backoffMax     = 2 * time.Minute
)

// Orchestrator drives the capture, inference, persistence and alerting
// pipeline through its lifecycle state machine.
type Orchestrator struct {
	source     frame.Source
	adapter    inference.Adapter
	store      datastore.Interface
	dispatcher *alert.Dispatcher
	settingsFn func() *conf.Settings
	metrics    *observability.Metrics
	log        *slog.Logger

	status    *statusStore
	backoff   *Backoff
	restartCh chan struct{}

	snap              conf.Snapshot // last known good loop policy
	appendsSincePrune int

	// test seams
	now            func() time.Time
	transitionHook func(State)
}

// New wires an orchestrator over its collaborators. settingsFn is called
// between loop iterations so configuration changes apply at iteration
// boundaries only.
func New(source frame.Source, adapter inference.Adapter, store datastore.Interface,
	dispatcher *alert.Dispatcher, settingsFn func() *conf.Settings,
	metrics *observability.Metrics) *Orchestrator {
	log := logging.ForService("orchestrator")
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		source:     source,
		adapter:    adapter,
		store:      store,
		dispatcher: dispatcher,
		settingsFn: settingsFn,
		metrics:    metrics,
		log:        log,
		status:     newStatusStore(),
		backoff:    NewBackoff(backoffInitial, backoffMax),
		restartCh:  make(chan struct{}, 1),
		now:        time.Now,
	}
}

// Run executes the state machine until ctx is cancelled. It returns nil on a
// clean shutdown and an error only when the initial configuration is invalid.
func (o *Orchestrator) Run(ctx context.Context) error {
	snap, err := o.settingsFn().Snapshot()
	if err != nil {
		o.status.setConfigValid(false)
		return errors.New(err).
			Component("orchestrator").
			Category(errors.CategoryConfiguration).
			Build()
	}
	o.snap = snap

	state := StateConnecting
	for {
		o.transition(state)
		if ctx.Err() != nil {
			return o.shutdown()
		}

		switch state {
		case StateConnecting:
			state = o.connect(ctx)
		case StateWarmup:
			state = o.warmup(ctx)
		case StateRunning:
			state = o.runLoop(ctx)
		case StateRecovering:
			state = o.recoverOnce(ctx)
		case StateStopped:
			return o.shutdown()
		}
	}
}

// transition records a state change in the status store, the metrics gauge
// and the log. Repeated Recovering entries are intentional, one per attempt.
func (o *Orchestrator) transition(s State) {
	o.status.setState(s)
	if o.metrics != nil {
		o.metrics.LoopState.Set(float64(s))
	}
	o.log.Info("state transition", "state", s.String())
	if o.transitionHook != nil {
		o.transitionHook(s)
	}
}

// connect opens the camera. Failure moves straight to Recovering so the
// backoff schedule governs retries from the very first attempt.
func (o *Orchestrator) connect(ctx context.Context) State {
	if err := o.source.Open(ctx); err != nil {
		o.status.setLastError(err)
		o.log.Error("camera open failed", "error", err)
		return StateRecovering
	}
	o.backoff.Reset()
	o.status.setReconnectAttempts(0)
	o.status.setLastError(nil)
	o.drainRestart()
	return StateWarmup
}

// drainRestart discards a pending restart request. A connect that just
// succeeded already gave the requester the fresh connection they asked for.
func (o *Orchestrator) drainRestart() {
	select {
	case <-o.restartCh:
	default:
	}
}

// warmup primes the model and discards the first frames after a connect so a
// stale buffered frame never produces an alert. A failed model warmup is
// logged but not fatal, the first real inference will pay the load cost.
func (o *Orchestrator) warmup(ctx context.Context) State {
	if err := o.adapter.Warmup(ctx, o.snap.WarmupPasses); err != nil {
		o.log.Warn("model warmup failed, continuing", "error", err)
	}

	for i := 0; i < o.snap.WarmupFrames; i++ {
		if ctx.Err() != nil {
			return StateStopped
		}
		if _, err := o.readOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return StateStopped
			}
			o.status.setLastError(err)
			o.log.Error("warmup frame read failed", "error", err)
			return StateRecovering
		}
	}
	return StateRunning
}

// runLoop is the steady-state detection loop. It returns the next state when
// the loop must leave Running.
func (o *Orchestrator) runLoop(ctx context.Context) State {
	for {
		tickStart := o.now()
		o.refreshSnapshot()

		select {
		case <-ctx.Done():
			return StateStopped
		case <-o.restartCh:
			o.log.Info("restart requested, reconnecting camera")
			if err := o.source.Close(); err != nil {
				o.log.Warn("camera close failed during restart", "error", err)
			}
			return StateConnecting
		default:
		}

		if !o.source.IsHealthy() {
			o.status.setLastError(fmt.Errorf("camera stale: no frame within %s", o.snap.Staleness))
			o.log.Error("camera went stale", "staleness", o.snap.Staleness)
			return StateRecovering
		}

		f, err := o.readFrameWithRetry(ctx)
		switch {
		case err == nil:
			o.process(ctx, f)
		case ctx.Err() != nil:
			return StateStopped
		default:
			o.status.setLastError(err)
			return StateRecovering
		}

		if next := o.waitForTick(ctx, tickStart.Add(o.snap.Interval)); next != StateRunning {
			return next
		}
	}
}

// readOnce reads a single frame and updates the read metrics and status.
func (o *Orchestrator) readOnce(ctx context.Context) (*frame.Frame, error) {
	f, err := o.source.ReadFrame(ctx)
	if err != nil {
		if o.metrics != nil {
			o.metrics.FrameReadErrors.Inc()
		}
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.FramesRead.Inc()
	}
	o.status.setLastFrame(f.CapturedAt)
	return f, nil
}

// readFrameWithRetry retries transient read timeouts up to the configured
// limit. A gone device, or exhausting the retries, escalates to the caller.
func (o *Orchestrator) readFrameWithRetry(ctx context.Context) (*frame.Frame, error) {
	var lastErr error
	for attempt := 0; attempt <= o.snap.MaxReadRetries; attempt++ {
		f, err := o.readOnce(ctx)
		if err == nil {
			return f, nil
		}
		lastErr = err
		if ctx.Err() != nil || !errors.Is(err, frame.ErrReadTimeout) {
			break
		}
		o.log.Warn("frame read timed out", "attempt", attempt+1, "max", o.snap.MaxReadRetries+1)
	}
	return nil, errors.New(lastErr).
		Component("orchestrator").
		Category(errors.CategoryCamera).
		Context("retries", o.snap.MaxReadRetries).
		Build()
}

// process runs inference on one frame and carries every accepted detection
// through persistence and alerting. Inference and store failures are logged
// and skipped, they never terminate the loop.
func (o *Orchestrator) process(ctx context.Context, f *frame.Frame) {
	raw, err := o.adapter.Infer(ctx, f)
	if err != nil {
		if o.metrics != nil {
			o.metrics.InferenceErrors.Inc()
		}
		o.log.Error("inference failed", "error", err)
		return
	}

	for i := range raw {
		r := &raw[i]
		if !o.accept(r) {
			continue
		}

		det := o.toDetection(r, f.CapturedAt)
		if o.metrics != nil {
			o.metrics.DetectionsTotal.WithLabelValues(det.ClassLabel).Inc()
		}

		id, err := o.store.Save(det, f.Data)
		if err != nil {
			// Alerting still proceeds: a full disk must not silence the
			// raptor alarm.
			if o.metrics != nil {
				o.metrics.StoreErrors.Inc()
			}
			o.status.setLastError(err)
			o.log.Error("failed to persist detection", "class", det.ClassLabel, "error", err)
		} else {
			det.ID = id
			o.appendsSincePrune++
		}

		o.status.setLastDetection(&DetectionSummary{
			ID:         det.ID,
			Timestamp:  det.Timestamp,
			Class:      det.ClassLabel,
			Species:    det.SpeciesLabel,
			Confidence: det.Confidence,
		})
		o.dispatcher.Notify(ctx, det)
	}

	o.maybePrune()
}

// accept applies the detection policy: confidence threshold, class accept
// list and minimum box area. Rejected detections are never persisted.
func (o *Orchestrator) accept(r *inference.RawDetection) bool {
	if r.Confidence < o.snap.Threshold {
		return false
	}
	if !o.snap.ClassAccepted(r.Label) {
		return false
	}
	if o.snap.MinBoxArea > 0 && r.Area() < o.snap.MinBoxArea {
		return false
	}
	return true
}

func (o *Orchestrator) toDetection(r *inference.RawDetection, capturedAt time.Time) *datastore.Detection {
	det := &datastore.Detection{
		Timestamp:    capturedAt.UTC(),
		Confidence:   r.Confidence,
		ClassLabel:   r.Label,
		SpeciesLabel: r.Species,
		X1:           r.Box[0],
		Y1:           r.Box[1],
		X2:           r.Box[2],
		Y2:           r.Box[3],
	}
	if len(r.Polygon) > 0 {
		points := make([]datastore.Point, len(r.Polygon))
		for i, p := range r.Polygon {
			points[i] = datastore.Point{X: p.X, Y: p.Y}
		}
		if err := det.SetPolygon(points); err != nil {
			o.log.Warn("failed to encode detection polygon", "error", err)
		}
	}
	return det
}

// maybePrune runs a retention pass every PruneEvery appends.
func (o *Orchestrator) maybePrune() {
	if o.snap.PruneEvery <= 0 || o.appendsSincePrune < o.snap.PruneEvery {
		return
	}
	o.appendsSincePrune = 0

	policy, err := RetentionPolicy(o.snap.Retention)
	if err != nil {
		o.log.Error("invalid retention policy", "error", err)
		return
	}
	if policy.Policy == "" || policy.Policy == "none" {
		return
	}

	deleted, err := o.store.Prune(policy)
	if err != nil {
		o.log.Error("retention prune failed", "error", err)
		return
	}
	if deleted > 0 {
		if o.metrics != nil {
			o.metrics.PrunedDetections.Add(float64(deleted))
		}
		o.log.Info("pruned old detections", "deleted", deleted, "policy", policy.Policy)
	}
}

// refreshSnapshot picks up configuration changes between iterations. An
// invalid configuration keeps the last known good snapshot in force.
func (o *Orchestrator) refreshSnapshot() {
	snap, err := o.settingsFn().Snapshot()
	if err != nil {
		o.status.setConfigValid(false)
		o.log.Warn("ignoring invalid configuration, keeping previous", "error", err)
		return
	}
	o.status.setConfigValid(true)
	o.snap = snap
}

// waitForTick sleeps until the next scheduled tick. The deadline is anchored
// to the tick start so processing time does not push the schedule. A tick
// that overran its interval starts the next read immediately.
func (o *Orchestrator) waitForTick(ctx context.Context, deadline time.Time) State {
	wait := deadline.Sub(o.now())
	if wait <= 0 {
		return StateRunning
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return StateStopped
	case <-o.restartCh:
		o.log.Info("restart requested, reconnecting camera")
		if err := o.source.Close(); err != nil {
			o.log.Warn("camera close failed during restart", "error", err)
		}
		return StateConnecting
	case <-timer.C:
		return StateRunning
	}
}

// recoverOnce releases the camera, waits one backoff delay and attempts a
// reconnect. There is no attempt ceiling, the delay just stays at its cap.
func (o *Orchestrator) recoverOnce(ctx context.Context) State {
	if err := o.source.Close(); err != nil {
		o.log.Warn("camera close failed during recovery", "error", err)
	}

	delay := o.backoff.Next()
	attempt := o.status.incReconnectAttempts()
	if o.metrics != nil {
		o.metrics.Reconnects.Inc()
	}
	o.log.Info("reconnecting camera", "attempt", attempt, "delay", delay.String())

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return StateStopped
	case <-timer.C:
	}

	if err := o.source.Open(ctx); err != nil {
		o.status.setLastError(err)
		o.log.Error("reconnect failed", "attempt", attempt, "error", err)
		return StateRecovering
	}

	o.backoff.Reset()
	o.status.setReconnectAttempts(0)
	o.status.setLastError(nil)
	o.drainRestart()
	o.log.Info("camera reconnected", "attempts", attempt)
	return StateWarmup
}

// shutdown releases the camera and marks the terminal state.
func (o *Orchestrator) shutdown() error {
	o.transition(StateStopped)
	if err := o.source.Close(); err != nil {
		o.log.Warn("camera close failed during shutdown", "error", err)
	}
	o.log.Info("detection loop stopped")
	return nil
}

// RequestRestart asks the loop to drop the camera connection and reconnect
// at the next opportunity. Duplicate requests coalesce.
func (o *Orchestrator) RequestRestart() {
	select {
	case o.restartCh <- struct{}{}:
	default:
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return o.status.getState()
}

// GetStatus assembles the live pipeline status, including store counters.
func (o *Orchestrator) GetStatus() Status {
	st := o.status.snapshot(o.source.IsHealthy())

	if total, err := o.store.Count(); err == nil {
		st.TotalDetections = total
	}
	// "Today" is the operator's local calendar day, not the UTC one.
	now := o.now()
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	if today, err := o.store.CountSince(midnight); err == nil {
		st.DetectionsToday = today
	}
	return st
}

// ListDetections returns stored detections, newest first.
func (o *Orchestrator) ListDetections(limit, offset int, filter *datastore.Filter) ([]datastore.Detection, error) {
	return o.store.Query(limit, offset, filter)
}

// GetDetection returns one stored detection by id.
func (o *Orchestrator) GetDetection(id uint) (*datastore.Detection, error) {
	return o.store.Get(id)
}

// GetSnapshot returns the JPEG snapshot for a stored detection.
func (o *Orchestrator) GetSnapshot(id uint) ([]byte, error) {
	return o.store.GetSnapshot(id)
}

// TriggerTest exercises one pipeline component on demand. Component is one
// of "camera", "inference" or "alerts".
func (o *Orchestrator) TriggerTest(ctx context.Context, component string) error {
	switch component {
	case "camera":
		readCtx, cancel := context.WithTimeout(ctx, o.snap.ReadTimeout+time.Second)
		defer cancel()
		if _, err := o.source.ReadFrame(readCtx); err != nil {
			return errors.New(err).
				Component("orchestrator").
				Category(errors.CategoryCamera).
				Context("test", "camera").
				Build()
		}
		return nil
	case "inference":
		if err := o.adapter.Warmup(ctx, 1); err != nil {
			return errors.New(err).
				Component("orchestrator").
				Category(errors.CategoryInference).
				Context("test", "inference").
				Build()
		}
		return nil
	case "alerts":
		det := &datastore.Detection{
			Timestamp:  o.now().UTC(),
			ClassLabel: "test",
			Confidence: 1.0,
		}
		for _, r := range o.dispatcher.Notify(ctx, det) {
			if r.Outcome == alert.OutcomeFailed {
				return errors.New(r.Err).
					Component("orchestrator").
					Category(errors.CategoryNotification).
					Context("channel", r.Channel).
					Build()
			}
		}
		return nil
	default:
		return errors.Newf("unknown test component: %s", component).
			Component("orchestrator").
			Category(errors.CategoryValidation).
			Build()
	}
}

// RetentionPolicy converts the configured retention settings into the store's
// policy value, parsing the age string.
func RetentionPolicy(r conf.RetentionSettings) (datastore.RetentionPolicy, error) {
	policy := datastore.RetentionPolicy{
		Policy:   r.Policy,
		MaxCount: r.MaxCount,
		MaxUsage: r.MaxUsage,
	}
	if r.Policy == "age" {
		maxAge, err := time.ParseDuration(r.MaxAge)
		if err != nil {
			return datastore.RetentionPolicy{}, fmt.Errorf("invalid retention maxage %q: %w", r.MaxAge, err)
		}
		policy.MaxAge = maxAge
	}
	return policy, nil
}
