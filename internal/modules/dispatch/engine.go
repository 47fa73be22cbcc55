// README: Per-driver dispatch engine: serialises ledger, mode and trip queue behind one lock.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"smartdispatch/internal/maps"
	"smartdispatch/internal/modules/antispam"
	"smartdispatch/internal/modules/detour"
	"smartdispatch/internal/modules/notify"
	"smartdispatch/internal/platform/metrics"
)

var ErrInvalidRequest = detour.ErrInvalidRequest

const (
	defaultPushTimeout = 5 * time.Second
	maxDecideAttempts  = 3
)

// Options configures an Engine. Evaluator is required; the ledger, notifier
// and logger fall back to in-memory and log-only defaults.
type Options struct {
	DriverID    string
	Ledger      *antispam.Ledger
	Evaluator   *detour.Evaluator
	Notifier    notify.Notifier
	Settings    SettingsStore
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Now         func() time.Time
	PushTimeout time.Duration
	Mode        Mode
	Config      ModeConfig
}

// Engine owns one driver's dispatch state. Every mutation runs under mu;
// order evaluation holds it only to admit and to record.
type Engine struct {
	driverID    string
	ledger      *antispam.Ledger
	evaluator   *detour.Evaluator
	notifier    notify.Notifier
	settings    SettingsStore
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
	pushTimeout time.Duration

	mu              sync.Mutex
	mode            Mode
	cfg             ModeConfig
	trips           []PlannedTrip
	cancelPublished bool

	pushes sync.WaitGroup
}

func NewEngine(opts Options) *Engine {
	if opts.Evaluator == nil {
		panic("dispatch: NewEngine requires an Evaluator")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = defaultPushTimeout
	}
	if opts.Mode == "" {
		opts.Mode = ModeThreshold
	}
	if opts.Config == (ModeConfig{}) {
		opts.Config = DefaultModeConfig()
	}
	if opts.Ledger == nil {
		opts.Ledger = antispam.NewLedger(antispam.NewMemoryStore(), antispam.DefaultConfig(), opts.Logger)
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLogNotifier(opts.Logger)
	}
	return &Engine{
		driverID:    opts.DriverID,
		ledger:      opts.Ledger,
		evaluator:   opts.Evaluator,
		notifier:    opts.Notifier,
		settings:    opts.Settings,
		metrics:     opts.Metrics,
		logger:      opts.Logger.With("driver_id", opts.DriverID),
		now:         opts.Now,
		pushTimeout: opts.PushTimeout,
		mode:        opts.Mode,
		cfg:         opts.Config,
	}
}

// Restore loads the saved mode, thresholds and planned trips, if any.
func (e *Engine) Restore(ctx context.Context) error {
	if e.settings == nil {
		return nil
	}
	s, err := e.settings.Load(ctx, e.driverID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSettingsUnavailable, err)
	}
	if s == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if m, err := ParseMode(string(s.Mode)); err == nil {
		e.mode = m
	}
	if s.Config.Validate() == nil {
		e.cfg = s.Config
	}
	e.trips = append([]PlannedTrip(nil), s.Trips...)
	sortTrips(e.trips)
	return nil
}

// EvaluateOrder decides on a newly observed order. Mapping failures are
// returned as errors and never recorded in the ledger.
//
// Mapping and solving run without holding mu. A match is recorded only after
// the ledger is checked again under mu, so of two identical orders arriving
// together exactly one is matched.
func (e *Engine) EvaluateOrder(ctx context.Context, driver detour.DriverState, cand detour.OrderCandidate) (*Decision, error) {
	start := e.now()
	if err := driver.Validate(); err != nil {
		return nil, err
	}
	fp := cand.Fingerprint()

	e.mu.Lock()
	mode, cfg := e.mode, e.cfg
	dec, err := e.admitLocked(ctx, fp, true)
	e.mu.Unlock()
	if err == nil && dec == nil {
		mode, dec, err = e.decideAndRecord(ctx, fp, mode, cfg, driver, cand)
	}
	if err != nil {
		e.logger.Warn("order evaluation failed", "fingerprint", fp, "mode", mode, "error", err)
		return nil, err
	}

	dec.Fingerprint = fp
	dec.Mode = mode
	e.metrics.ObserveDecision(string(mode), string(dec.Status), string(dec.ReasonCode), e.now().Sub(start))
	e.logger.Info("order evaluated",
		"fingerprint", fp,
		"mode", mode,
		"status", dec.Status,
		"reason_code", dec.ReasonCode,
		"extra_seconds", dec.ExtraSeconds,
	)
	if dec.Status == StatusMatched {
		e.push(dec, cand)
	}
	return dec, nil
}

// admitLocked returns an ignored decision when the ledger suppresses fp,
// and nil when the order is fresh.
func (e *Engine) admitLocked(ctx context.Context, fp string, observe bool) (*Decision, error) {
	verdict, err := e.ledger.Admit(ctx, fp, e.now())
	if err != nil {
		return nil, err
	}
	if observe {
		e.metrics.ObserveVerdict(string(verdict))
	}
	switch verdict {
	case antispam.VerdictCooldown:
		return ignored(ReasonCooldown, "order was pushed recently, suppressed"), nil
	case antispam.VerdictAbandoned:
		return ignored(ReasonAbandoned, "order was declined or timed out, suppressed"), nil
	}
	return nil, nil
}

// decideAndRecord runs the policy outside the lock and commits the result
// if mode and thresholds did not change meanwhile. When they keep changing,
// the last attempt runs under the lock.
func (e *Engine) decideAndRecord(ctx context.Context, fp string, mode Mode, cfg ModeConfig, driver detour.DriverState, cand detour.OrderCandidate) (Mode, *Decision, error) {
	for attempt := 1; attempt < maxDecideAttempts; attempt++ {
		dec, err := decide(ctx, e.evaluator, mode, cfg, driver, cand)
		if err != nil {
			return mode, nil, err
		}
		e.mu.Lock()
		if e.mode == mode && e.cfg == cfg {
			dec, err = e.commitLocked(ctx, fp, dec)
			e.mu.Unlock()
			return mode, dec, err
		}
		e.logger.Debug("dispatch settings changed during evaluation, re-evaluating", "fingerprint", fp, "attempt", attempt)
		mode, cfg = e.mode, e.cfg
		e.mu.Unlock()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	mode = e.mode
	dec, err := decide(ctx, e.evaluator, mode, e.cfg, driver, cand)
	if err != nil {
		return mode, nil, err
	}
	dec, err = e.commitLocked(ctx, fp, dec)
	return mode, dec, err
}

// commitLocked records a match unless the ledger started suppressing fp
// while the order was being evaluated.
func (e *Engine) commitLocked(ctx context.Context, fp string, dec *Decision) (*Decision, error) {
	if dec.Status != StatusMatched {
		return dec, nil
	}
	suppressed, err := e.admitLocked(ctx, fp, false)
	if err != nil || suppressed != nil {
		return suppressed, err
	}
	if err := e.ledger.Record(ctx, fp, e.now()); err != nil {
		return nil, err
	}
	return dec, nil
}

// push notifies the driver in the background. A failed push never changes
// the decision already made.
func (e *Engine) push(dec *Decision, cand detour.OrderCandidate) {
	var mins float64
	if dec.DetourMinutes != nil {
		mins = *dec.DetourMinutes
	}
	ev := notify.NewEvent(e.driverID, dec.Fingerprint, cand.Pickup, cand.Delivery, cand.Price.String(), mins, e.now())
	ev.NextDrop = dec.NextDropAddress

	e.pushes.Add(1)
	go func() {
		defer e.pushes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.pushTimeout)
		defer cancel()
		err := e.notifier.Notify(ctx, ev)
		e.metrics.ObservePush(err)
		if err != nil {
			e.logger.Error("push failed", "fingerprint", ev.Fingerprint, "error", err)
		}
	}()
}

// Close waits for in-flight pushes.
func (e *Engine) Close() {
	e.pushes.Wait()
}

// ResolveOrderResponse applies the driver's answer to a pushed order.
// Accepting raises the cancel-listing flag for the probe. Asking to stop
// searching moves the mode per ModeAfterStop. Returns the resulting mode.
func (e *Engine) ResolveOrderResponse(ctx context.Context, fingerprint string, accepted, continueSearching bool) (Mode, error) {
	fp := strings.TrimSpace(fingerprint)
	if fp == "" {
		return "", fmt.Errorf("%w: fingerprint is required", ErrInvalidRequest)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ledger.Resolve(ctx, fp, accepted); err != nil {
		return "", fmt.Errorf("resolve %s: %w", fp, err)
	}
	if accepted {
		e.cancelPublished = true
	}
	if !continueSearching {
		next := ModeAfterStop(e.mode)
		e.logger.Info("driver stopped searching", "from", e.mode, "to", next)
		e.mode = next
		e.persistLocked(ctx)
	}
	return e.mode, nil
}

func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

func (e *Engine) SetMode(ctx context.Context, name string) (Mode, error) {
	m, err := ParseMode(name)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = m
	e.persistLocked(ctx)
	return m, nil
}

func (e *Engine) ModeConfig() ModeConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

func (e *Engine) UpdateModeConfig(ctx context.Context, patch ModeConfigPatch) (ModeConfig, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := patch.Apply(e.cfg)
	if err := next.Validate(); err != nil {
		return e.cfg, err
	}
	e.cfg = next
	e.persistLocked(ctx)
	return next, nil
}

func (e *Engine) PlannedTrips() []PlannedTrip {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]PlannedTrip(nil), e.trips...)
}

func (e *Engine) AddPlannedTrip(ctx context.Context, t PlannedTrip) ([]PlannedTrip, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trips = append(e.trips, t)
	sortTrips(e.trips)
	e.persistLocked(ctx)
	return append([]PlannedTrip(nil), e.trips...), nil
}

// UpdatePlannedTrip patches the trip at index in the current queue order.
func (e *Engine) UpdatePlannedTrip(ctx context.Context, index int, patch PlannedTripPatch) ([]PlannedTrip, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.trips) {
		return nil, fmt.Errorf("%w: index %d", ErrTripNotFound, index)
	}
	next := patch.Apply(e.trips[index])
	if err := next.Validate(); err != nil {
		return nil, err
	}
	e.trips[index] = next
	sortTrips(e.trips)
	e.persistLocked(ctx)
	return append([]PlannedTrip(nil), e.trips...), nil
}

func (e *Engine) CompletePlannedTrip(ctx context.Context, index int) ([]PlannedTrip, error) {
	done := true
	return e.UpdatePlannedTrip(ctx, index, PlannedTripPatch{Completed: &done})
}

// PublishSuggestion answers the trip-publishing probe's poll. A pending
// cancel request wins and is consumed by this call.
func (e *Engine) PublishSuggestion(driver *detour.DriverState) Suggestion {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancelPublished {
		e.cancelPublished = false
		return Suggestion{CancelPublished: true}
	}
	switch e.mode {
	case ModePlan:
		if len(e.trips) > 0 && !e.trips[0].Completed {
			t := e.trips[0]
			return Suggestion{Origin: t.Origin, Destination: t.Destination, DepartureTime: t.DepartureTime}
		}
	case ModeThreshold, ModeLocality:
		if driver != nil && len(driver.Deliveries) > 0 {
			return Suggestion{Origin: driver.Location, Destination: driver.Deliveries[len(driver.Deliveries)-1]}
		}
	}
	return Suggestion{}
}

// RoutePreview solves the committed route alone.
func (e *Engine) RoutePreview(ctx context.Context, driver detour.DriverState, tactics maps.Tactics) (*detour.Preview, error) {
	return e.evaluator.Preview(ctx, driver, tactics)
}

// persistLocked saves a snapshot. Failures are logged; the in-memory state
// stays authoritative.
func (e *Engine) persistLocked(ctx context.Context) {
	if e.settings == nil {
		return
	}
	s := Settings{
		Mode:   e.mode,
		Config: e.cfg,
		Trips:  append([]PlannedTrip(nil), e.trips...),
	}
	if err := e.settings.Save(ctx, e.driverID, s); err != nil {
		e.logger.Error("failed to save dispatch settings", "error", err)
	}
}
