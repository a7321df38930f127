package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/looplab/fsm"

	"github.com/fleetsink-io/fleetsink/internal/pkg/metrics"
	fsmutil "github.com/fleetsink-io/fleetsink/internal/pkg/util/fsm"
	"github.com/fleetsink-io/fleetsink/pkg/clock"
	"github.com/fleetsink-io/fleetsink/pkg/fleetapi"
	"github.com/fleetsink-io/fleetsink/pkg/log"
)

// Scheduler states.
const (
	StateAuthenticating = "authenticating"
	StateRunning        = "running"
	StateBackoff        = "backoff"
	StateStopped        = "stopped"
)

// Scheduler events.
const (
	// EventAuthOK moves into the sync loop after the credential exchange.
	EventAuthOK = "event_auth_ok"
	// EventBackoff leaves the sync loop to wait out a recoverable failure.
	// Args: wait time.Duration, reason string.
	EventBackoff = "event_backoff"
	// EventRecover re-enters the sync loop once the backoff elapsed.
	EventRecover = "event_recover"
	// EventStop is terminal, on fatal errors and cancellation.
	EventStop = "event_stop"
)

// Authenticator establishes the remote session before the first cycle.
type Authenticator interface {
	Authenticate(ctx context.Context) error
}

// CycleRunner runs one fetch-diff-write pass.
type CycleRunner interface {
	RunCycle(ctx context.Context) (CycleReport, error)
}

// SchedulerConfig wires a Scheduler. Zero durations fall back to the
// defaults 60s / 10s / 60s; a nil Clock falls back to the real one.
type SchedulerConfig struct {
	Authenticator Authenticator
	Runner        CycleRunner
	Clock         clock.Clock

	// Interval separates successful cycles.
	Interval time.Duration

	// TransientBackoff is the wait after a transient failure,
	// RateLimitBackoff the wait after the server throttles us.
	TransientBackoff time.Duration
	RateLimitBackoff time.Duration

	// OnReport, when set, observes every finished cycle with its error.
	OnReport func(report CycleReport, err error)

	// OnStateChange, when set, observes every state the scheduler enters.
	OnStateChange func(state string)
}

// Scheduler drives the sync loop through a small state machine:
//
//	authenticating -> running -> backoff -> running -> ... -> stopped
//
// Success keeps it in running (sleep, then next cycle). Transient and
// rate-limit failures detour through backoff. Auth, validation and
// unclassified failures stop it, as does context cancellation.
type Scheduler struct {
	fsm *fsm.FSM

	auth   Authenticator
	runner CycleRunner
	clk    clock.Clock

	interval         time.Duration
	transientBackoff time.Duration
	rateLimitBackoff time.Duration
	onReport         func(CycleReport, error)
	onStateChange    func(string)

	// wait is the pending backoff, set on entering the backoff state.
	wait time.Duration
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	s := &Scheduler{
		auth:             cfg.Authenticator,
		runner:           cfg.Runner,
		clk:              cfg.Clock,
		interval:         cfg.Interval,
		transientBackoff: cfg.TransientBackoff,
		rateLimitBackoff: cfg.RateLimitBackoff,
		onReport:         cfg.OnReport,
		onStateChange:    cfg.OnStateChange,
	}
	if s.clk == nil {
		s.clk = clock.Real()
	}
	if s.interval <= 0 {
		s.interval = 60 * time.Second
	}
	if s.transientBackoff <= 0 {
		s.transientBackoff = 10 * time.Second
	}
	if s.rateLimitBackoff <= 0 {
		s.rateLimitBackoff = 60 * time.Second
	}

	events := fsm.Events{
		{Name: EventAuthOK, Src: []string{StateAuthenticating}, Dst: StateRunning},
		{Name: EventBackoff, Src: []string{StateRunning}, Dst: StateBackoff},
		{Name: EventRecover, Src: []string{StateBackoff}, Dst: StateRunning},
		{Name: EventStop, Src: []string{StateAuthenticating, StateRunning, StateBackoff}, Dst: StateStopped},
	}

	callbacks := fsm.Callbacks{
		// Guards (before_...): Decide if a transition is allowed
		"before_" + EventBackoff: fsmutil.WrapEvent(s.guardBackoffArgs),

		// Side-Effects (enter_...): Run bookkeeping upon entering a state
		"enter_" + StateRunning: fsmutil.WrapEvent(s.actionEnterRunning),
		"enter_" + StateBackoff: fsmutil.WrapEvent(s.actionEnterBackoff),
		"enter_" + StateStopped: fsmutil.WrapEvent(s.actionEnterStopped),

		// enter_state runs after the specific callbacks, for every state.
		"enter_state": fsmutil.WrapEvent(s.actionEnterState),
	}

	s.fsm = fsm.NewFSM(StateAuthenticating, events, callbacks)
	return s
}

// State returns the current scheduler state.
func (s *Scheduler) State() string {
	return s.fsm.Current()
}

// Run authenticates once and then loops until a fatal failure or
// cancellation. The returned error is nil for a graceful stop.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info("Authenticating against fleet server")
	if err := s.auth.Authenticate(ctx); err != nil {
		s.transition(ctx, EventStop)
		if ctx.Err() != nil {
			log.Info("Canceled during authentication")
			return nil
		}
		log.Error(err, "Authentication failed")
		return fmt.Errorf("authenticate: %w", err)
	}
	s.transition(ctx, EventAuthOK)

	for {
		switch s.fsm.Current() {
		case StateRunning:
			if ctx.Err() != nil {
				s.transition(ctx, EventStop)
				continue
			}
			if err := s.runOnce(ctx); err != nil {
				return err
			}

		case StateBackoff:
			if !s.sleep(ctx, s.wait) {
				s.transition(ctx, EventStop)
				continue
			}
			s.transition(ctx, EventRecover)

		case StateStopped:
			return nil

		default:
			return fmt.Errorf("scheduler in unexpected state %q", s.fsm.Current())
		}
	}
}

// runOnce executes a single cycle from the running state and applies the
// retry policy to its outcome. A non-nil return is fatal for the loop.
func (s *Scheduler) runOnce(ctx context.Context) error {
	report, err := s.runner.RunCycle(ctx)
	if s.onReport != nil {
		s.onReport(report, err)
	}

	if err == nil {
		metrics.CyclesTotal.WithLabelValues("success").Inc()
		metrics.CycleDuration.Observe(report.Elapsed.Seconds())
		if !s.sleep(ctx, s.interval) {
			s.transition(ctx, EventStop)
		}
		return nil
	}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		log.Info("Shutdown requested, stopping sync loop")
		s.transition(ctx, EventStop)
		return nil
	}

	kind := fleetapi.KindOf(err)
	metrics.CyclesTotal.WithLabelValues(kind.String()).Inc()

	switch kind {
	case fleetapi.KindTransient:
		log.Error(err, "Cycle failed with a transient error")
		s.transition(ctx, EventBackoff, s.transientBackoff, "transient")
	case fleetapi.KindRateLimit:
		log.Error(err, "Fleet server is rate limiting us")
		s.transition(ctx, EventBackoff, s.rateLimitBackoff, "rate-limit")
	case fleetapi.KindAuth:
		log.Error(err, "Session could not be re-established")
		s.transition(ctx, EventStop)
		return err
	case fleetapi.KindValidation:
		log.Error(err, "Fleet server rejected our requests")
		s.transition(ctx, EventStop)
		return err
	default:
		log.Error(err, "Unclassified failure, refusing to retry")
		s.transition(ctx, EventStop)
		return err
	}
	return nil
}

// sleep waits d on the injected clock. It returns false when the context
// was canceled first.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-s.clk.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Scheduler) transition(ctx context.Context, event string, args ...any) {
	if err := s.fsm.Event(ctx, event, args...); err != nil && !fsmutil.IsNoTransition(err) {
		log.Error(err, "State transition rejected", "event", event, "state", s.fsm.Current())
	}
}

// guardBackoffArgs is a "Guard" callback. It cancels the transition when the
// event does not carry a positive wait and a reason.
func (s *Scheduler) guardBackoffArgs(ctx context.Context, e *fsm.Event) error {
	if len(e.Args) < 2 {
		e.Cancel(fmt.Errorf("backoff event needs wait and reason arguments"))
		return nil
	}
	wait, ok := e.Args[0].(time.Duration)
	if !ok || wait <= 0 {
		e.Cancel(fmt.Errorf("backoff event needs a positive wait, got %v", e.Args[0]))
	}
	return nil
}

// actionEnterRunning is a "Side-Effect" callback.
func (s *Scheduler) actionEnterRunning(ctx context.Context, e *fsm.Event) error {
	switch e.Event {
	case EventAuthOK:
		log.Info("Authenticated, entering sync loop")
	case EventRecover:
		log.Info("Backoff elapsed, resuming sync loop")
	}
	return nil
}

// actionEnterBackoff is a "Side-Effect" callback. It stores the wait the
// backoff state will sleep for.
func (s *Scheduler) actionEnterBackoff(ctx context.Context, e *fsm.Event) error {
	wait := e.Args[0].(time.Duration)
	reason, _ := e.Args[1].(string)

	s.wait = wait
	metrics.BackoffsTotal.WithLabelValues(reason).Inc()
	log.Warn("Backing off", "reason", reason, "wait", wait)
	return nil
}

// actionEnterStopped is a "Side-Effect" callback.
func (s *Scheduler) actionEnterStopped(ctx context.Context, e *fsm.Event) error {
	log.Info("Scheduler stopped")
	return nil
}

// actionEnterState forwards every state change to the observer.
func (s *Scheduler) actionEnterState(ctx context.Context, e *fsm.Event) error {
	if s.onStateChange != nil {
		s.onStateChange(e.Dst)
	}
	return nil
}
