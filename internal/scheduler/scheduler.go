package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"horde-monitor/internal/horde"
	"horde-monitor/internal/metrics"
	"horde-monitor/internal/registry"
)

var (
	// ErrConfig rejects a start with an empty credential or a non-positive interval.
	ErrConfig = errors.New("invalid monitor configuration")
	// ErrRunning is returned by Start when monitoring is already active.
	ErrRunning = errors.New("monitor already running")
	// ErrNotRunning is returned by Poll while idle.
	ErrNotRunning = errors.New("monitor not running")
	// ErrClosed is returned once the scheduler has been torn down.
	ErrClosed = errors.New("scheduler closed")
)

// State is the lifecycle position of the scheduler.
type State int

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// PollConfig is what a monitoring run needs.
type PollConfig struct {
	Credential string
	Interval   time.Duration
}

func (c PollConfig) validate() error {
	if strings.TrimSpace(c.Credential) == "" {
		return fmt.Errorf("%w: credential is empty", ErrConfig)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrConfig, c.Interval)
	}
	return nil
}

// Observer receives the outcome of fetch cycles. Calls are made outside the
// scheduler lock and may come from any goroutine.
type Observer interface {
	SampleApplied(sample horde.Sample, point metrics.DataPoint, stats metrics.Stats)
	Halted(err error)
}

// Options wire the scheduler to its collaborators.
type Options struct {
	Source   horde.SampleSource
	Window   *metrics.Window
	Registry *registry.Registry
	Observer Observer
	Now      func() time.Time
}

// Scheduler drives periodic account-status fetches through a RateGate and
// feeds successful samples into the window and registry. Any failed fetch
// halts monitoring; restarting is an explicit Start.
//
// Fetches are not serialized: a slow response may overlap the next tick, and
// results are applied in arrival order.
type Scheduler struct {
	source   horde.SampleSource
	window   *metrics.Window
	registry *registry.Registry
	observer Observer
	now      func() time.Time
	logger   zerolog.Logger
	gate     RateGate

	baseCtx  context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup

	mu       sync.Mutex
	state    State
	starting bool
	config   PollConfig
	stop     chan struct{}
	lastErr  error
	closed   bool
}

// New constructs a Scheduler. Source, Window and Registry are required.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Source == nil || opts.Window == nil || opts.Registry == nil {
		panic("scheduler: source, window and registry are required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		source:   opts.Source,
		window:   opts.Window,
		registry: opts.Registry,
		observer: opts.Observer,
		now:      now,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Start validates cfg, runs one fetch cycle synchronously and, if it succeeds,
// enters Running with a recurring timer at the current interval. An interval
// changed while the first fetch is in flight is the one the timer uses. On
// failure the scheduler stays Idle and the error is both returned and kept as
// Err. A Stop during the first fetch yields ErrNotRunning.
func (s *Scheduler) Start(ctx context.Context, cfg PollConfig) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.state == StateRunning || s.starting:
		s.mu.Unlock()
		return ErrRunning
	}
	if err := cfg.validate(); err != nil {
		s.lastErr = err
		s.mu.Unlock()
		return err
	}
	s.config = cfg
	s.lastErr = nil
	s.starting = true
	s.gate.Reset()
	s.inflight.Add(1)
	s.mu.Unlock()

	_, err := s.firstCycle(ctx, cfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.starting {
		return fmt.Errorf("%w: stopped during the first fetch", ErrNotRunning)
	}
	s.starting = false
	s.state = StateRunning
	cfg.Interval = s.config.Interval
	stop := make(chan struct{})
	s.stop = stop
	go s.loop(stop, cfg)

	s.logger.Info().Dur("interval", cfg.Interval).Msg("monitoring started")
	return nil
}

// firstCycle runs Start's synchronous fetch as an in-flight cycle that Close
// cancels and waits for.
func (s *Scheduler) firstCycle(ctx context.Context, cfg PollConfig) (bool, error) {
	defer s.inflight.Done()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	release := context.AfterFunc(s.baseCtx, cancel)
	defer release()
	return s.cycle(ctx, cfg, s.now())
}

// Stop cancels the recurring timer and resets the gate. Window and registry
// are kept. A fetch already in flight still applies its result on arrival.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	wasActive := s.stopLocked()
	s.mu.Unlock()

	if wasActive {
		s.logger.Info().Msg("monitoring stopped")
	}
}

// ReconfigureInterval stores a new interval. A running scheduler is stopped
// and started again, which fetches immediately.
func (s *Scheduler) ReconfigureInterval(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrConfig, interval)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.config.Interval = interval
	cfg := s.config
	running := s.state == StateRunning
	if running {
		s.stopLocked()
	}
	s.mu.Unlock()

	if !running {
		return nil
	}
	s.logger.Info().Dur("interval", interval).Msg("restarting with new interval")
	return s.Start(ctx, cfg)
}

// Poll runs one gated fetch cycle on demand. It reports whether the gate let
// a fetch through.
func (s *Scheduler) Poll(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return false, ErrNotRunning
	}
	cfg := s.config
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	return s.cycle(ctx, cfg, s.now())
}

// State reports Idle or Running.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that last halted monitoring, or nil.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Config returns the active or most recent poll configuration.
func (s *Scheduler) Config() PollConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Close stops monitoring, cancels in-flight fetches and discards their results.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopLocked()
	s.mu.Unlock()

	s.cancel()
	s.inflight.Wait()
}

// loop fires a cycle every interval. Ticks are stamped with their nominal
// time so timer jitter never trips the gate; if the loop falls behind it
// resyncs to the next future slot.
func (s *Scheduler) loop(stop <-chan struct{}, cfg PollConfig) {
	next := s.now().Add(cfg.Interval)
	for {
		delay := next.Sub(s.now())
		if delay < 0 {
			missed := int64(-delay/cfg.Interval) + 1
			next = next.Add(time.Duration(missed) * cfg.Interval)
			delay = next.Sub(s.now())
		}

		timer := time.NewTimer(delay)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		if !s.beginTick(stop) {
			return
		}
		tick := next
		go func() {
			defer s.inflight.Done()
			_, _ = s.cycle(s.baseCtx, cfg, tick)
		}()

		next = next.Add(cfg.Interval)
	}
}

// beginTick confirms under the lock that this loop is still the active one,
// so a Stop that returned before the timer fired suppresses the tick.
func (s *Scheduler) beginTick(stop <-chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.stop == nil || s.stop != stop {
		return false
	}
	s.inflight.Add(1)
	return true
}

// cycle is one gated fetch. A denied gate is a silent no-op. It reports
// whether a fetch was issued.
func (s *Scheduler) cycle(ctx context.Context, cfg PollConfig, now time.Time) (bool, error) {
	if !s.gate.TryAcquire(now, cfg.Interval) {
		s.logger.Debug().Time("at", now).Msg("fetch skipped by rate gate")
		return false, nil
	}

	sample, err := s.source.FetchSample(ctx, cfg.Credential)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true, ErrClosed
	}
	if err != nil {
		transitioned := s.haltLocked(err)
		s.mu.Unlock()

		s.logger.Error().Err(err).Bool("was_running", transitioned).Msg("fetch failed; monitoring halted")
		if transitioned && s.observer != nil {
			s.observer.Halted(err)
		}
		return true, err
	}

	point := s.window.Append(sample)
	stats := s.window.Stats()
	s.registry.ReplaceAll(sample.ImageIDs, sample.TextIDs)
	s.lastErr = nil
	s.mu.Unlock()

	s.logger.Info().
		Time("timestamp", point.Timestamp).
		Str("kudos", point.Kudos.String()).
		Int("image_requests", point.ImageRequests).
		Int("text_requests", point.TextRequests).
		Msg("sample applied")
	if s.observer != nil {
		s.observer.SampleApplied(sample, point, stats)
	}
	return true, nil
}

func (s *Scheduler) stopLocked() bool {
	wasActive := s.state == StateRunning || s.starting
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.state = StateIdle
	s.starting = false
	s.gate.Reset()
	return wasActive
}

func (s *Scheduler) haltLocked(err error) bool {
	transitioned := s.stopLocked()
	s.lastErr = err
	return transitioned
}
