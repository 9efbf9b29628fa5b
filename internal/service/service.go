package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"horde-monitor/internal/alerting"
	"horde-monitor/internal/config"
	"horde-monitor/internal/export"
	"horde-monitor/internal/horde"
	"horde-monitor/internal/metrics"
	"horde-monitor/internal/registry"
	"horde-monitor/internal/scheduler"
	"horde-monitor/internal/storage"
)

const sideEffectTimeout = 10 * time.Second

// Options wire the monitor to its collaborators. Store, Halts and Notifier
// are optional.
type Options struct {
	Source      horde.SampleSource
	Generations horde.GenerationAPI
	Store       storage.PointStore
	Halts       storage.HaltStore
	Notifier    alerting.Notifier
	Channels    []string
	Credential  string
	Interval    time.Duration
	Period      string
	ExportDir   string
	AutoStart   bool
	Now         func() time.Time
}

// Status is a point-in-time view of the monitor.
type Status struct {
	State      string        `json:"state"`
	Error      string        `json:"error,omitempty"`
	Interval   string        `json:"interval"`
	Period     string        `json:"period"`
	Retention  int           `json:"retention_points"`
	Points     int           `json:"points"`
	Stats      metrics.Stats `json:"stats"`
	Account    horde.Account `json:"account"`
	LastSample *time.Time    `json:"last_sample,omitempty"`
	HasKey     bool          `json:"has_api_key"`
}

// Service owns the window, registry and scheduler for one account and
// persists, exports and reports what they produce.
type Service struct {
	window    *metrics.Window
	registry  *registry.Registry
	sched     *scheduler.Scheduler
	gens      horde.GenerationAPI
	store     storage.PointStore
	halts     storage.HaltStore
	notifier  alerting.Notifier
	channels  []string
	exportDir string
	autoStart bool
	now       func() time.Time
	logger    zerolog.Logger

	promRegistry *prometheus.Registry
	collectors   *promCollectors

	mu         sync.RWMutex
	credential string
	period     string
	account    horde.Account
	lastSample time.Time
}

// New constructs the monitoring service. The window starts empty with the
// retention bound of opts.Period.
func New(opts Options, logger zerolog.Logger) (*Service, error) {
	if opts.Source == nil {
		return nil, errors.New("service: sample source is required")
	}
	retention, err := config.ParsePeriod(opts.Period)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", scheduler.ErrConfig, err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Service{
		window:     metrics.NewWindow(retention),
		registry:   registry.New(),
		gens:       opts.Generations,
		store:      opts.Store,
		halts:      opts.Halts,
		notifier:   opts.Notifier,
		channels:   opts.Channels,
		exportDir:  opts.ExportDir,
		autoStart:  opts.AutoStart,
		now:        now,
		logger:     logger.With().Str("component", "service").Logger(),
		credential: strings.TrimSpace(opts.Credential),
		period:     opts.Period,
	}
	s.sched = scheduler.New(scheduler.Options{
		Source:   opts.Source,
		Window:   s.window,
		Registry: s.registry,
		Observer: s,
		Now:      now,
	}, logger)
	if opts.Interval > 0 {
		// Idle reconfigure only stores the interval.
		if err := s.SetInterval(context.Background(), opts.Interval); err != nil {
			return nil, err
		}
	}

	s.promRegistry = prometheus.NewRegistry()
	s.collectors = newCollectors(s.promRegistry, s.sched, s.window)
	return s, nil
}

// Run starts monitoring when configured to and blocks until ctx is done.
// A failed auto start is logged; the service keeps serving its state.
func (s *Service) Run(ctx context.Context) error {
	if s.autoStart {
		if err := s.Start(ctx); err != nil {
			s.logger.Error().Err(err).Msg("auto start failed")
		}
	}
	<-ctx.Done()
	s.Close()
	return ctx.Err()
}

// Close tears the scheduler down. Late results are discarded.
func (s *Service) Close() {
	s.sched.Close()
}

// Start begins monitoring with the stored credential and interval.
func (s *Service) Start(ctx context.Context) error {
	s.mu.RLock()
	credential := s.credential
	s.mu.RUnlock()

	return s.sched.Start(ctx, scheduler.PollConfig{
		Credential: credential,
		Interval:   s.sched.Config().Interval,
	})
}

// Stop halts the timer. Window and registry are kept.
func (s *Service) Stop() {
	s.sched.Stop()
}

// Poll triggers one gated fetch while running.
func (s *Service) Poll(ctx context.Context) (bool, error) {
	return s.sched.Poll(ctx)
}

// SetCredential replaces the API key used by the next Start. A running
// monitor keeps the key it was started with.
func (s *Service) SetCredential(credential string) {
	s.mu.Lock()
	s.credential = strings.TrimSpace(credential)
	s.mu.Unlock()
}

// SetInterval changes the polling cadence, restarting a running monitor.
func (s *Service) SetInterval(ctx context.Context, interval time.Duration) error {
	if !config.ValidInterval(interval) {
		return fmt.Errorf("%w: interval must be one of %s, got %s",
			scheduler.ErrConfig, strings.Join(config.IntervalLabels(), ", "), interval)
	}
	return s.sched.ReconfigureInterval(ctx, interval)
}

// SetPeriod applies a new retention bound to the window immediately.
func (s *Service) SetPeriod(label string) error {
	n, err := config.ParsePeriod(label)
	if err != nil {
		return fmt.Errorf("%w: %w", scheduler.ErrConfig, err)
	}
	s.window.Retain(n)

	s.mu.Lock()
	s.period = label
	s.mu.Unlock()

	s.logger.Info().Str("period", label).Int("retention_points", n).Msg("retention changed")
	return nil
}

// ApplyConfig reconciles a reloaded configuration with the running monitor.
func (s *Service) ApplyConfig(ctx context.Context, cfg *config.Config) {
	s.mu.RLock()
	period := s.period
	credential := s.credential
	s.mu.RUnlock()

	if key := strings.TrimSpace(cfg.Horde.APIKey); key != "" && key != credential {
		s.SetCredential(key)
		s.logger.Info().Msg("api key updated; applies on next start")
	}
	if !strings.EqualFold(cfg.Monitor.Period, period) {
		if err := s.SetPeriod(cfg.Monitor.Period); err != nil {
			s.logger.Warn().Err(err).Msg("ignoring period change")
		}
	}
	if cfg.Monitor.Interval != s.sched.Config().Interval {
		if err := s.SetInterval(ctx, cfg.Monitor.Interval); err != nil {
			s.logger.Warn().Err(err).Msg("interval change failed")
		}
	}
}

// ClearWindow drops all points and resets the derived stats.
func (s *Service) ClearWindow() {
	s.window.Clear()
	s.collectors.resetStats()
	s.logger.Info().Msg("window cleared")
}

// Points returns a copy of the current window.
func (s *Service) Points() []metrics.DataPoint {
	return s.window.Points()
}

// Generations returns the outstanding generation ids.
func (s *Service) Generations() registry.Snapshot {
	return s.registry.Snapshot()
}

// Status reports the monitor state.
func (s *Service) Status() Status {
	cfg := s.sched.Config()

	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		State:     s.sched.State().String(),
		Interval:  config.IntervalLabel(cfg.Interval),
		Period:    s.period,
		Retention: s.window.Limit(),
		Points:    s.window.Len(),
		Stats:     s.window.Stats(),
		Account:   s.account,
		HasKey:    s.credential != "",
	}
	if err := s.sched.Err(); err != nil {
		st.Error = err.Error()
	}
	if !s.lastSample.IsZero() {
		ts := s.lastSample
		st.LastSample = &ts
	}
	return st
}

// Generation fetches the detail view of one job.
func (s *Service) Generation(ctx context.Context, kind horde.GenerationType, id string) (horde.GenerationStatus, error) {
	if s.gens == nil {
		return horde.GenerationStatus{}, errors.New("generation lookups are not configured")
	}
	return s.gens.GenerationStatus(ctx, kind, id)
}

// CancelGeneration removes id from the registry and then asks the remote
// service to cancel it. The local removal stands whatever the remote outcome;
// the next sample is authoritative.
func (s *Service) CancelGeneration(ctx context.Context, kind horde.GenerationType, id string) (bool, error) {
	removed := s.registry.Cancel(id, kind)
	s.collectors.observeRegistry(s.registry.Snapshot())

	s.mu.RLock()
	credential := s.credential
	s.mu.RUnlock()

	var err error
	switch {
	case s.gens == nil:
		err = fmt.Errorf("%w: generation api not configured", horde.ErrCancel)
	case credential == "":
		err = fmt.Errorf("%w: %w: credential is empty", horde.ErrCancel, scheduler.ErrConfig)
	default:
		err = s.gens.CancelGeneration(ctx, credential, kind, id)
	}

	result := "ok"
	if err != nil {
		result = "error"
		s.logger.Warn().Err(err).Str("type", string(kind)).Str("id", id).Msg("remote cancel failed; local removal kept")
	} else {
		s.logger.Info().Str("type", string(kind)).Str("id", id).Msg("generation cancelled")
	}
	s.collectors.cancels.WithLabelValues(string(kind), result).Inc()
	return removed, err
}

// WriteCSV writes the current window as CSV.
func (s *Service) WriteCSV(w io.Writer) error {
	return export.WriteCSV(w, s.window.Points())
}

// ExportCSV writes the current window into the export directory and returns
// the file path.
func (s *Service) ExportCSV() (string, error) {
	path := filepath.Join(s.exportDir, export.Filename(s.now()))
	if err := export.WriteCSVFile(path, s.window.Points()); err != nil {
		return "", fmt.Errorf("export csv: %w", err)
	}
	s.logger.Info().Str("path", path).Int("points", s.window.Len()).Msg("window exported")
	return path, nil
}

// Metrics is the registry served on /metrics.
func (s *Service) Metrics() *prometheus.Registry {
	return s.promRegistry
}

// SampleApplied records account details, updates gauges and archives the point.
func (s *Service) SampleApplied(sample horde.Sample, point metrics.DataPoint, stats metrics.Stats) {
	s.mu.Lock()
	s.account = sample.Account
	s.lastSample = point.Timestamp
	s.mu.Unlock()

	s.collectors.observeSample(point, stats)

	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()
	rec := storage.NewPointRecord(point, sample.ImageIDs, sample.TextIDs)
	if err := s.store.UpsertPoint(ctx, rec); err != nil {
		s.logger.Error().Err(err).Time("timestamp", point.Timestamp).Msg("failed to archive point")
	}
}

// Halted records the halt and notifies.
func (s *Service) Halted(err error) {
	s.collectors.halts.Inc()

	s.mu.RLock()
	username := s.account.Username
	s.mu.RUnlock()

	var lastKudos decimal.NullDecimal
	if points := s.window.Points(); len(points) > 0 {
		lastKudos = decimal.NewNullDecimal(points[len(points)-1].Kudos)
	}
	occurred := s.now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	if s.halts != nil {
		record := storage.HaltRecord{
			OccurredAt: occurred,
			Error:      err.Error(),
			LastKudos:  lastKudos,
			Channels:   s.channels,
		}
		if _, insertErr := s.halts.InsertHalt(ctx, record); insertErr != nil {
			s.logger.Error().Err(insertErr).Msg("failed to persist halt record")
		}
	}

	if s.notifier != nil {
		note := alerting.Notification{
			OccurredAt: occurred,
			Username:   username,
			Error:      err.Error(),
			LastKudos:  lastKudos,
			Interval:   s.sched.Config().Interval,
			Channels:   s.channels,
		}
		if notifyErr := s.notifier.Notify(ctx, note); notifyErr != nil {
			s.logger.Error().Err(notifyErr).Msg("failed to dispatch halt notification")
		}
	}
}

var _ scheduler.Observer = (*Service)(nil)
