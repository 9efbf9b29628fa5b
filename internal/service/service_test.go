package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"horde-monitor/internal/alerting"
	"horde-monitor/internal/config"
	"horde-monitor/internal/horde"
	"horde-monitor/internal/metrics"
	"horde-monitor/internal/scheduler"
	"horde-monitor/internal/storage"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type scriptedSource struct {
	mu      sync.Mutex
	results []error
	kudos   []int64
	images  [][]string
	calls   int
	now     func() time.Time
}

func (s *scriptedSource) FetchSample(_ context.Context, _ string) (horde.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.results) && s.results[i] != nil {
		return horde.Sample{}, s.results[i]
	}
	sample := horde.Sample{
		Timestamp: s.now(),
		Kudos:     decimal.NewFromInt(s.kudos[min(i, len(s.kudos)-1)]),
		Account:   horde.Account{Username: "alice#1"},
	}
	if i < len(s.images) {
		sample.ImageIDs = s.images[i]
	}
	return sample, nil
}

type memoryStore struct {
	mu     sync.Mutex
	points []storage.PointRecord
	halts  []storage.HaltRecord
}

func (m *memoryStore) UpsertPoint(_ context.Context, p storage.PointRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, p)
	return nil
}

func (m *memoryStore) ListPointsBetween(context.Context, time.Time, time.Time) ([]storage.PointRecord, error) {
	return nil, nil
}

func (m *memoryStore) ListRecentPoints(context.Context, int) ([]storage.PointRecord, error) {
	return nil, nil
}

func (m *memoryStore) CountPoints(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.points)), nil
}

func (m *memoryStore) InsertHalt(_ context.Context, h storage.HaltRecord) (storage.HaltRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h.ID = int64(len(m.halts) + 1)
	m.halts = append(m.halts, h)
	return h, nil
}

func (m *memoryStore) ListRecentHalts(context.Context, int) ([]storage.HaltRecord, error) {
	return nil, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note)
	return nil
}

type fakeGenerations struct {
	cancelErr error
	cancelled []string
	status    horde.GenerationStatus
}

func (f *fakeGenerations) GenerationStatus(_ context.Context, _ horde.GenerationType, _ string) (horde.GenerationStatus, error) {
	return f.status, nil
}

func (f *fakeGenerations) CancelGeneration(_ context.Context, credential string, kind horde.GenerationType, id string) error {
	f.cancelled = append(f.cancelled, credential+":"+string(kind)+":"+id)
	return f.cancelErr
}

type fixture struct {
	svc      *Service
	clock    *clock
	source   *scriptedSource
	store    *memoryStore
	notifier *recordingNotifier
	gens     *fakeGenerations
}

func newFixture(t *testing.T, credential string) *fixture {
	t.Helper()
	c := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	f := &fixture{
		clock:    c,
		source:   &scriptedSource{kudos: []int64{100, 130, 160}, now: c.Now},
		store:    &memoryStore{},
		notifier: &recordingNotifier{},
		gens:     &fakeGenerations{},
	}
	svc, err := New(Options{
		Source:      f.source,
		Generations: f.gens,
		Store:       f.store,
		Halts:       f.store,
		Notifier:    f.notifier,
		Channels:    []string{"telegram"},
		Credential:  credential,
		Interval:    30 * time.Second,
		Period:      "1hr",
		ExportDir:   t.TempDir(),
		Now:         c.Now,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(svc.Close)
	f.svc = svc
	return f
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		m := mf.GetMetric()[0]
		if m.GetGauge() != nil {
			return m.GetGauge().GetValue()
		}
		return m.GetCounter().GetValue()
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestNewRejectsUnknownPeriod(t *testing.T) {
	_, err := New(Options{Source: &scriptedSource{}, Period: "2hr"}, zerolog.Nop())
	if !errors.Is(err, scheduler.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	_, err = New(Options{Source: &scriptedSource{}, Period: "1hr", Interval: 2 * time.Minute}, zerolog.Nop())
	if !errors.Is(err, scheduler.ErrConfig) {
		t.Fatalf("expected ErrConfig for interval, got %v", err)
	}
}

func TestStartWithoutCredential(t *testing.T) {
	f := newFixture(t, "")
	if err := f.svc.Start(context.Background()); !errors.Is(err, scheduler.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	st := f.svc.Status()
	if st.State != "idle" || st.Error == "" || st.HasKey {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestSamplesAreArchivedAndExposed(t *testing.T) {
	f := newFixture(t, "key")
	ctx := context.Background()

	if err := f.svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.clock.Advance(30 * time.Second)
	if fetched, err := f.svc.Poll(ctx); err != nil || !fetched {
		t.Fatalf("Poll: %v %v", fetched, err)
	}

	st := f.svc.Status()
	if st.State != "running" || st.Points != 2 || st.Retention != 60 {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.Stats.KudosPerHour != 3600 {
		t.Fatalf("kudos per hour = %d", st.Stats.KudosPerHour)
	}
	if st.Account.Username != "alice#1" || st.LastSample == nil || st.Interval != "30s" {
		t.Fatalf("account/interval not tracked: %+v", st)
	}

	if len(f.store.points) != 2 {
		t.Fatalf("archived %d points", len(f.store.points))
	}
	if f.store.points[0].KudosChange.Valid || !f.store.points[1].KudosChange.Decimal.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("archived changes wrong: %+v", f.store.points)
	}

	reg := f.svc.Metrics()
	if got := gaugeValue(t, reg, "hordewatch_kudos"); got != 130 {
		t.Fatalf("kudos gauge = %v", got)
	}
	if got := gaugeValue(t, reg, "hordewatch_kudos_per_hour"); got != 3600 {
		t.Fatalf("kudos/h gauge = %v", got)
	}
	if got := gaugeValue(t, reg, "hordewatch_monitor_running"); got != 1 {
		t.Fatalf("running gauge = %v", got)
	}
	if got := gaugeValue(t, reg, "hordewatch_samples_total"); got != 2 {
		t.Fatalf("samples counter = %v", got)
	}
}

func TestHaltIsRecordedAndNotified(t *testing.T) {
	f := newFixture(t, "key")
	f.source.results = []error{nil, errors.Join(horde.ErrTransport, errors.New("reset"))}
	ctx := context.Background()

	if err := f.svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.clock.Advance(30 * time.Second)
	if _, err := f.svc.Poll(ctx); !errors.Is(err, horde.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}

	st := f.svc.Status()
	if st.State != "idle" || !strings.Contains(st.Error, "reset") {
		t.Fatalf("unexpected status %+v", st)
	}
	if len(f.store.halts) != 1 {
		t.Fatalf("halts = %d", len(f.store.halts))
	}
	halt := f.store.halts[0]
	if !halt.LastKudos.Valid || !halt.LastKudos.Decimal.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("last kudos = %+v", halt.LastKudos)
	}
	if len(f.notifier.notes) != 1 || f.notifier.notes[0].Username != "alice#1" {
		t.Fatalf("notifications = %+v", f.notifier.notes)
	}
	if got := gaugeValue(t, f.svc.Metrics(), "hordewatch_halts_total"); got != 1 {
		t.Fatalf("halts counter = %v", got)
	}
}

func TestCancelGenerationIsOptimistic(t *testing.T) {
	f := newFixture(t, "key")
	f.source.images = [][]string{{"a", "b"}, {"b", "c"}}
	f.gens.cancelErr = errors.Join(horde.ErrCancel, errors.New("404"))
	ctx := context.Background()

	if err := f.svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	removed, err := f.svc.CancelGeneration(ctx, horde.GenerationImage, "a")
	if !removed {
		t.Fatal("expected local removal")
	}
	if !errors.Is(err, horde.ErrCancel) {
		t.Fatalf("expected ErrCancel, got %v", err)
	}
	if got := f.svc.Generations().Image; len(got) != 1 || got[0] != "b" {
		t.Fatalf("registry = %v", got)
	}
	if f.gens.cancelled[0] != "key:image:a" {
		t.Fatalf("remote call = %v", f.gens.cancelled)
	}
	if f.svc.Status().State != "running" {
		t.Fatal("cancel failure must not affect the scheduler")
	}

	f.clock.Advance(30 * time.Second)
	if _, err := f.svc.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if got := f.svc.Generations().Image; len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("next sample should replace ids, got %v", got)
	}
}

func TestCancelWithoutCredentialStillRemoves(t *testing.T) {
	f := newFixture(t, "")
	f.svc.registry.ReplaceAll([]string{"x"}, nil)

	removed, err := f.svc.CancelGeneration(context.Background(), horde.GenerationImage, "x")
	if !removed || !errors.Is(err, horde.ErrCancel) {
		t.Fatalf("removed=%v err=%v", removed, err)
	}
	if len(f.gens.cancelled) != 0 {
		t.Fatal("no remote call without a credential")
	}
}

func TestSetPeriodRetains(t *testing.T) {
	f := newFixture(t, "key")
	for i := 0; i < 3; i++ {
		f.svc.window.Append(horde.Sample{Timestamp: f.clock.Now(), Kudos: decimal.NewFromInt(int64(i))})
		f.clock.Advance(time.Minute)
	}

	if err := f.svc.SetPeriod("6hr"); err != nil {
		t.Fatalf("SetPeriod: %v", err)
	}
	if st := f.svc.Status(); st.Retention != 360 || st.Period != "6hr" || st.Points != 3 {
		t.Fatalf("unexpected status %+v", st)
	}
	if err := f.svc.SetPeriod("1d"); !errors.Is(err, scheduler.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestSetIntervalValidates(t *testing.T) {
	f := newFixture(t, "key")
	if err := f.svc.SetInterval(context.Background(), 45*time.Second); !errors.Is(err, scheduler.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	if err := f.svc.SetInterval(context.Background(), 5*time.Minute); err != nil {
		t.Fatalf("SetInterval: %v", err)
	}
	if st := f.svc.Status(); st.Interval != "5m" || st.State != "idle" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestApplyConfig(t *testing.T) {
	f := newFixture(t, "")
	cfg := &config.Config{
		Horde:   config.HordeConfig{APIKey: "new-key"},
		Monitor: config.MonitorConfig{Interval: time.Hour, Period: "24hr"},
	}

	f.svc.ApplyConfig(context.Background(), cfg)

	st := f.svc.Status()
	if !st.HasKey || st.Interval != "1hr" || st.Period != "24hr" || st.Retention != 1440 {
		t.Fatalf("config not applied: %+v", st)
	}
}

func TestExportCSV(t *testing.T) {
	f := newFixture(t, "key")
	if err := f.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	path, err := f.svc.ExportCSV()
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	if filepath.Base(path) != "horde-monitor-data-2025-01-01T00-00-00.000Z.csv" {
		t.Fatalf("unexpected file name %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}

	var buf bytes.Buffer
	if err := f.svc.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if !bytes.Equal(data, buf.Bytes()) {
		t.Fatal("file and stream exports differ")
	}
	if !strings.Contains(buf.String(), "2025-01-01T00:00:00.000Z,100,0,0,0") {
		t.Fatalf("unexpected csv:\n%s", buf.String())
	}
}

func TestClearWindow(t *testing.T) {
	f := newFixture(t, "key")
	if err := f.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.svc.ClearWindow()
	if st := f.svc.Status(); st.Points != 0 || st.State != "running" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestRunAutoStartsAndCloses(t *testing.T) {
	c := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	source := &scriptedSource{kudos: []int64{1}, now: c.Now}
	svc, err := New(Options{
		Source:     source,
		Credential: "key",
		Interval:   time.Hour,
		Period:     "1hr",
		AutoStart:  true,
		Now:        c.Now,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for svc.Status().State != "running" {
		if time.Now().After(deadline) {
			t.Fatal("auto start did not happen")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
	if err := svc.Start(context.Background()); !errors.Is(err, scheduler.ErrClosed) {
		t.Fatalf("start after run exit: %v", err)
	}
}

func TestSampleGaugesUseStatsCapturedWithPoint(t *testing.T) {
	f := newFixture(t, "key")
	point := metrics.DataPoint{Timestamp: f.clock.Now(), Kudos: decimal.NewFromInt(42), ImageRequests: 1}

	// The window is empty, so its own stats are zero; the gauges must follow
	// the stats that came with the point.
	f.svc.SampleApplied(horde.Sample{Kudos: point.Kudos}, point, metrics.Stats{KudosPerHour: 900, RequestsPerHour: 3})

	reg := f.svc.Metrics()
	if got := gaugeValue(t, reg, "hordewatch_kudos_per_hour"); got != 900 {
		t.Fatalf("kudos/h gauge = %v", got)
	}
	if got := gaugeValue(t, reg, "hordewatch_requests_per_hour"); got != 3 {
		t.Fatalf("requests/h gauge = %v", got)
	}
}
