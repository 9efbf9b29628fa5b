package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"horde-monitor/internal/horde"
	"horde-monitor/internal/metrics"
	"horde-monitor/internal/registry"
	"horde-monitor/internal/scheduler"
)

type promCollectors struct {
	kudos           prometheus.Gauge
	kudosPerHour    prometheus.Gauge
	requestsPerHour prometheus.Gauge
	activeJobs      *prometheus.GaugeVec
	samples         prometheus.Counter
	halts           prometheus.Counter
	cancels         *prometheus.CounterVec
}

func newCollectors(reg *prometheus.Registry, sched *scheduler.Scheduler, window *metrics.Window) *promCollectors {
	c := &promCollectors{
		kudos: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hordewatch_kudos",
			Help: "Kudos balance at the latest applied sample",
		}),
		kudosPerHour: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hordewatch_kudos_per_hour",
			Help: "Kudos per hour extrapolated over the current window",
		}),
		requestsPerHour: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hordewatch_requests_per_hour",
			Help: "Mean in-flight generations over the current window",
		}),
		activeJobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hordewatch_active_generations",
			Help: "Outstanding generations at the latest sample",
		}, []string{"type"}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hordewatch_samples_total",
			Help: "Samples applied to the window",
		}),
		halts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hordewatch_halts_total",
			Help: "Fetch failures that halted monitoring",
		}),
		cancels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hordewatch_generation_cancels_total",
			Help: "Generation cancellations by type and remote result",
		}, []string{"type", "result"}),
	}

	running := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "hordewatch_monitor_running",
		Help: "1 while the poll scheduler is running",
	}, func() float64 {
		if sched.State() == scheduler.StateRunning {
			return 1
		}
		return 0
	})
	points := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "hordewatch_window_points",
		Help: "Points currently retained in the window",
	}, func() float64 { return float64(window.Len()) })

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.kudos,
		c.kudosPerHour,
		c.requestsPerHour,
		c.activeJobs,
		c.samples,
		c.halts,
		c.cancels,
		running,
		points,
	)
	return c
}

func (c *promCollectors) observeSample(point metrics.DataPoint, stats metrics.Stats) {
	c.kudos.Set(point.Kudos.InexactFloat64())
	c.kudosPerHour.Set(float64(stats.KudosPerHour))
	c.requestsPerHour.Set(float64(stats.RequestsPerHour))
	c.activeJobs.WithLabelValues(string(horde.GenerationImage)).Set(float64(point.ImageRequests))
	c.activeJobs.WithLabelValues(string(horde.GenerationText)).Set(float64(point.TextRequests))
	c.samples.Inc()
}

func (c *promCollectors) observeRegistry(snap registry.Snapshot) {
	c.activeJobs.WithLabelValues(string(horde.GenerationImage)).Set(float64(len(snap.Image)))
	c.activeJobs.WithLabelValues(string(horde.GenerationText)).Set(float64(len(snap.Text)))
}

func (c *promCollectors) resetStats() {
	c.kudosPerHour.Set(0)
	c.requestsPerHour.Set(0)
}
