package httpserver

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"horde-monitor/internal/horde"
	"horde-monitor/internal/metrics"
	"horde-monitor/internal/registry"
	"horde-monitor/internal/service"
)

// Monitor is the narrow contract the HTTP API drives.
type Monitor interface {
	Start(ctx context.Context) error
	Stop()
	Poll(ctx context.Context) (bool, error)
	SetInterval(ctx context.Context, interval time.Duration) error
	SetPeriod(label string) error
	ClearWindow()
	Points() []metrics.DataPoint
	Generations() registry.Snapshot
	Status() service.Status
	Generation(ctx context.Context, kind horde.GenerationType, id string) (horde.GenerationStatus, error)
	CancelGeneration(ctx context.Context, kind horde.GenerationType, id string) (bool, error)
	WriteCSV(w io.Writer) error
	Metrics() *prometheus.Registry
}

// Server exposes monitor control and status over HTTP.
type Server struct {
	addr      string
	monitor   Monitor
	logger    zerolog.Logger
	now       func() time.Time
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, monitor Monitor, logger zerolog.Logger) *Server {
	if addr == "" {
		addr = "127.0.0.1:8080"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    addr,
		monitor: monitor,
		logger:  logger.With().Str("component", "httpserver").Logger(),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/status", s.handleStatus)
	api.GET("/points", s.handlePoints)
	api.DELETE("/points", s.handleClearPoints)
	api.GET("/export.csv", s.handleExportCSV)

	api.GET("/generations", s.handleGenerations)
	api.GET("/generations/:type/:id", s.handleGeneration)
	api.DELETE("/generations/:type/:id", s.handleCancelGeneration)

	monitor := api.Group("/monitor")
	monitor.POST("/start", s.handleStart)
	monitor.POST("/stop", s.handleStop)
	monitor.POST("/poll", s.handlePoll)
	monitor.PUT("/interval", s.handleInterval)
	monitor.PUT("/period", s.handlePeriod)

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.monitor.Metrics(), promhttp.HandlerOpts{})))
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.routes(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = s.now()
	s.logger.Info().Str("addr", listener.Addr().String()).Msg("http api listening")

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("http server stopped")
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}
