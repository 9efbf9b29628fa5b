package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"horde-monitor/internal/config"
	"horde-monitor/internal/export"
	"horde-monitor/internal/horde"
	"horde-monitor/internal/metrics"
	"horde-monitor/internal/scheduler"
)

type pointView struct {
	Timestamp     int64            `json:"timestamp"`
	Time          string           `json:"time"`
	Kudos         decimal.Decimal  `json:"kudos"`
	KudosChange   *decimal.Decimal `json:"kudos_change"`
	ImageRequests int              `json:"image_requests"`
	TextRequests  int              `json:"text_requests"`
}

func toPointView(p metrics.DataPoint, _ int) pointView {
	view := pointView{
		Timestamp:     p.TimestampMs(),
		Time:          p.Timestamp.UTC().Format(export.TimestampLayout),
		Kudos:         p.Kudos,
		ImageRequests: p.ImageRequests,
		TextRequests:  p.TextRequests,
	}
	if p.KudosChange.Valid {
		change := p.KudosChange.Decimal
		view.KudosChange = &change
	}
	return view
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": s.now().Sub(s.startTime).String(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.Status())
}

func (s *Server) handlePoints(c *gin.Context) {
	points := s.monitor.Points()
	c.JSON(http.StatusOK, gin.H{
		"points": lo.Map(points, toPointView),
		"count":  len(points),
	})
}

func (s *Server) handleClearPoints(c *gin.Context) {
	s.monitor.ClearWindow()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleExportCSV(c *gin.Context) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(s.now())))
	c.Status(http.StatusOK)
	if err := s.monitor.WriteCSV(c.Writer); err != nil {
		s.logger.Error().Err(err).Msg("csv export failed")
		_ = c.Error(err)
	}
}

func (s *Server) handleGenerations(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.Generations())
}

func (s *Server) handleGeneration(c *gin.Context) {
	kind, err := horde.ParseGenerationType(c.Param("type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := s.monitor.Generation(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleCancelGeneration(c *gin.Context) {
	kind, err := horde.ParseGenerationType(c.Param("type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	removed, err := s.monitor.CancelGeneration(c.Request.Context(), kind, c.Param("id"))
	body := gin.H{"removed": removed, "cancelled": err == nil}
	if err != nil {
		body["error"] = err.Error()
	}
	// Local removal already happened; a remote failure is reported, not fatal.
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleStart(c *gin.Context) {
	if err := s.monitor.Start(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.monitor.Status())
}

func (s *Server) handleStop(c *gin.Context) {
	s.monitor.Stop()
	c.JSON(http.StatusOK, s.monitor.Status())
}

func (s *Server) handlePoll(c *gin.Context) {
	fetched, err := s.monitor.Poll(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fetched": fetched})
}

func (s *Server) handleInterval(c *gin.Context) {
	var req struct {
		Interval string `json:"interval" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing interval field"})
		return
	}

	interval, err := config.ParseInterval(req.Interval)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.monitor.SetInterval(c.Request.Context(), interval); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.monitor.Status())
}

func (s *Server) handlePeriod(c *gin.Context) {
	var req struct {
		Period string `json:"period" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing period field"})
		return
	}

	if err := s.monitor.SetPeriod(req.Period); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.monitor.Status())
}

func (s *Server) writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	var statusErr *horde.StatusError
	switch {
	case errors.Is(err, scheduler.ErrConfig):
		return http.StatusBadRequest
	case errors.Is(err, scheduler.ErrRunning), errors.Is(err, scheduler.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, scheduler.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound:
		return http.StatusNotFound
	case errors.Is(err, horde.ErrTransport), errors.Is(err, horde.ErrProtocol):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
