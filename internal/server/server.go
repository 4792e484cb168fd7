// Package server exposes the alignment+stats pipeline and the sync trigger
// over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"marketwatch/internal/series"
	"marketwatch/internal/storage"
	"marketwatch/internal/syncer"
)

// SeriesProvider answers aligned window queries. Interface defined on the
// consumer side; satisfied by *series.Engine.
type SeriesProvider interface {
	GetAligned(ctx context.Context, q series.Query) ([]storage.SeriesPoint, error)
}

// SyncRunner triggers a latest-point sync. Satisfied by *syncer.Syncer.
type SyncRunner interface {
	SyncLatest(ctx context.Context) (syncer.Result, error)
}

// Handler carries the HTTP endpoint dependencies.
type Handler struct {
	series     SeriesProvider
	sync       SyncRunner
	adminToken string
	logger     zerolog.Logger
}

// NewHandler constructs the API handler set.
func NewHandler(provider SeriesProvider, sync SyncRunner, adminToken string, logger zerolog.Logger) *Handler {
	return &Handler{
		series:     provider,
		sync:       sync,
		adminToken: adminToken,
		logger:     logger.With().Str("component", "server").Logger(),
	}
}

// NewRouter wires the gin engine, middleware, and routes.
func NewRouter(h *Handler, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(logger), gin.Recovery())

	r.GET("/health", h.Health)
	r.HEAD("/health", h.Health)
	r.GET("/", h.Health)

	r.GET("/api/series", h.GetSeries)
	r.POST("/admin/sync", h.TriggerSync)

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

type pointResponse struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type statsResponse struct {
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Avg       float64 `json:"avg"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"changePct"`
}

type seriesResponse struct {
	Metric    string          `json:"metric"`
	Period    string          `json:"period"`
	StartDate string          `json:"startDate,omitempty"`
	EndDate   string          `json:"endDate,omitempty"`
	Series    []pointResponse `json:"series"`
	Stats     *statsResponse  `json:"stats,omitempty"`
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetSeries serves the aligned series plus summary statistics for one metric.
//
// GET /api/series?metric=kospi&period=1m
// GET /api/series?metric=usdkrw&startDate=2025-06-01&endDate=2025-06-30
func (h *Handler) GetSeries(c *gin.Context) {
	metric := storage.Metric(c.DefaultQuery("metric", string(storage.MetricIndex)))
	if !metric.Valid() {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "unsupported metric"})
		return
	}

	period := c.DefaultQuery("period", "1m")
	startParam := c.Query("startDate")
	endParam := c.Query("endDate")

	q := series.Query{Metric: metric, Period: period}
	if startParam != "" && endParam != "" {
		start, err := time.ParseInLocation(time.DateOnly, startParam, time.UTC)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid startDate"})
			return
		}
		end, err := time.ParseInLocation(time.DateOnly, endParam, time.UTC)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid endDate"})
			return
		}
		q.Start = start
		q.End = end
	} else if !series.SupportedPeriod(period) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "unsupported period"})
		return
	}

	points, err := h.series.GetAligned(c.Request.Context(), q)
	if err != nil {
		h.logger.Error().Err(err).Str("metric", string(metric)).Msg("aligned query failed")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "query failed"})
		return
	}

	resp := seriesResponse{
		Metric:    string(metric),
		Period:    period,
		StartDate: startParam,
		EndDate:   endParam,
		Series:    make([]pointResponse, 0, len(points)),
	}
	for _, p := range points {
		resp.Series = append(resp.Series, pointResponse{
			Date:  p.Date.Format(time.DateOnly),
			Value: p.Value.InexactFloat64(),
		})
	}

	if stats, ok := series.Compute(points); ok {
		resp.Stats = &statsResponse{
			Min:       stats.Min.InexactFloat64(),
			Max:       stats.Max.InexactFloat64(),
			Avg:       stats.Avg.InexactFloat64(),
			Change:    stats.Change.InexactFloat64(),
			ChangePct: stats.ChangePct.InexactFloat64(),
		}
	}

	c.JSON(http.StatusOK, resp)
}

// TriggerSync runs a latest-point sync, gated by the admin token.
//
// POST /admin/sync?token=...
func (h *Handler) TriggerSync(c *gin.Context) {
	if h.adminToken == "" {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "admin token is not configured"})
		return
	}
	if c.Query("token") != h.adminToken {
		c.JSON(http.StatusForbidden, errorResponse{Error: "invalid token"})
		return
	}

	result, err := h.sync.SyncLatest(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("sync trigger failed")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "sync failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "result": result})
}
