package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/aidly/aidly-api/internal/dto"
	"github.com/aidly/aidly-api/internal/models"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
	"github.com/aidly/aidly-api/pkg/response"
)

type analyticsService interface {
	Tickets(ctx context.Context, rng models.DateRange) ([]models.TicketMetrics, bool, error)
	SLA(ctx context.Context, rng models.DateRange) ([]models.SLAMetrics, bool, error)
	Hourly(ctx context.Context, date time.Time) ([]models.HourlyTicketMetrics, bool, error)
	Clients(ctx context.Context, periodEnd time.Time, limit int) ([]models.ClientMetrics, bool, error)
	SystemMetrics() models.SystemMetrics
}

type aggregationRunner interface {
	Aggregate(ctx context.Context, date time.Time, metricType models.MetricType) (*models.AggregationResult, error)
}

type aggregationQueue interface {
	Enqueue(req models.AggregationRequest) (string, error)
}

// AnalyticsHandler exposes the stored metric roll-ups and on-demand aggregation.
type AnalyticsHandler struct {
	analytics  analyticsService
	aggregator aggregationRunner
	jobs       aggregationQueue
	validate   *validator.Validate
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(analytics analyticsService, aggregator aggregationRunner, jobs aggregationQueue, validate *validator.Validate) *AnalyticsHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &AnalyticsHandler{analytics: analytics, aggregator: aggregator, jobs: jobs, validate: validate}
}

// Tickets godoc
// @Summary Daily ticket metrics
// @Tags Metrics
// @Produce json
// @Param from query string false "First day (YYYY-MM-DD)"
// @Param to query string false "Last day (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /metrics/tickets [get]
func (h *AnalyticsHandler) Tickets(c *gin.Context) {
	rng, err := parseRange(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	rows, cacheHit, err := h.analytics.Tickets(c.Request.Context(), rng)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil, withTiming(c, cacheHit, start))
}

// SLA godoc
// @Summary Daily SLA compliance
// @Tags Metrics
// @Produce json
// @Param from query string false "First day (YYYY-MM-DD)"
// @Param to query string false "Last day (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /metrics/sla [get]
func (h *AnalyticsHandler) SLA(c *gin.Context) {
	rng, err := parseRange(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	rows, cacheHit, err := h.analytics.SLA(c.Request.Context(), rng)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil, withTiming(c, cacheHit, start))
}

// Hourly godoc
// @Summary Hourly ticket flow of one day
// @Tags Metrics
// @Produce json
// @Param date query string false "Day (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /metrics/hourly [get]
func (h *AnalyticsHandler) Hourly(c *gin.Context) {
	date, err := parseDateQuery(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	rows, cacheHit, err := h.analytics.Hourly(c.Request.Context(), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil, withTiming(c, cacheHit, start))
}

// Clients godoc
// @Summary Busiest clients of the rolling window
// @Tags Metrics
// @Produce json
// @Param period_end query string false "Window end (YYYY-MM-DD)"
// @Param limit query int false "Maximum rows"
// @Success 200 {object} response.Envelope
// @Router /metrics/clients [get]
func (h *AnalyticsHandler) Clients(c *gin.Context) {
	periodEnd, err := parseDateQuery(c, "period_end")
	if err != nil {
		response.Error(c, err)
		return
	}
	limit, err := parseIntQuery(c, "limit", 100)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	rows, cacheHit, err := h.analytics.Clients(c.Request.Context(), periodEnd, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil, withTiming(c, cacheHit, start))
}

// Aggregate godoc
// @Summary Run or queue an aggregation
// @Tags Metrics
// @Accept json
// @Produce json
// @Param payload body dto.AggregateRequest false "Date, type and mode"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /metrics/aggregate [post]
func (h *AnalyticsHandler) Aggregate(c *gin.Context) {
	var req dto.AggregateRequest
	if err := bindJSON(c, h.validate, &req, true); err != nil {
		response.Error(c, err)
		return
	}
	date := time.Now().UTC()
	if req.Date != "" {
		parsed, err := time.Parse(dateLayout, strings.TrimSpace(req.Date))
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD"))
			return
		}
		date = parsed
	}
	metricType := req.Type
	if metricType == "" {
		metricType = models.MetricTypeAll
	}

	if req.Async {
		if h.jobs == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrInternal, "aggregation queue not configured"))
			return
		}
		jobID, err := h.jobs.Enqueue(models.AggregationRequest{Date: date, Type: metricType})
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Accepted(c, dto.AggregateResponse{JobID: jobID})
		return
	}

	result, err := h.aggregator.Aggregate(c.Request.Context(), date, metricType)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.AggregateResponse{Result: result}, nil)
}

// System godoc
// @Summary Process instrumentation snapshot
// @Tags Metrics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /metrics/system [get]
func (h *AnalyticsHandler) System(c *gin.Context) {
	start := time.Now()
	response.JSON(c, http.StatusOK, h.analytics.SystemMetrics(), nil, withTiming(c, false, start))
}

func parseRange(c *gin.Context) (models.DateRange, error) {
	from, err := parseDateQuery(c, "from")
	if err != nil {
		return models.DateRange{}, err
	}
	to, err := parseDateQuery(c, "to")
	if err != nil {
		return models.DateRange{}, err
	}
	return models.DateRange{From: from, To: to}, nil
}
