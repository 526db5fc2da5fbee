package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidly/aidly-api/internal/models"
)

type fakeAnalyticsSrv struct {
	lastRange models.DateRange
	lastDate  time.Time
	lastLimit int
}

func (f *fakeAnalyticsSrv) Tickets(_ context.Context, rng models.DateRange) ([]models.TicketMetrics, bool, error) {
	f.lastRange = rng
	return []models.TicketMetrics{{TotalTickets: 3}}, false, nil
}

func (f *fakeAnalyticsSrv) SLA(_ context.Context, rng models.DateRange) ([]models.SLAMetrics, bool, error) {
	f.lastRange = rng
	return []models.SLAMetrics{}, true, nil
}

func (f *fakeAnalyticsSrv) Hourly(_ context.Context, date time.Time) ([]models.HourlyTicketMetrics, bool, error) {
	f.lastDate = date
	return make([]models.HourlyTicketMetrics, 24), false, nil
}

func (f *fakeAnalyticsSrv) Clients(_ context.Context, periodEnd time.Time, limit int) ([]models.ClientMetrics, bool, error) {
	f.lastDate, f.lastLimit = periodEnd, limit
	return []models.ClientMetrics{}, false, nil
}

func (f *fakeAnalyticsSrv) SystemMetrics() models.SystemMetrics {
	return models.SystemMetrics{}
}

type fakeAggregator struct {
	date       time.Time
	metricType models.MetricType
}

func (f *fakeAggregator) Aggregate(_ context.Context, date time.Time, metricType models.MetricType) (*models.AggregationResult, error) {
	f.date, f.metricType = date, metricType
	return &models.AggregationResult{Date: date, Types: metricType.Expand()}, nil
}

type fakeAggregationQueue struct {
	queued []models.AggregationRequest
}

func (f *fakeAggregationQueue) Enqueue(req models.AggregationRequest) (string, error) {
	f.queued = append(f.queued, req)
	return "job-1", nil
}

func analyticsRouter(srv *fakeAnalyticsSrv, agg *fakeAggregator, queue *fakeAggregationQueue) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewAnalyticsHandler(srv, agg, queue, nil)
	r := gin.New()
	r.GET("/metrics/tickets", h.Tickets)
	r.GET("/metrics/sla", h.SLA)
	r.GET("/metrics/hourly", h.Hourly)
	r.GET("/metrics/clients", h.Clients)
	r.GET("/metrics/system", h.System)
	r.POST("/metrics/aggregate", h.Aggregate)
	return r
}

func TestAnalyticsHandlerParsesRanges(t *testing.T) {
	srv := &fakeAnalyticsSrv{}
	r := analyticsRouter(srv, &fakeAggregator{}, &fakeAggregationQueue{})

	rec := doRequest(r, http.MethodGet, "/metrics/tickets?from=2025-01-01&to=2025-01-07", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), srv.lastRange.From)
	assert.Equal(t, time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC), srv.lastRange.To)
	assert.Contains(t, rec.Body.String(), `"total_tickets":3`)

	rec = doRequest(r, http.MethodGet, "/metrics/sla?from=01/02/2025", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(r, http.MethodGet, "/metrics/sla", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cache_hit":true`)
}

func TestAnalyticsHandlerHourlyAndClients(t *testing.T) {
	srv := &fakeAnalyticsSrv{}
	r := analyticsRouter(srv, &fakeAggregator{}, &fakeAggregationQueue{})

	require.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/metrics/hourly?date=2025-01-15", "", nil).Code)
	assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), srv.lastDate)

	require.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/metrics/clients?limit=10", "", nil).Code)
	assert.Equal(t, 10, srv.lastLimit)
	assert.True(t, srv.lastDate.IsZero())

	assert.Equal(t, http.StatusBadRequest, doRequest(r, http.MethodGet, "/metrics/clients?limit=ten", "", nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/metrics/system", "", nil).Code)
}

func TestAnalyticsHandlerAggregateSyncAndAsync(t *testing.T) {
	agg := &fakeAggregator{}
	queue := &fakeAggregationQueue{}
	r := analyticsRouter(&fakeAnalyticsSrv{}, agg, queue)

	rec := doRequest(r, http.MethodPost, "/metrics/aggregate", `{"date":"2025-01-15","type":"sla"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.MetricTypeSLA, agg.metricType)
	assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), agg.date)

	rec = doRequest(r, http.MethodPost, "/metrics/aggregate", `{"async":true}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"job_id":"job-1"`)
	require.Len(t, queue.queued, 1)
	assert.Equal(t, models.MetricTypeAll, queue.queued[0].Type)

	rec = doRequest(r, http.MethodPost, "/metrics/aggregate", `{"type":"weekly"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(r, http.MethodPost, "/metrics/aggregate", `{"date":"15-01-2025"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
