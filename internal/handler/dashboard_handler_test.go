package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidly/aidly-api/internal/dto"
	"github.com/aidly/aidly-api/internal/middleware"
	"github.com/aidly/aidly-api/internal/models"
)

type fakeDashboardSrv struct {
	queueHit    bool
	lastAgentID string
	lastPage    int
	lastPerPage int
}

func (f *fakeDashboardSrv) AgentQueue(_ context.Context, agentID string, page, perPage int) (*dto.AgentQueueResponse, bool, error) {
	f.lastAgentID, f.lastPage, f.lastPerPage = agentID, page, perPage
	return &dto.AgentQueueResponse{
		AgentID:    agentID,
		Tickets:    []models.QueueTicket{{ID: "t-1"}},
		Pagination: models.Pagination{Page: page, PerPage: perPage, Total: 45, LastPage: 3},
	}, f.queueHit, nil
}

func (f *fakeDashboardSrv) AgentStats(_ context.Context, agentID string) (*models.AgentStats, bool, error) {
	f.lastAgentID = agentID
	return &models.AgentStats{AgentID: agentID, AssignedOpen: 4}, false, nil
}

type responseEnvelope struct {
	Data map[string]interface{} `json:"data"`
	Meta map[string]interface{} `json:"meta"`
}

func dashboardRouter(srv *fakeDashboardSrv) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewDashboardHandler(srv)
	r := gin.New()
	r.Use(middleware.WithResponseMeta(), middleware.Identity())
	r.GET("/dashboard/agent-queue", h.AgentQueue)
	r.GET("/dashboard/agent-stats", h.AgentStats)
	return r
}

func TestDashboardHandlerAgentQueue(t *testing.T) {
	srv := &fakeDashboardSrv{queueHit: true}
	rec := doRequest(dashboardRouter(srv), http.MethodGet, "/dashboard/agent-queue?agent_id=agent-7&page=2&per_page=20", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "agent-7", srv.lastAgentID)
	assert.Equal(t, 2, srv.lastPage)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, true, envelope.Meta["cache_hit"])
	assert.EqualValues(t, 3, envelope.Meta["last_page"])
	assert.Equal(t, "agent-7", envelope.Data["agent_id"])
}

func TestDashboardHandlerAgentQueueDefaultsToCaller(t *testing.T) {
	srv := &fakeDashboardSrv{}
	rec := doRequest(dashboardRouter(srv), http.MethodGet, "/dashboard/agent-queue", "", asAgent)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "agent-1", srv.lastAgentID)

	rec = doRequest(dashboardRouter(srv), http.MethodGet, "/dashboard/agent-queue", "", map[string]string{
		middleware.HeaderUserID:   "client-1",
		middleware.HeaderUserType: "client",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(dashboardRouter(srv), http.MethodGet, "/dashboard/agent-queue?page=x", "", asAgent)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardHandlerAgentStats(t *testing.T) {
	srv := &fakeDashboardSrv{}
	rec := doRequest(dashboardRouter(srv), http.MethodGet, "/dashboard/agent-stats?agent_id=agent-3", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, false, envelope.Meta["cache_hit"])
	assert.EqualValues(t, 4, envelope.Data["assigned_open"])
}
