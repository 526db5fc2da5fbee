package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aidly/aidly-api/internal/dto"
	"github.com/aidly/aidly-api/internal/models"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
	"github.com/aidly/aidly-api/pkg/response"
)

type dashboardService interface {
	AgentQueue(ctx context.Context, agentID string, page, perPage int) (*dto.AgentQueueResponse, bool, error)
	AgentStats(ctx context.Context, agentID string) (*models.AgentStats, bool, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// AgentQueue godoc
// @Summary Open tickets assigned to an agent
// @Tags Dashboard
// @Produce json
// @Param agent_id query string false "Agent ID, defaults to the caller"
// @Param page query int false "Page"
// @Param per_page query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /dashboard/agent-queue [get]
func (h *DashboardHandler) AgentQueue(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	agentID, err := agentFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	page, err := parseIntQuery(c, "page", 1)
	if err != nil {
		response.Error(c, err)
		return
	}
	perPage, err := parseIntQuery(c, "per_page", 20)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	queue, cacheHit, err := h.service.AgentQueue(c.Request.Context(), agentID, page, perPage)
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := withTiming(c, cacheHit, start)
	p := queue.Pagination
	response.JSON(c, http.StatusOK, queue, response.NewPagination(p.Page, p.PerPage, p.Total), meta)
}

// AgentStats godoc
// @Summary Rolling metrics and live counters for an agent
// @Tags Dashboard
// @Produce json
// @Param agent_id query string false "Agent ID, defaults to the caller"
// @Success 200 {object} response.Envelope
// @Router /dashboard/agent-stats [get]
func (h *DashboardHandler) AgentStats(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	agentID, err := agentFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	stats, cacheHit, err := h.service.AgentStats(c.Request.Context(), agentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil, withTiming(c, cacheHit, start))
}

func agentFromQuery(c *gin.Context) (string, error) {
	if agentID := strings.TrimSpace(c.Query("agent_id")); agentID != "" {
		return agentID, nil
	}
	caller, err := callerFromContext(c)
	if err != nil || caller.Type != models.NotifiableUser {
		return "", appErrors.Clone(appErrors.ErrValidation, "agent_id is required")
	}
	return caller.ID, nil
}
