package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/aidly/aidly-api/internal/dto"
	"github.com/aidly/aidly-api/internal/models"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
	"github.com/aidly/aidly-api/pkg/response"
)

type notificationService interface {
	Notify(ctx context.Context, event models.NotificationEvent) (*models.Notification, error)
	NotifyAllChannels(ctx context.Context, event models.NotificationEvent) ([]models.Notification, error)
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error)
	UnreadCount(ctx context.Context, recipient models.Recipient) (int, error)
	MarkRead(ctx context.Context, recipient models.Recipient, id string) (*models.Notification, error)
	MarkUnread(ctx context.Context, recipient models.Recipient, id string) (*models.Notification, error)
	MarkManyRead(ctx context.Context, recipient models.Recipient, ids []string) (int64, error)
	MarkAllRead(ctx context.Context, recipient models.Recipient) (int64, error)
	Delete(ctx context.Context, recipient models.Recipient, id string) error
	GetPreferences(ctx context.Context, recipient models.Recipient) (*models.NotificationPreference, error)
	UpdatePreferences(ctx context.Context, pref *models.NotificationPreference) error
}

// NotificationHandler exposes the notification inbox and dispatch endpoints.
type NotificationHandler struct {
	service  notificationService
	validate *validator.Validate
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(service notificationService, validate *validator.Validate) *NotificationHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &NotificationHandler{service: service, validate: validate}
}

// List godoc
// @Summary List notifications of a recipient
// @Tags Notifications
// @Produce json
// @Param notifiable_id query string false "Recipient ID, defaults to the caller"
// @Param notifiable_type query string false "user or client"
// @Param unread query bool false "Only unread"
// @Param type query string false "Event type"
// @Param page query int false "Page"
// @Param per_page query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	recipient, err := recipientFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	unread, err := parseBoolQuery(c, "unread")
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
	filter := models.NotificationFilter{
		NotifiableID:   recipient.ID,
		NotifiableType: recipient.Type,
		Unread:         unread,
		Type:           strings.TrimSpace(c.Query("type")),
		Channel:        models.Channel(strings.TrimSpace(c.Query("channel"))),
		Page:           page,
		PerPage:        perPage,
	}
	rows, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, response.NewPagination(pagination.Page, pagination.PerPage, pagination.Total))
}

// UnreadCount godoc
// @Summary Count unread in-app notifications
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/unread-count [get]
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	recipient, err := recipientFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	count, err := h.service.UnreadCount(c.Request.Context(), recipient)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.UnreadCountResponse{Count: count}, nil)
}

// Notify godoc
// @Summary Dispatch an event on one channel
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body models.NotificationEvent true "Event"
// @Success 201 {object} response.Envelope
// @Router /notifications [post]
func (h *NotificationHandler) Notify(c *gin.Context) {
	var event models.NotificationEvent
	if err := bindJSON(c, nil, &event, false); err != nil {
		response.Error(c, err)
		return
	}
	notification, err := h.service.Notify(c.Request.Context(), event)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, notification)
}

// FanOut godoc
// @Summary Dispatch an event on every enabled channel
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body models.NotificationEvent true "Event"
// @Success 201 {object} response.Envelope
// @Router /notifications/fan-out [post]
func (h *NotificationHandler) FanOut(c *gin.Context) {
	var event models.NotificationEvent
	if err := bindJSON(c, nil, &event, false); err != nil {
		response.Error(c, err)
		return
	}
	rows, err := h.service.NotifyAllChannels(c.Request.Context(), event)
	if err != nil {
		response.Error(c, err)
		return
	}
	if rows == nil {
		rows = []models.Notification{}
	}
	response.Created(c, rows)
}

// MarkRead godoc
// @Summary Mark a notification read
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} response.Envelope
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	recipient, err := recipientFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	notification, err := h.service.MarkRead(c.Request.Context(), recipient, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notification, nil)
}

// MarkUnread godoc
// @Summary Mark a notification unread
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} response.Envelope
// @Router /notifications/{id}/unread [post]
func (h *NotificationHandler) MarkUnread(c *gin.Context) {
	recipient, err := recipientFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	notification, err := h.service.MarkUnread(c.Request.Context(), recipient, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notification, nil)
}

// MarkManyRead godoc
// @Summary Mark several notifications read
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body dto.MarkReadRequest true "IDs"
// @Success 200 {object} response.Envelope
// @Router /notifications/mark-read [post]
func (h *NotificationHandler) MarkManyRead(c *gin.Context) {
	recipient, err := recipientFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.MarkReadRequest
	if err := bindJSON(c, h.validate, &req, false); err != nil {
		response.Error(c, err)
		return
	}
	updated, err := h.service.MarkManyRead(c.Request.Context(), recipient, req.IDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.BulkUpdateResponse{Updated: updated}, nil)
}

// MarkAllRead godoc
// @Summary Mark every notification of a recipient read
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/mark-all-read [post]
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	recipient, err := recipientFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	updated, err := h.service.MarkAllRead(c.Request.Context(), recipient)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.BulkUpdateResponse{Updated: updated}, nil)
}

// Delete godoc
// @Summary Delete a notification
// @Tags Notifications
// @Param id path string true "Notification ID"
// @Success 204
// @Router /notifications/{id} [delete]
func (h *NotificationHandler) Delete(c *gin.Context) {
	recipient, err := recipientFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), recipient, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// GetPreferences godoc
// @Summary Notification preferences of a recipient
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notification-preferences [get]
func (h *NotificationHandler) GetPreferences(c *gin.Context) {
	recipient, err := recipientFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	pref, err := h.service.GetPreferences(c.Request.Context(), recipient)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pref, nil)
}

// UpdatePreferences godoc
// @Summary Replace notification preferences of a recipient
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body dto.UpdatePreferencesRequest true "Preferences"
// @Success 200 {object} response.Envelope
// @Router /notification-preferences [put]
func (h *NotificationHandler) UpdatePreferences(c *gin.Context) {
	recipient, err := recipientFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpdatePreferencesRequest
	if err := bindJSON(c, h.validate, &req, false); err != nil {
		response.Error(c, err)
		return
	}
	for _, channels := range req.EventSettings {
		for channel := range channels {
			if !channel.Valid() {
				response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown channel "+string(channel)))
				return
			}
		}
	}
	pref := req.Preference(recipient)
	if err := h.service.UpdatePreferences(c.Request.Context(), pref); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pref, nil)
}
