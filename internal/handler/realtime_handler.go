package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/aidly/aidly-api/internal/dto"
	"github.com/aidly/aidly-api/internal/middleware"
	"github.com/aidly/aidly-api/internal/models"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
	"github.com/aidly/aidly-api/pkg/realtime"
	"github.com/aidly/aidly-api/pkg/response"
)

type channelAuthorizer interface {
	AuthorizeChannel(socketID, channel string) (realtime.AuthResponse, error)
	AuthorizePresenceChannel(socketID, channel string, member realtime.PresenceMember) (realtime.AuthResponse, error)
}

type websocketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID string) error
}

type recipientLookup interface {
	Find(ctx context.Context, id string, kind models.NotifiableType) (*models.Recipient, error)
}

// RealtimeHandler signs channel subscriptions and upgrades websocket connections.
type RealtimeHandler struct {
	auth       channelAuthorizer
	hub        websocketServer
	recipients recipientLookup
	validate   *validator.Validate
}

// NewRealtimeHandler constructs the handler.
func NewRealtimeHandler(auth channelAuthorizer, hub websocketServer, recipients recipientLookup, validate *validator.Validate) *RealtimeHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &RealtimeHandler{auth: auth, hub: hub, recipients: recipients, validate: validate}
}

// Auth godoc
// @Summary Sign a private or presence channel subscription
// @Tags Realtime
// @Accept json
// @Produce json
// @Param payload body dto.RealtimeAuthRequest true "Socket and channel"
// @Success 200 {object} realtime.AuthResponse
// @Router /realtime/auth [post]
func (h *RealtimeHandler) Auth(c *gin.Context) {
	caller, err := callerFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.RealtimeAuthRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, validationMessage(err)))
		return
	}
	if err := h.mayJoin(c.Request.Context(), caller, req.ChannelName); err != nil {
		response.Error(c, err)
		return
	}

	var auth realtime.AuthResponse
	if realtime.IsPresence(req.ChannelName) {
		auth, err = h.auth.AuthorizePresenceChannel(req.SocketID, req.ChannelName, realtime.PresenceMember{
			UserID:   caller.ID,
			UserInfo: map[string]interface{}{"type": caller.Type},
		})
	} else {
		auth, err = h.auth.AuthorizeChannel(req.SocketID, req.ChannelName)
	}
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, err.Error()))
		return
	}
	// the websocket client expects the bare auth object
	c.JSON(http.StatusOK, auth)
}

// WS godoc
// @Summary Upgrade to the realtime websocket
// @Tags Realtime
// @Success 101
// @Router /realtime/ws [get]
func (h *RealtimeHandler) WS(c *gin.Context) {
	caller, err := callerFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.hub.ServeWS(c.Writer, c.Request, caller.ID); err != nil {
		_ = c.Error(err)
	}
}

// mayJoin restricts private channels to their owner. Department and presence
// channels are limited to agents; department membership comes from the directory.
func (h *RealtimeHandler) mayJoin(ctx context.Context, caller *middleware.Caller, channel string) error {
	forbidden := appErrors.Clone(appErrors.ErrForbidden, "not allowed to join "+channel)
	switch {
	case channel == realtime.UserChannel(caller.ID) && caller.Type == models.NotifiableUser:
		return nil
	case channel == realtime.ClientChannel(caller.ID) && caller.Type == models.NotifiableClient:
		return nil
	case realtime.IsPresence(channel):
		if caller.Type != models.NotifiableUser || channel != realtime.OnlineAgentsChannel {
			return forbidden
		}
		return nil
	case strings.HasPrefix(channel, realtime.DepartmentChannel("")):
		if caller.Type != models.NotifiableUser || h.recipients == nil {
			return forbidden
		}
		recipient, err := h.recipients.Find(ctx, caller.ID, caller.Type)
		if err != nil || recipient.DepartmentID == nil || realtime.DepartmentChannel(*recipient.DepartmentID) != channel {
			return forbidden
		}
		return nil
	}
	return forbidden
}
