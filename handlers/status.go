package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campusline/middleware"
	"campusline/services"
	"campusline/utils"
)

type StatusHandler struct {
	presence          *services.PresenceService
	heartbeatInterval time.Duration
	logger            *zap.Logger
}

func NewStatusHandler(presence *services.PresenceService, heartbeatInterval time.Duration, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{presence: presence, heartbeatInterval: heartbeatInterval, logger: logger}
}

// Online is the heartbeat endpoint. The response tells the client how often
// to call it.
func (h *StatusHandler) Online(c *gin.Context) {
	if err := h.presence.Online(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Success(c, gin.H{
		"isOnline":                 true,
		"heartbeatIntervalSeconds": int(h.heartbeatInterval / time.Second),
	})
}

func (h *StatusHandler) Offline(c *gin.Context) {
	if err := h.presence.Offline(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Success(c, gin.H{"isOnline": false})
}

func (h *StatusHandler) Get(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		userID = middleware.GetUserID(c)
	}

	status, err := h.presence.Status(c.Request.Context(), userID)
	if err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Success(c, status)
}
