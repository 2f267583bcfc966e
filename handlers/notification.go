package handlers

import (
	"encoding/json"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campusline/middleware"
	"campusline/services"
	"campusline/utils"
)

type CreateNotificationRequest struct {
	UserID   string          `json:"user_id" binding:"required"`
	Title    string          `json:"title" binding:"required,max=200"`
	Message  string          `json:"message" binding:"required"`
	Type     string          `json:"type" binding:"omitempty,notification_type"`
	Link     *string         `json:"link"`
	Metadata json.RawMessage `json:"metadata"`
}

type NotificationHandler struct {
	notifications *services.NotificationService
	logger        *zap.Logger
}

func NewNotificationHandler(notifications *services.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

func (h *NotificationHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	list, err := h.notifications.List(c.Request.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Success(c, list)
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	count, err := h.notifications.UnreadCount(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Success(c, gin.H{"count": count})
}

func (h *NotificationHandler) Create(c *gin.Context) {
	var req CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	n, err := h.notifications.Create(c.Request.Context(), services.CreateNotificationInput{
		UserID:   req.UserID,
		Title:    req.Title,
		Message:  req.Message,
		Type:     req.Type,
		Link:     req.Link,
		Metadata: req.Metadata,
	})
	if err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Created(c, n)
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	n, err := h.notifications.MarkRead(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Success(c, n)
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	updated, err := h.notifications.MarkAllRead(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Success(c, gin.H{"updated": updated})
}

func (h *NotificationHandler) ClearAll(c *gin.Context) {
	deleted, err := h.notifications.ClearAll(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Success(c, gin.H{"deleted": deleted})
}
