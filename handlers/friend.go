package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campusline/middleware"
	"campusline/services"
	"campusline/utils"
)

type FriendRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type FriendHandler struct {
	friends *services.FriendshipService
	logger  *zap.Logger
}

func NewFriendHandler(friends *services.FriendshipService, logger *zap.Logger) *FriendHandler {
	return &FriendHandler{friends: friends, logger: logger}
}

func (h *FriendHandler) List(c *gin.Context) {
	friends, err := h.friends.ListFriends(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Success(c, friends)
}

func (h *FriendHandler) Incoming(c *gin.Context) {
	requests, err := h.friends.ListIncoming(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Success(c, requests)
}

func (h *FriendHandler) Outgoing(c *gin.Context) {
	requests, err := h.friends.ListOutgoing(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Success(c, requests)
}

func (h *FriendHandler) Status(c *gin.Context) {
	state, err := h.friends.Status(c.Request.Context(), middleware.GetUserID(c), c.Param("user_id"))
	if err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Success(c, state)
}

func (h *FriendHandler) Send(c *gin.Context) {
	var req FriendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	f, err := h.friends.Send(c.Request.Context(), middleware.GetUserID(c), req.UserID)
	if err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Success(c, f)
}

func (h *FriendHandler) Accept(c *gin.Context) {
	f, err := h.friends.Accept(c.Request.Context(), middleware.GetUserID(c), c.Param("user_id"))
	if err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Success(c, f)
}

func (h *FriendHandler) Reject(c *gin.Context) {
	f, err := h.friends.Reject(c.Request.Context(), middleware.GetUserID(c), c.Param("user_id"))
	if err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Success(c, f)
}

// Remove cancels, dismisses or unfriends depending on the row's state.
func (h *FriendHandler) Remove(c *gin.Context) {
	if err := h.friends.Remove(c.Request.Context(), middleware.GetUserID(c), c.Param("user_id")); err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Success(c, nil)
}
