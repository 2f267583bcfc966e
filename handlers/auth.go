package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campusline/middleware"
	"campusline/services"
	"campusline/utils"
)

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=6"`
	Nickname string `json:"nickname" binding:"max=50"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthHandler struct {
	users    *services.UserService
	presence *services.PresenceService
	logger   *zap.Logger
}

func NewAuthHandler(users *services.UserService, presence *services.PresenceService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, presence: presence, logger: logger}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	result, err := h.users.Register(c.Request.Context(), req.Username, req.Password, req.Nickname)
	if err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Created(c, result)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	result, err := h.users.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Success(c, result)
}

// Logout marks the caller offline right away. The token itself stays valid
// until it expires; clients drop it.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if err := h.presence.Offline(c.Request.Context(), userID); err != nil {
		h.logger.Warn("logout offline failed", zap.String("user_id", userID), zap.Error(err))
	}
	utils.Success(c, nil)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	result, err := h.users.Refresh(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Success(c, result)
}
