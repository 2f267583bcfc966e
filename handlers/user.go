package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campusline/middleware"
	"campusline/services"
	"campusline/utils"
)

type UserHandler struct {
	users  *services.UserService
	logger *zap.Logger
}

func NewUserHandler(users *services.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.users.Profile(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Success(c, user)
}

func (h *UserHandler) Search(c *gin.Context) {
	users, err := h.users.Search(c.Request.Context(), middleware.GetUserID(c), c.Query("q"))
	if err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Success(c, users)
}
