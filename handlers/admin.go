package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campusline/middleware"
	"campusline/services"
	"campusline/utils"
)

type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required,role"`
}

type AdminHandler struct {
	admin  *services.AdminService
	logger *zap.Logger
}

func NewAdminHandler(admin *services.AdminService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

func (h *AdminHandler) ChangeRole(c *gin.Context) {
	var req ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	user, err := h.admin.ChangeRole(c.Request.Context(),
		middleware.GetUserID(c), middleware.GetRole(c), c.Param("id"), req.Role)
	if err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Success(c, user)
}

func (h *AdminHandler) RoleHistory(c *gin.Context) {
	logs, err := h.admin.RoleHistory(c.Request.Context(), middleware.GetRole(c), c.Param("id"))
	if err != nil {
		utils.HandleError(c, h.logger, err)
		return
	}
	utils.Success(c, logs)
}
