package handler

import (
	"strconv"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/middleware"
	"github.com/gin-gonic/gin"
)

// AuditHandler exposes the caller's own audit trail
type AuditHandler struct {
	audit *middleware.AuditLogger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(audit *middleware.AuditLogger) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// List handles GET /api/v1/me/audit
// @Summary List the caller's access and account changes
// @Tags users
// @Produce json
// @Param action query string false "Filter by action"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Success 200 {object} common.APIResponse{data=[]middleware.AuditLog}
// @Security BearerAuth
// @Router /me/audit [get]
func (h *AuditHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	logs, total, err := h.audit.List(c.Request.Context(), middleware.GetUserID(c), c.Query("action"), page, limit)
	if err != nil {
		common.FailWith(c, err)
		return
	}
	common.SuccessResponse(c, logs, &common.Meta{Total: total})
}
