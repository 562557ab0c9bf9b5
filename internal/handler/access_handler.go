package handler

import (
	"net/http"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/middleware"
	"github.com/damoang/angple-chat/internal/service"
	"github.com/gin-gonic/gin"
)

// AccessHandler handles chat request and access ledger endpoints
type AccessHandler struct {
	service service.AccessService
}

// NewAccessHandler creates a new AccessHandler
func NewAccessHandler(service service.AccessService) *AccessHandler {
	return &AccessHandler{service: service}
}

// SendRequest handles POST /api/v1/requests
// @Summary Send a chat request
// @Tags access
// @Accept json
// @Produce json
// @Param request body domain.SendChatRequest true "Recipient"
// @Success 201 {object} common.APIResponse{data=domain.AccessRequestResponse}
// @Failure 400 {object} common.APIResponse
// @Failure 403 {object} common.APIResponse
// @Failure 409 {object} common.APIResponse
// @Security BearerAuth
// @Router /requests [post]
func (h *AccessHandler) SendRequest(c *gin.Context) {
	var req domain.SendChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	created, err := h.service.SendRequest(c.Request.Context(), middleware.GetUserID(c), req.ToUserID)
	if err != nil {
		common.FailWith(c, err)
		return
	}
	c.Set(middleware.AuditResourceKey, created.ID)
	c.JSON(http.StatusCreated, common.APIResponse{Data: created.ToResponse()})
}

// ListRequests handles GET /api/v1/requests
// @Summary List chat requests involving the caller
// @Tags access
// @Produce json
// @Success 200 {object} common.APIResponse{data=[]domain.AccessRequestResponse}
// @Security BearerAuth
// @Router /requests [get]
func (h *AccessHandler) ListRequests(c *gin.Context) {
	selfID := middleware.GetUserID(c)
	reqs, err := h.service.List(c.Request.Context(), selfID)
	if err != nil {
		common.FailWith(c, err)
		return
	}

	out := make([]*domain.AccessRequestResponse, len(reqs))
	for i := range reqs {
		out[i] = reqs[i].ToResponse()
	}
	common.SuccessResponse(c, out, &common.Meta{
		PendingCount: domain.CountPendingFor(reqs, selfID),
		Total:        int64(len(reqs)),
	})
}

// Accept handles POST /api/v1/requests/:id/accept
// @Summary Accept a pending chat request
// @Tags access
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} common.APIResponse{data=domain.AccessRequestResponse}
// @Failure 403 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Security BearerAuth
// @Router /requests/{id}/accept [post]
func (h *AccessHandler) Accept(c *gin.Context) {
	req, err := h.service.Accept(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		common.FailWith(c, err)
		return
	}
	common.SuccessResponse(c, req.ToResponse(), nil)
}

// Reject handles POST /api/v1/requests/:id/reject
// @Summary Reject a pending chat request
// @Tags access
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} common.APIResponse{data=domain.AccessRequestResponse}
// @Failure 403 {object} common.APIResponse
// @Failure 409 {object} common.APIResponse
// @Security BearerAuth
// @Router /requests/{id}/reject [post]
func (h *AccessHandler) Reject(c *gin.Context) {
	req, err := h.service.Reject(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		common.FailWith(c, err)
		return
	}
	common.SuccessResponse(c, req.ToResponse(), nil)
}

// Status handles GET /api/v1/access/:user_id
// @Summary Whether the caller may privately message a user
// @Tags access
// @Produce json
// @Param user_id path string true "Counterpart user ID"
// @Success 200 {object} common.APIResponse{data=domain.AccessStatusResponse}
// @Security BearerAuth
// @Router /access/{user_id} [get]
func (h *AccessHandler) Status(c *gin.Context) {
	selfID := middleware.GetUserID(c)
	otherID := c.Param("user_id")

	req, err := h.service.Status(c.Request.Context(), selfID, otherID)
	if err != nil {
		common.FailWith(c, err)
		return
	}

	resp := domain.AccessStatusResponse{UserID: otherID}
	if req != nil {
		resp.CanCommunicate = req.Status == domain.RequestAccepted
		resp.RevokedByMe = req.Status == domain.RequestRejected && req.RevokedBy == selfID
		resp.Request = req.ToResponse()
	}
	common.SuccessResponse(c, resp, nil)
}

// Revoke handles POST /api/v1/access/:user_id/revoke
// @Summary Revoke accepted chat access
// @Tags access
// @Produce json
// @Param user_id path string true "Counterpart user ID"
// @Success 200 {object} common.APIResponse{data=domain.AccessRequestResponse}
// @Failure 403 {object} common.APIResponse
// @Security BearerAuth
// @Router /access/{user_id}/revoke [post]
func (h *AccessHandler) Revoke(c *gin.Context) {
	req, err := h.service.Revoke(c.Request.Context(), middleware.GetUserID(c), c.Param("user_id"))
	if err != nil {
		common.FailWith(c, err)
		return
	}
	common.SuccessResponse(c, req.ToResponse(), nil)
}

// Grant handles POST /api/v1/access/:user_id/grant
// @Summary Re-grant access the caller previously closed
// @Tags access
// @Produce json
// @Param user_id path string true "Counterpart user ID"
// @Success 200 {object} common.APIResponse{data=domain.AccessRequestResponse}
// @Failure 403 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Security BearerAuth
// @Router /access/{user_id}/grant [post]
func (h *AccessHandler) Grant(c *gin.Context) {
	req, err := h.service.Grant(c.Request.Context(), middleware.GetUserID(c), c.Param("user_id"))
	if err != nil {
		common.FailWith(c, err)
		return
	}
	common.SuccessResponse(c, req.ToResponse(), nil)
}
