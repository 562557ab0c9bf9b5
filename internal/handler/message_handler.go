package handler

import (
	"net/http"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/middleware"
	"github.com/damoang/angple-chat/internal/service"
	"github.com/gin-gonic/gin"
)

// MessageHandler handles message endpoints
type MessageHandler struct {
	service service.MessageService
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(service service.MessageService) *MessageHandler {
	return &MessageHandler{service: service}
}

// List handles GET /api/v1/messages
// @Summary Messages of one conversation
// @Description conversation is "global" (default) or the counterpart user ID
// @Tags messages
// @Produce json
// @Param conversation query string false "Conversation key"
// @Success 200 {object} common.APIResponse{data=[]domain.MessageResponse}
// @Security BearerAuth
// @Router /messages [get]
func (h *MessageHandler) List(c *gin.Context) {
	key := domain.ParseConversationKey(c.Query("conversation"))
	msgs, err := h.service.List(c.Request.Context(), middleware.GetUserID(c), key)
	if err != nil {
		common.FailWith(c, err)
		return
	}
	common.SuccessResponse(c, domain.ToResponses(msgs), &common.Meta{
		Conversation: key.String(),
		Total:        int64(len(msgs)),
	})
}

// Send handles POST /api/v1/messages
// @Summary Send a message
// @Description JSON body, or multipart form with an optional "image" file
// @Tags messages
// @Accept json,mpfd
// @Produce json
// @Param request body domain.SendMessageRequest false "Message"
// @Param image formData file false "Image attachment"
// @Success 201 {object} common.APIResponse{data=domain.MessageResponse}
// @Failure 400 {object} common.APIResponse
// @Failure 403 {object} common.APIResponse
// @Failure 502 {object} common.APIResponse
// @Security BearerAuth
// @Router /messages [post]
func (h *MessageHandler) Send(c *gin.Context) {
	var (
		req   domain.SendMessageRequest
		image *service.ImageUpload
	)
	if isMultipart(c) {
		if err := c.ShouldBind(&req); err != nil {
			common.ErrorResponse(c, http.StatusBadRequest, "Invalid form", err)
			return
		}
		upload, closeFn, err := formImage(c, "image")
		if err != nil {
			common.FailWith(c, err)
			return
		}
		defer closeFn()
		image = upload
	} else if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	msg, err := h.service.Send(c.Request.Context(), middleware.GetUserID(c), &req, image)
	if err != nil {
		common.FailWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, common.APIResponse{Data: msg.ToResponse()})
}

// Edit handles PUT /api/v1/messages/:id
// @Summary Edit a text message inside the edit window
// @Tags messages
// @Accept json
// @Produce json
// @Param id path string true "Message ID"
// @Param request body domain.EditMessageRequest true "New text"
// @Success 200 {object} common.APIResponse{data=domain.MessageResponse}
// @Failure 403 {object} common.APIResponse
// @Failure 409 {object} common.APIResponse
// @Security BearerAuth
// @Router /messages/{id} [put]
func (h *MessageHandler) Edit(c *gin.Context) {
	var req domain.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	msg, err := h.service.Edit(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.Text)
	if err != nil {
		common.FailWith(c, err)
		return
	}
	common.SuccessResponse(c, msg.ToResponse(), nil)
}

// Delete handles DELETE /api/v1/messages/:id
// @Summary Delete an own message
// @Tags messages
// @Param id path string true "Message ID"
// @Success 204
// @Failure 403 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Security BearerAuth
// @Router /messages/{id} [delete]
func (h *MessageHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		common.FailWith(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
