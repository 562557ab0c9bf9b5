package handler

import (
	"net/http"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/middleware"
	"github.com/damoang/angple-chat/internal/service"
	"github.com/gin-gonic/gin"
)

// UserHandler handles identity, profile and contact endpoints
type UserHandler struct {
	users    service.UserService
	presence service.PresenceService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users service.UserService, presence service.PresenceService) *UserHandler {
	return &UserHandler{users: users, presence: presence}
}

// Session handles POST /api/v1/session
// @Summary Establish the caller's chat identity
// @Description Creates the profile on first sight and marks the caller active
// @Tags users
// @Produce json
// @Success 200 {object} common.APIResponse{data=domain.ContactResponse}
// @Failure 403 {object} common.APIResponse
// @Security BearerAuth
// @Router /session [post]
func (h *UserHandler) Session(c *gin.Context) {
	user, err := h.users.EnsureProfile(c.Request.Context(), middleware.GetIdentity(c))
	if err != nil {
		common.FailWith(c, err)
		return
	}
	common.SuccessResponse(c, h.users.ToContact(user), nil)
}

// Contacts handles GET /api/v1/users
// @Summary Sidebar contacts, most recent conversation first
// @Tags users
// @Produce json
// @Success 200 {object} common.APIResponse{data=[]domain.ContactResponse}
// @Security BearerAuth
// @Router /users [get]
func (h *UserHandler) Contacts(c *gin.Context) {
	contacts, err := h.users.Contacts(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		common.FailWith(c, err)
		return
	}
	common.SuccessResponse(c, contacts, &common.Meta{Total: int64(len(contacts))})
}

// Search handles GET /api/v1/users/search
// @Summary Find users by display name
// @Tags users
// @Produce json
// @Param q query string true "Name prefix"
// @Success 200 {object} common.APIResponse{data=[]domain.ContactResponse}
// @Security BearerAuth
// @Router /users/search [get]
func (h *UserHandler) Search(c *gin.Context) {
	found, err := h.users.Search(c.Request.Context(), middleware.GetUserID(c), c.Query("q"))
	if err != nil {
		common.FailWith(c, err)
		return
	}
	common.SuccessResponse(c, found, &common.Meta{Total: int64(len(found))})
}

// Get handles GET /api/v1/users/:id
// @Summary A single user with presence
// @Tags users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} common.APIResponse{data=domain.ContactResponse}
// @Failure 404 {object} common.APIResponse
// @Security BearerAuth
// @Router /users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.FailWith(c, err)
		return
	}
	common.SuccessResponse(c, h.users.ToContact(user), nil)
}

// UpdateProfile handles PUT /api/v1/me/profile
// @Summary Rename the caller and optionally replace the avatar
// @Tags users
// @Accept json,mpfd
// @Produce json
// @Param display_name formData string true "Display name"
// @Param photo formData file false "Avatar image"
// @Success 200 {object} common.APIResponse{data=domain.ContactResponse}
// @Failure 400 {object} common.APIResponse
// @Failure 502 {object} common.APIResponse
// @Security BearerAuth
// @Router /me/profile [put]
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var (
		req   domain.UpdateProfileRequest
		photo *service.ImageUpload
	)
	if isMultipart(c) {
		if err := c.ShouldBind(&req); err != nil {
			common.ErrorResponse(c, http.StatusBadRequest, "Display name is required", err)
			return
		}
		upload, closeFn, err := formImage(c, "photo")
		if err != nil {
			common.FailWith(c, err)
			return
		}
		defer closeFn()
		photo = upload
	} else if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Display name is required", err)
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), middleware.GetUserID(c), req.DisplayName, photo)
	if err != nil {
		common.FailWith(c, err)
		return
	}
	common.SuccessResponse(c, h.users.ToContact(user), nil)
}

// DeleteAccount handles DELETE /api/v1/me
// @Summary Delete the caller's account
// @Description Past messages stay attributed to the deleted identity
// @Tags users
// @Success 204
// @Security BearerAuth
// @Router /me [delete]
func (h *UserHandler) DeleteAccount(c *gin.Context) {
	if err := h.users.DeleteAccount(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		common.FailWith(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Touch handles POST /api/v1/me/presence
// @Summary Heartbeat that keeps the caller "Active now"
// @Tags users
// @Success 204
// @Security BearerAuth
// @Router /me/presence [post]
func (h *UserHandler) Touch(c *gin.Context) {
	if err := h.presence.Touch(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		common.FailWith(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
