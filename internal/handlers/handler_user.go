package handlers

import (
	"net/http"

	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/dto"
	"github.com/gin-gonic/gin"
)

// userHandler handles HTTP requests related to back-office users.
type userHandler struct {
	userService portssvc.UserSvcFacade
}

// RegisterUserRoutes registers routes related to users.
func RegisterUserRoutes(rg *gin.RouterGroup, userService portssvc.UserSvcFacade) {
	h := &userHandler{userService: userService}

	users := rg.Group("/users")
	{
		users.POST("", h.createUser)
		users.GET("", h.listUsers)
		users.GET("/me", h.getSelf)
		users.GET("/:userID", h.getUser)
		users.DELETE("/:userID", h.deactivateUser)
	}
}

func (h *userHandler) createUser(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req dto.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	user, err := h.userService.CreateUser(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err, "Failed to create user")
		return
	}
	c.JSON(http.StatusCreated, dto.ToUserResponse(user))
}

// listUsers lists the users of ?tenantID=, defaulting to the actor's tenant.
func (h *userHandler) listUsers(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	tenantID := c.DefaultQuery("tenantID", actor.TenantID)
	users, err := h.userService.ListUsers(c.Request.Context(), actor, tenantID)
	if err != nil {
		respondError(c, err, "Failed to list users")
		return
	}
	c.JSON(http.StatusOK, dto.ToListUserResponse(users))
}

func (h *userHandler) getSelf(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	user, err := h.userService.GetUser(c.Request.Context(), actor, actor.UserID)
	if err != nil {
		respondError(c, err, "Failed to get current user")
		return
	}
	c.JSON(http.StatusOK, dto.ToUserResponse(user))
}

func (h *userHandler) getUser(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	user, err := h.userService.GetUser(c.Request.Context(), actor, c.Param("userID"))
	if err != nil {
		respondError(c, err, "Failed to get user")
		return
	}
	c.JSON(http.StatusOK, dto.ToUserResponse(user))
}

func (h *userHandler) deactivateUser(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	if err := h.userService.DeactivateUser(c.Request.Context(), actor, c.Param("userID")); err != nil {
		respondError(c, err, "Failed to deactivate user")
		return
	}
	c.Status(http.StatusNoContent)
}
