package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/enrollee-api/internal/models"
	"github.com/noah-isme/enrollee-api/pkg/response"
)

type promotionService interface {
	PromoteToAdmin(ctx context.Context, username string, actorID string, meta models.LoginRequest) (*models.User, error)
}

// UserHandler handles account administration.
type UserHandler struct {
	service promotionService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc promotionService) *UserHandler {
	return &UserHandler{service: svc}
}

// Promote godoc
// @Summary Promote user
// @Description Grants the ADMIN role to the named user
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param username path string true "Username"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/users/{username}/promote [post]
func (h *UserHandler) Promote(c *gin.Context) {
	user, err := h.service.PromoteToAdmin(c.Request.Context(), c.Param("username"), actorID(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, models.UserInfo{ID: user.ID, Username: user.Username, Email: user.Email, Role: user.Role}, nil)
}
