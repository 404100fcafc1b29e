package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/enrollee-api/internal/middleware"
	"github.com/noah-isme/enrollee-api/internal/models"
	appErrors "github.com/noah-isme/enrollee-api/pkg/errors"
)

type promotionServiceMock struct {
	username string
	actor    string
	err      error
}

func (m *promotionServiceMock) PromoteToAdmin(ctx context.Context, username string, actorID string, meta models.LoginRequest) (*models.User, error) {
	m.username = username
	m.actor = actorID
	if m.err != nil {
		return nil, m.err
	}
	return &models.User{ID: "user-2", Username: username, Role: models.RoleAdmin}, nil
}

func TestUserHandlerPromote(t *testing.T) {
	svc := &promotionServiceMock{}
	handler := NewUserHandler(svc)
	c, w := newJSONContext(http.MethodPost, "/admin/users/jane/promote", nil)
	c.Params = gin.Params{{Key: "username", Value: "jane"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Promote(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jane", svc.username)
	assert.Equal(t, "admin-1", svc.actor)
	data := decodeEnvelope(t, w).Data.(map[string]interface{})
	assert.Equal(t, "ADMIN", data["role"])
}

func TestUserHandlerPromoteUnknownUser(t *testing.T) {
	handler := NewUserHandler(&promotionServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "user not found")})
	c, w := newJSONContext(http.MethodPost, "/admin/users/ghost/promote", nil)
	c.Params = gin.Params{{Key: "username", Value: "ghost"}}

	handler.Promote(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
