package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/enrollee-api/internal/middleware"
	"github.com/noah-isme/enrollee-api/internal/models"
	appErrors "github.com/noah-isme/enrollee-api/pkg/errors"
)

type authServiceMock struct {
	loginReq   models.LoginRequest
	refreshReq models.RefreshTokenRequest
	logoutTok  string
	logoutUser string
	err        error
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	m.loginReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.LoginResponse{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 900}, nil
}

func (m *authServiceMock) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	m.refreshReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.RefreshTokenResponse{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
}

func (m *authServiceMock) Logout(ctx context.Context, refreshToken string, userID string, meta models.LoginRequest) error {
	m.logoutTok = refreshToken
	m.logoutUser = userID
	return m.err
}

func (m *authServiceMock) Me(ctx context.Context, userID string) (*models.UserInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.UserInfo{ID: userID, Username: "jane", Role: models.RoleUser}, nil
}

type registrationServiceMock struct {
	req models.RegisterRequest
	err error
}

func (m *registrationServiceMock) Register(ctx context.Context, req models.RegisterRequest, meta models.LoginRequest) (*models.User, error) {
	m.req = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.User{ID: "user-1", Username: req.Username, Email: req.Email, Role: models.RoleUser, PasswordHash: "secret"}, nil
}

func TestAuthHandlerRegister(t *testing.T) {
	users := &registrationServiceMock{}
	handler := NewAuthHandler(&authServiceMock{}, users)
	c, w := newJSONContext(http.MethodPost, "/auth/register", models.RegisterRequest{Username: "jane", Email: "jane@example.com", Password: "secret1"})

	handler.Register(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "jane", users.req.Username)
	assert.NotContains(t, w.Body.String(), "secret")
	data := decodeEnvelope(t, w).Data.(map[string]interface{})
	assert.Equal(t, "USER", data["role"])
}

func TestAuthHandlerRegisterConflict(t *testing.T) {
	users := &registrationServiceMock{err: appErrors.Clone(appErrors.ErrConflict, "username already taken")}
	handler := NewAuthHandler(&authServiceMock{}, users)
	c, w := newJSONContext(http.MethodPost, "/auth/register", models.RegisterRequest{Username: "jane", Email: "jane@example.com", Password: "secret1"})

	handler.Register(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAuthHandlerLoginCapturesClientMeta(t *testing.T) {
	svc := &authServiceMock{}
	handler := NewAuthHandler(svc, &registrationServiceMock{})
	c, w := newJSONContext(http.MethodPost, "/auth/login", map[string]string{"username": "jane", "password": "secret1"})
	c.Request.Header.Set("User-Agent", "test-agent")

	handler.Login(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jane", svc.loginReq.Username)
	assert.Equal(t, "test-agent", svc.loginReq.UserAgent)
	data := decodeEnvelope(t, w).Data.(map[string]interface{})
	assert.Equal(t, "access", data["access_token"])
}

func TestAuthHandlerLoginUnauthorized(t *testing.T) {
	handler := NewAuthHandler(&authServiceMock{err: appErrors.ErrUnauthorized}, &registrationServiceMock{})
	c, w := newJSONContext(http.MethodPost, "/auth/login", map[string]string{"username": "jane", "password": "wrong"})

	handler.Login(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerRefresh(t *testing.T) {
	svc := &authServiceMock{}
	handler := NewAuthHandler(svc, &registrationServiceMock{})
	c, w := newJSONContext(http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": "refresh"})

	handler.Refresh(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "refresh", svc.refreshReq.RefreshToken)
}

func TestAuthHandlerLogoutRequiresClaims(t *testing.T) {
	svc := &authServiceMock{}
	handler := NewAuthHandler(svc, &registrationServiceMock{})

	c, w := newJSONContext(http.MethodPost, "/auth/logout", map[string]string{"refresh_token": "refresh"})
	handler.Logout(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, _ = newJSONContext(http.MethodPost, "/auth/logout", map[string]string{"refresh_token": "refresh"})
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})
	handler.Logout(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "refresh", svc.logoutTok)
	assert.Equal(t, "user-1", svc.logoutUser)
}

func TestAuthHandlerMe(t *testing.T) {
	handler := NewAuthHandler(&authServiceMock{}, &registrationServiceMock{})
	c, w := newJSONContext(http.MethodGet, "/auth/me", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})

	handler.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w).Data.(map[string]interface{})
	assert.Equal(t, "user-1", data["id"])
}
