package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/enrollee-api/internal/middleware"
	"github.com/noah-isme/enrollee-api/internal/models"
	appErrors "github.com/noah-isme/enrollee-api/pkg/errors"
	"github.com/noah-isme/enrollee-api/pkg/response"
)

type enrolleeServiceMock struct {
	enrollee   *models.Enrollee
	recent     []models.Enrollee
	hit        bool
	err        error
	lastFilter models.EnrolleeFilter
	lastPAN    string
	lastActor  string
	lastReq    models.EnrolleeRequest
}

func (m *enrolleeServiceMock) List(ctx context.Context, filter models.EnrolleeFilter) ([]models.Enrollee, *models.Pagination, error) {
	m.lastFilter = filter
	return m.recent, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: len(m.recent)}, m.err
}

func (m *enrolleeServiceMock) Get(ctx context.Context, pan string) (*models.Enrollee, bool, error) {
	m.lastPAN = pan
	return m.enrollee, m.hit, m.err
}

func (m *enrolleeServiceMock) Lookup(ctx context.Context, req models.EnrolleeLookupRequest) (*models.Enrollee, bool, error) {
	m.lastPAN = req.PAN
	return m.enrollee, m.hit, m.err
}

func (m *enrolleeServiceMock) LastUploaded(ctx context.Context) ([]models.Enrollee, bool, error) {
	return m.recent, m.hit, m.err
}

func (m *enrolleeServiceMock) Create(ctx context.Context, req models.EnrolleeRequest, actorID string, meta models.LoginRequest) (*models.Enrollee, error) {
	m.lastReq = req
	m.lastActor = actorID
	return m.enrollee, m.err
}

func (m *enrolleeServiceMock) Update(ctx context.Context, pan string, req models.EnrolleeRequest, actorID string, meta models.LoginRequest) (*models.Enrollee, error) {
	m.lastPAN = pan
	m.lastReq = req
	return m.enrollee, m.err
}

func (m *enrolleeServiceMock) Delete(ctx context.Context, pan string, actorID string, meta models.LoginRequest) error {
	m.lastPAN = pan
	m.lastActor = actorID
	return m.err
}

func newJSONContext(method, target string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, _ := json.Marshal(v)
		reader = bytes.NewReader(raw)
	}
	req, _ := http.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestEnrolleeHandlerDetails(t *testing.T) {
	svc := &enrolleeServiceMock{enrollee: &models.Enrollee{PAN: "ABCDE1234F", Name: "Jane"}, hit: true}
	handler := NewEnrolleeHandler(svc)
	c, w := newJSONContext(http.MethodPost, "/enrollees/details", map[string]string{"pan_number": "abcde1234f"})

	handler.Details(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abcde1234f", svc.lastPAN)
	env := decodeEnvelope(t, w)
	assert.Equal(t, true, env.Meta["cache_hit"])
	data := env.Data.(map[string]interface{})
	assert.Equal(t, "ABCDE1234F", data["pan_number"])
}

func TestEnrolleeHandlerDetailsNotFound(t *testing.T) {
	svc := &enrolleeServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "enrollee not found with pan number: ABCDE1234F")}
	handler := NewEnrolleeHandler(svc)
	c, w := newJSONContext(http.MethodPost, "/enrollees/details", map[string]string{"pan_number": "ABCDE1234F"})

	handler.Details(c)
	require.Equal(t, http.StatusNotFound, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestEnrolleeHandlerDetailsInvalidBody(t *testing.T) {
	handler := NewEnrolleeHandler(&enrolleeServiceMock{})
	c, w := newJSONContext(http.MethodPost, "/enrollees/details", "not json")

	handler.Details(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnrolleeHandlerLastUploaded(t *testing.T) {
	svc := &enrolleeServiceMock{recent: []models.Enrollee{{PAN: "ABCDE1234F"}, {PAN: "PQRST6789Z"}}}
	handler := NewEnrolleeHandler(svc)
	c, w := newJSONContext(http.MethodGet, "/enrollees/last-uploaded", nil)

	handler.LastUploaded(c)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Len(t, env.Data.([]interface{}), 2)
}

func TestEnrolleeHandlerListParsesQuery(t *testing.T) {
	svc := &enrolleeServiceMock{recent: []models.Enrollee{{PAN: "ABCDE1234F"}}}
	handler := NewEnrolleeHandler(svc)
	c, w := newJSONContext(http.MethodGet, "/admin/enrollees?search=jane&page=2&limit=5&last_upload=true", nil)

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jane", svc.lastFilter.Search)
	assert.Equal(t, 2, svc.lastFilter.Page)
	assert.Equal(t, 5, svc.lastFilter.PageSize)
	require.NotNil(t, svc.lastFilter.LastUpload)
	assert.True(t, *svc.lastFilter.LastUpload)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.TotalCount)
}

func TestEnrolleeHandlerCreate(t *testing.T) {
	svc := &enrolleeServiceMock{enrollee: &models.Enrollee{ID: 1, PAN: "ABCDE1234F"}}
	handler := NewEnrolleeHandler(svc)
	c, w := newJSONContext(http.MethodPost, "/admin/enrollees", models.EnrolleeRequest{Name: "Jane", PAN: "ABCDE1234F"})
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "admin-1", svc.lastActor)
	assert.Equal(t, "Jane", svc.lastReq.Name)
}

func TestEnrolleeHandlerCreateDuplicate(t *testing.T) {
	svc := &enrolleeServiceMock{err: appErrors.Clone(appErrors.ErrDuplicatePAN, "pan number already exists: ABCDE1234F")}
	handler := NewEnrolleeHandler(svc)
	c, w := newJSONContext(http.MethodPost, "/admin/enrollees", models.EnrolleeRequest{Name: "Jane", PAN: "ABCDE1234F"})

	handler.Create(c)
	require.Equal(t, http.StatusConflict, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "DUPLICATE_PAN", env.Error.Code)
}

func TestEnrolleeHandlerUpdateAndDelete(t *testing.T) {
	svc := &enrolleeServiceMock{enrollee: &models.Enrollee{PAN: "ABCDE1234F", Name: "Jane Roe"}}
	handler := NewEnrolleeHandler(svc)

	c, w := newJSONContext(http.MethodPut, "/admin/enrollees/ABCDE1234F", models.EnrolleeRequest{Name: "Jane Roe"})
	c.Params = gin.Params{{Key: "pan", Value: "ABCDE1234F"}}
	handler.Update(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ABCDE1234F", svc.lastPAN)

	c, _ = newJSONContext(http.MethodDelete, "/admin/enrollees/ABCDE1234F", nil)
	c.Params = gin.Params{{Key: "pan", Value: "ABCDE1234F"}}
	handler.Delete(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
}
