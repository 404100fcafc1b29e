package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/enrollee-api/internal/middleware"
	"github.com/noah-isme/enrollee-api/internal/models"
	appErrors "github.com/noah-isme/enrollee-api/pkg/errors"
	"github.com/noah-isme/enrollee-api/pkg/response"
)

type enrolleeService interface {
	List(ctx context.Context, filter models.EnrolleeFilter) ([]models.Enrollee, *models.Pagination, error)
	Get(ctx context.Context, pan string) (*models.Enrollee, bool, error)
	Lookup(ctx context.Context, req models.EnrolleeLookupRequest) (*models.Enrollee, bool, error)
	LastUploaded(ctx context.Context) ([]models.Enrollee, bool, error)
	Create(ctx context.Context, req models.EnrolleeRequest, actorID string, meta models.LoginRequest) (*models.Enrollee, error)
	Update(ctx context.Context, pan string, req models.EnrolleeRequest, actorID string, meta models.LoginRequest) (*models.Enrollee, error)
	Delete(ctx context.Context, pan string, actorID string, meta models.LoginRequest) error
}

// EnrolleeHandler serves enrollee records to admins and the public lookup.
type EnrolleeHandler struct {
	service enrolleeService
}

// NewEnrolleeHandler creates a new handler.
func NewEnrolleeHandler(svc enrolleeService) *EnrolleeHandler {
	return &EnrolleeHandler{service: svc}
}

// Details godoc
// @Summary Look up an enrollee
// @Description Returns the enrollee registered under the PAN
// @Tags Enrollees
// @Accept json
// @Produce json
// @Param payload body models.EnrolleeLookupRequest true "PAN lookup"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollees/details [post]
func (h *EnrolleeHandler) Details(c *gin.Context) {
	var req models.EnrolleeLookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid lookup payload"))
		return
	}

	enrollee, hit, err := h.service.Lookup(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, enrollee, nil, middleware.ExtractMeta(c))
}

// LastUploaded godoc
// @Summary Most recent batch
// @Description Returns the enrollees created by the latest upload
// @Tags Enrollees
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enrollees/last-uploaded [get]
func (h *EnrolleeHandler) LastUploaded(c *gin.Context) {
	enrollees, hit, err := h.service.LastUploaded(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, enrollees, nil, middleware.ExtractMeta(c))
}

// List godoc
// @Summary List enrollees
// @Tags Admin Enrollees
// @Produce json
// @Security BearerAuth
// @Param search query string false "Name, PAN or registration number"
// @Param branch query string false "Branch"
// @Param last_upload query bool false "Only the most recent batch"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Param sort_by query string false "Sort column"
// @Param sort_order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/enrollees [get]
func (h *EnrolleeHandler) List(c *gin.Context) {
	filter := models.EnrolleeFilter{
		Search:    c.Query("search"),
		Branch:    c.Query("branch"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	if raw := c.Query("last_upload"); raw != "" {
		if val, err := strconv.ParseBool(raw); err == nil {
			filter.LastUpload = &val
		}
	}

	enrollees, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollees, pagination)
}

// Get godoc
// @Summary Get enrollee
// @Tags Admin Enrollees
// @Produce json
// @Security BearerAuth
// @Param pan path string true "PAN number"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/enrollees/{pan} [get]
func (h *EnrolleeHandler) Get(c *gin.Context) {
	enrollee, hit, err := h.service.Get(c.Request.Context(), c.Param("pan"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, enrollee, nil, middleware.ExtractMeta(c))
}

// Create godoc
// @Summary Create enrollee
// @Tags Admin Enrollees
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.EnrolleeRequest true "Enrollee payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/enrollees [post]
func (h *EnrolleeHandler) Create(c *gin.Context) {
	var req models.EnrolleeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	enrollee, err := h.service.Create(c.Request.Context(), req, actorID(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollee)
}

// Update godoc
// @Summary Update enrollee
// @Description Replaces every field except the PAN
// @Tags Admin Enrollees
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param pan path string true "PAN number"
// @Param payload body models.EnrolleeRequest true "Enrollee payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/enrollees/{pan} [put]
func (h *EnrolleeHandler) Update(c *gin.Context) {
	var req models.EnrolleeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	enrollee, err := h.service.Update(c.Request.Context(), c.Param("pan"), req, actorID(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollee, nil)
}

// Delete godoc
// @Summary Delete enrollee
// @Tags Admin Enrollees
// @Security BearerAuth
// @Param pan path string true "PAN number"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/enrollees/{pan} [delete]
func (h *EnrolleeHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("pan"), actorID(c), requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
