package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/enrollee-api/internal/models"
	"github.com/noah-isme/enrollee-api/internal/service"
	appErrors "github.com/noah-isme/enrollee-api/pkg/errors"
	"github.com/noah-isme/enrollee-api/pkg/response"
)

type exportService interface {
	Generate(ctx context.Context, req models.ExportRequest, actorID string, meta models.LoginRequest) (*service.ExportResult, error)
	Download(token string) (*service.ExportDownload, error)
}

// ExportHandler produces enrollee exports and streams them back.
type ExportHandler struct {
	service exportService
}

// NewExportHandler creates a new handler.
func NewExportHandler(svc exportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Export godoc
// @Summary Export enrollees
// @Description Renders enrollees to CSV or PDF and returns a signed download URL
// @Tags Admin Enrollees
// @Produce json
// @Security BearerAuth
// @Param format query string false "csv or pdf"
// @Param scope query string false "all or last-upload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/enrollees/export [get]
func (h *ExportHandler) Export(c *gin.Context) {
	var req models.ExportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export parameters"))
		return
	}

	result, err := h.service.Generate(c.Request.Context(), req, actorID(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download export
// @Tags Admin Enrollees
// @Produce octet-stream
// @Security BearerAuth
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /admin/exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	result, err := h.service.Download(c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck

	info, err := result.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), result.MimeType, result.File, nil)
}
