package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/enrollee-api/internal/importer"
	"github.com/noah-isme/enrollee-api/internal/models"
	"github.com/noah-isme/enrollee-api/internal/service"
	appErrors "github.com/noah-isme/enrollee-api/pkg/errors"
	"github.com/noah-isme/enrollee-api/pkg/response"
)

type importService interface {
	Import(ctx context.Context, upload *service.ImportUpload, actorID string, meta models.LoginRequest) (*service.ImportResult, error)
}

// UploadResponse is the body returned after an upload is committed.
type UploadResponse struct {
	Message   string               `json:"message"`
	BatchID   string               `json:"batch_id"`
	Count     int                  `json:"count"`
	Enrollees []importer.Candidate `json:"enrollees"`
	Report    *importer.Report     `json:"report"`
}

// ImportHandler accepts bulk enrollee uploads.
type ImportHandler struct {
	service importService
}

// NewImportHandler creates a new handler.
func NewImportHandler(svc importService) *ImportHandler {
	return &ImportHandler{service: svc}
}

// Upload godoc
// @Summary Upload enrollees
// @Description Imports an xlsx or csv sheet. New PANs become the most recent batch; unusable rows are listed in the report.
// @Tags Admin Enrollees
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Spreadsheet (.xlsx or .csv)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /admin/enrollees/upload [post]
func (h *ImportHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file exceeds the upload size limit"))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "please select a file to upload"))
		return
	}

	upload := &service.ImportUpload{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Open: func() (io.ReadCloser, error) {
			return fileHeader.Open()
		},
	}

	result, err := h.service.Import(c.Request.Context(), upload, actorID(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, UploadResponse{
		Message:   "Enrollees uploaded successfully",
		BatchID:   result.BatchID,
		Count:     result.Count,
		Enrollees: result.Enrollees,
		Report:    result.Report,
	}, nil)
}
