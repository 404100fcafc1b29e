package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollee-api/internal/models"
	appErrors "github.com/noah-isme/enrollee-api/pkg/errors"
	"github.com/noah-isme/enrollee-api/pkg/export"
)

var enrolleeExportColumns = []export.Column{
	{Header: "Sr No", Width: 0.6},
	{Header: "Name", Width: 2.4},
	{Header: "PAN Number", Width: 1.3},
	{Header: "LIC Regd Number", Width: 1.5},
	{Header: "Branch", Width: 1.5},
	{Header: "Start Date", Width: 1.1},
	{Header: "End Date", Width: 1.1},
}

type exportEnrolleeSource interface {
	FindAll(ctx context.Context) ([]models.Enrollee, error)
	FindMostRecentBatch(ctx context.Context) ([]models.Enrollee, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type exportSigner interface {
	Generate(id, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (id, relPath string, expiresAt time.Time, err error)
}

type tableRenderer interface {
	Render(table export.Table) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	ID           string              `json:"id"`
	RelativePath string              `json:"-"`
	URL          string              `json:"url"`
	Format       models.ExportFormat `json:"format"`
	Scope        models.ExportScope  `json:"scope"`
	Rows         int                 `json:"rows"`
	ExpiresAt    time.Time           `json:"expires_at"`
}

// ExportDownload is an opened export ready for streaming.
type ExportDownload struct {
	File      *os.File
	Filename  string
	MimeType  string
	ExpiresAt time.Time
}

// ExportService renders enrollee listings and hands out signed download links.
type ExportService struct {
	source  exportEnrolleeSource
	storage fileStorage
	csv     tableRenderer
	pdf     tableRenderer
	signer  exportSigner
	audit   auditRecorder
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(source exportEnrolleeSource, storage fileStorage, signer exportSigner, audit auditRecorder, cfg ExportConfig, logger *zap.Logger, csv, pdf tableRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		source:  source,
		storage: storage,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		audit:   audit,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate renders the requested scope and stores the file.
func (s *ExportService) Generate(ctx context.Context, req models.ExportRequest, actorID string, meta models.LoginRequest) (*ExportResult, error) {
	if req.Format == "" {
		req.Format = models.ExportFormatCSV
	}
	if req.Scope == "" {
		req.Scope = models.ExportScopeAll
	}

	var (
		enrollees []models.Enrollee
		err       error
		title     string
	)
	switch req.Scope {
	case models.ExportScopeAll:
		enrollees, err = s.source.FindAll(ctx)
		title = "Enrollees"
	case models.ExportScopeLastUpload:
		enrollees, err = s.source.FindMostRecentBatch(ctx)
		title = "Enrollees - Last Upload"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export scope")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollees")
	}

	table := buildEnrolleeTable(enrollees, title)
	var payload []byte
	switch req.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(table)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(table)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	id := uuid.NewString()
	relPath, err := s.storage.Save(s.buildFilename(req), payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(id, relPath)
	if err != nil {
		_ = s.storage.Delete(relPath)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export")
	}

	base := strings.TrimRight(s.cfg.APIPrefix, "/")
	if base == "" {
		base = "/api/v1"
	}
	result := &ExportResult{
		ID:           id,
		RelativePath: relPath,
		URL:          fmt.Sprintf("%s/admin/exports/download?token=%s", base, token),
		Format:       req.Format,
		Scope:        req.Scope,
		Rows:         len(enrollees),
		ExpiresAt:    expiresAt,
	}
	s.recordExport(ctx, result, actorID, meta)
	return result, nil
}

// Download validates the token and opens the referenced file.
func (s *ExportService) Download(token string) (*ExportDownload, error) {
	if strings.TrimSpace(token) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "token is required")
	}
	_, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export not found")
	}
	mimeType := "text/csv"
	if strings.EqualFold(filepath.Ext(relPath), ".pdf") {
		mimeType = "application/pdf"
	}
	return &ExportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		MimeType:  mimeType,
		ExpiresAt: expiresAt,
	}, nil
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) recordExport(ctx context.Context, result *ExportResult, actorID string, meta models.LoginRequest) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     models.AuditActionEnrolleeExport,
		Resource:   "enrollees",
		ResourceID: &result.ID,
		NewValues:  []byte(fmt.Sprintf(`{"format":"%s","scope":"%s","rows":%d}`, result.Format, result.Scope, result.Rows)),
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record export audit log", zap.Error(err))
	}
}

func (s *ExportService) buildFilename(req models.ExportRequest) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("enrollees_%s_%s_%s.%s", sanitizeFilename(string(req.Scope)), timestamp, uuid.NewString()[:8], req.Format)
}

func buildEnrolleeTable(enrollees []models.Enrollee, title string) export.Table {
	rows := make([][]string, 0, len(enrollees))
	for _, e := range enrollees {
		rows = append(rows, []string{e.SerialNo, e.Name, e.PAN, e.RegistrationNumber, e.Branch, e.StartDate, e.EndDate})
	}
	return export.Table{
		Title:       title,
		GeneratedAt: time.Now().UTC(),
		Columns:     enrolleeExportColumns,
		Rows:        rows,
	}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
