package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollee-api/internal/importer"
	"github.com/noah-isme/enrollee-api/internal/models"
	appErrors "github.com/noah-isme/enrollee-api/pkg/errors"
)

type importRepository interface {
	FindAllIdentifiers(ctx context.Context) ([]string, error)
	ClearMostRecentBatch(ctx context.Context) (int64, error)
	SaveBatch(ctx context.Context, batchID string, enrollees []models.Enrollee) ([]models.Enrollee, error)
}

type uploadArchiver interface {
	Archive(ctx context.Context, batchID, filename string, data []byte) error
}

// ImportUpload describes a received upload. Open is called at most once.
type ImportUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// ImportConfig holds upload validation parameters.
type ImportConfig struct {
	AllowedMIMEs []string
	MaxFileSize  int64
}

// ImportResult summarises a committed upload.
type ImportResult struct {
	FileName  string               `json:"file_name"`
	BatchID   string               `json:"batch_id"`
	Count     int                  `json:"count"`
	Enrollees []importer.Candidate `json:"enrollees"`
	Report    *importer.Report     `json:"report"`
}

// ImportService runs the bulk enrollee upload pipeline. Imports are serialised
// within the process; the repository serialises commits across processes.
type ImportService struct {
	repo     importRepository
	audit    auditRecorder
	cache    *CacheService
	metrics  *MetricsService
	archiver uploadArchiver
	logger   *zap.Logger
	cfg      ImportConfig
	mimeSet  map[string]struct{}

	mu         sync.Mutex
	newBatchID func() string
}

// NewImportService constructs the pipeline. audit, cache, metrics and archiver are optional.
func NewImportService(repo importRepository, audit auditRecorder, cache *CacheService, metrics *MetricsService, archiver uploadArchiver, logger *zap.Logger, cfg ImportConfig) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			"text/csv",
		}
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(strings.TrimSpace(mt))] = struct{}{}
	}
	return &ImportService{
		repo:       repo,
		audit:      audit,
		cache:      cache,
		metrics:    metrics,
		archiver:   archiver,
		logger:     logger,
		cfg:        cfg,
		mimeSet:    mimeSet,
		newBatchID: uuid.NewString,
	}
}

// Import parses the upload and stores every new enrollee as the most recent
// batch. Rows that cannot be used are reported, never returned as errors.
func (s *ImportService) Import(ctx context.Context, upload *ImportUpload, actorID string, meta models.LoginRequest) (*ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	s.resetMostRecentBatch(ctx)

	if err := s.validate(upload); err != nil {
		s.metrics.ObserveImport("", ImportOutcomeRejected, nil, time.Since(start))
		return nil, err
	}

	parser, err := importer.ParserFor(upload.Filename)
	if err != nil {
		s.metrics.ObserveImport("", ImportOutcomeRejected, nil, time.Since(start))
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	format := string(parser.Format())
	logger := s.logger.With(zap.String("file", upload.Filename), zap.String("format", format))

	result, data, err := s.process(ctx, upload, parser, logger)
	if err != nil {
		outcome := ImportOutcomeFailed
		if appErrors.FromError(err).Code == appErrors.ErrValidation.Code {
			outcome = ImportOutcomeRejected
		}
		s.metrics.ObserveImport(format, outcome, nil, time.Since(start))
		logger.Error("enrollee import failed", zap.Error(err))
		return nil, err
	}

	s.metrics.ObserveImport(format, ImportOutcomeSuccess, result.Report, time.Since(start))
	s.afterCommit(ctx, result, data, actorID, meta, logger)
	logger.Info("enrollee import committed",
		zap.String("batch_id", result.BatchID),
		zap.Int("accepted", result.Count),
		zap.Int("skipped", result.Report.Count(importer.RowSkipped)),
		zap.Int("failed", result.Report.Count(importer.RowFailed)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (s *ImportService) resetMostRecentBatch(ctx context.Context) {
	cleared, err := s.repo.ClearMostRecentBatch(ctx)
	if err != nil {
		s.logger.Warn("failed to reset most recent batch flag", zap.Error(err))
		return
	}
	s.logger.Debug("most recent batch flag reset", zap.Int64("rows", cleared))
	if cleared == 0 {
		return
	}
	if err := s.cache.Invalidate(ctx, enrolleeCachePattern); err != nil {
		s.logger.Warn("failed to invalidate enrollee cache", zap.Error(err))
	}
}

func (s *ImportService) validate(upload *ImportUpload) error {
	if upload == nil || upload.Open == nil || upload.Size <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "please select a file to upload")
	}
	mediaType, _, err := mime.ParseMediaType(upload.ContentType)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "only excel and csv files are allowed")
	}
	if _, ok := s.mimeSet[strings.ToLower(mediaType)]; !ok {
		return appErrors.Clone(appErrors.ErrValidation, "only excel and csv files are allowed")
	}
	if upload.Size > s.cfg.MaxFileSize {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize))
	}
	return nil
}

func (s *ImportService) process(ctx context.Context, upload *ImportUpload, parser importer.Parser, logger *zap.Logger) (*ImportResult, []byte, error) {
	failed := func(err error) error {
		return appErrors.Wrap(err, appErrors.ErrImportFailed.Code, appErrors.ErrImportFailed.Status, "failed to process file "+upload.Filename)
	}

	data, err := readUpload(upload, s.cfg.MaxFileSize)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, nil, appErr
		}
		return nil, nil, failed(err)
	}

	rows, err := parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, failed(err)
	}

	existing, err := s.repo.FindAllIdentifiers(ctx)
	if err != nil {
		logger.Warn("failed to load existing pan numbers, continuing with empty set", zap.Error(err))
		existing = nil
	}

	filter := importer.NewDuplicateFilter(existing)
	logger.Debug("duplicate filter seeded", zap.Int("pan_numbers", filter.Len()))

	candidates, report := importer.Scan(rows, filter)
	for _, row := range report.Filter(importer.RowSkipped) {
		logger.Warn("row skipped", zap.Int("row", row.Row), zap.String("pan_number", row.Identifier), zap.String("reason", row.Reason))
	}
	for _, row := range report.Filter(importer.RowFailed) {
		logger.Warn("row failed", zap.Int("row", row.Row), zap.String("reason", row.Reason))
	}

	batchID := s.newBatchID()
	saved, err := s.repo.SaveBatch(ctx, batchID, toEnrollees(candidates))
	if err != nil {
		return nil, nil, failed(err)
	}
	candidates = reconcileSaved(candidates, saved, report)

	return &ImportResult{
		FileName:  upload.Filename,
		BatchID:   batchID,
		Count:     len(candidates),
		Enrollees: candidates,
		Report:    report,
	}, data, nil
}

func (s *ImportService) afterCommit(ctx context.Context, result *ImportResult, data []byte, actorID string, meta models.LoginRequest, logger *zap.Logger) {
	if err := s.cache.Invalidate(ctx, enrolleeCachePattern); err != nil {
		logger.Warn("failed to invalidate enrollee cache", zap.Error(err))
	}

	if s.audit != nil {
		payload, _ := json.Marshal(map[string]interface{}{
			"file":     result.FileName,
			"count":    result.Count,
			"skipped":  result.Report.Count(importer.RowSkipped),
			"failed":   result.Report.Count(importer.RowFailed),
			"batch_id": result.BatchID,
		})
		entry := &models.AuditLog{
			Action:     models.AuditActionEnrolleeImport,
			Resource:   "enrollees",
			ResourceID: &result.BatchID,
			NewValues:  payload,
			IPAddress:  meta.IP,
			UserAgent:  meta.UserAgent,
		}
		if actorID != "" {
			entry.UserID = &actorID
		}
		if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
			logger.Warn("failed to record import audit log", zap.Error(err))
		}
	}

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, result.BatchID, result.FileName, data); err != nil {
			logger.Warn("failed to archive upload", zap.Error(err))
		}
	}
}

func readUpload(upload *ImportUpload, limit int64) ([]byte, error) {
	rc, err := upload.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", limit))
	}
	if len(data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "please select a file to upload")
	}
	return data, nil
}

func toEnrollees(candidates []importer.Candidate) []models.Enrollee {
	enrollees := make([]models.Enrollee, 0, len(candidates))
	for _, c := range candidates {
		enrollees = append(enrollees, models.Enrollee{
			SerialNo:           c.SerialNo,
			Name:               c.Name,
			PAN:                c.PAN,
			RegistrationNumber: c.RegistrationNumber,
			Branch:             c.Branch,
			StartDate:          c.StartDate,
			EndDate:            c.EndDate,
			LastUpload:         true,
		})
	}
	return enrollees
}

// reconcileSaved drops candidates the store refused because their PAN was
// registered between the scan and the commit.
func reconcileSaved(candidates []importer.Candidate, saved []models.Enrollee, report *importer.Report) []importer.Candidate {
	if len(saved) == len(candidates) {
		return candidates
	}
	stored := make(map[string]struct{}, len(saved))
	for _, e := range saved {
		stored[e.PAN] = struct{}{}
	}
	kept := make([]importer.Candidate, 0, len(saved))
	for _, c := range candidates {
		if _, ok := stored[c.PAN]; ok {
			kept = append(kept, c)
			continue
		}
		report.MarkSkipped(c.Row, importer.ReasonDuplicateIdentifier)
	}
	return kept
}
