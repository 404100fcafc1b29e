package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollee-api/internal/importer"
	"github.com/noah-isme/enrollee-api/internal/models"
	appErrors "github.com/noah-isme/enrollee-api/pkg/errors"
)

// Cache keys for enrollee reads.
const (
	enrolleeCachePattern   = "enrollees:*"
	lastUploadCacheKey     = "enrollees:last-upload"
	enrolleeLookupCacheKey = "enrollees:pan:%s"
)

type enrolleeRepository interface {
	List(ctx context.Context, filter models.EnrolleeFilter) ([]models.Enrollee, int, error)
	FindByPAN(ctx context.Context, pan string) (*models.Enrollee, error)
	ExistsByPAN(ctx context.Context, pan string) (bool, error)
	Create(ctx context.Context, enrollee *models.Enrollee) error
	Update(ctx context.Context, enrollee *models.Enrollee) error
	Delete(ctx context.Context, pan string) error
	FindMostRecentBatch(ctx context.Context) ([]models.Enrollee, error)
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// EnrolleeService handles single-record enrollee workflows and cached reads.
type EnrolleeService struct {
	repo      enrolleeRepository
	audit     auditRecorder
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewEnrolleeService constructs an EnrolleeService. audit, cache and metrics are optional.
func NewEnrolleeService(repo enrolleeRepository, audit auditRecorder, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *EnrolleeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	registerValidations(validate)
	return &EnrolleeService{
		repo:      repo,
		audit:     audit,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cacheTTL:  cacheTTL,
	}
}

// List returns paginated enrollees.
func (s *EnrolleeService) List(ctx context.Context, filter models.EnrolleeFilter) ([]models.Enrollee, *models.Pagination, error) {
	start := time.Now()
	enrollees, total, err := s.repo.List(ctx, filter)
	s.metrics.ObserveDBQuery("enrollees_list", time.Since(start))
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollees")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	if enrollees == nil {
		enrollees = []models.Enrollee{}
	}
	return enrollees, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns the enrollee registered under the PAN. The lookup is case
// insensitive and cached.
func (s *EnrolleeService) Get(ctx context.Context, pan string) (*models.Enrollee, bool, error) {
	pan = importer.NormalizeIdentifier(pan)
	if pan == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "pan_number is required")
	}

	key := fmt.Sprintf(enrolleeLookupCacheKey, pan)
	var cached models.Enrollee
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	start := time.Now()
	enrollee, err := s.repo.FindByPAN(ctx, pan)
	s.metrics.ObserveDBQuery("enrollees_find_by_pan", time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "enrollee not found with pan number: "+pan)
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollee")
	}
	_ = s.cache.Set(ctx, key, enrollee, s.cacheTTL)
	return enrollee, false, nil
}

// Lookup serves the public details endpoint.
func (s *EnrolleeService) Lookup(ctx context.Context, req models.EnrolleeLookupRequest) (*models.Enrollee, bool, error) {
	req.PAN = importer.NormalizeIdentifier(req.PAN)
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lookup payload")
	}
	return s.Get(ctx, req.PAN)
}

// LastUploaded returns the enrollees of the most recent import batch.
func (s *EnrolleeService) LastUploaded(ctx context.Context) ([]models.Enrollee, bool, error) {
	var cached []models.Enrollee
	if hit, _ := s.cache.Get(ctx, lastUploadCacheKey, &cached); hit {
		return cached, true, nil
	}

	start := time.Now()
	enrollees, err := s.repo.FindMostRecentBatch(ctx)
	s.metrics.ObserveDBQuery("enrollees_most_recent_batch", time.Since(start))
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load last uploaded enrollees")
	}
	if enrollees == nil {
		enrollees = []models.Enrollee{}
	}
	_ = s.cache.Set(ctx, lastUploadCacheKey, enrollees, s.cacheTTL)
	return enrollees, false, nil
}

// Create registers a single enrollee. The PAN must not be registered yet.
func (s *EnrolleeService) Create(ctx context.Context, req models.EnrolleeRequest, actorID string, meta models.LoginRequest) (*models.Enrollee, error) {
	req = normalizeEnrolleeRequest(req)
	if req.PAN == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "pan_number is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollee payload")
	}

	exists, err := s.repo.ExistsByPAN(ctx, req.PAN)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pan number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicatePAN, "pan number already exists: "+req.PAN)
	}

	enrollee := &models.Enrollee{
		SerialNo:           req.SerialNo,
		Name:               req.Name,
		PAN:                req.PAN,
		RegistrationNumber: req.RegistrationNumber,
		Branch:             req.Branch,
		StartDate:          req.StartDate,
		EndDate:            req.EndDate,
	}
	if err := s.repo.Create(ctx, enrollee); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrDuplicatePAN.Code, appErrors.ErrDuplicatePAN.Status, "pan number already exists: "+req.PAN)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollee")
	}

	s.invalidate(ctx)
	s.record(ctx, actorID, models.AuditActionEnrolleeCreate, enrollee, nil, enrollee, meta)
	return enrollee, nil
}

// Update rewrites every field except PAN and creation time.
func (s *EnrolleeService) Update(ctx context.Context, pan string, req models.EnrolleeRequest, actorID string, meta models.LoginRequest) (*models.Enrollee, error) {
	req = normalizeEnrolleeRequest(req)
	req.PAN = ""
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollee payload")
	}

	current, _, err := s.Get(ctx, pan)
	if err != nil {
		return nil, err
	}
	before := *current

	updated := *current
	updated.SerialNo = req.SerialNo
	updated.Name = req.Name
	updated.RegistrationNumber = req.RegistrationNumber
	updated.Branch = req.Branch
	updated.StartDate = req.StartDate
	updated.EndDate = req.EndDate

	if err := s.repo.Update(ctx, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollee not found with pan number: "+updated.PAN)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollee")
	}

	s.invalidate(ctx)
	s.record(ctx, actorID, models.AuditActionEnrolleeUpdate, &updated, &before, &updated, meta)
	return &updated, nil
}

// Delete removes the enrollee registered under the PAN.
func (s *EnrolleeService) Delete(ctx context.Context, pan string, actorID string, meta models.LoginRequest) error {
	pan = importer.NormalizeIdentifier(pan)
	if pan == "" {
		return appErrors.Clone(appErrors.ErrValidation, "pan_number is required")
	}
	if err := s.repo.Delete(ctx, pan); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollee not found with pan number: "+pan)
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollee")
	}

	s.invalidate(ctx)
	s.record(ctx, actorID, models.AuditActionEnrolleeDelete, &models.Enrollee{PAN: pan}, nil, nil, meta)
	return nil
}

func (s *EnrolleeService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, enrolleeCachePattern); err != nil {
		s.logger.Warn("failed to invalidate enrollee cache", zap.Error(err))
	}
}

func (s *EnrolleeService) record(ctx context.Context, actorID, action string, target, before, after *models.Enrollee, meta models.LoginRequest) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "enrollees",
		ResourceID: &target.PAN,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if before != nil {
		entry.OldValues, _ = json.Marshal(before)
	}
	if after != nil {
		entry.NewValues, _ = json.Marshal(after)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record enrollee audit log", zap.String("action", action), zap.Error(err))
	}
}

// isUniqueViolation catches a PAN inserted by a concurrent request after the
// existence check.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func normalizeEnrolleeRequest(req models.EnrolleeRequest) models.EnrolleeRequest {
	req.SerialNo = importer.NormalizeText(req.SerialNo)
	req.Name = importer.NormalizeText(req.Name)
	req.PAN = importer.NormalizeIdentifier(req.PAN)
	req.RegistrationNumber = importer.NormalizeCompact(req.RegistrationNumber)
	req.Branch = importer.NormalizeText(req.Branch)
	req.StartDate = importer.NormalizeDate(req.StartDate)
	req.EndDate = importer.NormalizeDate(req.EndDate)
	return req
}
