package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/enrollee-api/pkg/jobs"
)

// JobTypeUploadArchive identifies queued upload archival jobs.
const JobTypeUploadArchive = "upload_archive"

type archiveFileStorage interface {
	Save(filename string, data []byte) (string, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// ArchivePayload is the job payload for a raw upload awaiting archival.
type ArchivePayload struct {
	BatchID  string
	Filename string
	Data     []byte
}

// ArchiveServiceConfig toggles upload archival.
type ArchiveServiceConfig struct {
	Enabled   bool
	Retention time.Duration
}

// ArchiveService keeps a copy of every committed upload under <batch>/<file>.
type ArchiveService struct {
	storage archiveFileStorage
	queue   jobEnqueuer
	logger  *zap.Logger
	cfg     ArchiveServiceConfig
}

// NewArchiveService constructs the service. Without a queue, archival runs inline.
func NewArchiveService(storage archiveFileStorage, logger *zap.Logger, cfg ArchiveServiceConfig) *ArchiveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveService{storage: storage, logger: logger, cfg: cfg}
}

// AttachQueue routes archival through the background queue.
func (s *ArchiveService) AttachQueue(queue jobEnqueuer) {
	s.queue = queue
}

// Archive schedules the upload for storage.
func (s *ArchiveService) Archive(ctx context.Context, batchID, filename string, data []byte) error {
	if !s.cfg.Enabled || s.storage == nil {
		return nil
	}
	job := jobs.Job{
		ID:      batchID,
		Type:    JobTypeUploadArchive,
		Payload: ArchivePayload{BatchID: batchID, Filename: filename, Data: data},
	}
	if s.queue == nil {
		return s.HandleJob(ctx, job)
	}
	if err := s.queue.Enqueue(job); err != nil {
		return fmt.Errorf("enqueue upload archive: %w", err)
	}
	return nil
}

// HandleJob is the queue handler writing the payload to storage.
func (s *ArchiveService) HandleJob(_ context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(ArchivePayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}
	path, err := s.storage.Save(archivePath(payload.BatchID, payload.Filename), payload.Data)
	if err != nil {
		return err
	}
	s.logger.Info("upload archived", zap.String("batch_id", payload.BatchID), zap.String("path", path), zap.Int("attempt", job.Attempt))
	return nil
}

// Cleanup removes archived uploads past the retention window.
func (s *ArchiveService) Cleanup() ([]string, error) {
	if !s.cfg.Enabled || s.storage == nil || s.cfg.Retention <= 0 {
		return nil, nil
	}
	return s.storage.CleanupOlderThan(s.cfg.Retention)
}

func archivePath(batchID, filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload"
	}
	return filepath.Join(sanitizeFilename(batchID), base)
}
