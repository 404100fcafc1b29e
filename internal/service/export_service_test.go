package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollee-api/internal/models"
	appErrors "github.com/noah-isme/enrollee-api/pkg/errors"
	"github.com/noah-isme/enrollee-api/pkg/export"
	"github.com/noah-isme/enrollee-api/pkg/storage"
)

type exportSourceStub struct {
	all    []models.Enrollee
	recent []models.Enrollee
	err    error
}

func (s exportSourceStub) FindAll(context.Context) ([]models.Enrollee, error) {
	return s.all, s.err
}

func (s exportSourceStub) FindMostRecentBatch(context.Context) ([]models.Enrollee, error) {
	return s.recent, s.err
}

func newExportServiceForTest(t *testing.T, source exportSourceStub, audit auditRecorder) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	return NewExportService(source, store, signer, audit, cfg, zap.NewNop(), export.NewCSVExporter(), export.NewPDFExporter())
}

func TestExportServiceGenerateCSVAndDownload(t *testing.T) {
	source := exportSourceStub{
		all: []models.Enrollee{
			{SerialNo: "1", Name: "Doe, Jane", PAN: "ABCDE1234F", RegistrationNumber: "REG1", Branch: "Mumbai", StartDate: "01-01-2023", EndDate: "31-12-2023"},
			{SerialNo: "2", Name: "John Roe", PAN: "PQRST6789Z", Branch: "Pune"},
		},
	}
	audit := &auditStub{}
	svc := newExportServiceForTest(t, source, audit)

	result, err := svc.Generate(context.Background(), models.ExportRequest{}, "admin-1", models.LoginRequest{IP: "127.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, models.ExportFormatCSV, result.Format)
	assert.Equal(t, models.ExportScopeAll, result.Scope)
	assert.Equal(t, 2, result.Rows)
	assert.True(t, strings.HasPrefix(result.URL, "/api/v1/admin/exports/download?token="))
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionEnrolleeExport, audit.entries[0].Action)

	token := strings.TrimPrefix(result.URL, "/api/v1/admin/exports/download?token=")
	download, err := svc.Download(token)
	require.NoError(t, err)
	defer download.File.Close() //nolint:errcheck
	assert.Equal(t, "text/csv", download.MimeType)

	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Sr No,Name,PAN Number,LIC Regd Number,Branch,Start Date,End Date", lines[0])
	assert.Equal(t, `1,"Doe, Jane",ABCDE1234F,REG1,Mumbai,01-01-2023,31-12-2023`, lines[1])
}

func TestExportServiceGeneratePDFLastUpload(t *testing.T) {
	source := exportSourceStub{
		recent: []models.Enrollee{{SerialNo: "1", Name: "Jane", PAN: "ABCDE1234F", Branch: "Pune"}},
	}
	svc := newExportServiceForTest(t, source, nil)

	result, err := svc.Generate(context.Background(), models.ExportRequest{Format: models.ExportFormatPDF, Scope: models.ExportScopeLastUpload}, "", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rows)

	token := result.URL[strings.Index(result.URL, "token=")+len("token="):]
	download, err := svc.Download(token)
	require.NoError(t, err)
	defer download.File.Close() //nolint:errcheck
	assert.Equal(t, "application/pdf", download.MimeType)
	info, err := download.File.Stat()
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	svc := newExportServiceForTest(t, exportSourceStub{}, nil)
	_, err := svc.Generate(context.Background(), models.ExportRequest{Format: "xml"}, "", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportServiceSourceFailure(t *testing.T) {
	svc := newExportServiceForTest(t, exportSourceStub{err: errors.New("db down")}, nil)
	_, err := svc.Generate(context.Background(), models.ExportRequest{}, "", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestExportServiceDownloadInvalidToken(t *testing.T) {
	svc := newExportServiceForTest(t, exportSourceStub{}, nil)

	_, err := svc.Download("")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Download("a.b.c.d")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
