package models

// ExportFormat enumerates supported export renderings.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportScope selects which enrollees are exported.
type ExportScope string

const (
	ExportScopeAll        ExportScope = "all"
	ExportScopeLastUpload ExportScope = "last-upload"
)

// ExportRequest captures export query parameters.
type ExportRequest struct {
	Format ExportFormat `form:"format" validate:"omitempty,oneof=csv pdf"`
	Scope  ExportScope  `form:"scope" validate:"omitempty,oneof=all last-upload"`
}
