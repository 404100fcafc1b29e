package models

import "time"

// Enrollee is a trainee registered for a program, keyed by PAN.
type Enrollee struct {
	ID                 int64     `db:"id" json:"id"`
	SerialNo           string    `db:"sr_no" json:"sr_no"`
	Name               string    `db:"name" json:"name"`
	PAN                string    `db:"pan_number" json:"pan_number"`
	RegistrationNumber string    `db:"lic_regd_number" json:"lic_regd_number"`
	Branch             string    `db:"branch" json:"branch"`
	StartDate          string    `db:"start_date" json:"start_date"`
	EndDate            string    `db:"end_date" json:"end_date"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	LastUpload         bool      `db:"last_upload" json:"last_upload"`
	BatchID            *string   `db:"batch_id" json:"batch_id,omitempty"`
}

// EnrolleeFilter narrows enrollee listings.
type EnrolleeFilter struct {
	Search     string
	Branch     string
	LastUpload *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// EnrolleeRequest is the admin payload for creating or updating an enrollee.
// PAN is ignored on update.
type EnrolleeRequest struct {
	SerialNo           string `json:"sr_no"`
	Name               string `json:"name" validate:"required,min=2,max=100"`
	PAN                string `json:"pan_number" validate:"omitempty,pan"`
	RegistrationNumber string `json:"lic_regd_number" validate:"omitempty,max=50"`
	Branch             string `json:"branch" validate:"required"`
	StartDate          string `json:"start_date" validate:"required"`
	EndDate            string `json:"end_date" validate:"required"`
}

// EnrolleeLookupRequest is the public lookup payload.
type EnrolleeLookupRequest struct {
	PAN string `json:"pan_number" validate:"required,pan"`
}
