package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/enrollee-api/internal/models"
)

// importLockKey namespaces the advisory lock held while a batch is committed.
const importLockKey int64 = 0x656e726f6c6c

const enrolleeColumns = `id, sr_no, name, pan_number, lic_regd_number, branch, start_date, end_date, created_at, last_upload, batch_id`

// EnrolleeRepository provides database access for enrollee records.
type EnrolleeRepository struct {
	db *sqlx.DB
}

// NewEnrolleeRepository creates a new instance of EnrolleeRepository.
func NewEnrolleeRepository(db *sqlx.DB) *EnrolleeRepository {
	return &EnrolleeRepository{db: db}
}

// FindAllIdentifiers returns every stored PAN.
func (r *EnrolleeRepository) FindAllIdentifiers(ctx context.Context) ([]string, error) {
	var pans []string
	if err := r.db.SelectContext(ctx, &pans, `SELECT pan_number FROM enrollees`); err != nil {
		return nil, fmt.Errorf("find enrollee identifiers: %w", err)
	}
	return pans, nil
}

// ExistsByPAN reports whether an enrollee with the PAN exists.
func (r *EnrolleeRepository) ExistsByPAN(ctx context.Context, pan string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM enrollees WHERE pan_number = $1)`, pan); err != nil {
		return false, fmt.Errorf("check enrollee pan: %w", err)
	}
	return exists, nil
}

// FindByPAN returns the enrollee registered under the PAN.
func (r *EnrolleeRepository) FindByPAN(ctx context.Context, pan string) (*models.Enrollee, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollees WHERE pan_number = $1 LIMIT 1`, enrolleeColumns)
	var enrollee models.Enrollee
	if err := r.db.GetContext(ctx, &enrollee, query, pan); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollee by pan: %w", err)
	}
	return &enrollee, nil
}

// List returns enrollees matching the filter with the total count.
func (r *EnrolleeRepository) List(ctx context.Context, filter models.EnrolleeFilter) ([]models.Enrollee, int, error) {
	baseQuery := `FROM enrollees WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(pan_number) LIKE $%d OR LOWER(lic_regd_number) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Branch != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(branch) = $%d", len(args)+1))
		args = append(args, strings.ToLower(filter.Branch))
	}
	if filter.LastUpload != nil {
		conditions = append(conditions, fmt.Sprintf("last_upload = $%d", len(args)+1))
		args = append(args, *filter.LastUpload)
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"id":         true,
		"name":       true,
		"pan_number": true,
		"branch":     true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "id"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", enrolleeColumns, baseQuery, sortBy, sortOrder, pageSize, offset)
	var enrollees []models.Enrollee
	if err := r.db.SelectContext(ctx, &enrollees, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollees: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", baseQuery), args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollees: %w", err)
	}
	return enrollees, total, nil
}

// FindAll returns every enrollee ordered by id, used by exports.
func (r *EnrolleeRepository) FindAll(ctx context.Context) ([]models.Enrollee, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollees ORDER BY id`, enrolleeColumns)
	var enrollees []models.Enrollee
	if err := r.db.SelectContext(ctx, &enrollees, query); err != nil {
		return nil, fmt.Errorf("find all enrollees: %w", err)
	}
	return enrollees, nil
}

// Create inserts a single enrollee and populates its id.
func (r *EnrolleeRepository) Create(ctx context.Context, enrollee *models.Enrollee) error {
	if enrollee.CreatedAt.IsZero() {
		enrollee.CreatedAt = time.Now().UTC()
	}
	if err := insertEnrollee(ctx, r.db, enrollee, false); err != nil {
		return fmt.Errorf("create enrollee: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of the enrollee identified by PAN. PAN and
// created_at are never touched.
func (r *EnrolleeRepository) Update(ctx context.Context, enrollee *models.Enrollee) error {
	const query = `UPDATE enrollees SET sr_no = :sr_no, name = :name, lic_regd_number = :lic_regd_number, branch = :branch, start_date = :start_date, end_date = :end_date WHERE pan_number = :pan_number`
	res, err := r.db.NamedExecContext(ctx, query, enrollee)
	if err != nil {
		return fmt.Errorf("update enrollee: %w", err)
	}
	return requireAffected(res)
}

// Delete removes the enrollee registered under the PAN.
func (r *EnrolleeRepository) Delete(ctx context.Context, pan string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM enrollees WHERE pan_number = $1`, pan)
	if err != nil {
		return fmt.Errorf("delete enrollee: %w", err)
	}
	return requireAffected(res)
}

// FindMostRecentBatch returns the enrollees flagged by the latest import.
func (r *EnrolleeRepository) FindMostRecentBatch(ctx context.Context) ([]models.Enrollee, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollees WHERE last_upload = TRUE ORDER BY id`, enrolleeColumns)
	var enrollees []models.Enrollee
	if err := r.db.SelectContext(ctx, &enrollees, query); err != nil {
		return nil, fmt.Errorf("find most recent batch: %w", err)
	}
	return enrollees, nil
}

// ClearMostRecentBatch drops the most recent batch flag from every enrollee and
// returns how many rows were flagged.
func (r *EnrolleeRepository) ClearMostRecentBatch(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE enrollees SET last_upload = FALSE WHERE last_upload = TRUE`)
	if err != nil {
		return 0, fmt.Errorf("clear most recent batch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear most recent batch: %w", err)
	}
	return n, nil
}

// SaveBatch stores the enrollees as the new most recent batch. Previous flags
// are cleared in the same transaction, and an advisory lock serialises
// concurrent commits. Rows whose PAN was inserted concurrently are left out of
// the returned slice.
func (r *EnrolleeRepository) SaveBatch(ctx context.Context, batchID string, enrollees []models.Enrollee) (saved []models.Enrollee, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin save batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, importLockKey); err != nil {
		return nil, fmt.Errorf("lock save batch: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE enrollees SET last_upload = FALSE WHERE last_upload = TRUE`); err != nil {
		return nil, fmt.Errorf("clear most recent batch: %w", err)
	}

	now := time.Now().UTC()
	saved = make([]models.Enrollee, 0, len(enrollees))
	for i := range enrollees {
		enrollee := enrollees[i]
		enrollee.LastUpload = true
		enrollee.BatchID = &batchID
		if enrollee.CreatedAt.IsZero() {
			enrollee.CreatedAt = now
		}
		if err = insertEnrollee(ctx, tx, &enrollee, true); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				err = nil
				continue
			}
			return nil, fmt.Errorf("insert enrollee %s: %w", enrollee.PAN, err)
		}
		saved = append(saved, enrollee)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit save batch: %w", err)
	}
	return saved, nil
}

type rowQueryer interface {
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
}

// insertEnrollee returns sql.ErrNoRows when skipConflict is set and the PAN is taken.
func insertEnrollee(ctx context.Context, q rowQueryer, e *models.Enrollee, skipConflict bool) error {
	query := `INSERT INTO enrollees (sr_no, name, pan_number, lic_regd_number, branch, start_date, end_date, created_at, last_upload, batch_id) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if skipConflict {
		query += ` ON CONFLICT (pan_number) DO NOTHING`
	}
	query += ` RETURNING id`
	return q.QueryRowxContext(ctx, query,
		e.SerialNo, e.Name, e.PAN, e.RegistrationNumber, e.Branch, e.StartDate, e.EndDate, e.CreatedAt, e.LastUpload, e.BatchID,
	).Scan(&e.ID)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
