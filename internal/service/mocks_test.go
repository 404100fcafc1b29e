package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/enrollee-api/internal/models"
	appErrors "github.com/noah-isme/enrollee-api/pkg/errors"
)

type auditStub struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, log)
	return nil
}

// memoryEnrolleeRepo keeps enrollees in insertion order and mimics the
// postgres repository semantics the services rely on.
type memoryEnrolleeRepo struct {
	mu        sync.Mutex
	records   []*models.Enrollee
	nextID    int64
	raced     []string
	seedErr   error
	clearErr  error
	saveErr   error
	clears    int
	saveCalls int
}

func newMemoryEnrolleeRepo(existing ...models.Enrollee) *memoryEnrolleeRepo {
	repo := &memoryEnrolleeRepo{}
	for i := range existing {
		e := existing[i]
		_ = repo.insert(&e)
	}
	return repo
}

func (m *memoryEnrolleeRepo) insert(e *models.Enrollee) bool {
	for _, r := range m.records {
		if r.PAN == e.PAN {
			return false
		}
	}
	m.nextID++
	e.ID = m.nextID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	copied := *e
	m.records = append(m.records, &copied)
	return true
}

func (m *memoryEnrolleeRepo) find(pan string) *models.Enrollee {
	for _, r := range m.records {
		if r.PAN == pan {
			return r
		}
	}
	return nil
}

func (m *memoryEnrolleeRepo) FindAllIdentifiers(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seedErr != nil {
		return nil, m.seedErr
	}
	pans := make([]string, 0, len(m.records))
	for _, r := range m.records {
		pans = append(pans, r.PAN)
	}
	return pans, nil
}

func (m *memoryEnrolleeRepo) ExistsByPAN(ctx context.Context, pan string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(pan) != nil, nil
}

func (m *memoryEnrolleeRepo) FindByPAN(ctx context.Context, pan string) (*models.Enrollee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.find(pan); r != nil {
		copied := *r
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memoryEnrolleeRepo) List(ctx context.Context, filter models.EnrolleeFilter) ([]models.Enrollee, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Enrollee
	for _, r := range m.records {
		if filter.Search != "" && !strings.Contains(strings.ToLower(r.Name), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (m *memoryEnrolleeRepo) FindAll(ctx context.Context) ([]models.Enrollee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Enrollee, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, *r)
	}
	return out, nil
}

func (m *memoryEnrolleeRepo) Create(ctx context.Context, enrollee *models.Enrollee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.insert(enrollee) {
		return appErrors.Clone(appErrors.ErrConflict, "duplicate key")
	}
	return nil
}

func (m *memoryEnrolleeRepo) Update(ctx context.Context, enrollee *models.Enrollee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.find(enrollee.PAN)
	if r == nil {
		return sql.ErrNoRows
	}
	created := r.CreatedAt
	*r = *enrollee
	r.CreatedAt = created
	return nil
}

func (m *memoryEnrolleeRepo) Delete(ctx context.Context, pan string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.records {
		if r.PAN == pan {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memoryEnrolleeRepo) FindMostRecentBatch(ctx context.Context) ([]models.Enrollee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Enrollee
	for _, r := range m.records {
		if r.LastUpload {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memoryEnrolleeRepo) ClearMostRecentBatch(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	if m.clearErr != nil {
		return 0, m.clearErr
	}
	return m.clearFlags(), nil
}

func (m *memoryEnrolleeRepo) clearFlags() int64 {
	var n int64
	for _, r := range m.records {
		if r.LastUpload {
			r.LastUpload = false
			n++
		}
	}
	return n
}

func (m *memoryEnrolleeRepo) SaveBatch(ctx context.Context, batchID string, enrollees []models.Enrollee) ([]models.Enrollee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	for _, pan := range m.raced {
		m.insert(&models.Enrollee{PAN: pan, Name: "concurrent"})
	}
	m.clearFlags()
	saved := make([]models.Enrollee, 0, len(enrollees))
	for i := range enrollees {
		e := enrollees[i]
		e.LastUpload = true
		e.BatchID = &batchID
		if m.insert(&e) {
			saved = append(saved, e)
		}
	}
	return saved, nil
}

func (m *memoryEnrolleeRepo) pans() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.PAN)
	}
	sort.Strings(out)
	return out
}

// memoryCacheRepo is an in-process CacheRepository storing JSON payloads.
type memoryCacheRepo struct {
	mu      sync.Mutex
	items   map[string][]byte
	deletes []string
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{items: make(map[string][]byte)}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
		}
	}
	return nil
}
