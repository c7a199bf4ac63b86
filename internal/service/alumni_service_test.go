package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/alumni-portal-api/internal/alumni"
	"github.com/noah-isme/alumni-portal-api/internal/models"
	appErrors "github.com/noah-isme/alumni-portal-api/pkg/errors"
	"github.com/noah-isme/alumni-portal-api/pkg/jobs"
)

type memoryAlumniRepo struct {
	mu       sync.Mutex
	profiles map[string]models.AlumniProfile
	listErr  error
	updates  int
}

func newMemoryAlumniRepo() *memoryAlumniRepo {
	return &memoryAlumniRepo{profiles: map[string]models.AlumniProfile{}}
}

func (m *memoryAlumniRepo) ListAll(ctx context.Context) ([]models.AlumniProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]models.AlumniProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryAlumniRepo) FindByID(ctx context.Context, id string) (*models.AlumniProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (m *memoryAlumniRepo) UpsertBatch(ctx context.Context, profiles []models.AlumniProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range profiles {
		m.profiles[p.ID] = p
	}
	return nil
}

func (m *memoryAlumniRepo) UpdateDerived(ctx context.Context, p models.AlumniProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
	m.updates++
	return nil
}

// memoryCache stores JSON payloads like the Redis cache repository does.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	flushes int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	return nil
}

func (c *memoryCache) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string][]byte{}
	c.flushes++
	return nil
}

type recordingQueue struct {
	jobs []jobs.Job[[]models.AlumniProfile]
}

func (q *recordingQueue) Enqueue(job jobs.Job[[]models.AlumniProfile]) error {
	q.jobs = append(q.jobs, job)
	return nil
}

const importFixture = `[
	{
		"linkedin_id": "asha-verma",
		"name": "Asha Verma",
		"current_company": {"name": "Acme", "title": "SDE"},
		"education": [
			{"title": "IIIT Naya Raipur", "degree": "Bachelor of Technology - BTech", "field": "CSE", "start_year": 2018, "end_year": "2022"}
		],
		"experience": [{"company": "Acme", "location": "Bengaluru", "start_date": "Jul 2022"}]
	},
	{
		"url": "https://www.linkedin.com/in/ravi-kumar/",
		"name": "Ravi Kumar",
		"current_company_name": "Globex",
		"education": "IIIT-Naya Raipur, Bachelor of Technology (BTech), Electronics and Communications Engineering, 2017-2021"
	},
	{
		"name": "No Identifier"
	}
]`

func decodeRecords(t *testing.T) []models.RawProfileRecord {
	t.Helper()
	var records []models.RawProfileRecord
	require.NoError(t, json.Unmarshal([]byte(importFixture), &records))
	return records
}

func newAlumniFixture(repo *memoryAlumniRepo, cache *memoryCache) *AlumniService {
	engine := alumni.NewFilterEngine(alumni.NewNormalizer(nil, nil), nil)
	metrics := NewMetricsService()
	cacheSvc := NewCacheService(cache, metrics, time.Minute, zap.NewNop(), cache != nil)
	return NewAlumniService(repo, nil, engine, cacheSvc, metrics, nil, zap.NewNop(), AlumniConfig{DefaultPageSize: 10})
}

func TestAlumniServiceImportSynchronous(t *testing.T) {
	repo := newMemoryAlumniRepo()
	cache := newMemoryCache()
	svc := newAlumniFixture(repo, cache)

	summary, err := svc.Import(context.Background(), decodeRecords(t), "admin", models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Received)
	assert.Equal(t, 2, summary.Accepted)
	assert.Equal(t, 1, summary.Skipped)
	assert.NotEmpty(t, summary.JobID)
	assert.Equal(t, 1, cache.flushes)

	asha, err := svc.Get(context.Background(), "asha-verma")
	require.NoError(t, err)
	require.NotNil(t, asha.Batch)
	assert.Equal(t, "2018", *asha.Batch)
	assert.Equal(t, "CSE", *asha.Branch)
	assert.Equal(t, "2022", *asha.GraduationYear)
	assert.Equal(t, "Acme", *asha.CurrentCompanyName)

	ravi, err := svc.Get(context.Background(), "ravi-kumar")
	require.NoError(t, err)
	assert.Equal(t, "ECE", *ravi.Branch)
	assert.Equal(t, "2017", *ravi.Batch)
	assert.Equal(t, "Globex", *ravi.CurrentCompanyName)
}

func TestAlumniServiceImportQueued(t *testing.T) {
	repo := newMemoryAlumniRepo()
	svc := newAlumniFixture(repo, nil)
	queue := &recordingQueue{}
	svc.UseQueue(queue)

	summary, err := svc.Import(context.Background(), decodeRecords(t), "admin", models.RequestMeta{})
	require.NoError(t, err)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, summary.JobID, queue.jobs[0].ID)
	assert.Equal(t, ImportJobType, queue.jobs[0].Type)
	assert.Empty(t, repo.profiles)

	require.NoError(t, svc.HandleImportJob(context.Background(), queue.jobs[0]))
	assert.Len(t, repo.profiles, 2)
}

func TestAlumniServiceImportEmpty(t *testing.T) {
	svc := newAlumniFixture(newMemoryAlumniRepo(), nil)
	_, err := svc.Import(context.Background(), nil, "admin", models.RequestMeta{})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAlumniServiceSearch(t *testing.T) {
	repo := newMemoryAlumniRepo()
	cache := newMemoryCache()
	svc := newAlumniFixture(repo, cache)
	_, err := svc.Import(context.Background(), decodeRecords(t), "", models.RequestMeta{})
	require.NoError(t, err)

	page, err := svc.Search(context.Background(), models.AlumniQuery{FilterSpec: models.FilterSpec{Branch: "CSE"}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "asha-verma", page.Items[0].ID)
	assert.Equal(t, 1, page.Pagination.TotalCount)
	assert.Equal(t, 10, page.Pagination.PageSize)
	assert.Equal(t, []string{"CSE", "ECE"}, page.Facets.Branches)
	assert.Equal(t, []string{"2018", "2017"}, page.Facets.Batches)

	// Served from cache: a failing repository is not consulted.
	repo.listErr = errors.New("db down")
	cached, err := svc.Search(context.Background(), models.AlumniQuery{FilterSpec: models.FilterSpec{Branch: "CSE"}})
	require.NoError(t, err)
	assert.Equal(t, page.Items[0].ID, cached.Items[0].ID)
	assert.Equal(t, 1, cached.Pagination.TotalCount)

	_, err = svc.Search(context.Background(), models.AlumniQuery{FilterSpec: models.FilterSpec{Branch: "ECE"}})
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestAlumniServiceSearchPaging(t *testing.T) {
	repo := newMemoryAlumniRepo()
	svc := newAlumniFixture(repo, nil)
	_, err := svc.Import(context.Background(), decodeRecords(t), "", models.RequestMeta{})
	require.NoError(t, err)

	first, err := svc.Search(context.Background(), models.AlumniQuery{FilterSpec: models.FilterSpec{Degree: "any"}, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"asha-verma"}, profileIDs(first.Items))
	assert.Equal(t, 2, first.Pagination.TotalPages)

	second, err := svc.Search(context.Background(), models.AlumniQuery{Page: 2, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"ravi-kumar"}, profileIDs(second.Items))

	beyond, err := svc.Search(context.Background(), models.AlumniQuery{Page: 9, Limit: 1})
	require.NoError(t, err)
	assert.NotNil(t, beyond.Items)
	assert.Empty(t, beyond.Items)

	_, err = svc.Search(context.Background(), models.AlumniQuery{Limit: 5000})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAlumniServiceReindex(t *testing.T) {
	repo := newMemoryAlumniRepo()
	stale := "ECE"
	repo.profiles["p1"] = models.AlumniProfile{
		ID:     "p1",
		Name:   "Stale Branch",
		Branch: &stale,
		Education: models.JSONList[models.EducationEntry]{
			{Institution: "IIIT-NR", Degree: "BTech", Field: "Data Science and Artificial Intelligence", StartYear: "2020", EndYear: "2024"},
		},
	}
	svc := newAlumniFixture(repo, nil)

	updated, err := svc.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	assert.Equal(t, "DSAI", *repo.profiles["p1"].Branch)
	assert.Equal(t, "2020", *repo.profiles["p1"].Batch)

	updated, err = svc.Reindex(context.Background())
	require.NoError(t, err)
	assert.Zero(t, updated)
}

func TestAlumniServiceExport(t *testing.T) {
	repo := newMemoryAlumniRepo()
	svc := newAlumniFixture(repo, nil)
	_, err := svc.Import(context.Background(), decodeRecords(t), "", models.RequestMeta{})
	require.NoError(t, err)

	file, err := svc.Export(context.Background(), models.FilterSpec{Batch: "2017"}, "CSV")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(file.Filename, ".csv"))
	assert.Contains(t, file.ContentType, "text/csv")
	body := string(file.Data)
	assert.Contains(t, body, "Ravi Kumar")
	assert.NotContains(t, body, "Asha Verma")

	pdf, err := svc.Export(context.Background(), models.FilterSpec{}, "pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdf.Data), "%PDF"))

	_, err = svc.Export(context.Background(), models.FilterSpec{}, "xlsx")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func profileIDs(ps []models.AlumniProfile) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}
