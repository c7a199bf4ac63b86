package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/alumni-portal-api/internal/alumni"
	"github.com/noah-isme/alumni-portal-api/internal/models"
	appErrors "github.com/noah-isme/alumni-portal-api/pkg/errors"
	"github.com/noah-isme/alumni-portal-api/pkg/export"
	"github.com/noah-isme/alumni-portal-api/pkg/jobs"
)

// ImportJobType labels queued alumni import batches.
const ImportJobType = "alumni.import"

type alumniRepository interface {
	ListAll(ctx context.Context) ([]models.AlumniProfile, error)
	FindByID(ctx context.Context, id string) (*models.AlumniProfile, error)
	UpsertBatch(ctx context.Context, profiles []models.AlumniProfile) error
	UpdateDerived(ctx context.Context, p models.AlumniProfile) error
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type importQueue interface {
	Enqueue(job jobs.Job[[]models.AlumniProfile]) error
}

// AlumniConfig tunes directory listings.
type AlumniConfig struct {
	DefaultPageSize int
	CacheTTL        time.Duration
}

// ExportFile is a rendered directory export.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

type cachedPage struct {
	Items      []models.AlumniProfile `json:"items"`
	Pagination models.Pagination      `json:"pagination"`
	Facets     models.Facets          `json:"facets"`
}

// AlumniService serves the alumni directory: search, import, re-derivation
// and export.
type AlumniService struct {
	repo      alumniRepository
	audit     auditWriter
	engine    *alumni.FilterEngine
	cache     *CacheService
	metrics   *MetricsService
	queue     importQueue
	validator *validator.Validate
	logger    *zap.Logger
	config    AlumniConfig
}

// NewAlumniService constructs an AlumniService.
func NewAlumniService(repo alumniRepository, audit auditWriter, engine *alumni.FilterEngine, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config AlumniConfig) *AlumniService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.DefaultPageSize <= 0 {
		config.DefaultPageSize = 24
	}
	return &AlumniService{
		repo:      repo,
		audit:     audit,
		engine:    engine,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
	}
}

// UseQueue routes imports through q. Without a queue imports are persisted
// synchronously.
func (s *AlumniService) UseQueue(q importQueue) {
	s.queue = q
}

// Search returns one page of profiles matching q, with facets computed over
// the whole directory.
func (s *AlumniService) Search(ctx context.Context, q models.AlumniQuery) (*models.AlumniPage, error) {
	if err := s.validator.Struct(q); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid alumni query")
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = s.config.DefaultPageSize
	}

	key := searchCacheKey(q)
	var cached cachedPage
	if s.cache.Get(ctx, key, &cached) {
		pagination := cached.Pagination
		return &models.AlumniPage{Items: cached.Items, Pagination: &pagination, Facets: cached.Facets}, nil
	}

	profiles, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load alumni")
	}

	start := time.Now()
	matched := s.engine.Filter(profiles, q.FilterSpec)
	s.metrics.ObserveFilter(time.Since(start))

	pagination := models.NewPagination(q.Page, q.Limit, len(matched))
	page := &models.AlumniPage{
		Items:      paginate(matched, q.Page, q.Limit),
		Pagination: pagination,
		Facets:     s.engine.FacetsOf(profiles),
	}

	s.cache.Set(ctx, key, cachedPage{Items: page.Items, Pagination: *pagination, Facets: page.Facets}, s.config.CacheTTL)
	return page, nil
}

// Get returns a single profile.
func (s *AlumniService) Get(ctx context.Context, id string) (*models.AlumniProfile, error) {
	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "alumni profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load alumni profile")
	}
	return profile, nil
}

// Import normalizes raw records and stores the accepted ones. Records that
// carry no usable identifier are skipped.
func (s *AlumniService) Import(ctx context.Context, records []models.RawProfileRecord, actorID string, meta models.RequestMeta) (*models.ImportSummary, error) {
	if len(records) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no records supplied")
	}

	normalizer := s.engine.Normalizer()
	profiles := make([]models.AlumniProfile, 0, len(records))
	for _, rec := range records {
		profile, ok := normalizer.FromRaw(rec)
		if !ok {
			continue
		}
		profiles = append(profiles, profile)
	}

	summary := &models.ImportSummary{
		Received: len(records),
		Accepted: len(profiles),
		Skipped:  len(records) - len(profiles),
	}
	if len(profiles) == 0 {
		s.metrics.RecordImport(0, summary.Skipped)
		return summary, nil
	}

	job := jobs.Job[[]models.AlumniProfile]{ID: uuid.NewString(), Type: ImportJobType, Payload: profiles}
	summary.JobID = job.ID

	if s.queue != nil {
		if err := s.queue.Enqueue(job); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue import")
		}
	} else if err := s.HandleImportJob(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store alumni")
	}

	s.metrics.RecordImport(summary.Accepted, summary.Skipped)
	s.recordImport(ctx, actorID, summary, meta)
	return summary, nil
}

// HandleImportJob persists one import batch. It is the queue handler.
func (s *AlumniService) HandleImportJob(ctx context.Context, job jobs.Job[[]models.AlumniProfile]) error {
	if err := s.repo.UpsertBatch(ctx, job.Payload); err != nil {
		return err
	}
	s.cache.Invalidate(ctx)
	s.logger.Info("alumni import stored", zap.String("job_id", job.ID), zap.Int("profiles", len(job.Payload)))
	return nil
}

// Reindex recomputes derived fields for every stored profile and returns
// how many rows changed.
func (s *AlumniService) Reindex(ctx context.Context) (int, error) {
	profiles, err := s.repo.ListAll(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load alumni")
	}

	normalizer := s.engine.Normalizer()
	updated := 0
	for _, p := range profiles {
		derived := normalizer.Derive(p)
		if sameDerived(p, derived) {
			continue
		}
		if err := s.repo.UpdateDerived(ctx, derived); err != nil {
			return updated, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update alumni profile")
		}
		updated++
	}

	if updated > 0 {
		s.cache.Invalidate(ctx)
	}
	s.logger.Info("alumni reindex finished", zap.Int("profiles", len(profiles)), zap.Int("updated", updated))
	return updated, nil
}

// Export renders every profile matching spec in format.
func (s *AlumniService) Export(ctx context.Context, spec models.FilterSpec, format string) (*ExportFile, error) {
	renderer, err := export.ForFormat(strings.ToLower(format))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}

	profiles, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load alumni")
	}

	data, err := renderer.Render(directoryDataset(s.engine.Filter(profiles, spec)))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	return &ExportFile{
		Filename:    fmt.Sprintf("alumni-%s.%s", time.Now().UTC().Format("20060102"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Data:        data,
	}, nil
}

func (s *AlumniService) recordImport(ctx context.Context, actorID string, summary *models.ImportSummary, meta models.RequestMeta) {
	if s.audit == nil {
		return
	}
	var actor *string
	if actorID != "" {
		actor = &actorID
	}
	jobID := summary.JobID
	entry := &models.AuditLog{
		UserID:     actor,
		Action:     models.AuditActionAlumniImport,
		Resource:   "alumni_profiles",
		ResourceID: &jobID,
		NewValues:  []byte(fmt.Sprintf(`{"received":%d,"accepted":%d,"skipped":%d}`, summary.Received, summary.Accepted, summary.Skipped)),
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record import audit log", zap.Error(err))
	}
}

func searchCacheKey(q models.AlumniQuery) string {
	v := url.Values{}
	v.Set("search", strings.ToLower(strings.TrimSpace(q.SearchTerm)))
	v.Set("degree", q.Degree)
	v.Set("branch", q.Branch)
	v.Set("batch", q.Batch)
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("limit", strconv.Itoa(q.Limit))
	return "alumni:search:" + v.Encode()
}

func paginate(items []models.AlumniProfile, page, limit int) []models.AlumniProfile {
	start := (page - 1) * limit
	if start >= len(items) {
		return []models.AlumniProfile{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func sameDerived(a, b models.AlumniProfile) bool {
	return equalPtr(a.Batch, b.Batch) &&
		equalPtr(a.Branch, b.Branch) &&
		equalPtr(a.GraduationYear, b.GraduationYear) &&
		equalPtr(a.CurrentCompanyName, b.CurrentCompanyName)
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

var exportHeaders = []string{"Name", "Batch", "Branch", "Graduation Year", "Company", "Location", "Profile"}

func directoryDataset(profiles []models.AlumniProfile) export.Dataset {
	rows := make([]map[string]string, 0, len(profiles))
	for _, p := range profiles {
		rows = append(rows, map[string]string{
			"Name":            p.Name,
			"Batch":           deref(p.Batch),
			"Branch":          deref(p.Branch),
			"Graduation Year": deref(p.GraduationYear),
			"Company":         deref(p.CurrentCompanyName),
			"Location":        deref(p.Location),
			"Profile":         deref(p.ProfileURL),
		})
	}
	return export.Dataset{Title: "Alumni Directory", Headers: exportHeaders, Rows: rows}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
