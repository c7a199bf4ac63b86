package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/alumni-portal-api/internal/handler"
	"github.com/noah-isme/alumni-portal-api/internal/models"
	"github.com/noah-isme/alumni-portal-api/internal/service"
	"github.com/noah-isme/alumni-portal-api/pkg/config"
	appErrors "github.com/noah-isme/alumni-portal-api/pkg/errors"
	"github.com/noah-isme/alumni-portal-api/pkg/ratelimit"
)

type tokenAuth map[string]*models.User

func (a tokenAuth) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if u, ok := a[token]; ok {
		return u, nil
	}
	return nil, appErrors.ErrUnauthorized
}

type directory struct{}

func (directory) Search(ctx context.Context, q models.AlumniQuery) (*models.AlumniPage, error) {
	return &models.AlumniPage{Items: []models.AlumniProfile{}, Pagination: models.NewPagination(1, 24, 0)}, nil
}

func (directory) Get(ctx context.Context, id string) (*models.AlumniProfile, error) {
	return &models.AlumniProfile{ID: id}, nil
}

func (directory) Import(ctx context.Context, records []models.RawProfileRecord, actorID string, meta models.RequestMeta) (*models.ImportSummary, error) {
	return &models.ImportSummary{Received: len(records)}, nil
}

func (directory) Reindex(ctx context.Context) (int, error) { return 0, nil }

func (directory) Export(ctx context.Context, spec models.FilterSpec, format string) (*service.ExportFile, error) {
	return &service.ExportFile{Filename: "alumni.csv", ContentType: "text/csv", Data: []byte("Name\n")}, nil
}

type accounts struct{}

func (accounts) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	return []models.User{}, models.NewPagination(1, 20, 0), nil
}

func (accounts) Get(ctx context.Context, id string) (*models.User, error) {
	return &models.User{ID: id}, nil
}

func (accounts) Update(ctx context.Context, id string, req models.UpdateUserRequest, actorID string, meta models.RequestMeta) (*models.User, error) {
	return &models.User{ID: id}, nil
}

func (accounts) Delete(ctx context.Context, id, actorID string, meta models.RequestMeta) error {
	return nil
}

func (accounts) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest, meta models.RequestMeta) (*models.User, error) {
	return &models.User{ID: userID}, nil
}

type sessions struct{}

func (sessions) Signup(ctx context.Context, req models.SignupRequest, meta models.RequestMeta) (*models.User, error) {
	return &models.User{ID: "new"}, nil
}

func (sessions) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	return &models.LoginResponse{AccessToken: "t", ExpiresIn: 60}, nil
}

func (sessions) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest, meta models.RequestMeta) error {
	return nil
}

type auditLog struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (a *auditLog) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, *log)
	return nil
}

func testConfig(mode string) *config.Config {
	return &config.Config{
		Env:       config.EnvProduction,
		APIPrefix: "/api/v1",
		Auth:      config.AuthConfig{Mode: mode, CookieName: "token"},
		RateLimit: config.RateLimitConfig{TrustProxy: false},
	}
}

func newEngine(cfg *config.Config, limiter *ratelimit.Limiter, audit *auditLog) *gin.Engine {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	deps := Dependencies{
		Config:  cfg,
		Metrics: metrics,
		Authenticator: tokenAuth{
			"admin-token":  {ID: "admin-1", Role: models.RoleAdmin, Approved: true},
			"alumni-token": {ID: "alum-1", Role: models.RoleAlumni, Approved: true},
		},
		Audit:          audit,
		AuthHandler:    handler.NewAuthHandler(sessions{}, handler.CookieConfig{Name: cfg.Auth.CookieName}),
		UserHandler:    handler.NewUserHandler(accounts{}),
		AlumniHandler:  handler.NewAlumniHandler(directory{}),
		MetricsHandler: handler.NewMetricsHandler(metrics, nil, nil),
	}
	if limiter != nil {
		deps.Limiter = limiter
	}
	return New(deps)
}

func send(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader("[]"))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "198.51.100.7:1234"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRoutesEnforceAuthAndRoles(t *testing.T) {
	r := newEngine(testConfig(config.AuthModeSession), nil, &auditLog{})

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"health is public", http.MethodGet, "/health", "", http.StatusOK},
		{"ready without db", http.MethodGet, "/ready", "", http.StatusOK},
		{"directory requires a credential", http.MethodGet, "/api/v1/alumni", "", http.StatusUnauthorized},
		{"directory for alumni", http.MethodGet, "/api/v1/alumni", "alumni-token", http.StatusOK},
		{"profile detail", http.MethodGet, "/api/v1/alumni/asha", "alumni-token", http.StatusOK},
		{"admin console forbidden for alumni", http.MethodGet, "/api/v1/admin/users", "alumni-token", http.StatusForbidden},
		{"admin console for admin", http.MethodGet, "/api/v1/admin/users", "admin-token", http.StatusOK},
		{"rate limit stats", http.MethodGet, "/api/v1/admin/rate-limit", "admin-token", http.StatusOK},
		{"login in session mode", http.MethodPost, "/api/v1/auth/login", "", http.StatusBadRequest},
		{"logout needs no session", http.MethodPost, "/api/v1/auth/logout", "", http.StatusNoContent},
		{"docs hidden in production", http.MethodGet, "/docs/index.html", "", http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := send(r, tc.method, tc.path, tc.token)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestIdentityModeHidesPasswordRoutes(t *testing.T) {
	r := newEngine(testConfig(config.AuthModeIDP), nil, &auditLog{})

	assert.Equal(t, http.StatusNotFound, send(r, http.MethodPost, "/api/v1/auth/login", "").Code)
	assert.Equal(t, http.StatusNotFound, send(r, http.MethodPost, "/api/v1/auth/signup", "").Code)
	assert.Equal(t, http.StatusOK, send(r, http.MethodGet, "/api/v1/auth/me", "alumni-token").Code)
}

func TestRateLimitRunsBeforeAuthentication(t *testing.T) {
	r := newEngine(testConfig(config.AuthModeSession), ratelimit.New(1, 0.001), &auditLog{})

	assert.Equal(t, http.StatusUnauthorized, send(r, http.MethodGet, "/api/v1/alumni", "").Code)
	w := send(r, http.MethodGet, "/api/v1/alumni", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Too many requests"}`, w.Body.String())
}

func TestRateLimitCoversEveryRoute(t *testing.T) {
	r := newEngine(testConfig(config.AuthModeSession), ratelimit.New(5, 0.001), &auditLog{})

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, send(r, http.MethodGet, "/health", "").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, send(r, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, send(r, http.MethodGet, "/ready", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, send(r, http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, send(r, http.MethodOptions, "/api/v1/alumni", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, send(r, http.MethodGet, "/api/v1/alumni", "alumni-token").Code)
}

func TestExportIsAudited(t *testing.T) {
	audit := &auditLog{}
	r := newEngine(testConfig(config.AuthModeSession), nil, audit)

	w := send(r, http.MethodGet, "/api/v1/admin/alumni/export?format=csv", "admin-token")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionAlumniExport, audit.entries[0].Action)
	assert.Equal(t, "admin-1", *audit.entries[0].UserID)
}
