package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/alumni-portal-api/internal/models"
	appErrors "github.com/noah-isme/alumni-portal-api/pkg/errors"
	"github.com/noah-isme/alumni-portal-api/pkg/idp"
)

type stubVerifier struct {
	subjects map[string]string
}

func (v stubVerifier) Verify(token string) (*idp.Claims, error) {
	subject, ok := v.subjects[token]
	if !ok {
		return nil, idp.ErrInvalidToken
	}
	claims := &idp.Claims{}
	claims.Subject = subject
	return claims, nil
}

type stubProvider struct {
	users map[string]*idp.User
	err   error
	calls atomic.Int32
}

func (p *stubProvider) GetUser(ctx context.Context, id string) (*idp.User, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	u, ok := p.users[id]
	if !ok {
		return nil, idp.ErrUserNotFound
	}
	return u, nil
}

func newIdentityFixture(repo *memoryUserRepo, provider *stubProvider) (*IdentityService, *MetricsService) {
	verifier := stubVerifier{subjects: map[string]string{
		"tok-new":      "sub_new",
		"tok-existing": "sub_existing",
		"tok-linked":   "sub_linked",
		"tok-noemail":  "sub_noemail",
	}}
	metrics := NewMetricsService()
	return NewIdentityService(repo, verifier, provider, metrics, zap.NewNop()), metrics
}

func emailUser(id, email string) *idp.User {
	return &idp.User{
		ID:                    id,
		PrimaryEmailAddressID: "e1",
		EmailAddresses:        []idp.EmailAddress{{ID: "e1", EmailAddress: email}},
	}
}

func TestIdentityServiceInvalidToken(t *testing.T) {
	svc, _ := newIdentityFixture(newMemoryUserRepo(), &stubProvider{})
	_, err := svc.Authenticate(context.Background(), "forged")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
	assert.Equal(t, "Not authenticated", appErr.Message)
}

func TestIdentityServiceExistingSubject(t *testing.T) {
	subject := "sub_existing"
	repo := newMemoryUserRepo(&models.User{ID: "u1", Email: "a@example.com", ExternalSubject: &subject, Role: models.RoleFaculty, Approved: true})
	provider := &stubProvider{}
	svc, metrics := newIdentityFixture(repo, provider)

	user, err := svc.Authenticate(context.Background(), "tok-existing")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Zero(t, provider.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.provisioning.WithLabelValues(ProvisionExisting)))
}

func TestIdentityServiceProvisionsNewUser(t *testing.T) {
	remote := emailUser("sub_new", "New.Person@Example.com")
	remote.FirstName = "New"
	remote.LastName = "Person"
	remote.PublicMetadata = map[string]interface{}{"role": "Faculty"}

	repo := newMemoryUserRepo()
	svc, metrics := newIdentityFixture(repo, &stubProvider{users: map[string]*idp.User{"sub_new": remote}})

	user, err := svc.Authenticate(context.Background(), "tok-new")
	require.NoError(t, err)
	assert.Equal(t, "new.person@example.com", user.Email)
	assert.Equal(t, "New Person", user.Username)
	assert.Equal(t, models.RoleFaculty, user.Role)
	assert.True(t, user.Approved)
	require.NotNil(t, user.ExternalSubject)
	assert.Equal(t, "sub_new", *user.ExternalSubject)
	assert.Equal(t, []string{models.AuditActionProvision}, repo.actions())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.provisioning.WithLabelValues(ProvisionCreated)))

	again, err := svc.Authenticate(context.Background(), "tok-new")
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
}

func TestIdentityServiceDefaultsRoleAndUsername(t *testing.T) {
	remote := emailUser("sub_new", "solo@example.com")
	remote.PublicMetadata = map[string]interface{}{"role": "superuser"}

	svc, _ := newIdentityFixture(newMemoryUserRepo(), &stubProvider{users: map[string]*idp.User{"sub_new": remote}})
	user, err := svc.Authenticate(context.Background(), "tok-new")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAlumni, user.Role)
	assert.Equal(t, "solo", user.Username)
}

func TestIdentityServiceLinksExistingEmail(t *testing.T) {
	repo := newMemoryUserRepo(&models.User{ID: "u9", Email: "linked@example.com", Role: models.RoleAdmin, Approved: true})
	svc, metrics := newIdentityFixture(repo, &stubProvider{users: map[string]*idp.User{"sub_linked": emailUser("sub_linked", "Linked@example.com")}})

	user, err := svc.Authenticate(context.Background(), "tok-linked")
	require.NoError(t, err)
	assert.Equal(t, "u9", user.ID)
	assert.Equal(t, models.RoleAdmin, user.Role)

	stored, err := repo.FindByExternalSubject(context.Background(), "sub_linked")
	require.NoError(t, err)
	assert.Equal(t, "u9", stored.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.provisioning.WithLabelValues(ProvisionLinked)))
}

func TestIdentityServiceNoEmail(t *testing.T) {
	svc, metrics := newIdentityFixture(newMemoryUserRepo(), &stubProvider{users: map[string]*idp.User{"sub_noemail": {ID: "sub_noemail"}}})

	_, err := svc.Authenticate(context.Background(), "tok-noemail")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, 403, appErr.Status)
	assert.Equal(t, "No email associated with account", appErr.Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.provisioning.WithLabelValues(ProvisionNoEmail)))
}

func TestIdentityServiceProvisioningFailures(t *testing.T) {
	cases := map[string]struct {
		repo     *memoryUserRepo
		provider *stubProvider
	}{
		"provider down":     {repo: newMemoryUserRepo(), provider: &stubProvider{err: errors.New("timeout")}},
		"unknown at idp":    {repo: newMemoryUserRepo(), provider: &stubProvider{}},
		"create fails":      {repo: func() *memoryUserRepo { r := newMemoryUserRepo(); r.createErr = errors.New("disk full"); return r }(), provider: &stubProvider{users: map[string]*idp.User{"sub_new": emailUser("sub_new", "n@example.com")}}},
		"subject lookup db": {repo: func() *memoryUserRepo { r := newMemoryUserRepo(); r.findErr = errors.New("db down"); return r }(), provider: &stubProvider{}},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc, _ := newIdentityFixture(tc.repo, tc.provider)
			_, err := svc.Authenticate(context.Background(), "tok-new")
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, appErrors.ErrProvisioningFailed.Code, appErr.Code)
			assert.Equal(t, "User profile not found. Please contact admin.", appErr.Message)
		})
	}
}

func TestIdentityServiceConcurrentFirstLogin(t *testing.T) {
	repo := newMemoryUserRepo()
	svc, _ := newIdentityFixture(repo, &stubProvider{users: map[string]*idp.User{"sub_new": emailUser("sub_new", "race@example.com")}})

	var wg sync.WaitGroup
	ids := make([]string, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user, err := svc.Authenticate(context.Background(), "tok-new")
			errs[i] = err
			if user != nil {
				ids[i] = user.ID
			}
		}(i)
	}
	wg.Wait()

	users, total, err := repo.List(context.Background(), models.UserFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, users[0].ID, ids[i])
	}
}
