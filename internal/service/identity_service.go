package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/alumni-portal-api/internal/models"
	"github.com/noah-isme/alumni-portal-api/internal/repository"
	appErrors "github.com/noah-isme/alumni-portal-api/pkg/errors"
	"github.com/noah-isme/alumni-portal-api/pkg/idp"
)

type identityRepository interface {
	FindByExternalSubject(ctx context.Context, subject string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	LinkExternalSubject(ctx context.Context, id, subject string) error
	Create(ctx context.Context, user *models.User) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type tokenVerifier interface {
	Verify(token string) (*idp.Claims, error)
}

type identityProvider interface {
	GetUser(ctx context.Context, id string) (*idp.User, error)
}

// IdentityService resolves identity provider tokens to local users,
// provisioning a local record the first time a subject is seen.
type IdentityService struct {
	repo     identityRepository
	verifier tokenVerifier
	provider identityProvider
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(repo identityRepository, verifier tokenVerifier, provider identityProvider, metrics *MetricsService, logger *zap.Logger) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityService{repo: repo, verifier: verifier, provider: provider, metrics: metrics, logger: logger}
}

// Authenticate verifies token and returns the linked local user.
func (s *IdentityService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.verifier.Verify(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, appErrors.ErrUnauthorized.Message)
	}

	user, err := s.repo.FindByExternalSubject(ctx, claims.Subject)
	if err == nil {
		s.metrics.RecordProvisioning(ProvisionExisting)
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		s.metrics.RecordProvisioning(ProvisionFailed)
		return nil, appErrors.Wrap(err, appErrors.ErrProvisioningFailed.Code, appErrors.ErrProvisioningFailed.Status, appErrors.ErrProvisioningFailed.Message)
	}

	user, outcome, err := s.provision(ctx, claims.Subject)
	s.metrics.RecordProvisioning(outcome)
	if err != nil {
		s.logger.Warn("identity provisioning failed", zap.String("subject", claims.Subject), zap.String("outcome", outcome), zap.Error(err))
		return nil, err
	}

	s.logger.Info("identity provisioned", zap.String("subject", claims.Subject), zap.String("user_id", user.ID), zap.String("outcome", outcome))
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &user.ID,
		Action:     models.AuditActionProvision,
		Resource:   "users",
		ResourceID: &user.ID,
		NewValues:  []byte(fmt.Sprintf(`{"outcome":%q}`, outcome)),
	}); err != nil {
		s.logger.Warn("failed to record provisioning audit log", zap.Error(err))
	}
	return user, nil
}

func (s *IdentityService) provision(ctx context.Context, subject string) (*models.User, string, error) {
	failed := func(err error) (*models.User, string, error) {
		return nil, ProvisionFailed, appErrors.Wrap(err, appErrors.ErrProvisioningFailed.Code, appErrors.ErrProvisioningFailed.Status, appErrors.ErrProvisioningFailed.Message)
	}

	remote, err := s.provider.GetUser(ctx, subject)
	if err != nil {
		return failed(err)
	}

	email := strings.ToLower(strings.TrimSpace(remote.PrimaryEmail()))
	if email == "" {
		return nil, ProvisionNoEmail, appErrors.Clone(appErrors.ErrNoEmail, "")
	}

	existing, err := s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if err := s.repo.LinkExternalSubject(ctx, existing.ID, subject); err != nil {
			return failed(err)
		}
		existing.ExternalSubject = &subject
		return existing, ProvisionLinked, nil
	case !errors.Is(err, sql.ErrNoRows):
		return failed(err)
	}

	user := &models.User{
		Email:           email,
		ExternalSubject: &subject,
		Username:        usernameFor(remote, email),
		Role:            roleFor(remote),
		Approved:        true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return failed(err)
		}
		// A concurrent request created the same user first.
		winner, findErr := s.repo.FindByExternalSubject(ctx, subject)
		if findErr != nil {
			return failed(errors.Join(err, findErr))
		}
		return winner, ProvisionExisting, nil
	}
	return user, ProvisionCreated, nil
}

func usernameFor(u *idp.User, email string) string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}

func roleFor(u *idp.User) models.UserRole {
	if role, err := models.ParseUserRole(u.MetadataRole()); err == nil {
		return role
	}
	return models.RoleAlumni
}
