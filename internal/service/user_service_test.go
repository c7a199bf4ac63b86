package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/alumni-portal-api/internal/models"
	appErrors "github.com/noah-isme/alumni-portal-api/pkg/errors"
)

func seededUsers() *memoryUserRepo {
	return newMemoryUserRepo(
		&models.User{ID: "admin", Email: "admin@example.com", Username: "admin", Role: models.RoleAdmin, Approved: true},
		&models.User{ID: "u1", Email: "asha@example.com", Username: "asha", Role: models.RoleAlumni},
		&models.User{ID: "u2", Email: "ravi@example.com", Username: "ravi", Role: models.RoleStudent, Approved: true},
	)
}

func TestUserServiceList(t *testing.T) {
	svc := NewUserService(seededUsers(), nil, nil)

	pending := false
	users, pagination, err := svc.List(context.Background(), models.UserFilter{Approved: &pending})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].ID)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalPages)
}

func TestUserServiceApproveAndPromote(t *testing.T) {
	repo := seededUsers()
	svc := NewUserService(repo, nil, nil)

	approved := true
	role := models.RoleFaculty
	user, err := svc.Update(context.Background(), "u1", models.UpdateUserRequest{Approved: &approved, Role: &role}, "admin", models.RequestMeta{IP: "127.0.0.1"})
	require.NoError(t, err)
	assert.True(t, user.Approved)
	assert.Equal(t, models.RoleFaculty, user.Role)

	require.Len(t, repo.auditLogs, 1)
	entry := repo.auditLogs[0]
	assert.Equal(t, models.AuditActionUserUpdate, entry.Action)
	assert.Equal(t, "admin", *entry.UserID)
	assert.Contains(t, string(entry.OldValues), `"approved":false`)
	assert.Contains(t, string(entry.NewValues), `"approved":true`)
}

func TestUserServiceUpdateRejectsUnknownRole(t *testing.T) {
	svc := NewUserService(seededUsers(), nil, nil)
	role := models.UserRole("superuser")
	_, err := svc.Update(context.Background(), "u1", models.UpdateUserRequest{Role: &role}, "admin", models.RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceUpdateMissing(t *testing.T) {
	svc := NewUserService(seededUsers(), nil, nil)
	approved := true
	_, err := svc.Update(context.Background(), "ghost", models.UpdateUserRequest{Approved: &approved}, "admin", models.RequestMeta{})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUserServiceDelete(t *testing.T) {
	repo := seededUsers()
	svc := NewUserService(repo, nil, nil)

	err := svc.Delete(context.Background(), "admin", "admin", models.RequestMeta{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, 403, appErr.Status)
	assert.Equal(t, "cannot delete your own account", appErr.Message)

	require.NoError(t, svc.Delete(context.Background(), "u2", "admin", models.RequestMeta{}))
	_, err = svc.Get(context.Background(), "u2")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Equal(t, []string{models.AuditActionUserDelete}, repo.actions())

	err = svc.Delete(context.Background(), "u2", "admin", models.RequestMeta{})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUserServiceUpdateProfile(t *testing.T) {
	repo := seededUsers()
	svc := NewUserService(repo, nil, nil)

	phone := "+91 98765 43210"
	branch := "CSE"
	user, err := svc.UpdateProfile(context.Background(), "u2", models.UpdateProfileRequest{Phone: &phone, Branch: &branch}, models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "ravi", user.Username)
	assert.Equal(t, phone, *user.Phone)
	assert.Equal(t, branch, *user.Branch)
	assert.Equal(t, models.RoleStudent, user.Role)
	assert.Equal(t, []string{models.AuditActionProfileUpdate}, repo.actions())

	short := "x"
	_, err = svc.UpdateProfile(context.Background(), "u2", models.UpdateProfileRequest{Username: &short}, models.RequestMeta{})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceMakeAdmin(t *testing.T) {
	repo := seededUsers()
	svc := NewUserService(repo, nil, nil)

	user, err := svc.MakeAdmin(context.Background(), "ASHA@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.True(t, user.Approved)

	_, err = svc.MakeAdmin(context.Background(), "nobody@example.com")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
